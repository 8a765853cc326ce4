package describe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seesay/image-service/internal/protocol"
	"github.com/seesay/image-service/internal/ticket"
)

type fakeDescriber struct {
	text    string
	err     error
	gotURLs []string
}

func (f *fakeDescriber) Describe(_ context.Context, imageURL string) (string, error) {
	f.gotURLs = append(f.gotURLs, imageURL)
	return f.text, f.err
}

type fakeRecords struct {
	written map[int64][]string
	err     error
}

func (f *fakeRecords) SetDescription(_ context.Context, postID int64, description string) error {
	if f.err != nil {
		return f.err
	}
	if f.written == nil {
		f.written = make(map[int64][]string)
	}
	f.written[postID] = append(f.written[postID], description)
	return nil
}

type notification struct {
	connID string
	event  string
}

type fakeNotifier struct {
	events []notification
}

func (f *fakeNotifier) Notify(connectionID, eventType, _ string) {
	f.events = append(f.events, notification{connID: connectionID, event: eventType})
}

func queuedTicket() ticket.Ticket {
	return ticket.Ticket{
		UserID:       "user-1",
		PostID:       42,
		ConnectionID: "conn-1",
		ImageURL:     "https://storage.googleapis.com/images/abc.jpg",
		AutoDescribe: true,
	}
}

func TestProcess_Success(t *testing.T) {
	captions := &fakeDescriber{text: "a cat sleeping on a windowsill"}
	records := &fakeRecords{}
	notifier := &fakeNotifier{}
	stage := NewStage(captions, records, notifier, "http://pub")

	stage.Process(context.Background(), queuedTicket())

	if len(captions.gotURLs) != 1 || captions.gotURLs[0] != "http://pub/abc.jpg" {
		t.Errorf("describer called with %v, want [http://pub/abc.jpg]", captions.gotURLs)
	}
	if got := records.written[42]; len(got) != 1 || got[0] != captions.text {
		t.Errorf("descriptions written = %v, want [%q]", got, captions.text)
	}
	if len(notifier.events) != 1 ||
		notifier.events[0].event != protocol.TypeProcessingFinish ||
		notifier.events[0].connID != "conn-1" {
		t.Errorf("events = %v, want one processing_finish to conn-1", notifier.events)
	}
}

func TestProcess_CaptionFailure(t *testing.T) {
	captions := &fakeDescriber{err: errors.New("model unavailable")}
	records := &fakeRecords{}
	notifier := &fakeNotifier{}
	stage := NewStage(captions, records, notifier, "http://pub")

	stage.Process(context.Background(), queuedTicket())

	if len(records.written) != 0 {
		t.Errorf("no description should be written on failure, got %v", records.written)
	}
	if len(notifier.events) != 1 || notifier.events[0].event != protocol.TypeErrorExternal {
		t.Errorf("events = %v, want one error_external", notifier.events)
	}
}

func TestProcess_PersistFailure(t *testing.T) {
	captions := &fakeDescriber{text: "a dog"}
	records := &fakeRecords{err: errors.New("connection refused")}
	notifier := &fakeNotifier{}
	stage := NewStage(captions, records, notifier, "http://pub")

	stage.Process(context.Background(), queuedTicket())

	if len(notifier.events) != 1 || notifier.events[0].event != protocol.TypeErrorExternal {
		t.Errorf("events = %v, want one error_external", notifier.events)
	}
}

// TestProcess_RedeliveryOverwrites documents actual behavior: the stage is
// not idempotent on the record store. Delivering the same ticket twice runs
// the caption call twice and silently overwrites the description.
func TestProcess_RedeliveryOverwrites(t *testing.T) {
	captions := &fakeDescriber{text: "first caption"}
	records := &fakeRecords{}
	notifier := &fakeNotifier{}
	stage := NewStage(captions, records, notifier, "http://pub")

	tk := queuedTicket()
	stage.Process(context.Background(), tk)
	captions.text = "second caption"
	stage.Process(context.Background(), tk)

	got := records.written[42]
	if len(got) != 2 {
		t.Fatalf("description written %d times, want 2 (no dedup)", len(got))
	}
	if got[1] != "second caption" {
		t.Errorf("final description = %q, want the redelivered run to win", got[1])
	}

	finishes := 0
	for _, e := range notifier.events {
		if e.event == protocol.TypeProcessingFinish {
			finishes++
		}
	}
	if finishes != 2 {
		t.Errorf("processing_finish sent %d times, want 2 (once per delivery)", finishes)
	}
}

func TestWorker_ProcessesSubmittedTickets(t *testing.T) {
	captions := &fakeDescriber{text: "a caption"}
	records := &fakeRecords{}
	notifier := &fakeNotifier{}
	stage := NewStage(captions, records, notifier, "http://pub")

	worker := NewWorker(stage, WorkerConfig{PoolSize: 2, Buffer: 4})
	worker.Start(context.Background(), 2)

	data, err := ticket.Encode(queuedTicket())
	if err != nil {
		t.Fatalf("encode ticket: %v", err)
	}
	worker.Submit(data)
	worker.Submit([]byte("not json")) // dropped, must not wedge the pool

	done := make(chan struct{})
	go func() {
		worker.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not drain within 5s")
	}

	if got := records.written[42]; len(got) != 1 {
		t.Errorf("descriptions written = %v, want exactly one", got)
	}
}

// A NATS drain is asynchronous, so the subscription can still deliver a
// ticket after the pool has shut down. A late delivery must be dropped,
// not crash the process.
func TestWorker_SubmitAfterStopDropsTicket(t *testing.T) {
	captions := &fakeDescriber{text: "a caption"}
	records := &fakeRecords{}
	stage := NewStage(captions, records, &fakeNotifier{}, "http://pub")

	worker := NewWorker(stage, DefaultWorkerConfig())
	worker.Start(context.Background(), 1)
	worker.Stop()

	data, err := ticket.Encode(queuedTicket())
	if err != nil {
		t.Fatalf("encode ticket: %v", err)
	}
	worker.Submit(data) // must not panic
	worker.Stop()       // must stay idempotent

	if len(records.written) != 0 {
		t.Errorf("late ticket was processed, got %v", records.written)
	}
}
