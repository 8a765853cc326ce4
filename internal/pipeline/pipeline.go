// Package pipeline implements the synchronous phase of the image submission
// pipeline: moderation, storage, record update, and either immediate
// completion or handoff to the description queue. All collaborators are
// passed in at construction as interfaces; the controller holds no global
// client state.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/seesay/image-service/internal/imagestore"
	"github.com/seesay/image-service/internal/metrics"
	"github.com/seesay/image-service/internal/moderation"
	"github.com/seesay/image-service/internal/notify"
	"github.com/seesay/image-service/internal/protocol"
	"github.com/seesay/image-service/internal/ticket"
)

// Status texts pushed to clients alongside the typed events.
const (
	TextProcessingStart = "Uploading image..."
	TextErrorExternal   = "Error while uploading image. Please try later."
	TextFinish          = "Image was successfully uploaded!"

	banTextFormat = "The image contains %s. You have been banned for violating the terms of service."
)

// Outcome is the terminal result of the synchronous phase.
type Outcome int

const (
	// OutcomeInvalid means the submission was malformed; nothing was
	// mutated and no compensation is needed.
	OutcomeInvalid Outcome = iota
	// OutcomeAccepted means the image was approved and stored; a
	// description may still be pending.
	OutcomeAccepted
	// OutcomeRejected means moderation flagged the image; the account was
	// locked and the post deleted.
	OutcomeRejected
	// OutcomeFailed means an external collaborator failed; the post record
	// was deleted, the account was not locked.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInvalid:
		return "invalid"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Submission is one parsed inbound request. Image holds the raw payload;
// the controller retains it for the duration of the synchronous phase and
// hands each single-pass consumer (moderation, then storage) its own
// independent reader over it.
type Submission struct {
	UserID       string
	PostID       int64
	ConnectionID string
	AutoDescribe bool
	Image        []byte
}

func (s Submission) validate() error {
	if s.UserID == "" {
		return fmt.Errorf("pipeline: missing user id")
	}
	if s.PostID == 0 {
		return fmt.Errorf("pipeline: missing post id")
	}
	if len(s.Image) == 0 {
		return fmt.Errorf("pipeline: missing image payload")
	}
	return nil
}

// RecordUpdater writes the canonical image URL onto the post record.
type RecordUpdater interface {
	SetImageURL(ctx context.Context, postID int64, imageURL string) error
}

// Compensator performs the rollback writes. Both modes log their own
// failures; the controller does not branch on compensation errors.
type Compensator interface {
	Ban(ctx context.Context, userID string, postID int64, reason string)
	Failure(ctx context.Context, postID int64)
}

// Queue carries the serialized ticket to the description stage.
type Queue interface {
	PublishTicket(data []byte) error
}

// Controller orchestrates one submission through the synchronous phase.
// Multiple submissions are processed concurrently; the controller itself
// holds no mutable state across requests.
type Controller struct {
	gate     moderation.Gate
	images   imagestore.Store
	records  RecordUpdater
	comp     Compensator
	queue    Queue
	notifier notify.Notifier
}

// NewController wires the collaborators into a controller.
func NewController(gate moderation.Gate, images imagestore.Store, records RecordUpdater,
	comp Compensator, queue Queue, notifier notify.Notifier) *Controller {
	return &Controller{
		gate:     gate,
		images:   images,
		records:  records,
		comp:     comp,
		queue:    queue,
		notifier: notifier,
	}
}

// Submit runs the synchronous phase for one submission. The returned error
// carries detail for logging and the HTTP response body; the Outcome decides
// the status code. No failure escapes as a panic.
func (c *Controller) Submit(ctx context.Context, sub Submission) (Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.SubmissionDuration.Observe(time.Since(start).Seconds())
	}()

	if err := sub.validate(); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(OutcomeInvalid.String()).Inc()
		return OutcomeInvalid, err
	}

	t := ticket.Ticket{
		UserID:       sub.UserID,
		PostID:       sub.PostID,
		ConnectionID: sub.ConnectionID,
		AutoDescribe: sub.AutoDescribe,
	}

	log.Printf("[pipeline] received submission user=%s post=%d auto_describe=%v",
		t.UserID, t.PostID, t.AutoDescribe)
	c.notifier.Notify(t.ConnectionID, protocol.TypeProcessingStart, TextProcessingStart)

	verdict, err := c.gate.Classify(ctx, sub.Image)
	if err != nil {
		metrics.ModerationVerdictsTotal.WithLabelValues("error").Inc()
		metrics.SubmissionsTotal.WithLabelValues(OutcomeFailed.String()).Inc()
		log.Printf("[pipeline] moderation failed user=%s post=%d: %v", t.UserID, t.PostID, err)
		c.notifier.Notify(t.ConnectionID, protocol.TypeErrorExternal, TextErrorExternal)
		c.comp.Failure(ctx, t.PostID)
		return OutcomeFailed, fmt.Errorf("pipeline: moderation: %w", err)
	}

	if verdict.Inappropriate() {
		reason := verdict.Reason()
		metrics.ModerationVerdictsTotal.WithLabelValues("inappropriate").Inc()
		metrics.SubmissionsTotal.WithLabelValues(OutcomeRejected.String()).Inc()
		log.Printf("[pipeline] image flagged (%s) user=%s post=%d, removing from pipeline",
			reason, t.UserID, t.PostID)
		c.notifier.Notify(t.ConnectionID, protocol.TypeErrorBan, fmt.Sprintf(banTextFormat, reason))
		c.comp.Ban(ctx, t.UserID, t.PostID, reason)
		return OutcomeRejected, nil
	}
	metrics.ModerationVerdictsTotal.WithLabelValues("clean").Inc()

	// Storage reads the retained payload through its own reader; the
	// moderation pass above never touches stream position state.
	key := uuid.New().String() + ".jpg"
	imageURL, err := c.images.Save(ctx, key, bytes.NewReader(sub.Image))
	if err != nil {
		return c.failExternal(ctx, t, fmt.Errorf("pipeline: store image: %w", err))
	}
	log.Printf("[pipeline] image stored user=%s post=%d url=%s", t.UserID, t.PostID, imageURL)

	if err := c.records.SetImageURL(ctx, t.PostID, imageURL); err != nil {
		return c.failExternal(ctx, t, fmt.Errorf("pipeline: update record: %w", err))
	}
	t.ImageURL = imageURL

	if !t.AutoDescribe {
		metrics.SubmissionsTotal.WithLabelValues(OutcomeAccepted.String()).Inc()
		log.Printf("[pipeline] processing finished user=%s post=%d (no description requested)",
			t.UserID, t.PostID)
		c.notifier.Notify(t.ConnectionID, protocol.TypeProcessingFinish, TextFinish)
		return OutcomeAccepted, nil
	}

	data, err := ticket.Encode(t)
	if err != nil {
		return c.failEnqueue(t, err)
	}
	if err := c.queue.PublishTicket(data); err != nil {
		return c.failEnqueue(t, fmt.Errorf("pipeline: enqueue ticket: %w", err))
	}

	metrics.SubmissionsTotal.WithLabelValues(OutcomeAccepted.String()).Inc()
	log.Printf("[pipeline] ticket queued for description user=%s post=%d", t.UserID, t.PostID)
	return OutcomeAccepted, nil
}

// failExternal handles a storage or record-write failure: the submission is
// surfaced like any other external service failure, and the now-orphaned
// post record is removed.
func (c *Controller) failExternal(ctx context.Context, t ticket.Ticket, err error) (Outcome, error) {
	metrics.SubmissionsTotal.WithLabelValues(OutcomeFailed.String()).Inc()
	log.Printf("[pipeline] user=%s post=%d: %v", t.UserID, t.PostID, err)
	c.notifier.Notify(t.ConnectionID, protocol.TypeErrorExternal, TextErrorExternal)
	c.comp.Failure(ctx, t.PostID)
	return OutcomeFailed, err
}

// failEnqueue handles a queue handoff failure. The stored image and record
// are consistent at this point, so no compensation runs; only the pending
// description is lost.
func (c *Controller) failEnqueue(t ticket.Ticket, err error) (Outcome, error) {
	metrics.SubmissionsTotal.WithLabelValues(OutcomeFailed.String()).Inc()
	log.Printf("[pipeline] user=%s post=%d: %v", t.UserID, t.PostID, err)
	c.notifier.Notify(t.ConnectionID, protocol.TypeErrorExternal, TextErrorExternal)
	return OutcomeFailed, err
}
