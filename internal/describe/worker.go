package describe

import (
	"context"
	"log"
	"sync"

	"github.com/seesay/image-service/internal/metrics"
	"github.com/seesay/image-service/internal/ticket"
)

// WorkerConfig holds worker pool tuning parameters.
type WorkerConfig struct {
	PoolSize int // concurrent description workers
	Buffer   int // local ticket backlog before Submit blocks
}

// DefaultWorkerConfig returns sensible production defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PoolSize: 4,
		Buffer:   64,
	}
}

// Worker pulls tickets from an in-process channel and runs the description
// stage on each. The channel decouples the stage from the queue transport:
// whatever delivers messages only needs to decode them and call Submit.
type Worker struct {
	stage *Stage
	jobs  chan ticket.Ticket
	wg    sync.WaitGroup

	// mu guards the stopped flag and, through it, the jobs channel: Submit
	// sends while holding the read lock, so Stop cannot close the channel
	// under an in-flight send.
	mu      sync.RWMutex
	stopped bool
}

// NewWorker creates a worker pool around the stage.
func NewWorker(stage *Stage, config WorkerConfig) *Worker {
	return &Worker{
		stage: stage,
		jobs:  make(chan ticket.Ticket, config.Buffer),
	}
}

// Start launches n worker goroutines that drain the job channel until Stop
// is called.
func (w *Worker) Start(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for t := range w.jobs {
				metrics.DescribeBacklog.Dec()
				w.stage.Process(ctx, t)
			}
		}()
	}
	log.Printf("[describe] worker pool started (workers=%d)", n)
}

// Submit decodes a raw queue message and hands the ticket to the pool. A
// message that does not decode is logged and dropped; it would never
// succeed on redelivery either. Tickets delivered after Stop — the NATS
// drain window lets a few through — are logged and dropped, never a crash.
func (w *Worker) Submit(data []byte) {
	t, err := ticket.Decode(data)
	if err != nil {
		log.Printf("[describe] dropping undecodable ticket: %v", err)
		return
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		log.Printf("[describe] dropping ticket post=%d delivered after shutdown", t.PostID)
		return
	}
	metrics.DescribeBacklog.Inc()
	w.jobs <- t
}

// Stop closes the job channel and waits for in-flight tickets to finish.
// Safe to call more than once; Submit calls racing Stop either land before
// the close or are dropped.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.jobs)
	}
	w.mu.Unlock()

	w.wg.Wait()
	log.Printf("[describe] worker pool stopped")
}
