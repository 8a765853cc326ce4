// Package describe implements the asynchronous phase of the pipeline: it
// consumes queued tickets, obtains a caption for the stored image, persists
// it on the post record, and pushes the final status event. Failures are
// logged and notified only; this stage has no caller to return a status to
// and never retries on its own — redelivery, if any, belongs to the queue
// transport.
package describe

import (
	"context"
	"log"

	"github.com/seesay/image-service/internal/caption"
	"github.com/seesay/image-service/internal/metrics"
	"github.com/seesay/image-service/internal/notify"
	"github.com/seesay/image-service/internal/protocol"
	"github.com/seesay/image-service/internal/ticket"
)

// Status texts pushed to clients by this stage.
const (
	TextErrorExternal = "Error while describing image. Please try later."
	TextFinish        = "Image was successfully uploaded!"
)

// DescriptionWriter persists the generated caption on the post record.
type DescriptionWriter interface {
	SetDescription(ctx context.Context, postID int64, description string) error
}

// Stage processes one queued ticket at a time. Instances are safe for
// concurrent use by multiple workers.
type Stage struct {
	captions   caption.Describer
	records    DescriptionWriter
	notifier   notify.Notifier
	publicBase string
}

// NewStage wires the collaborators into a description stage. publicBase is
// the caller-reachable address stored image URLs are rewritten onto.
func NewStage(captions caption.Describer, records DescriptionWriter,
	notifier notify.Notifier, publicBase string) *Stage {
	return &Stage{
		captions:   captions,
		records:    records,
		notifier:   notifier,
		publicBase: publicBase,
	}
}

// Process runs the description stage for one ticket. A redelivered ticket
// runs again in full and overwrites any earlier caption; the stage makes no
// idempotence promise.
func (s *Stage) Process(ctx context.Context, t ticket.Ticket) {
	imageURL := PublicURL(t.ImageURL, s.publicBase)
	log.Printf("[describe] describing post=%d url=%s", t.PostID, imageURL)

	text, err := s.captions.Describe(ctx, imageURL)
	if err != nil {
		metrics.DescriptionsTotal.WithLabelValues("error").Inc()
		log.Printf("[describe] caption failed post=%d url=%s: %v", t.PostID, imageURL, err)
		s.notifier.Notify(t.ConnectionID, protocol.TypeErrorExternal, TextErrorExternal)
		return
	}

	if err := s.records.SetDescription(ctx, t.PostID, text); err != nil {
		metrics.DescriptionsTotal.WithLabelValues("error").Inc()
		log.Printf("[describe] persist description post=%d: %v", t.PostID, err)
		s.notifier.Notify(t.ConnectionID, protocol.TypeErrorExternal, TextErrorExternal)
		return
	}

	metrics.DescriptionsTotal.WithLabelValues("ok").Inc()
	log.Printf("[describe] described post=%d: %q", t.PostID, text)
	s.notifier.Notify(t.ConnectionID, protocol.TypeProcessingFinish, TextFinish)
}
