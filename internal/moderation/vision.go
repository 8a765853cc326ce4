package moderation

import (
	"context"
	"fmt"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// Signal names reported by the Vision gate.
const (
	SignalAdult = "adult"
	SignalGory  = "gory"
	SignalRacy  = "racy"
)

const classifyTimeout = 30 * time.Second

// VisionGate is a Gate backed by the Google Cloud Vision SafeSearch
// annotator. A category counts as flagged when its reported likelihood is at
// or above the configured threshold.
type VisionGate struct {
	client    *vision.ImageAnnotatorClient
	threshold visionpb.Likelihood
}

// NewVisionGate builds a VisionGate with the default LIKELY threshold.
func NewVisionGate(ctx context.Context, opts ...option.ClientOption) (*VisionGate, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("moderation: vision client: %w", err)
	}
	return &VisionGate{
		client:    client,
		threshold: visionpb.Likelihood_LIKELY,
	}, nil
}

// SetThreshold overrides the likelihood at which a category is flagged.
func (g *VisionGate) SetThreshold(threshold visionpb.Likelihood) {
	g.threshold = threshold
}

// Classify runs SafeSearch detection on the image bytes and maps the
// adult / violence / racy likelihoods onto pipeline signals.
func (g *VisionGate) Classify(ctx context.Context, image []byte) (Verdict, error) {
	if len(image) == 0 {
		return Verdict{}, fmt.Errorf("moderation: empty image payload")
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: image},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_SAFE_SEARCH_DETECTION},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation: safe search annotate: %w", err)
	}
	if len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return Verdict{}, fmt.Errorf("moderation: empty annotate response")
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return Verdict{}, fmt.Errorf("moderation: annotate error: %s", r0.Error.Message)
	}
	ss := r0.SafeSearchAnnotation
	if ss == nil {
		return Verdict{}, fmt.Errorf("moderation: response missing safe search annotation")
	}

	return Verdict{
		Signals: []Signal{
			{Name: SignalAdult, Flagged: ss.Adult >= g.threshold},
			{Name: SignalGory, Flagged: ss.Violence >= g.threshold},
			{Name: SignalRacy, Flagged: ss.Racy >= g.threshold},
		},
	}, nil
}

// Close releases the underlying Vision client.
func (g *VisionGate) Close() error {
	return g.client.Close()
}
