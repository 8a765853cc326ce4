// Package moderation decides whether a submitted image is acceptable or
// policy-violating. The verdict is a set of independent named signals; the
// image is rejected when any signal is raised. Callers should treat the
// signal set as open-ended rather than assuming a fixed number of categories.
package moderation

import (
	"context"
	"strings"
)

// Signal is one named policy category reported by the classifier.
type Signal struct {
	Name    string
	Flagged bool
}

// Verdict is the moderation outcome for a single image.
type Verdict struct {
	Signals []Signal
}

// Inappropriate reports whether any signal was raised.
func (v Verdict) Inappropriate() bool {
	for _, s := range v.Signals {
		if s.Flagged {
			return true
		}
	}
	return false
}

// FlaggedNames returns the names of all raised signals, for logging and for
// the human-readable rejection reason sent to the client.
func (v Verdict) FlaggedNames() []string {
	var names []string
	for _, s := range v.Signals {
		if s.Flagged {
			names = append(names, s.Name)
		}
	}
	return names
}

// Reason renders a short human-readable explanation of a rejection, e.g.
// "adult, racy content". Returns an empty string for a clean verdict.
func (v Verdict) Reason() string {
	names := v.FlaggedNames()
	if len(names) == 0 {
		return ""
	}
	return strings.Join(names, ", ") + " content"
}

// Gate classifies an image. Implementations make exactly one pass over the
// image bytes and must not retain them after returning.
type Gate interface {
	Classify(ctx context.Context, image []byte) (Verdict, error)
}
