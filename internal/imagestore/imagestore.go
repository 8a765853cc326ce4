// Package imagestore persists approved image bytes in durable blob storage
// and hands back the canonical retrieval URL the rest of the pipeline (and
// the post record) refers to.
package imagestore

import (
	"context"
	"io"
	"strings"
)

// Store saves an image under the given object key and returns its canonical
// retrieval URL. Implementations make exactly one pass over the reader.
type Store interface {
	Save(ctx context.Context, key string, image io.Reader) (string, error)
}

// contentTypeForKey guesses a Content-Type from the object key extension.
// Unknown extensions return "" and the blob store's default applies.
func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	default:
		return ""
	}
}
