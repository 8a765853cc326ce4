package describe

import "strings"

// PublicURL rewrites a stored image URL onto the configured public base
// address. Stored URLs carry an internal host and a leading container
// segment (e.g. the bucket name); the caption engine can only reach the
// image through the public base, which already fronts that container. The
// path past the first two slash-separated segments is grafted onto base.
//
// A URL with fewer than two path separators past its scheme has no path to
// graft; the base is returned unmodified. That is a degenerate-input
// policy, not an error.
func PublicURL(raw, base string) string {
	rest := raw
	if i := strings.Index(raw, "://"); i >= 0 {
		rest = raw[i+3:]
	}

	first := strings.IndexByte(rest, '/')
	if first < 0 {
		return base
	}
	second := strings.IndexByte(rest[first+1:], '/')
	if second < 0 {
		return base
	}

	return base + rest[first+1+second:]
}
