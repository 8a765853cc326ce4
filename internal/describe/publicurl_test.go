package describe

import "testing"

func TestPublicURL(t *testing.T) {
	const base = "http://pub"

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"host and two segments", "http://host/a/b/c.jpg", "http://pub/b/c.jpg"},
		{"bucket-style url", "https://storage.googleapis.com/images/abc.jpg", "http://pub/abc.jpg"},
		{"deep path", "https://host/bucket/x/y/z.png", "http://pub/x/y/z.png"},
		{"one separator past scheme", "http://host/a", "http://pub"},
		{"no path at all", "http://host", "http://pub"},
		{"empty url", "", "http://pub"},
		{"no scheme", "host/a/b.jpg", "http://pub/b.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PublicURL(tt.raw, base); got != tt.want {
				t.Errorf("PublicURL(%q, %q) = %q, want %q", tt.raw, base, got, tt.want)
			}
		})
	}
}
