// Package ticket defines the unit of work that flows through the image
// submission pipeline, plus the JSON codec used when a ticket is handed off
// to the description queue. The image payload itself is never part of the
// queued message; only the canonical image URL travels with the ticket.
package ticket

import (
	"encoding/json"
	"fmt"
)

// Ticket describes one image submission as it moves through the pipeline.
// ConnectionID is the notification hub session to inform about progress; an
// empty ConnectionID means status events are broadcast to every client.
type Ticket struct {
	UserID       string `json:"user_id"`
	PostID       int64  `json:"post_id"`
	ConnectionID string `json:"connection_id,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	AutoDescribe bool   `json:"auto_describe"`
}

// Encode serializes the ticket for the description queue. It refuses to
// encode a ticket without an image URL: a ticket is only ever queued after
// moderation approval and successful storage.
func Encode(t Ticket) ([]byte, error) {
	if t.ImageURL == "" {
		return nil, fmt.Errorf("ticket: refusing to encode ticket for post %d without image URL", t.PostID)
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("ticket: marshal: %w", err)
	}
	return data, nil
}

// Decode parses a queued ticket message produced by Encode.
func Decode(data []byte) (Ticket, error) {
	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return Ticket{}, fmt.Errorf("ticket: unmarshal: %w", err)
	}
	if t.PostID == 0 {
		return Ticket{}, fmt.Errorf("ticket: queued message missing post_id")
	}
	if t.ImageURL == "" {
		return Ticket{}, fmt.Errorf("ticket: queued message for post %d missing image_url", t.PostID)
	}
	return t, nil
}
