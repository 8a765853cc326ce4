package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseClientMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
		wantText string
		wantErr  bool
	}{
		{"chat message", `{"type":"message","text":"hello"}`, TypeMessage, "hello", false},
		{"ping", `{"type":"ping"}`, TypePing, "", false},
		{"missing type", `{"text":"hello"}`, "", "", true},
		{"server-only type", `{"type":"processing_finish"}`, "", "", true},
		{"unknown type", `{"type":"subscribe"}`, "", "", true},
		{"malformed json", `{"type":`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseClientMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClientMessage(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if msg.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", msg.Type, tt.wantType)
			}
			if msg.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", msg.Text, tt.wantText)
			}
		})
	}
}

func TestStatusEventRoundTrip(t *testing.T) {
	data, err := EncodeStatusEvent(TypeProcessingStart, "Uploading image...")
	if err != nil {
		t.Fatalf("EncodeStatusEvent() error: %v", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("event is not a JSON object: %v", err)
	}
	if raw["type"] != TypeProcessingStart {
		t.Errorf("wire type = %q, want %q", raw["type"], TypeProcessingStart)
	}

	ev, err := DecodeStatusEvent(data)
	if err != nil {
		t.Fatalf("DecodeStatusEvent() error: %v", err)
	}
	if ev.Type != TypeProcessingStart || ev.Text != "Uploading image..." {
		t.Errorf("decoded event = %+v", ev)
	}
}

func TestDecodeStatusEvent_MissingType(t *testing.T) {
	if _, err := DecodeStatusEvent([]byte(`{"text":"no type"}`)); err == nil {
		t.Error("expected error for event without type")
	}
}
