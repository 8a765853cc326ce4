package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seesay/image-service/internal/pipeline"
	"github.com/seesay/image-service/internal/protocol"
)

type fakePipeline struct {
	outcome pipeline.Outcome
	err     error
	subs    []pipeline.Submission
}

func (f *fakePipeline) Submit(ctx context.Context, sub pipeline.Submission) (pipeline.Outcome, error) {
	f.subs = append(f.subs, sub)
	return f.outcome, f.err
}

type fakeBans struct {
	banned bool
	reason string
	err    error
}

func (f *fakeBans) IsBanned(ctx context.Context, userID string) (bool, string, error) {
	return f.banned, f.reason, f.err
}

type fakeBroadcaster struct {
	published [][]byte
	err       error
}

func (f *fakeBroadcaster) PublishNotify(connectionID string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, data)
	return nil
}

type formField struct{ name, value string }

func multipartRequest(t *testing.T, fields []formField, image []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			t.Fatalf("write field %s: %v", f.name, err)
		}
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "photo.jpg")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(image); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/check", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func validFields() []formField {
	return []formField{
		{"userId", "user-1"},
		{"postId", "42"},
		{"connectionId", "conn-1"},
		{"autoDescribe", "false"},
	}
}

func TestHandleCheck_Accepted(t *testing.T) {
	pl := &fakePipeline{outcome: pipeline.OutcomeAccepted}
	h := NewHandler(pl, nil, &fakeBroadcaster{}, nil)

	rec := httptest.NewRecorder()
	h.HandleCheck(rec, multipartRequest(t, validFields(), []byte("jpeg-bytes")))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(pl.subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(pl.subs))
	}
	sub := pl.subs[0]
	if sub.UserID != "user-1" || sub.PostID != 42 || sub.ConnectionID != "conn-1" || sub.AutoDescribe {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if string(sub.Image) != "jpeg-bytes" {
		t.Fatalf("image = %q", sub.Image)
	}
}

func TestHandleCheck_OutcomeMapping(t *testing.T) {
	tests := []struct {
		name    string
		outcome pipeline.Outcome
		err     error
		want    int
	}{
		{"accepted", pipeline.OutcomeAccepted, nil, http.StatusOK},
		{"rejected", pipeline.OutcomeRejected, nil, http.StatusBadRequest},
		{"failed", pipeline.OutcomeFailed, fmt.Errorf("storage down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakePipeline{outcome: tt.outcome, err: tt.err}, nil, &fakeBroadcaster{}, nil)
			rec := httptest.NewRecorder()
			h.HandleCheck(rec, multipartRequest(t, validFields(), []byte("x")))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleCheck_FieldValidation(t *testing.T) {
	drop := func(name string) []formField {
		var out []formField
		for _, f := range validFields() {
			if f.name != name {
				out = append(out, f)
			}
		}
		return out
	}

	tests := []struct {
		name   string
		fields []formField
		image  []byte
	}{
		{"missing userId", drop("userId"), []byte("x")},
		{"missing postId", drop("postId"), []byte("x")},
		{"missing autoDescribe", drop("autoDescribe"), []byte("x")},
		{"bad postId", append(drop("postId"), formField{"postId", "not-a-number"}), []byte("x")},
		{"negative postId", append(drop("postId"), formField{"postId", "-3"}), []byte("x")},
		{"bad autoDescribe", append(drop("autoDescribe"), formField{"autoDescribe", "maybe"}), []byte("x")},
		{"missing image", validFields(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pl := &fakePipeline{outcome: pipeline.OutcomeAccepted}
			h := NewHandler(pl, nil, &fakeBroadcaster{}, nil)
			rec := httptest.NewRecorder()
			h.HandleCheck(rec, multipartRequest(t, tt.fields, tt.image))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if len(pl.subs) != 0 {
				t.Fatalf("pipeline invoked on invalid request")
			}
		})
	}
}

func TestHandleCheck_BannedUser(t *testing.T) {
	pl := &fakePipeline{outcome: pipeline.OutcomeAccepted}
	h := NewHandler(pl, &fakeBans{banned: true, reason: "adult content"}, &fakeBroadcaster{}, nil)

	rec := httptest.NewRecorder()
	h.HandleCheck(rec, multipartRequest(t, validFields(), []byte("x")))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if len(pl.subs) != 0 {
		t.Fatalf("pipeline invoked for banned user")
	}
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Detail != "adult content" {
		t.Fatalf("detail = %q", body.Detail)
	}
}

func TestHandleCheck_BanCheckFailsOpen(t *testing.T) {
	pl := &fakePipeline{outcome: pipeline.OutcomeAccepted}
	h := NewHandler(pl, &fakeBans{err: fmt.Errorf("redis down")}, &fakeBroadcaster{}, nil)

	rec := httptest.NewRecorder()
	h.HandleCheck(rec, multipartRequest(t, validFields(), []byte("x")))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(pl.subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(pl.subs))
	}
}

func TestHandleCheck_MethodNotAllowed(t *testing.T) {
	h := NewHandler(&fakePipeline{}, nil, &fakeBroadcaster{}, nil)
	rec := httptest.NewRecorder()
	h.HandleCheck(rec, httptest.NewRequest(http.MethodGet, "/api/check", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleBroadcast(t *testing.T) {
	bc := &fakeBroadcaster{}
	h := NewHandler(&fakePipeline{}, nil, bc, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/broadcast", strings.NewReader(`{"text":"maintenance at noon"}`))
	h.HandleBroadcast(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if len(bc.published) != 1 {
		t.Fatalf("published = %d, want 1", len(bc.published))
	}
	var msg protocol.NewMessageMsg
	if err := json.Unmarshal(bc.published[0], &msg); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if msg.Type != protocol.TypeNewMessage || msg.Text != "maintenance at noon" {
		t.Fatalf("unexpected broadcast: %+v", msg)
	}
}

func TestHandleBroadcast_MissingText(t *testing.T) {
	bc := &fakeBroadcaster{}
	h := NewHandler(&fakePipeline{}, nil, bc, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/broadcast", strings.NewReader(`{}`))
	h.HandleBroadcast(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(bc.published) != 0 {
		t.Fatalf("broadcast published on invalid request")
	}
}

func TestHandleHealth(t *testing.T) {
	h := NewHandler(&fakePipeline{}, nil, &fakeBroadcaster{}, func() int { return 7 })

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" || body.Connections != 7 {
		t.Fatalf("unexpected body: %+v", body)
	}
}
