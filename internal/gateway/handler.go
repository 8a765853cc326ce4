// Package gateway exposes the pipeline's HTTP surface: the multipart image
// submission endpoint, the broadcast endpoint, and the health check. It
// parses and validates inbound requests, screens banned users, and maps
// pipeline outcomes onto HTTP status codes.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/seesay/image-service/internal/metrics"
	"github.com/seesay/image-service/internal/pipeline"
	"github.com/seesay/image-service/internal/protocol"
)

// DefaultMaxImageBytes caps the accepted image payload at 8 MiB.
const DefaultMaxImageBytes = 8 << 20

// Pipeline is the synchronous phase entry point.
type Pipeline interface {
	Submit(ctx context.Context, sub pipeline.Submission) (pipeline.Outcome, error)
}

// BanChecker screens submitters against the ban cache. Errors fail open:
// the relational lock remains authoritative.
type BanChecker interface {
	IsBanned(ctx context.Context, userID string) (bool, string, error)
}

// Broadcaster pushes a raw event payload to every connected client.
type Broadcaster interface {
	PublishNotify(connectionID string, data []byte) error
}

// Handler serves the gateway endpoints.
type Handler struct {
	pipeline      Pipeline
	bans          BanChecker // may be nil
	broadcaster   Broadcaster
	maxImageBytes int64
	startedAt     time.Time
	connections   func() int // hub connection count for /health
}

// NewHandler wires the gateway endpoints. bans may be nil when no ban cache
// is configured; connections may be nil when no hub is co-hosted.
func NewHandler(p Pipeline, bans BanChecker, broadcaster Broadcaster, connections func() int) *Handler {
	return &Handler{
		pipeline:      p,
		bans:          bans,
		broadcaster:   broadcaster,
		maxImageBytes: DefaultMaxImageBytes,
		startedAt:     time.Now(),
		connections:   connections,
	}
}

type response struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HandleCheck is the ingestion endpoint: it accepts a multipart submission,
// runs the synchronous pipeline phase, and answers 200 for accepted, 400
// for malformed or rejected content, 403 for banned submitters, and 500 for
// infrastructure failures.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, response{Status: "error", Detail: "POST required"})
		return
	}

	if err := r.ParseMultipartForm(h.maxImageBytes + 1<<20); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Status: "invalid", Detail: "malformed multipart body"})
		return
	}

	sub, err := h.parseSubmission(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Status: "invalid", Detail: err.Error()})
		return
	}

	if h.bans != nil {
		banned, reason, err := h.bans.IsBanned(r.Context(), sub.UserID)
		if err != nil {
			// Fail open: the cache is advisory, the account lock is not.
			log.Printf("[gateway] ban check user=%s: %v", sub.UserID, err)
		} else if banned {
			metrics.SubmissionsTotal.WithLabelValues("banned").Inc()
			writeJSON(w, http.StatusForbidden, response{Status: "banned", Detail: reason})
			return
		}
	}

	outcome, err := h.pipeline.Submit(r.Context(), sub)
	detail := ""
	if err != nil {
		detail = err.Error()
	}

	switch outcome {
	case pipeline.OutcomeAccepted:
		writeJSON(w, http.StatusOK, response{Status: outcome.String()})
	case pipeline.OutcomeRejected, pipeline.OutcomeInvalid:
		writeJSON(w, http.StatusBadRequest, response{Status: outcome.String(), Detail: detail})
	default:
		writeJSON(w, http.StatusInternalServerError, response{Status: outcome.String(), Detail: detail})
	}
}

// parseSubmission extracts and validates the multipart fields described in
// the ingestion contract: userId, postId, autoDescribe, optional
// connectionId, and the image file.
func (h *Handler) parseSubmission(r *http.Request) (pipeline.Submission, error) {
	var sub pipeline.Submission

	sub.UserID = r.FormValue("userId")
	if sub.UserID == "" {
		return sub, fmt.Errorf("missing field userId")
	}

	postID := r.FormValue("postId")
	if postID == "" {
		return sub, fmt.Errorf("missing field postId")
	}
	id, err := strconv.ParseInt(postID, 10, 64)
	if err != nil || id <= 0 {
		return sub, fmt.Errorf("invalid postId %q", postID)
	}
	sub.PostID = id

	auto := r.FormValue("autoDescribe")
	if auto == "" {
		return sub, fmt.Errorf("missing field autoDescribe")
	}
	sub.AutoDescribe, err = strconv.ParseBool(auto)
	if err != nil {
		return sub, fmt.Errorf("invalid autoDescribe %q", auto)
	}

	sub.ConnectionID = r.FormValue("connectionId")

	file, _, err := r.FormFile("image")
	if err != nil {
		return sub, fmt.Errorf("missing image payload")
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, h.maxImageBytes+1))
	if err != nil {
		return sub, fmt.Errorf("reading image payload: %w", err)
	}
	if int64(len(image)) > h.maxImageBytes {
		return sub, fmt.Errorf("image exceeds %d bytes", h.maxImageBytes)
	}
	if len(image) == 0 {
		return sub, fmt.Errorf("empty image payload")
	}
	sub.Image = image

	return sub, nil
}

// HandleBroadcast pushes a chat message to every connected client on every
// gateway instance.
func (h *Handler) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, response{Status: "error", Detail: "POST required"})
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		writeJSON(w, http.StatusBadRequest, response{Status: "invalid", Detail: "missing text"})
		return
	}

	data, err := json.Marshal(protocol.NewMessageMsg{
		Type: protocol.TypeNewMessage,
		Text: body.Text,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, response{Status: "error"})
		return
	}
	if err := h.broadcaster.PublishNotify("", data); err != nil {
		log.Printf("[gateway] broadcast: %v", err)
		writeJSON(w, http.StatusInternalServerError, response{Status: "error"})
		return
	}

	writeJSON(w, http.StatusAccepted, response{Status: "ok"})
}

// HandleHealth responds with the gateway's health status as JSON, including
// the current hub connection count and uptime.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	conns := 0
	if h.connections != nil {
		conns = h.connections()
	}

	writeJSON(w, http.StatusOK, struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: conns,
		Uptime:      time.Since(h.startedAt).Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
