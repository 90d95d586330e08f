// Package ws carries submissions over a WebSocket so the page can show each
// state transition as it happens instead of blocking on one POST.
package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/urlsafety/batch-predictor/internal/features"
	"github.com/urlsafety/batch-predictor/internal/predict"
	"github.com/urlsafety/batch-predictor/internal/ratelimit"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// submitMessage is one submit event. Content is base64 in JSON.
type submitMessage struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// Event is sent to the client. Type is "state", "result" or "error".
type Event struct {
	Type           string        `json:"type"`
	SubmissionID   string        `json:"submission_id,omitempty"`
	State          predict.State `json:"state,omitempty"`
	Rows           []predict.Row `json:"rows,omitempty"`
	MissingColumns []string      `json:"missing_columns,omitempty"`
	Error          string        `json:"error,omitempty"`
	StatusCode     int           `json:"status_code,omitempty"`
}

// Handler runs submissions received on a WebSocket, one at a time per
// connection.
type Handler struct {
	submitter predict.Submitter
	limiter   *ratelimit.Limiter
	maxUpload int64
	logger    *slog.Logger
}

// NewHandler creates a WebSocket submission handler.
func NewHandler(submitter predict.Submitter, limiter *ratelimit.Limiter, maxUpload int64, logger *slog.Logger) *Handler {
	return &Handler{submitter: submitter, limiter: limiter, maxUpload: maxUpload, logger: logger}
}

// HandleWS upgrades the connection and serves submit events until the client
// disconnects.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// base64 inflates by 4/3; leave room for the JSON envelope.
	conn.SetReadLimit(h.maxUpload/3*4 + 4096)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", "err", err)
			}
			return
		}
		if err := h.handleMessage(conn, r, data); err != nil {
			h.logger.Warn("websocket write failed", "err", err)
			return
		}
	}
}

func (h *Handler) handleMessage(conn *websocket.Conn, r *http.Request, data []byte) error {
	if !h.limiter.Allow(ratelimit.BucketSubmit+":"+ratelimit.ClientIP(r), h.bucket()) {
		return sendJSON(conn, Event{Type: "error", Error: "Rate limited", StatusCode: http.StatusTooManyRequests})
	}

	var msg submitMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return sendJSON(conn, Event{Type: "error", Error: "invalid submit message"})
	}
	file, err := predict.SelectFile(msg.Filename, msg.Content)
	if err != nil {
		return sendJSON(conn, Event{Type: "error", Error: predict.UserMessage(err)})
	}

	sub := predict.NewSubmission(file)
	log := h.logger.With("submission_id", sub.ID, "filename", file.Name, "bytes", file.Size())

	missing, _ := features.MissingColumns(file.Data)

	var writeErr error
	sub.OnTransition(func(s *predict.Submission) {
		if writeErr != nil {
			return
		}
		writeErr = sendJSON(conn, Event{Type: "state", SubmissionID: s.ID, State: s.State()})
	})

	res, err := sub.Run(r.Context(), h.submitter)
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		log.Warn("submission failed", "err", err)
		ev := Event{Type: "error", SubmissionID: sub.ID, Error: predict.UserMessage(err)}
		var statusErr *predict.RequestFailedError
		if errors.As(err, &statusErr) {
			ev.StatusCode = statusErr.StatusCode
		}
		return sendJSON(conn, ev)
	}

	log.Info("submission succeeded", "rows", len(res.Rows))
	return sendJSON(conn, Event{
		Type:           "result",
		SubmissionID:   sub.ID,
		Rows:           res.Rows,
		MissingColumns: missing,
	})
}

func (h *Handler) bucket() ratelimit.Bucket {
	if b, ok := h.limiter.Bucket(ratelimit.BucketSubmit); ok {
		return b
	}
	return ratelimit.DefaultBuckets[ratelimit.BucketSubmit]
}

func sendJSON(conn *websocket.Conn, ev Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}
