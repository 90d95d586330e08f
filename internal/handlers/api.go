package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/urlsafety/batch-predictor/internal/predict"
	"github.com/urlsafety/batch-predictor/internal/ratelimit"
)

// APIHandler exposes the submit operation as JSON for scripts.
type APIHandler struct {
	submitter predict.Submitter
	limiter   *ratelimit.Limiter
	maxUpload int64
	logger    *slog.Logger
}

func NewAPIHandler(submitter predict.Submitter, limiter *ratelimit.Limiter, maxUpload int64, logger *slog.Logger) *APIHandler {
	return &APIHandler{submitter: submitter, limiter: limiter, maxUpload: maxUpload, logger: logger}
}

type predictResponse struct {
	SubmissionID   string        `json:"submission_id"`
	Filename       string        `json:"filename"`
	MissingColumns []string      `json:"missing_columns,omitempty"`
	Rows           []predict.Row `json:"rows"`
}

type predictErrorResponse struct {
	SubmissionID string `json:"submission_id,omitempty"`
	Error        string `json:"error"`
	StatusCode   int    `json:"status_code,omitempty"`
}

// Predict handles POST /api/predict with the same multipart body as the form.
func (h *APIHandler) Predict(w http.ResponseWriter, r *http.Request) {
	if h.limiter.Check(w, r, ratelimit.BucketAPI) {
		return
	}

	file, err := readUpload(w, r, h.maxUpload)
	if err != nil {
		jsonError(w, message(err, h.maxUpload), statusFor(err))
		return
	}

	out := runSubmission(r, h.submitter, file, h.logger)
	w.Header().Set("Content-Type", "application/json")

	if out.Err != nil {
		resp := predictErrorResponse{SubmissionID: out.ID, Error: message(out.Err, h.maxUpload)}
		var statusErr *predict.RequestFailedError
		if errors.As(out.Err, &statusErr) {
			resp.StatusCode = statusErr.StatusCode
		}
		w.WriteHeader(statusFor(out.Err))
		json.NewEncoder(w).Encode(resp)
		return
	}

	json.NewEncoder(w).Encode(predictResponse{
		SubmissionID:   out.ID,
		Filename:       out.Filename,
		MissingColumns: out.Missing,
		Rows:           out.Result.Rows,
	})
}
