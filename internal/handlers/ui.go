package handlers

import (
	"bytes"
	_ "embed"
	"log/slog"
	"net/http"

	"github.com/urlsafety/batch-predictor/internal/features"
	"github.com/urlsafety/batch-predictor/internal/predict"
	"github.com/urlsafety/batch-predictor/internal/ratelimit"
	"github.com/urlsafety/batch-predictor/internal/render"
)

//go:embed assets/sample.csv
var sampleCSV []byte

// UIHandler serves the upload page and handles its submit event. Each submit
// is one Submission with no state carried between requests.
type UIHandler struct {
	submitter predict.Submitter
	limiter   *ratelimit.Limiter
	maxUpload int64
	logger    *slog.Logger
}

// NewUIHandler creates the page handler. maxUpload is in bytes.
func NewUIHandler(submitter predict.Submitter, limiter *ratelimit.Limiter, maxUpload int64, logger *slog.Logger) *UIHandler {
	return &UIHandler{
		submitter: submitter,
		limiter:   limiter,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Index handles GET /, the idle page.
func (h *UIHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.writePage(w, http.StatusOK, h.page())
}

// Predict handles POST /predict, the form submit event.
func (h *UIHandler) Predict(w http.ResponseWriter, r *http.Request) {
	if h.limiter.Check(w, r, ratelimit.BucketSubmit) {
		return
	}

	page := h.page()
	file, err := readUpload(w, r, h.maxUpload)
	if err != nil {
		h.logger.Info("upload rejected", "err", err)
		page.Error = message(err, h.maxUpload)
		h.writePage(w, statusFor(err), page)
		return
	}

	out := runSubmission(r, h.submitter, file, h.logger)
	page.SubmissionID = out.ID
	page.Filename = out.Filename
	page.Missing = out.Missing
	if out.Err != nil {
		page.Error = message(out.Err, h.maxUpload)
		h.writePage(w, statusFor(out.Err), page)
		return
	}
	page.Rows = out.Result.Rows
	h.writePage(w, http.StatusOK, page)
}

// Sample handles GET /sample.csv.
func (h *UIHandler) Sample(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sample.csv"`)
	w.Write(sampleCSV)
}

func (h *UIHandler) page() *render.Page {
	return &render.Page{
		Features:     features.Required,
		MaxUploadMiB: max(h.maxUpload>>20, 1),
	}
}

func (h *UIHandler) writePage(w http.ResponseWriter, status int, page *render.Page) {
	var buf bytes.Buffer
	if err := render.HTML(&buf, page); err != nil {
		h.logger.Error("render page failed", "err", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
