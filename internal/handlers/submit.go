package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/urlsafety/batch-predictor/internal/features"
	"github.com/urlsafety/batch-predictor/internal/predict"
)

// outcome is what a finished submission leaves behind for rendering.
type outcome struct {
	ID       string
	Filename string
	Missing  []string
	Result   *predict.Result
	Err      error
}

// runSubmission checks the header, then drives one Submission to a terminal
// state. Missing columns are only reported; the service decides.
func runSubmission(r *http.Request, submitter predict.Submitter, file predict.UploadedFile, logger *slog.Logger) outcome {
	sub := predict.NewSubmission(file)
	log := logger.With(
		"submission_id", sub.ID,
		"request_id", middleware.GetReqID(r.Context()),
		"filename", file.Name,
		"bytes", file.Size(),
	)

	missing, err := features.MissingColumns(file.Data)
	switch {
	case errors.Is(err, features.ErrNoHeader):
		missing = features.Names()
	case err != nil:
		log.Debug("csv header unreadable", "err", err)
	case len(missing) > 0:
		log.Info("csv is missing required columns", "missing", missing)
	}

	sub.OnTransition(func(s *predict.Submission) {
		log.Debug("submission state changed", "state", s.State())
	})

	res, err := sub.Run(r.Context(), submitter)
	if err != nil {
		log.Warn("submission failed", "err", err)
	} else {
		log.Info("submission succeeded", "rows", len(res.Rows), "elapsed_ms", res.Elapsed.Milliseconds())
	}

	return outcome{
		ID:       sub.ID,
		Filename: sub.Filename(),
		Missing:  missing,
		Result:   res,
		Err:      err,
	}
}
