package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/urlsafety/batch-predictor/internal/predict"
)

// multipartOverhead is the slack allowed on top of the file limit for
// boundaries and part headers.
const multipartOverhead = 64 << 10

var (
	errUploadTooLarge = errors.New("file is too large")
	errBadUpload      = errors.New("malformed upload")
)

// readUpload extracts the "file" part of a multipart submit and applies the
// .csv filter.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (predict.UploadedFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return predict.UploadedFile{}, errUploadTooLarge
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return predict.UploadedFile{}, predict.ErrNoFile
		}
		return predict.UploadedFile{}, fmt.Errorf("%w: parse form: %w", errBadUpload, err)
	}

	file, header, err := r.FormFile(predict.FormField)
	if errors.Is(err, http.ErrMissingFile) {
		return predict.UploadedFile{}, predict.ErrNoFile
	}
	if err != nil {
		return predict.UploadedFile{}, fmt.Errorf("%w: read form file: %w", errBadUpload, err)
	}
	defer file.Close()

	if header.Size > maxBytes {
		return predict.UploadedFile{}, errUploadTooLarge
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return predict.UploadedFile{}, fmt.Errorf("read form file: %w", err)
	}
	return predict.SelectFile(header.Filename, data)
}

// statusFor maps a submission error to the status this server answers with.
func statusFor(err error) int {
	var (
		parseErr     *predict.ResponseParseError
		labelErr     *predict.UnmappedLabelError
		statusErr    *predict.RequestFailedError
		transportErr *predict.TransportError
	)
	switch {
	case errors.Is(err, predict.ErrNoFile), errors.Is(err, predict.ErrNotCSV), errors.Is(err, errBadUpload):
		return http.StatusBadRequest
	case errors.Is(err, errUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &transportErr):
		if transportErr.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.As(err, &statusErr), errors.As(err, &parseErr), errors.As(err, &labelErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// message is the user-facing text for err.
func message(err error, maxBytes int64) string {
	if errors.Is(err, errUploadTooLarge) {
		return fmt.Sprintf("The file is larger than the %d MiB limit.", maxBytes>>20)
	}
	if errors.Is(err, errBadUpload) {
		return "The upload could not be read. Please choose the file and submit again."
	}
	return predict.UserMessage(err)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
