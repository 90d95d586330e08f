// Package predict submits uploaded CSV batches to the remote classification
// service and maps its integer outputs to Safe/Malicious labels.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	// FormField is the multipart field the service reads the CSV from.
	FormField = "file"

	DefaultTimeout = 30 * time.Second
	maxResponseLen = 10 << 20 // 10 MiB
)

var errMissingPredictions = errors.New(`missing "predictions" field`)

// Result is a successful batch prediction.
type Result struct {
	Predictions []int         `json:"predictions"`
	Rows        []Row         `json:"rows"`
	Elapsed     time.Duration `json:"-"`
}

// Submitter sends one uploaded file for prediction.
type Submitter interface {
	Submit(ctx context.Context, file UploadedFile) (*Result, error)
}

// Client is an HTTP client for the batch prediction endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a client for endpoint. A zero timeout falls back to
// DefaultTimeout so a request can never block indefinitely.
func NewClient(endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Endpoint returns the URL predictions are posted to.
func (c *Client) Endpoint() string { return c.endpoint }

// Submit posts the file as multipart form data and decodes the predictions.
// It never retries; every failure is returned as one of ResponseParseError,
// UnmappedLabelError, RequestFailedError or TransportError.
func (c *Client) Submit(ctx context.Context, file UploadedFile) (*Result, error) {
	body, contentType, err := encodeMultipart(file)
	if err != nil {
		return nil, fmt.Errorf("predict: encode upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("predict: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("prediction request failed", "endpoint", c.endpoint, "err", err)
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain body to allow connection reuse.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseLen))
		c.logger.Warn("prediction service returned error", "status", resp.StatusCode)
		return nil, &RequestFailedError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	predictions, err := decodePredictions(data)
	if err != nil {
		return nil, err
	}
	rows, err := Rows(predictions)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	c.logger.Debug("prediction response decoded",
		"rows", len(rows),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return &Result{Predictions: predictions, Rows: rows, Elapsed: elapsed}, nil
}

func encodeMultipart(file UploadedFile) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(FormField, file.Name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func decodePredictions(data []byte) ([]int, error) {
	var payload struct {
		Predictions *[]int `json:"predictions"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &ResponseParseError{Err: err}
	}
	if payload.Predictions == nil {
		return nil, &ResponseParseError{Err: errMissingPredictions}
	}
	return *payload.Predictions, nil
}
