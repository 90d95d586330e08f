package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urlsafety/batch-predictor/internal/features"
	"github.com/urlsafety/batch-predictor/internal/predict"
	"github.com/urlsafety/batch-predictor/internal/ratelimit"
)

const testMaxUpload = 1 << 20

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func unlimited() *ratelimit.Limiter {
	return ratelimit.New(map[string]ratelimit.Bucket{
		ratelimit.BucketSubmit: {},
		ratelimit.BucketAPI:    {},
	})
}

// remote starts a fake prediction service answering with status and body.
func remote(t *testing.T, status int, body string) *predict.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile(predict.FormField); err != nil {
			http.Error(w, "missing file", http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return predict.NewClient(srv.URL, 5*time.Second, testLogger())
}

func uploadRequest(t *testing.T, target, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile(predict.FormField, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func validCSV(rows int) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(features.Names(), ",") + "\n")
	for i := 0; i < rows; i++ {
		b.WriteString(strings.TrimSuffix(strings.Repeat("1,", len(features.Required)), ",") + "\n")
	}
	return []byte(b.String())
}

func TestUIHandler_Index(t *testing.T) {
	t.Parallel()

	h := NewUIHandler(remote(t, 200, `{"predictions":[]}`), unlimited(), testMaxUpload, testLogger())
	rec := httptest.NewRecorder()
	h.Index(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `accept=".csv"`)
	assert.NotContains(t, rec.Body.String(), `id="results"`)
}

func TestUIHandler_Predict_ThreeRows(t *testing.T) {
	t.Parallel()

	h := NewUIHandler(remote(t, 200, `{"predictions":[0,1,0]}`), unlimited(), testMaxUpload, testLogger())
	rec := httptest.NewRecorder()
	h.Predict(rec, uploadRequest(t, "/predict", "sites.csv", validCSV(3)))

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, `<tr><td>1</td><td>0</td><td class="ok">Safe</td></tr>`)
	assert.Contains(t, body, `<tr><td>2</td><td>1</td><td class="bad">Malicious</td></tr>`)
	assert.Contains(t, body, `<tr><td>3</td><td>0</td><td class="ok">Safe</td></tr>`)
	assert.NotContains(t, body, "Missing columns")
}

func TestUIHandler_Predict_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantCode    int
		wantMessage string
	}{
		{
			name:        "service unavailable",
			status:      http.StatusServiceUnavailable,
			wantCode:    http.StatusBadGateway,
			wantMessage: "Failed with status code 503",
		},
		{
			name:        "internal error",
			status:      http.StatusInternalServerError,
			wantCode:    http.StatusBadGateway,
			wantMessage: "Failed with status code 500",
		},
		{
			name:        "not json",
			status:      http.StatusOK,
			body:        "not json",
			wantCode:    http.StatusBadGateway,
			wantMessage: "Could not parse response from backend.",
		},
		{
			name:        "unmapped label",
			status:      http.StatusOK,
			body:        `{"predictions":[0,3]}`,
			wantCode:    http.StatusBadGateway,
			wantMessage: "Unexpected prediction value 3 at row 2",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewUIHandler(remote(t, tt.status, tt.body), unlimited(), testMaxUpload, testLogger())
			rec := httptest.NewRecorder()
			h.Predict(rec, uploadRequest(t, "/predict", "sites.csv", validCSV(2)))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMessage)
			assert.NotContains(t, rec.Body.String(), `id="results"`)
			assert.Contains(t, rec.Body.String(), `name="file"`, "page stays usable after a failure")
		})
	}
}

func TestUIHandler_Predict_RejectsUpload(t *testing.T) {
	t.Parallel()

	h := NewUIHandler(remote(t, 200, `{"predictions":[0]}`), unlimited(), testMaxUpload, testLogger())

	rec := httptest.NewRecorder()
	h.Predict(rec, uploadRequest(t, "/predict", "sites.xlsx", validCSV(1)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "only .csv files are accepted")

	rec = httptest.NewRecorder()
	h.Predict(rec, uploadRequest(t, "/predict", "", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no file selected")

	rec = httptest.NewRecorder()
	h.Predict(rec, uploadRequest(t, "/predict", "big.csv", bytes.Repeat([]byte("a"), 2*testMaxUpload)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUIHandler_Predict_WarnsMissingColumns(t *testing.T) {
	t.Parallel()

	h := NewUIHandler(remote(t, 200, `{"predictions":[1]}`), unlimited(), testMaxUpload, testLogger())
	rec := httptest.NewRecorder()
	h.Predict(rec, uploadRequest(t, "/predict", "partial.csv", []byte("Prefix_Suffix\n1\n")))

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "Missing columns")
	assert.Contains(t, body, `<div class="msg warn">`)
	assert.Contains(t, body, `class="bad">Malicious`)
}

func TestUIHandler_Predict_RateLimited(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.New(map[string]ratelimit.Bucket{
		ratelimit.BucketSubmit: {MaxRequests: 1, Window: time.Minute},
	})
	h := NewUIHandler(remote(t, 200, `{"predictions":[0]}`), limiter, testMaxUpload, testLogger())

	rec := httptest.NewRecorder()
	h.Predict(rec, uploadRequest(t, "/predict", "a.csv", validCSV(1)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Predict(rec, uploadRequest(t, "/predict", "a.csv", validCSV(1)))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestUIHandler_Sample(t *testing.T) {
	t.Parallel()

	h := NewUIHandler(nil, unlimited(), testMaxUpload, testLogger())
	rec := httptest.NewRecorder()
	h.Sample(rec, httptest.NewRequest(http.MethodGet, "/sample.csv", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "sample.csv")

	missing, err := features.MissingColumns(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Empty(t, missing, "sample must carry every required column")
}

func TestAPIHandler_Predict(t *testing.T) {
	t.Parallel()

	h := NewAPIHandler(remote(t, 200, `{"predictions":[0,1,0]}`), unlimited(), testMaxUpload, testLogger())
	rec := httptest.NewRecorder()
	h.Predict(rec, uploadRequest(t, "/api/predict", "sites.csv", validCSV(3)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp predictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SubmissionID)
	assert.Equal(t, "sites.csv", resp.Filename)
	assert.Equal(t, []predict.Row{
		{Index: 1, Prediction: 0, Label: "Safe"},
		{Index: 2, Prediction: 1, Label: "Malicious"},
		{Index: 3, Prediction: 0, Label: "Safe"},
	}, resp.Rows)
}

func TestAPIHandler_Predict_UpstreamStatus(t *testing.T) {
	t.Parallel()

	h := NewAPIHandler(remote(t, http.StatusServiceUnavailable, ""), unlimited(), testMaxUpload, testLogger())
	rec := httptest.NewRecorder()
	h.Predict(rec, uploadRequest(t, "/api/predict", "sites.csv", validCSV(1)))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp predictErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, resp.Error, "503")
}

func TestAPIHandler_Predict_Idempotent(t *testing.T) {
	t.Parallel()

	h := NewAPIHandler(remote(t, 200, `{"predictions":[1,0]}`), unlimited(), testMaxUpload, testLogger())
	var got [2][]predict.Row
	for i := range got {
		rec := httptest.NewRecorder()
		h.Predict(rec, uploadRequest(t, "/api/predict", "same.csv", validCSV(2)))
		var resp predictResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		got[i] = resp.Rows
	}
	assert.Equal(t, got[0], got[1])
}

func TestAPIHandler_Predict_MalformedMultipart(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{
		"no boundary": "garbage-no-boundary",
		"truncated":   "--xyz\r\nContent-Disposition: form-data; name=\"file\"; filename=\"a.csv\"\r\n\r\nPrefix_Suffix\n1",
	}
	for name, body := range bodies {
		name, body := name, body
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			h := NewAPIHandler(remote(t, 200, `{"predictions":[0]}`), unlimited(), testMaxUpload, testLogger())
			req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
			req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")

			rec := httptest.NewRecorder()
			h.Predict(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "could not be read")
			assert.NotContains(t, rec.Body.String(), "NextPart")
		})
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadRequest, statusFor(predict.ErrNotCSV))
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("%w: parse form: %w", errBadUpload, io.ErrUnexpectedEOF)))
	assert.Equal(t, http.StatusBadGateway, statusFor(&predict.RequestFailedError{StatusCode: 500}))
	assert.Equal(t, http.StatusBadGateway, statusFor(&predict.TransportError{Err: io.ErrUnexpectedEOF}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.EOF))
}
