package predict

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ResponseParseError means the service answered 200 with a body that is not
// the expected {"predictions": [...]} document.
type ResponseParseError struct {
	Err error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("predict: parse response: %v", e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// UnmappedLabelError means a prediction is outside the known label set.
// Index is the 1-based row, or 0 when the value was checked on its own.
type UnmappedLabelError struct {
	Index int
	Value int
}

func (e *UnmappedLabelError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("predict: unmapped prediction %d at row %d", e.Value, e.Index)
	}
	return fmt.Sprintf("predict: unmapped prediction %d", e.Value)
}

// RequestFailedError carries a non-200 status from the service.
type RequestFailedError struct {
	StatusCode int
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("predict: request failed with status code %d", e.StatusCode)
}

// TransportError wraps a network failure: timeout, DNS, refused connection.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("predict: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline rather than a refusal.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// UserMessage renders err the way it is shown on the page and in the CLI.
func UserMessage(err error) string {
	var (
		parseErr     *ResponseParseError
		labelErr     *UnmappedLabelError
		statusErr    *RequestFailedError
		transportErr *TransportError
	)
	switch {
	case errors.Is(err, ErrNoFile), errors.Is(err, ErrNotCSV):
		return "Please upload a CSV file: " + err.Error() + "."
	case errors.As(err, &statusErr):
		return fmt.Sprintf("Failed with status code %d", statusErr.StatusCode)
	case errors.As(err, &parseErr):
		return "Could not parse response from backend."
	case errors.As(err, &labelErr):
		if labelErr.Index > 0 {
			return fmt.Sprintf("Unexpected prediction value %d at row %d", labelErr.Value, labelErr.Index)
		}
		return fmt.Sprintf("Unexpected prediction value %d", labelErr.Value)
	case errors.As(err, &transportErr):
		return fmt.Sprintf("Error occurred: %v", transportErr.Err)
	default:
		return fmt.Sprintf("Error occurred: %v", err)
	}
}
