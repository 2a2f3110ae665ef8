package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// ErrMalformedReply is returned when a 2xx response carries no usable message content.
var ErrMalformedReply = errors.New("inference: malformed reply envelope")

// StatusError is a non-2xx HTTP response from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("status %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
	}
	return fmt.Sprintf("status %d %s", e.Code, http.StatusText(e.Code))
}

// ServiceError is a fatal backend failure. No retries were attempted after it.
type ServiceError struct {
	Attempts int
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("inference service error after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ServiceUnavailableError means the retry budget was exhausted on retryable failures.
type ServiceUnavailableError struct {
	Attempts int
	Err      error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("inference service unavailable after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

type errClass int

const (
	classFatal errClass = iota
	classRetryable
)

func (c errClass) String() string {
	if c == classRetryable {
		return "retryable"
	}
	return "fatal"
}

// classify decides whether a single attempt failure may be retried.
// HTTP 408/429/5xx, timeouts and reset connections are retryable.
func classify(err error) errClass {
	if err == nil {
		return classFatal
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusRequestTimeout, se.Code == http.StatusTooManyRequests:
			return classRetryable
		case se.Code >= 500:
			return classRetryable
		default:
			return classFatal
		}
	}
	if errors.Is(err, ErrMalformedReply) {
		return classFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classRetryable
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return classRetryable
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return classRetryable
	}
	return classFatal
}
