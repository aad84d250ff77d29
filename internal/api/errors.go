package api

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// APIError is a non-2xx response from the backend, decoded from its JSON
// error envelope when present.
type APIError struct {
	Status    int    `json:"-"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsRetryable reports whether err is worth retrying from the same point:
// timeouts, transport failures, and server-side errors. Client-side 4xx
// responses (other than 408/429) are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status >= http.StatusInternalServerError:
			return true
		case apiErr.Status == http.StatusRequestTimeout, apiErr.Status == http.StatusTooManyRequests:
			return true
		}
	}
	return false
}
