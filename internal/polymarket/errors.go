package polymarket

import (
	"errors"
	"net/http"
)

// Error classes returned by Client. Callers classify with errors.Is.
var (
	// ErrNetwork covers transport failures, timeouts, 5xx answers and an open breaker
	ErrNetwork = errors.New("polymarket: network error")
	// ErrParse covers malformed or incomplete response bodies
	ErrParse = errors.New("polymarket: parse error")
	// ErrNotFound means the requested slug or market does not resolve yet
	ErrNotFound = errors.New("polymarket: not found")
	// ErrRejected is any other 4xx answer, e.g. a refused order or bad credentials
	ErrRejected = errors.New("polymarket: request rejected")
)

// classifyStatus maps a non-2xx HTTP status to an error class
func classifyStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500, code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return ErrNetwork
	default:
		return ErrRejected
	}
}

// tripsBreaker reports whether err should count against the circuit breaker.
// Only transport-level trouble does; a missing slug is a normal answer.
func tripsBreaker(err error) bool {
	return errors.Is(err, ErrNetwork)
}
