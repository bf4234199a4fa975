package provider

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Kind classifies a transport failure.
type Kind int

const (
	KindModelLoading Kind = iota + 1 // 503, model cold-starting
	KindRateLimited                  // 429
	KindUnauthorized                 // 401
	KindHTTP                         // any other non-2xx
	KindMalformed                    // body matched neither response shape
	KindNetwork                      // connection-level failure
	KindTimeout                      // attempt exceeded the per-request timeout
)

func (k Kind) String() string {
	switch k {
	case KindModelLoading:
		return "model loading"
	case KindRateLimited:
		return "rate limited"
	case KindUnauthorized:
		return "invalid credentials"
	case KindHTTP:
		return "http error"
	case KindMalformed:
		return "malformed response"
	case KindNetwork:
		return "network error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a classified failure of one call to the inference endpoint.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	// RetryAfter is the provider's suggested wait, if it sent one.
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status=%d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Transient reports whether retrying the same call may succeed.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindModelLoading, KindRateLimited, KindTimeout:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is a transient provider error. Anything
// that is not a *Error is treated as fatal.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return false
}

// ErrorFromStatus maps a non-2xx response to a classified Error.
func ErrorFromStatus(statusCode int, body []byte, header http.Header) *Error {
	e := &Error{StatusCode: statusCode, Message: errorMessage(body)}
	switch statusCode {
	case http.StatusServiceUnavailable:
		e.Kind = KindModelLoading
	case http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	case http.StatusUnauthorized:
		e.Kind = KindUnauthorized
	default:
		e.Kind = KindHTTP
	}
	if e.Message == "" {
		e.Message = e.Kind.String()
	}
	return e
}

// errorMessage pulls the provider's "error" field out of a JSON error body.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	return gjson.GetBytes(body, "error").String()
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
