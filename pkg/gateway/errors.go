package gateway

import (
	"github.com/pkg/errors"
)

// ValidationError rejects a SendMessage call before any network work.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

var (
	// ErrNoModelSelected is returned when SendMessage runs with no active model.
	ErrNoModelSelected = &ValidationError{Reason: "no model selected"}
	// ErrEmptyMessage is returned for a blank message.
	ErrEmptyMessage = &ValidationError{Reason: "message is empty"}
	// ErrDisconnected is returned by operations that need an active model.
	ErrDisconnected = errors.New("gateway: disconnected")
)

// ProbeError is returned by SelectModel when the reachability probe fails.
type ProbeError struct {
	Model string
	Err   error
}

func (e *ProbeError) Error() string {
	return "probe " + e.Model + ": " + e.Err.Error()
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
