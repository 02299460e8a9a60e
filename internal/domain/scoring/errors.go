package scoring

import (
	"errors"
	"fmt"
)

// Sentinel rejection reasons.
var (
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrStaleHeartbeat     = errors.New("no heartbeat received recently")
	ErrImpossibleSpeed    = errors.New("impossible speed")
	ErrImpossibleDuration = errors.New("impossible duration")
)

// ValidationError describes why a submission was rejected. Use errors.Is
// against the sentinels above to branch on the reason.
type ValidationError struct {
	Reason error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

func reject(reason error, format string, args ...any) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Code maps a validation error to a stable snake_case code, or "" when err
// is not a validation failure.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrStaleHeartbeat):
		return "stale_heartbeat"
	case errors.Is(err, ErrImpossibleSpeed):
		return "impossible_speed"
	case errors.Is(err, ErrImpossibleDuration):
		return "impossible_duration"
	}
	return ""
}
