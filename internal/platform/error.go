// Package platform implements the remote platform API client. Every
// outbound call funnels through one classifier that maps heterogeneous
// failure modes onto the engine's retry policy.
package platform

import (
	"errors"
	"fmt"
)

// Kind classifies the outcome of a remote call.
type Kind int

const (
	// KindNone means the error is not a classified platform outcome
	// (typically context cancellation).
	KindNone Kind = iota

	// KindRateLimited means the platform refused the call due to pacing.
	// The caller waits the retry cooldown and repeats the same logical
	// operation; never counted as skipped.
	KindRateLimited

	// KindTimeout means the call failed at the transport level or the
	// platform's edge timed out. Retried indefinitely under the caller's
	// cancellation context.
	KindTimeout

	// KindFatal means the call can never succeed for this profile. The
	// owning worker stops and surfaces the reason.
	KindFatal

	// KindSoft is any other non-OK outcome. Logged, counted as skipped,
	// the caller moves to the next item.
	KindSoft
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate-limited"
	case KindTimeout:
		return "transient-timeout"
	case KindFatal:
		return "fatal"
	case KindSoft:
		return "soft-error"
	default:
		return "none"
	}
}

// Error is a classified remote call failure.
type Error struct {
	Kind   Kind
	Status int
	Reason string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("platform: %s (HTTP %d): %s", e.Kind, e.Status, e.Reason)
	}
	return fmt.Sprintf("platform: %s: %s", e.Kind, e.Reason)
}

// KindOf returns the classification of err, or KindNone if err is not a
// platform error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindNone
}

// Reason returns the human-readable reason of a classified error, or the
// plain error text otherwise.
func Reason(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return err.Error()
}
