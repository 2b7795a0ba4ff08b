// Failure taxonomy of the realtime gateway.

package errors

import (
	stderrors "errors"
)

// RealtimeError is one kind of realtime failure. Its reason string is what clients see.
type RealtimeError struct {
	reason string
}

func (e *RealtimeError) Error() string {
	return e.reason
}

// Reason returns the wire reason string.
func (e *RealtimeError) Reason() string {
	return e.reason
}

var (
	// ErrUnauthenticated: bad, expired or missing credential. Terminal for the connection.
	ErrUnauthenticated = &RealtimeError{reason: "unauthenticated"}
	// ErrForbidden: authenticated but the role does not allow the room or action.
	ErrForbidden = &RealtimeError{reason: "forbidden"}
	// ErrMalformedMessage: unknown event name or unparseable payload.
	ErrMalformedMessage = &RealtimeError{reason: "malformed_message"}
	// ErrDeliveryFailure: a local or relay broadcast failed.
	ErrDeliveryFailure = &RealtimeError{reason: "delivery_failure"}
	// ErrRelayUnavailable: the bus connection is lost.
	ErrRelayUnavailable = &RealtimeError{reason: "relay_unavailable"}
)

// Reason maps any error onto a realtime reason string. Unknown errors map to delivery_failure.
func Reason(err error) string {
	var rt *RealtimeError
	if stderrors.As(err, &rt) {
		return rt.reason
	}
	return ErrDeliveryFailure.reason
}

// Is is the standard library errors.Is, re-exported so callers need a single errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Cause wraps a realtime kind with detail that stays server side.
type Cause struct {
	Kind   *RealtimeError
	Detail string
}

func (c Cause) Error() string {
	return c.Kind.reason + ": " + c.Detail
}

func (c Cause) Unwrap() error {
	return c.Kind
}

// Malformed returns ErrMalformedMessage carrying a detail for the logs.
func Malformed(detail string) error {
	return Cause{Kind: ErrMalformedMessage, Detail: detail}
}

// Forbid returns ErrForbidden carrying a detail for the logs.
func Forbid(detail string) error {
	return Cause{Kind: ErrForbidden, Detail: detail}
}
