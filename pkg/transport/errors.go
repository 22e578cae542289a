package transport

import (
	"errors"
	"fmt"
)

// ErrCapabilityUnsupported is matched by errors.Is against any
// CapabilityError, so callers can branch without knowing which
// capability was missing.
var ErrCapabilityUnsupported = errors.New("capability not supported by this transport")

// TransportError wraps a connection or IO failure on a single call.
// It is fatal to that call only; the event stream reconnects on its
// own and reports through health events.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CapabilityError reports an optional operation the transport does not
// implement. Distinct from TransportError so callers can degrade
// instead of treating it as a connection failure.
type CapabilityError struct {
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %s not supported by this transport", e.Capability)
}

func (e *CapabilityError) Is(target error) bool {
	return target == ErrCapabilityUnsupported
}

// ValidationError rejects a malformed request before any network call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}
