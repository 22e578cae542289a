package transport

import (
	"context"
	"errors"
	"testing"
)

// minimalTransport implements only the required capability set.
type minimalTransport struct {
	BaseTransport
}

func TestBaseTransportCapabilityDefaults(t *testing.T) {
	tr := minimalTransport{}
	ctx := context.Background()

	err := tr.AbortRun(ctx, "main", "run-1")
	if !errors.Is(err, ErrCapabilityUnsupported) {
		t.Fatalf("AbortRun err = %v, want ErrCapabilityUnsupported", err)
	}
	var capErr *CapabilityError
	if !errors.As(err, &capErr) || capErr.Capability != MethodChatAbort {
		t.Fatalf("AbortRun err = %v, want CapabilityError for %s", err, MethodChatAbort)
	}

	if _, err := tr.ListSessions(ctx, 0); !errors.Is(err, ErrCapabilityUnsupported) {
		t.Fatalf("ListSessions err = %v, want ErrCapabilityUnsupported", err)
	}

	// Unimplemented setActive is a no-op success, not an error.
	if err := tr.SetActiveSessionKey(ctx, "main"); err != nil {
		t.Fatalf("SetActiveSessionKey err = %v, want nil", err)
	}
}

func TestCapabilityErrorIsNotTransportError(t *testing.T) {
	err := error(&CapabilityError{Capability: MethodChatAbort})

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		t.Fatal("CapabilityError must not read as a TransportError")
	}
	if !errors.Is(err, ErrCapabilityUnsupported) {
		t.Fatal("CapabilityError must match ErrCapabilityUnsupported")
	}
}

func TestDecodeError(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		check   func(error) bool
		wantMsg string
	}{
		{
			name:  "unsupported maps to capability error",
			frame: Frame{ErrCode: ErrCodeUnsupported, Error: "no abort here"},
			check: func(err error) bool { return errors.Is(err, ErrCapabilityUnsupported) },
		},
		{
			name:  "invalid maps to validation error",
			frame: Frame{ErrCode: ErrCodeInvalid, Error: "empty message"},
			check: func(err error) bool {
				var v *ValidationError
				return errors.As(err, &v)
			},
		},
		{
			name:  "anything else is a transport error",
			frame: Frame{ErrCode: ErrCodeInternal, Error: "boom"},
			check: func(err error) bool {
				var tr *TransportError
				return errors.As(err, &tr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decodeError(MethodChatAbort, tt.frame)
			if err == nil || !tt.check(err) {
				t.Fatalf("decodeError = %v", err)
			}
		})
	}
}
