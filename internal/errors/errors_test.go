package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFollowsWrapChain(t *testing.T) {
	base := New(ErrCodeBackendTimeout, "list windows timed out")
	wrapped := fmt.Errorf("rebuild: %w", base)

	assert.True(t, Is(wrapped, ErrCodeBackendTimeout))
	assert.False(t, Is(wrapped, ErrCodeBackendUnavailable))
	assert.False(t, Is(nil, ErrCodeBackendTimeout))
	assert.Equal(t, ErrCodeBackendTimeout, GetCode(wrapped))
}

func TestErrorString(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrCodeTransportUnreachable, "daemon not running")

	assert.Equal(t, "TRANSPORT_UNREACHABLE: daemon not running: connection refused", err.Error())
	assert.Equal(t, "daemon not running", Message(err))
	assert.ErrorIs(t, err, cause)
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeParse, "missing Exec").WithDetail("path", "/tmp/x.desktop")
	assert.Equal(t, "/tmp/x.desktop", err.Details["path"])
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"bind conflict", New(ErrCodeTransportBindConflict, "bound"), ExitAlreadyRunning},
		{"unreachable", fmt.Errorf("x: %w", New(ErrCodeTransportUnreachable, "down")), ExitNotRunning},
		{"plain", fmt.Errorf("boom"), ExitFailure},
		{"other code", New(ErrCodeLaunchFailure, "no such file"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
