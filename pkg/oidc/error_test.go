package oidc

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same kind",
			err:    ErrUserCancelled(),
			target: ErrUserCancelled(),
			want:   true,
		},
		{
			name:   "different kind",
			err:    ErrUserCancelled(),
			target: ErrStateMismatch(),
			want:   false,
		},
		{
			name:   "kind with description matches bare target",
			err:    ErrStateMismatch().WithDescription("state of response %s does not match", "foo"),
			target: ErrStateMismatch(),
			want:   true,
		},
		{
			name:   "provider code matches bare provider target",
			err:    ErrProvider("access_denied", "user declined"),
			target: &Error{Kind: ProviderError},
			want:   true,
		},
		{
			name:   "provider code mismatch",
			err:    ErrProvider("access_denied", ""),
			target: ErrProvider("server_error", ""),
			want:   false,
		},
		{
			name:   "wrapped parent still matches",
			err:    ErrNetworkError().WithParent(io.ErrClosedPipe),
			target: ErrNetworkError(),
			want:   true,
		},
		{
			name:   "not an Error",
			err:    io.ErrClosedPipe,
			target: ErrNetworkError(),
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	err := ErrNetworkError().WithParent(io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDefaultToNetworkError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *Error
	}{
		{
			name: "plain error",
			err:  io.ErrClosedPipe,
			want: &Error{
				Kind:        NetworkError,
				Description: "oops",
				Parent:      io.ErrClosedPipe,
			},
		},
		{
			name: "our Error",
			err:  ErrUserCancelled(),
			want: &Error{Kind: UserCancelled},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultToNetworkError(tt.err, "oops")
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestIsKindOf(t *testing.T) {
	assert.True(t, IsKindOf(ErrProvider("interaction_required", ""), ProviderError))
	assert.True(t, IsKindOf(ErrInteractionRequired().WithParent(io.EOF), InteractionRequired))
	assert.False(t, IsKindOf(io.EOF, NetworkError))
}

func TestError_Error(t *testing.T) {
	err := ErrProvider("access_denied", "user declined").WithParent(io.EOF)
	assert.Equal(t, "Kind=provider_error ProviderCode=access_denied Description=user declined Parent=EOF", err.Error())
}
