package oidc

import (
	"errors"
	"fmt"
	"log/slog"
)

type errorKind string

const (
	// InteractionRequired means the request cannot be satisfied silently
	// and has to be escalated to an interactive flow.
	InteractionRequired errorKind = "interaction_required"

	// UserCancelled means the user dismissed the interactive surface
	// without completing the flow.
	UserCancelled errorKind = "user_cancelled"

	// StateMismatch means the echoed state of a response did not match the
	// state of the originating request. The response must be discarded.
	StateMismatch errorKind = "state_mismatch"

	// ProviderError carries an error code returned by the identity provider.
	ProviderError errorKind = "provider_error"

	// MalformedResponse means a redirect URL did not contain a parseable
	// parameter block where one was expected.
	MalformedResponse errorKind = "malformed_response"

	// NetworkError means a transport failure while talking to the provider.
	NetworkError errorKind = "network_error"

	// NotSignedIn means the operation requires a signed-in session.
	NotSignedIn errorKind = "not_signed_in"
)

var (
	ErrInteractionRequired = func() *Error {
		return &Error{Kind: InteractionRequired}
	}
	ErrUserCancelled = func() *Error {
		return &Error{Kind: UserCancelled}
	}
	ErrStateMismatch = func() *Error {
		return &Error{Kind: StateMismatch}
	}
	ErrMalformedResponse = func() *Error {
		return &Error{Kind: MalformedResponse}
	}
	ErrNetworkError = func() *Error {
		return &Error{Kind: NetworkError}
	}
	ErrNotSignedIn = func() *Error {
		return &Error{Kind: NotSignedIn}
	}
)

// ErrProvider creates an Error for an error payload returned by the provider,
// either in a redirect response or a token endpoint body.
func ErrProvider(code, description string) *Error {
	return &Error{
		Kind:         ProviderError,
		ProviderCode: code,
		Description:  description,
	}
}

// Error is the single error type of this module. Kind is a closed set,
// so callers can switch on the failure class with errors.Is instead of
// inspecting strings.
type Error struct {
	Parent       error     `json:"-" schema:"-"`
	Kind         errorKind `json:"error" schema:"error"`
	ProviderCode string    `json:"provider_code,omitempty" schema:"-"`
	Description  string    `json:"error_description,omitempty" schema:"error_description,omitempty"`
	State        string    `json:"state,omitempty" schema:"state,omitempty"`
}

func (e *Error) Error() string {
	message := "Kind=" + string(e.Kind)
	if e.ProviderCode != "" {
		message += " ProviderCode=" + e.ProviderCode
	}
	if e.Description != "" {
		message += " Description=" + e.Description
	}
	if e.Parent != nil {
		message += " Parent=" + e.Parent.Error()
	}
	return message
}

func (e *Error) Unwrap() error {
	return e.Parent
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind &&
		(e.ProviderCode == t.ProviderCode || t.ProviderCode == "") &&
		(e.Description == t.Description || t.Description == "") &&
		(e.State == t.State || t.State == "")
}

func (e *Error) WithParent(err error) *Error {
	e.Parent = err
	return e
}

func (e *Error) WithDescription(desc string, args ...any) *Error {
	e.Description = fmt.Sprintf(desc, args...)
	return e
}

func (e *Error) WithState(state string) *Error {
	e.State = state
	return e
}

// DefaultToNetworkError checks if the error already is an Error,
// if not the provided error is wrapped into a NetworkError.
func DefaultToNetworkError(err error, description string) *Error {
	target := new(Error)
	if ok := errors.As(err, &target); !ok {
		target.Kind = NetworkError
		target.Description = description
		target.Parent = err
	}
	return target
}

// IsKindOf reports whether err is an Error of the given kind,
// regardless of its provider code, description or state.
func IsKindOf(err error, kind errorKind) bool {
	target := new(Error)
	return errors.As(err, &target) && target.Kind == kind
}

func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 5)
	attrs = append(attrs, slog.String("kind", string(e.Kind)))
	if e.ProviderCode != "" {
		attrs = append(attrs, slog.String("provider_code", e.ProviderCode))
	}
	if e.Description != "" {
		attrs = append(attrs, slog.String("description", e.Description))
	}
	if e.State != "" {
		attrs = append(attrs, slog.String("state", e.State))
	}
	if e.Parent != nil {
		attrs = append(attrs, slog.Any("parent", e.Parent))
	}
	return slog.GroupValue(attrs...)
}
