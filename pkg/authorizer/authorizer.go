// Package authorizer abstracts the host capability that presents an
// authorization URL interactively and reports back the final redirect URL.
package authorizer

import (
	"context"
	"errors"
)

// ErrHostUnavailable is returned when the interactive surface cannot be
// presented at all, e.g. the loopback port is taken or no browser exists.
var ErrHostUnavailable = errors.New("interactive surface unavailable")

// Authorizer presents the authorization URL and blocks until the provider
// redirects to the configured redirect URI, returning the raw redirect URL
// (fragment included). One call corresponds to exactly one presentation of
// the surface; implementations never retry on their own.
//
// Cancelling the context dismisses the attempt; the error then wraps
// context.Canceled or context.DeadlineExceeded.
type Authorizer interface {
	Authorize(ctx context.Context, authURL string) (rawRedirectURL string, err error)
}

// AuthorizerFunc adapts a plain function to the Authorizer interface.
// Hosts with their own embedded web surface plug in this way, and tests
// use it as the scripted double.
type AuthorizerFunc func(ctx context.Context, authURL string) (string, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, authURL string) (string, error) {
	return f(ctx, authURL)
}
