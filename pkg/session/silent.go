package session

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/tasklens/authcore/pkg/account"
	"github.com/tasklens/authcore/pkg/client"
	"github.com/tasklens/authcore/pkg/oidc"
)

// SilentAcquirer serves token requests without any user interaction:
// first from the account store, then with a single refresh grant round
// trip. Every failure maps to InteractionRequired or NetworkError, so
// callers only ever decide between escalating and retrying.
type SilentAcquirer struct {
	store    account.Store
	caller   client.TokenEndpointCaller
	clientID string
	logger   *slog.Logger
}

func NewSilentAcquirer(store account.Store, caller client.TokenEndpointCaller, clientID string) *SilentAcquirer {
	return &SilentAcquirer{
		store:    store,
		caller:   caller,
		clientID: clientID,
	}
}

// Acquire returns a token covering the requested scopes for the account.
// It never presents an interactive surface and performs at most one
// network round trip.
func (s *SilentAcquirer) Acquire(ctx context.Context, scopes []string, acct *account.Account) (*oauth2.Token, error) {
	ctx, span := client.Tracer.Start(ctx, "silentAcquire")
	defer span.End()

	if acct == nil || acct.ID == "" {
		return nil, oidc.ErrInteractionRequired().WithDescription("no signed-in account")
	}

	entry, err := s.store.Lookup(ctx, acct.ID, scopes)
	if err == nil {
		return &oauth2.Token{
			AccessToken: entry.AccessToken,
			TokenType:   entry.TokenType,
			Expiry:      entry.Expiry,
		}, nil
	}
	if !errors.Is(err, account.ErrNoEntry) {
		return nil, oidc.ErrInteractionRequired().WithParent(err).WithDescription("token cache unreadable")
	}

	refreshToken, err := s.store.RefreshTokenFor(ctx, acct.ID)
	if err != nil {
		return nil, oidc.ErrInteractionRequired().WithParent(err).WithDescription("no cached token and no refresh capability")
	}

	token, err := client.RefreshTokens(ctx, s.caller, s.clientID, refreshToken, scopes)
	if err != nil {
		if oidc.IsKindOf(err, oidc.NetworkError) {
			return nil, err
		}
		// the provider rejected the refresh grant, only the user can fix that
		return nil, oidc.ErrInteractionRequired().WithParent(err).WithDescription("refresh grant rejected")
	}

	granted := client.GrantedScopes(token)
	if len(granted) == 0 {
		granted = oidc.NormalizeScopes(scopes)
	}
	rotated := token.RefreshToken
	if rotated == "" {
		rotated = refreshToken
	}
	fresh := account.Entry{
		Scopes:       granted,
		AccessToken:  token.AccessToken,
		TokenType:    tokenTypeOrBearer(token.TokenType),
		Expiry:       token.Expiry,
		RefreshToken: rotated,
	}
	if err := s.store.Upsert(ctx, *acct, fresh); err != nil {
		// the token is good even if caching it failed
		logCtx(ctx, s.logger).Warn("caching refreshed token failed", "error", err)
	}
	return token, nil
}

func tokenTypeOrBearer(tokenType string) string {
	if tokenType == "" {
		return oidc.BearerToken
	}
	return tokenType
}
