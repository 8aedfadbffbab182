// Package account holds the persistent record of the signed-in account and
// its cached tokens. The model is single-account: a successful login
// replaces whatever account was active before.
package account

import (
	"context"
	"errors"
	"time"

	"github.com/tasklens/authcore/pkg/oidc"
)

// ErrNoEntry is returned by Lookup when no cached entry covers the
// requested scopes with a future expiry. Expired or scope-insufficient
// entries are cache misses, never returned.
var ErrNoEntry = errors.New("no matching token cache entry")

// ExpirySlack guards against clock skew between this process and the
// provider: entries this close to expiry count as expired.
const ExpirySlack = time.Minute

// Account identifies the signed-in user.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
}

// Entry is one cached token, keyed by account and normalized scope set.
type Entry struct {
	AccountID    string                   `json:"account_id"`
	Scopes       oidc.SpaceDelimitedArray `json:"scopes"`
	AccessToken  string                   `json:"access_token"`
	TokenType    string                   `json:"token_type,omitempty"`
	Expiry       time.Time                `json:"expiry"`
	RefreshToken string                   `json:"refresh_token,omitempty"`
}

// Key returns the cache key of the entry's scope set.
func (e *Entry) Key() string {
	return oidc.NormalizeScopes(e.Scopes).String()
}

// Valid reports whether the entry's token is still usable at now.
func (e *Entry) Valid(now time.Time) bool {
	return e.AccessToken != "" && e.Expiry.After(now.Add(ExpirySlack))
}

// Satisfies reports whether the entry's granted scopes cover the request.
func (e *Entry) Satisfies(scopes []string) bool {
	return oidc.ScopesSatisfy(e.Scopes, scopes)
}

// Store is the persistence contract of the session engine. Implementations
// must treat an empty or corrupt backing store as "no active account" and
// never fail lookups because of it.
type Store interface {
	// Upsert replaces the active account and merges the given entries
	// into its cache. Entries of a previously active account are dropped.
	Upsert(ctx context.Context, account Account, entries ...Entry) error

	// Lookup returns the entry covering the requested scopes for the
	// account, or ErrNoEntry.
	Lookup(ctx context.Context, accountID string, scopes []string) (*Entry, error)

	// RefreshTokenFor returns a refresh token usable for the account,
	// or ErrNoEntry when the account has no refresh capability.
	RefreshTokenFor(ctx context.Context, accountID string) (string, error)

	// ActiveAccount returns the active account, or nil without error
	// when the store is empty.
	ActiveAccount(ctx context.Context) (*Account, error)

	// Clear drops the active account and all cached entries.
	Clear(ctx context.Context) error
}

// record is the single persisted unit shared by the file backends.
type record struct {
	Account *Account `json:"account,omitempty"`
	Entries []Entry  `json:"entries,omitempty"`
}

// merge applies the single-account invariant on a record.
func (r *record) merge(account Account, entries []Entry, now time.Time) {
	if r.Account == nil || r.Account.ID != account.ID {
		r.Entries = nil
	}
	r.Account = &account
	for _, entry := range entries {
		entry.AccountID = account.ID
		replaced := false
		for i := range r.Entries {
			if r.Entries[i].Key() == entry.Key() {
				r.Entries[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			r.Entries = append(r.Entries, entry)
		}
	}
	// drop entries that can never serve a lookup again
	kept := r.Entries[:0]
	for _, entry := range r.Entries {
		if entry.Valid(now) || entry.RefreshToken != "" {
			kept = append(kept, entry)
		}
	}
	r.Entries = kept
}

func (r *record) lookup(accountID string, scopes []string, now time.Time) *Entry {
	if r.Account == nil || r.Account.ID != accountID {
		return nil
	}
	for i := range r.Entries {
		entry := r.Entries[i]
		if entry.Valid(now) && entry.Satisfies(scopes) {
			return &entry
		}
	}
	return nil
}

func (r *record) refreshToken(accountID string) string {
	if r.Account == nil || r.Account.ID != accountID {
		return ""
	}
	for _, entry := range r.Entries {
		if entry.RefreshToken != "" {
			return entry.RefreshToken
		}
	}
	return ""
}
