package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklens/authcore/pkg/account"
	httphelper "github.com/tasklens/authcore/pkg/http"
	"github.com/tasklens/authcore/pkg/oidc"
	"github.com/tasklens/authcore/pkg/session"
)

type endpointCaller struct {
	endpoint string
}

func (c endpointCaller) TokenEndpoint() string {
	return c.endpoint
}

func (c endpointCaller) HttpClient() *http.Client {
	return httphelper.DefaultHTTPClient
}

func TestSilentAcquirer_NoAccount(t *testing.T) {
	acquirer := session.NewSilentAcquirer(account.NewMemStore(), endpointCaller{}, "client-1")
	_, err := acquirer.Acquire(context.Background(), []string{"tasks.readwrite"}, nil)
	assert.ErrorIs(t, err, oidc.ErrInteractionRequired())
}

func TestSilentAcquirer_CacheHit(t *testing.T) {
	store := account.NewMemStore()
	acct := account.Account{ID: "acct-1", Username: "user@example.com"}
	require.NoError(t, store.Upsert(context.Background(), acct, account.Entry{
		Scopes:      oidc.SpaceDelimitedArray{"tasks.readwrite"},
		AccessToken: "cached-token",
		TokenType:   oidc.BearerToken,
		Expiry:      time.Now().Add(time.Hour),
	}))

	acquirer := session.NewSilentAcquirer(store, endpointCaller{}, "client-1")
	token, err := acquirer.Acquire(context.Background(), []string{"tasks.readwrite"}, &acct)
	require.NoError(t, err)
	assert.Equal(t, "cached-token", token.AccessToken)
}

func TestSilentAcquirer_RefreshRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "rt-old", r.Form.Get("refresh_token"))
		assert.Equal(t, "client-1", r.Form.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"refreshed-token","token_type":"Bearer","expires_in":3600,"refresh_token":"rt-new","scope":"tasks.readwrite"}`))
	}))
	defer server.Close()

	store := account.NewMemStore()
	acct := account.Account{ID: "acct-1"}
	require.NoError(t, store.Upsert(context.Background(), acct, account.Entry{
		Scopes:       oidc.SpaceDelimitedArray{"tasks.readwrite"},
		AccessToken:  "stale-token",
		Expiry:       time.Now().Add(-time.Hour),
		RefreshToken: "rt-old",
	}))

	acquirer := session.NewSilentAcquirer(store, endpointCaller{endpoint: server.URL}, "client-1")
	token, err := acquirer.Acquire(context.Background(), []string{"tasks.readwrite"}, &acct)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token", token.AccessToken)

	// the rotated refresh token replaced the spent one
	refreshToken, err := store.RefreshTokenFor(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "rt-new", refreshToken)

	entry, err := store.Lookup(context.Background(), "acct-1", []string{"tasks.readwrite"})
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token", entry.AccessToken)
}

func TestSilentAcquirer_RefreshRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	}))
	defer server.Close()

	store := account.NewMemStore()
	acct := account.Account{ID: "acct-1"}
	require.NoError(t, store.Upsert(context.Background(), acct, account.Entry{
		Scopes:       oidc.SpaceDelimitedArray{"tasks.readwrite"},
		Expiry:       time.Now().Add(-time.Hour),
		RefreshToken: "rt-revoked",
	}))

	acquirer := session.NewSilentAcquirer(store, endpointCaller{endpoint: server.URL}, "client-1")
	_, err := acquirer.Acquire(context.Background(), []string{"tasks.readwrite"}, &acct)
	assert.ErrorIs(t, err, oidc.ErrInteractionRequired())
	assert.ErrorIs(t, err, oidc.ErrProvider("invalid_grant", ""))
}

func TestSilentAcquirer_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	store := account.NewMemStore()
	acct := account.Account{ID: "acct-1"}
	require.NoError(t, store.Upsert(context.Background(), acct, account.Entry{
		Scopes:       oidc.SpaceDelimitedArray{"tasks.readwrite"},
		Expiry:       time.Now().Add(-time.Hour),
		RefreshToken: "rt-1",
	}))

	acquirer := session.NewSilentAcquirer(store, endpointCaller{endpoint: server.URL}, "client-1")
	_, err := acquirer.Acquire(context.Background(), []string{"tasks.readwrite"}, &acct)
	assert.ErrorIs(t, err, oidc.ErrNetworkError())
}

func TestSilentAcquirer_NoRefreshCapability(t *testing.T) {
	store := account.NewMemStore()
	acct := account.Account{ID: "acct-1"}
	require.NoError(t, store.Upsert(context.Background(), acct))

	acquirer := session.NewSilentAcquirer(store, endpointCaller{}, "client-1")
	_, err := acquirer.Acquire(context.Background(), []string{"tasks.readwrite"}, &acct)
	assert.ErrorIs(t, err, oidc.ErrInteractionRequired())
	assert.ErrorIs(t, err, account.ErrNoEntry)
}
