package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklens/authcore/pkg/session"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("AUTHCORE_ISSUER", "https://login.example.com/tenant-1/v2.0")
	t.Setenv("AUTHCORE_CLIENT_ID", "client-1")
	t.Setenv("AUTHCORE_SCOPES", "tasks.readwrite openid profile")
	t.Setenv("AUTHCORE_POST_LOGOUT_REDIRECT_URI", "http://localhost:8654/done")

	cfg, err := session.ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://login.example.com/tenant-1/v2.0", cfg.Issuer)
	assert.Equal(t, "client-1", cfg.ClientID)
	assert.Equal(t, []string{"tasks.readwrite", "openid", "profile"}, cfg.Scopes)
	assert.Equal(t, "http://localhost:8654/auth/callback", cfg.RedirectURI)
	assert.Equal(t, "http://localhost:8654/done", cfg.PostLogoutRedirectURI)
	assert.True(t, cfg.Endpoints.IsZero())
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("AUTHCORE_CLIENT_ID", "client-1")

	cfg, err := session.ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"openid", "profile"}, cfg.Scopes)
	assert.Equal(t, "http://localhost:8654/auth/callback", cfg.RedirectURI)
}

func TestConfigFromEnv_ExplicitEndpoints(t *testing.T) {
	t.Setenv("AUTHCORE_CLIENT_ID", "client-1")
	t.Setenv("AUTHCORE_AUTH_URL", "https://provider.example/authorize")
	t.Setenv("AUTHCORE_TOKEN_URL", "https://provider.example/token")
	t.Setenv("AUTHCORE_END_SESSION_URL", "https://provider.example/logout")

	cfg, err := session.ConfigFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.Endpoints.IsZero())
	assert.Equal(t, "https://provider.example/token", cfg.Endpoints.TokenURL)
}
