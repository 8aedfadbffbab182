package authorizer

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklens/authcore/pkg/oidc"
)

// freeRedirectURI reserves a loopback port and frees it again, so the
// browser authorizer under test can bind it.
func freeRedirectURI(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "http://" + addr + "/auth/callback"
}

func TestNewBrowser_RejectsNonLoopback(t *testing.T) {
	_, err := NewBrowser("urn:ietf:wg:oauth:2.0:oob")
	assert.Error(t, err)
	_, err = NewBrowser("https://example.com/callback")
	assert.Error(t, err)
}

func TestBrowser_QueryRedirect(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	opened := make(chan string, 1)
	browser, err := NewBrowser(redirectURI, WithOpenURL(func(u string) error {
		opened <- u
		return nil
	}))
	require.NoError(t, err)

	type result struct {
		raw string
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := browser.Authorize(context.Background(), "https://provider.example/authorize?state=abc")
		done <- result{raw, err}
	}()

	select {
	case authURL := <-opened:
		assert.Contains(t, authURL, "provider.example")
	case <-time.After(5 * time.Second):
		t.Fatal("browser was never opened")
	}

	// the provider redirects with a query parameter block
	resp, err := http.Get(redirectURI + "?code=authcode&state=abc")
	require.NoError(t, err)
	defer resp.Body.Close()

	res := <-done
	require.NoError(t, res.err)
	parsed, err := url.Parse(res.raw)
	require.NoError(t, err)
	assert.Equal(t, "authcode", parsed.Query().Get("code"))
	assert.Equal(t, "abc", parsed.Query().Get("state"))
}

func TestBrowser_FragmentRelay(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	browser, err := NewBrowser(redirectURI, WithOpenURL(func(string) error { return nil }))
	require.NoError(t, err)

	type result struct {
		raw string
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := browser.Authorize(context.Background(), "https://provider.example/authorize")
		done <- result{raw, err}
	}()

	// a fragment never reaches the listener: the first request is bare
	// and must serve the relay page
	var page string
	require.Eventually(t, func() bool {
		resp, err := http.Get(redirectURI)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		page = string(body)
		return true
	}, 5*time.Second, 50*time.Millisecond)
	assert.Contains(t, page, "location.hash")

	// the relay page re-submits the fragment as a query parameter
	fragment := "access_token=tok&state=abc"
	resp, err := http.Get(redirectURI + "?" + relayParam + "=" + url.QueryEscape(fragment))
	require.NoError(t, err)
	defer resp.Body.Close()

	res := <-done
	require.NoError(t, res.err)
	assert.True(t, strings.HasSuffix(res.raw, "#"+fragment), "raw url %q should end in the fragment", res.raw)
}

func TestBrowser_EmptyRelayIsBareURL(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	browser, err := NewBrowser(redirectURI, WithOpenURL(func(string) error { return nil }))
	require.NoError(t, err)

	done := make(chan string, 1)
	go func() {
		raw, err := browser.Authorize(context.Background(), "https://provider.example/logout")
		require.NoError(t, err)
		done <- raw
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get(redirectURI + "?" + relayParam + "=")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 5*time.Second, 50*time.Millisecond)

	raw := <-done
	assert.Equal(t, redirectURI, raw)
	assert.NotContains(t, raw, "#")
}

func TestBrowser_ContextCancelled(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	browser, err := NewBrowser(redirectURI, WithOpenURL(func(string) error { return nil }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = browser.Authorize(ctx, "https://provider.example/authorize")
	assert.ErrorIs(t, err, oidc.ErrUserCancelled())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBrowser_PortTaken(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	u, err := url.Parse(redirectURI)
	require.NoError(t, err)
	ln, err := net.Listen("tcp", u.Host)
	require.NoError(t, err)
	defer ln.Close()

	browser, err := NewBrowser(redirectURI, WithOpenURL(func(string) error { return nil }))
	require.NoError(t, err)
	_, err = browser.Authorize(context.Background(), "https://provider.example/authorize")
	assert.ErrorIs(t, err, ErrHostUnavailable)
}

func TestBrowser_OpenFails(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	browser, err := NewBrowser(redirectURI, WithOpenURL(func(string) error {
		return io.ErrClosedPipe
	}))
	require.NoError(t, err)
	_, err = browser.Authorize(context.Background(), "https://provider.example/authorize")
	assert.ErrorIs(t, err, ErrHostUnavailable)
}
