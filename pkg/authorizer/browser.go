package authorizer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tasklens/authcore/pkg/oidc"
)

// relayParam carries the fragment of the redirect URL back to the loopback
// listener. Fragments are never sent to servers, so the callback page
// re-submits location.hash as this query parameter.
const relayParam = "authcore_relay"

const relayPage = `<!DOCTYPE html>
<html>
<body>
<script>
var target = window.location.pathname + "?%s=" + encodeURIComponent(window.location.hash.replace(/^#/, ""));
window.location.replace(target);
</script>
</body>
</html>
`

const donePage = `<!DOCTYPE html>
<html>
<body>
<p><strong>Done.</strong></p>
<p>You can close this window and return to the application.</p>
</body>
</html>
`

// Browser presents authorization URLs in the system browser and captures
// the redirect on a loopback listener bound to the redirect URI.
type Browser struct {
	redirectURI *url.URL
	openURL     func(string) error
	logger      *slog.Logger
}

var _ Authorizer = (*Browser)(nil)

type BrowserOption func(*Browser)

// WithOpenURL replaces how the browser is launched.
func WithOpenURL(openURL func(string) error) BrowserOption {
	return func(b *Browser) {
		b.openURL = openURL
	}
}

// WithLogger sets a logger for surface lifecycle events.
func WithLogger(logger *slog.Logger) BrowserOption {
	return func(b *Browser) {
		b.logger = logger
	}
}

// NewBrowser creates a system-browser Authorizer for the given loopback
// redirect URI, e.g. "http://localhost:8654/auth/callback".
func NewBrowser(redirectURI string, options ...BrowserOption) (*Browser, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}
	if u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("redirect uri %q is not a loopback http url", redirectURI)
	}
	b := &Browser{
		redirectURI: u,
		openURL:     OpenBrowser,
		logger:      slog.Default(),
	}
	for _, option := range options {
		option(b)
	}
	return b, nil
}

// Authorize binds the loopback listener, opens the browser on authURL and
// blocks until the redirect arrives or ctx ends. The returned raw URL is
// the redirect URI plus whatever parameter block the provider attached.
func (b *Browser) Authorize(ctx context.Context, authURL string) (string, error) {
	ln, err := net.Listen("tcp", b.redirectURI.Host)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHostUnavailable, err)
	}
	defer ln.Close()

	resultCh := make(chan string, 1)
	callbackPath := b.redirectURI.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	router := chi.NewRouter()
	router.Get(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		switch {
		case query.Has(relayParam):
			raw := b.redirectURI.String()
			if fragment := query.Get(relayParam); fragment != "" {
				raw += "#" + fragment
			}
			fmt.Fprint(w, donePage)
			select {
			case resultCh <- raw:
			default:
			}
		case len(query) > 0:
			// query-style responses (code flow, provider errors)
			// reach the listener directly
			fmt.Fprint(w, donePage)
			select {
			case resultCh <- b.redirectURI.String() + "?" + r.URL.RawQuery:
			default:
			}
		default:
			fmt.Fprintf(w, relayPage, relayParam)
		}
	})

	server := &http.Server{Handler: router}
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			b.logger.Error("loopback listener failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := b.openURL(authURL); err != nil {
		return "", fmt.Errorf("%w: %w", ErrHostUnavailable, err)
	}
	b.logger.Debug("awaiting redirect", "redirect_uri", b.redirectURI.String())

	select {
	case raw := <-resultCh:
		return raw, nil
	case <-ctx.Done():
		return "", oidc.ErrUserCancelled().WithParent(ctx.Err()).WithDescription("interactive surface dismissed")
	}
}
