// Package session drives the authentication lifecycle: silent token
// acquisition with interactive fallback, redirect correlation and the
// session state machine around the account store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/tasklens/authcore/pkg/account"
	"github.com/tasklens/authcore/pkg/authorizer"
	"github.com/tasklens/authcore/pkg/client"
	httphelper "github.com/tasklens/authcore/pkg/http"
	"github.com/tasklens/authcore/pkg/oidc"
	"github.com/tasklens/authcore/pkg/redirect"
)

// State describes where the session currently stands. It is advisory:
// operations are always safe to call, whatever the state.
type State int

const (
	SignedOut State = iota
	Authenticating
	SignedIn
	Reauthenticating
	AwaitingInteraction
	Failed
)

func (s State) String() string {
	switch s {
	case SignedOut:
		return "signed_out"
	case Authenticating:
		return "authenticating"
	case SignedIn:
		return "signed_in"
	case Reauthenticating:
		return "reauthenticating"
	case AwaitingInteraction:
		return "awaiting_interaction"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// flight is one in-progress interactive round. Concurrent callers join
// the pending flight instead of opening a second surface.
type flight struct {
	done    chan struct{}
	token   *oauth2.Token
	account *account.Account
	err     error
}

func newFlight() *flight {
	return &flight{done: make(chan struct{})}
}

// Controller is the session engine. It owns the account store, decides
// between silent and interactive acquisition and guarantees that at most
// one interactive surface is open at any time.
type Controller struct {
	cfg        Config
	endpoints  client.Endpoints
	store      account.Store
	authorizer authorizer.Authorizer
	silent     *SilentAcquirer

	httpClient         *http.Client
	logger             *slog.Logger
	now                func() time.Time
	pkce               bool
	interactiveTimeout time.Duration

	mu       sync.Mutex
	state    State
	inflight *flight
}

type Option func(*Controller)

// WithLogger sets the fallback logger. A logger carried in the request
// context still takes precedence.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the HTTP client used for provider calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Controller) {
		c.httpClient = httpClient
	}
}

// WithInteractiveTimeout bounds how long an interactive round may stay
// open. On expiry the attempt fails as cancelled and the surface guard
// is released. Zero means no bound.
func WithInteractiveTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		c.interactiveTimeout = timeout
	}
}

// WithPKCE switches interactive rounds from the implicit flow to the
// authorization code flow with an S256 challenge.
func WithPKCE() Option {
	return func(c *Controller) {
		c.pkce = true
	}
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New creates a Controller. Endpoints come from cfg when set, otherwise
// from discovery on cfg.Issuer. A persisted account rehydrates the
// session straight to SignedIn.
func New(ctx context.Context, cfg Config, store account.Store, auth authorizer.Authorizer, options ...Option) (*Controller, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("session: client id is empty")
	}
	if cfg.RedirectURI == "" {
		return nil, errors.New("session: redirect uri is empty")
	}
	if store == nil || auth == nil {
		return nil, errors.New("session: store and authorizer are required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, oidc.ScopeProfile}
	}
	if cfg.PostLogoutRedirectURI == "" {
		cfg.PostLogoutRedirectURI = cfg.RedirectURI
	}

	c := &Controller{
		cfg:        cfg,
		endpoints:  cfg.Endpoints,
		store:      store,
		authorizer: auth,
		httpClient: httphelper.DefaultHTTPClient,
		now:        time.Now,
		state:      SignedOut,
	}
	for _, option := range options {
		option(c)
	}

	if c.endpoints.IsZero() {
		if cfg.Issuer == "" {
			return nil, errors.New("session: neither endpoints nor issuer configured")
		}
		endpoints, err := client.Discover(ctx, cfg.Issuer, c.httpClient)
		if err != nil {
			return nil, err
		}
		c.endpoints = endpoints
	}
	c.silent = NewSilentAcquirer(store, c, cfg.ClientID)
	c.silent.logger = c.logger

	acct, err := c.store.ActiveAccount(ctx)
	if err != nil {
		return nil, err
	}
	if acct != nil {
		c.state = SignedIn
	}
	return c, nil
}

// TokenEndpoint implements client.TokenEndpointCaller.
func (c *Controller) TokenEndpoint() string {
	return c.endpoints.TokenURL
}

// HttpClient implements client.TokenEndpointCaller.
func (c *Controller) HttpClient() *http.Client {
	return c.httpClient
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveAccount returns the signed-in account, or nil when there is none.
func (c *Controller) ActiveAccount(ctx context.Context) (*account.Account, error) {
	return c.store.ActiveAccount(ctx)
}

// Login runs an interactive sign-in. A non-empty loginHint pre-fills the
// provider's account picker; without one the picker is always shown.
// When another interactive round is already open, the call joins it.
func (c *Controller) Login(ctx context.Context, loginHint string) (*account.Account, error) {
	ctx, span := client.Tracer.Start(ctx, "Login")
	defer span.End()

	c.mu.Lock()
	if f := c.inflight; f != nil {
		c.mu.Unlock()
		_, acct, err := c.join(ctx, f)
		return acct, err
	}
	f := newFlight()
	c.inflight = f
	c.state = Authenticating
	c.mu.Unlock()

	token, acct, err := c.interactive(ctx, c.cfg.Scopes, loginHint)
	c.land(f, token, acct, err, SignedIn, SignedOut)
	if err != nil {
		logCtx(ctx, c.logger).Warn("login failed", "error", err)
		return nil, err
	}
	logCtx(ctx, c.logger).Info("login succeeded", "account", acct.ID)
	return acct, nil
}

// GetAccessToken returns an access token covering the requested scopes,
// silently when possible, escalating to the interactive surface when not.
// Passing no scopes requests the configured default scopes.
func (c *Controller) GetAccessToken(ctx context.Context, scopes []string) (string, error) {
	ctx, span := client.Tracer.Start(ctx, "GetAccessToken")
	defer span.End()

	if len(scopes) == 0 {
		scopes = c.cfg.Scopes
	}

	c.mu.Lock()
	if c.state == SignedOut {
		c.mu.Unlock()
		return "", oidc.ErrNotSignedIn().WithDescription("login before requesting tokens")
	}
	if f := c.inflight; f != nil {
		c.mu.Unlock()
		token, _, err := c.join(ctx, f)
		if err != nil {
			return "", err
		}
		return token.AccessToken, nil
	}
	c.mu.Unlock()

	acct, err := c.store.ActiveAccount(ctx)
	if err != nil {
		return "", err
	}
	if acct == nil {
		c.setState(SignedOut)
		return "", oidc.ErrNotSignedIn().WithDescription("account store is empty")
	}

	c.setState(Reauthenticating)
	token, err := c.silent.Acquire(ctx, scopes, acct)
	if err == nil {
		c.setState(SignedIn)
		return token.AccessToken, nil
	}
	if !oidc.IsKindOf(err, oidc.InteractionRequired) && !oidc.IsKindOf(err, oidc.NetworkError) {
		c.setState(SignedIn)
		return "", err
	}
	logCtx(ctx, c.logger).Debug("silent acquisition failed, escalating", "error", err)

	c.mu.Lock()
	if f := c.inflight; f != nil {
		// another caller escalated first
		c.mu.Unlock()
		token, _, err := c.join(ctx, f)
		if err != nil {
			return "", err
		}
		return token.AccessToken, nil
	}
	f := newFlight()
	c.inflight = f
	c.state = AwaitingInteraction
	c.mu.Unlock()

	token, iacct, ierr := c.interactive(ctx, scopes, acct.Username)
	c.land(f, token, iacct, ierr, SignedIn, Failed)
	if ierr != nil {
		return "", ierr
	}
	return token.AccessToken, nil
}

// Logout runs the provider's end-session round when the provider has one
// and always clears the local session, whether or not the user completed
// the provider-side logout.
func (c *Controller) Logout(ctx context.Context) error {
	ctx, span := client.Tracer.Start(ctx, "Logout")
	defer span.End()

	// wait out any pending interactive round, the surface is exclusive
	c.mu.Lock()
	for c.inflight != nil {
		f := c.inflight
		c.mu.Unlock()
		select {
		case <-f.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	f := newFlight()
	c.inflight = f
	c.mu.Unlock()

	var surfaceErr error
	if c.endpoints.EndSessionURL != "" {
		logoutURL, err := c.endSessionURL()
		if err == nil {
			_, surfaceErr = c.authorize(ctx, logoutURL)
		} else {
			surfaceErr = err
		}
	}
	if surfaceErr != nil && !oidc.IsKindOf(surfaceErr, oidc.UserCancelled) {
		logCtx(ctx, c.logger).Warn("provider logout round failed", "error", surfaceErr)
	}

	clearErr := c.store.Clear(ctx)
	c.land(f, nil, nil, oidc.ErrNotSignedIn().WithDescription("signed out"), SignedOut, SignedOut)
	logCtx(ctx, c.logger).Info("signed out")
	return clearErr
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// land completes a flight: it publishes the outcome, releases the
// surface guard and moves the state machine.
func (c *Controller) land(f *flight, token *oauth2.Token, acct *account.Account, err error, onSuccess, onFailure State) {
	c.mu.Lock()
	f.token = token
	f.account = acct
	f.err = err
	c.inflight = nil
	if err != nil {
		c.state = onFailure
	} else {
		c.state = onSuccess
	}
	c.mu.Unlock()
	close(f.done)
}

// join blocks on a flight started by another caller.
func (c *Controller) join(ctx context.Context, f *flight) (*oauth2.Token, *account.Account, error) {
	select {
	case <-f.done:
		if f.err != nil {
			return nil, nil, f.err
		}
		return f.token, f.account, nil
	case <-ctx.Done():
		return nil, nil, oidc.ErrUserCancelled().WithParent(ctx.Err()).WithDescription("abandoned while awaiting interactive round")
	}
}

// interactive runs one full interactive round: build the authorization
// URL, present it, correlate the redirect and persist the outcome. The
// store is only touched after state and nonce validation passed.
func (c *Controller) interactive(ctx context.Context, scopes []string, loginHint string) (*oauth2.Token, *account.Account, error) {
	scopes = ensureOpenID(scopes)
	state := uuid.NewString()
	nonce := uuid.NewString()

	req := &oidc.AuthRequest{
		Scopes:       oidc.NormalizeScopes(scopes),
		ResponseType: oidc.ResponseTypeIDTokenToken,
		ResponseMode: oidc.ResponseModeFragment,
		ClientID:     c.cfg.ClientID,
		RedirectURI:  c.cfg.RedirectURI,
		State:        state,
		Nonce:        nonce,
		LoginHint:    loginHint,
	}
	if loginHint == "" {
		req.Prompt = oidc.PromptSelectAccount
	}
	var codeVerifier string
	if c.pkce {
		codeVerifier = oidc.NewCodeVerifier()
		req.ResponseType = oidc.ResponseTypeCode
		req.ResponseMode = oidc.ResponseModeQuery
		req.CodeChallenge = oidc.NewSHACodeChallenge(codeVerifier)
		req.CodeChallengeMethod = oidc.CodeChallengeMethodS256
	}
	values, err := httphelper.URLEncodeParams(req, client.Encoder)
	if err != nil {
		return nil, nil, err
	}
	authURL := c.endpoints.AuthURL + "?" + values.Encode()
	logCtx(ctx, c.logger).Debug("opening interactive surface", "request", req)

	raw, err := c.authorize(ctx, authURL)
	if err != nil {
		return nil, nil, err
	}
	if redirect.Classify(raw) == redirect.KindBare {
		return nil, nil, oidc.ErrUserCancelled().WithDescription("surface closed without a response")
	}
	resp, err := redirect.Parse(raw, state)
	if err != nil {
		return nil, nil, err
	}

	var (
		token   *oauth2.Token
		idToken string
		granted = resp.Scopes
	)
	if resp.Code != "" {
		token, err = client.ExchangeCode(ctx, c, c.cfg.ClientID, c.cfg.RedirectURI, resp.Code, codeVerifier)
		if err != nil {
			return nil, nil, err
		}
		idToken = client.IDToken(token)
		if exchanged := client.GrantedScopes(token); len(exchanged) > 0 {
			granted = exchanged
		}
	} else {
		token = &oauth2.Token{
			AccessToken: resp.AccessToken,
			TokenType:   resp.TokenType,
			Expiry:      resp.Expiry(c.now()),
		}
		idToken = resp.IDToken
	}
	if len(granted) == 0 {
		granted = oidc.NormalizeScopes(scopes)
	}
	if idToken == "" {
		return nil, nil, oidc.ErrMalformedResponse().WithDescription("response carries no id_token")
	}
	claims, err := parseIDTokenClaims(idToken)
	if err != nil {
		return nil, nil, err
	}
	if claims.Nonce != "" && claims.Nonce != nonce {
		return nil, nil, oidc.ErrStateMismatch().WithDescription("id_token nonce does not match request nonce")
	}
	acct := account.Account{
		ID:       claims.AccountID(),
		Username: claims.Username(),
		Name:     claims.Name,
		TenantID: claims.TenantID,
	}
	if acct.ID == "" {
		return nil, nil, oidc.ErrMalformedResponse().WithDescription("id_token carries no subject")
	}
	entry := account.Entry{
		Scopes:       granted,
		AccessToken:  token.AccessToken,
		TokenType:    tokenTypeOrBearer(token.TokenType),
		Expiry:       token.Expiry,
		RefreshToken: token.RefreshToken,
	}
	if err := c.store.Upsert(ctx, acct, entry); err != nil {
		return nil, nil, err
	}
	return token, &acct, nil
}

// authorize presents the URL on the interactive surface, bounded by the
// configured timeout. The guard is released on expiry even when the
// surface implementation ignores its context.
func (c *Controller) authorize(ctx context.Context, rawURL string) (string, error) {
	if c.interactiveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.interactiveTimeout)
		defer cancel()
	}
	type result struct {
		raw string
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		raw, err := c.authorizer.Authorize(ctx, rawURL)
		resultCh <- result{raw, err}
	}()
	select {
	case res := <-resultCh:
		return res.raw, res.err
	case <-ctx.Done():
		return "", oidc.ErrUserCancelled().WithParent(ctx.Err()).WithDescription("interactive round abandoned")
	}
}

func (c *Controller) endSessionURL() (string, error) {
	req := &oidc.EndSessionRequest{
		ClientID:              c.cfg.ClientID,
		PostLogoutRedirectURI: c.cfg.PostLogoutRedirectURI,
	}
	values, err := httphelper.URLEncodeParams(req, client.Encoder)
	if err != nil {
		return "", err
	}
	return c.endpoints.EndSessionURL + "?" + values.Encode(), nil
}

var supportedSigAlgs = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
}

// parseIDTokenClaims reads the claims without verifying the signature:
// the token arrived over the redirect channel of this very request and
// is bound to it by state and nonce.
func parseIDTokenClaims(idToken string) (*oidc.IDTokenClaims, error) {
	jws, err := jose.ParseSigned(idToken, supportedSigAlgs)
	if err != nil {
		return nil, oidc.ErrMalformedResponse().WithParent(err).WithDescription("id_token does not parse")
	}
	claims := new(oidc.IDTokenClaims)
	if err := json.Unmarshal(jws.UnsafePayloadWithoutVerification(), claims); err != nil {
		return nil, oidc.ErrMalformedResponse().WithParent(err).WithDescription("id_token claims do not decode")
	}
	return claims, nil
}

func ensureOpenID(scopes []string) []string {
	for _, scope := range scopes {
		if scope == oidc.ScopeOpenID {
			return scopes
		}
	}
	return append([]string{oidc.ScopeOpenID}, scopes...)
}
