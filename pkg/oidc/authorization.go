package oidc

import (
	"log/slog"
	"time"
)

const (
	// ScopeOpenID defines the scope `openid`.
	// Requests asking for an id_token MUST contain it.
	ScopeOpenID = "openid"

	// ScopeProfile defines the scope `profile`, requesting access to the
	// end user's default profile claims.
	ScopeProfile = "profile"

	// ScopeOfflineAccess defines the scope `offline_access`, requesting a
	// refresh token usable without the user being present.
	ScopeOfflineAccess = "offline_access"

	// ResponseTypeCode for the Authorization Code Flow.
	ResponseTypeCode ResponseType = "code"

	// ResponseTypeIDTokenToken for the Implicit Flow returning the id and
	// access tokens directly on the redirect fragment.
	ResponseTypeIDTokenToken ResponseType = "id_token token"

	// ResponseModeFragment instructs the provider to return response
	// parameters on the URL fragment.
	ResponseModeFragment ResponseMode = "fragment"

	// ResponseModeQuery instructs the provider to return response
	// parameters on the query string.
	ResponseModeQuery ResponseMode = "query"

	// PromptSelectAccount directs the provider to show its account picker.
	PromptSelectAccount Prompt = "select_account"

	// PromptNone disallows the provider to display any user interface.
	PromptNone Prompt = "none"

	GrantTypeCode         GrantType = "authorization_code"
	GrantTypeRefreshToken GrantType = "refresh_token"

	// BearerToken defines the token_type `Bearer` of a successful response.
	BearerToken = "Bearer"
)

type (
	ResponseType string
	ResponseMode string
	Prompt       string
	GrantType    string
)

// AuthRequest is the parameter block of a provider authorization URL.
// One request corresponds to exactly one interactive presentation and is
// discarded once its response was consumed or the attempt was abandoned.
type AuthRequest struct {
	Scopes       SpaceDelimitedArray `schema:"scope"`
	ResponseType ResponseType        `schema:"response_type"`
	ResponseMode ResponseMode        `schema:"response_mode,omitempty"`
	ClientID     string              `schema:"client_id"`
	RedirectURI  string              `schema:"redirect_uri"`

	State string `schema:"state"`
	Nonce string `schema:"nonce,omitempty"`

	Prompt     Prompt  `schema:"prompt,omitempty"`
	LoginHint  string  `schema:"login_hint,omitempty"`
	DomainHint string  `schema:"domain_hint,omitempty"`
	UILocales  Locales `schema:"ui_locales,omitempty"`

	CodeChallenge       string              `schema:"code_challenge,omitempty"`
	CodeChallengeMethod CodeChallengeMethod `schema:"code_challenge_method,omitempty"`
}

func (a *AuthRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("scopes", a.Scopes),
		slog.String("response_type", string(a.ResponseType)),
		slog.String("client_id", a.ClientID),
		slog.String("redirect_uri", a.RedirectURI),
	)
}

// AuthResponse is the success payload of a redirect response. Depending on
// the response type it carries tokens (implicit) or an authorization code.
type AuthResponse struct {
	AccessToken string              `schema:"access_token"`
	TokenType   string              `schema:"token_type"`
	IDToken     string              `schema:"id_token"`
	ExpiresIn   uint64              `schema:"expires_in"`
	Scopes      SpaceDelimitedArray `schema:"scope"`
	Code        string              `schema:"code"`
	State       string              `schema:"state"`
}

// Expiry computes the absolute expiry of the returned access token.
func (a *AuthResponse) Expiry(now time.Time) time.Time {
	return now.UTC().Add(time.Duration(a.ExpiresIn) * time.Second)
}

// ErrorResponse is the error payload of a redirect response.
type ErrorResponse struct {
	Error       string `schema:"error"`
	Description string `schema:"error_description"`
	State       string `schema:"state"`
}

// AccessTokenRequest is the token endpoint request of the code flow.
type AccessTokenRequest struct {
	Code         string    `schema:"code"`
	RedirectURI  string    `schema:"redirect_uri"`
	ClientID     string    `schema:"client_id"`
	CodeVerifier string    `schema:"code_verifier,omitempty"`
	GrantType    GrantType `schema:"grant_type"`
}

// RefreshTokenRequest is the token endpoint request of the refresh grant.
type RefreshTokenRequest struct {
	RefreshToken string              `schema:"refresh_token"`
	ClientID     string              `schema:"client_id"`
	Scopes       SpaceDelimitedArray `schema:"scope,omitempty"`
	GrantType    GrantType           `schema:"grant_type"`
}

// AccessTokenResponse is the JSON body returned by the token endpoint.
type AccessTokenResponse struct {
	AccessToken  string              `json:"access_token,omitempty"`
	TokenType    string              `json:"token_type,omitempty"`
	RefreshToken string              `json:"refresh_token,omitempty"`
	ExpiresIn    uint64              `json:"expires_in,omitempty"`
	IDToken      string              `json:"id_token,omitempty"`
	Scope        SpaceDelimitedArray `json:"scope,omitempty"`
}

// EndSessionRequest is the parameter block of a provider logout URL.
type EndSessionRequest struct {
	IDTokenHint           string `schema:"id_token_hint,omitempty"`
	ClientID              string `schema:"client_id,omitempty"`
	PostLogoutRedirectURI string `schema:"post_logout_redirect_uri,omitempty"`
	State                 string `schema:"state,omitempty"`
	LogoutHint            string `schema:"logout_hint,omitempty"`
}

// IDTokenClaims are the claims this module reads from an id_token to build
// the account record. Signature verification is up to the caller.
type IDTokenClaims struct {
	Issuer            string `json:"iss,omitempty"`
	Subject           string `json:"sub,omitempty"`
	ObjectID          string `json:"oid,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	TenantID          string `json:"tid,omitempty"`
	Nonce             string `json:"nonce,omitempty"`
}

// AccountID returns the stable identifier for the user: the directory
// object id when present, the subject otherwise.
func (c *IDTokenClaims) AccountID() string {
	if c.ObjectID != "" {
		return c.ObjectID
	}
	return c.Subject
}

// Username returns the human readable login name of the user.
func (c *IDTokenClaims) Username() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Email
}
