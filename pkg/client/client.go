// Package client implements the network calls against the identity
// provider: endpoint discovery and the token endpoint grants.
package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	httphelper "github.com/tasklens/authcore/pkg/http"
	"github.com/tasklens/authcore/pkg/oidc"
)

var Encoder = oidc.NewEncoder()

var Tracer trace.Tracer = otel.Tracer("github.com/tasklens/authcore/pkg/client")

const DiscoveryEndpoint = "/.well-known/openid-configuration"

// DiscoveryConfiguration is the subset of the provider metadata document
// this module consumes.
type DiscoveryConfiguration struct {
	Issuer                string `json:"issuer,omitempty"`
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string `json:"token_endpoint,omitempty"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
}

// Endpoints are the provider URLs the session engine talks to.
type Endpoints struct {
	AuthURL       string
	TokenURL      string
	EndSessionURL string
}

func (e Endpoints) IsZero() bool {
	return e.AuthURL == "" && e.TokenURL == ""
}

// Discover calls the discovery endpoint of the provided issuer and returns
// its endpoints. Multi-tenant authorities template the issuer value per
// tenant, so no strict issuer equality is enforced here.
func Discover(ctx context.Context, issuer string, httpClient *http.Client) (Endpoints, error) {
	ctx, span := Tracer.Start(ctx, "Discover")
	defer span.End()

	wellKnown := strings.TrimSuffix(issuer, "/") + DiscoveryEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return Endpoints{}, err
	}
	discoveryConfig := new(DiscoveryConfiguration)
	if err := httphelper.HttpRequest(httpClient, req, discoveryConfig); err != nil {
		return Endpoints{}, err
	}
	endpoints := Endpoints{
		AuthURL:       discoveryConfig.AuthorizationEndpoint,
		TokenURL:      discoveryConfig.TokenEndpoint,
		EndSessionURL: discoveryConfig.EndSessionEndpoint,
	}
	if endpoints.IsZero() {
		return Endpoints{}, oidc.ErrMalformedResponse().WithDescription("discovery document of %s has no endpoints", issuer)
	}
	return endpoints, nil
}

// TokenEndpointCaller provides the dependencies for token endpoint calls.
type TokenEndpointCaller interface {
	TokenEndpoint() string
	HttpClient() *http.Client
}

func callTokenEndpoint(ctx context.Context, request any, caller TokenEndpointCaller) (*oauth2.Token, error) {
	req, err := httphelper.FormRequest(ctx, caller.TokenEndpoint(), request, Encoder)
	if err != nil {
		return nil, err
	}
	tokenRes := new(oidc.AccessTokenResponse)
	if err := httphelper.HttpRequest(caller.HttpClient(), req, tokenRes); err != nil {
		return nil, err
	}
	token := &oauth2.Token{
		AccessToken:  tokenRes.AccessToken,
		TokenType:    tokenRes.TokenType,
		RefreshToken: tokenRes.RefreshToken,
		Expiry:       time.Now().UTC().Add(time.Duration(tokenRes.ExpiresIn) * time.Second),
	}
	extra := map[string]any{}
	if tokenRes.IDToken != "" {
		extra["id_token"] = tokenRes.IDToken
	}
	if len(tokenRes.Scope) > 0 {
		extra["scope"] = tokenRes.Scope
	}
	if len(extra) > 0 {
		token = token.WithExtra(extra)
	}
	return token, nil
}

// RefreshTokens performs a refresh grant. If it doesn't error it always
// provides a new access token; it may rotate the refresh token, in which
// case the old one must be considered invalid.
func RefreshTokens(ctx context.Context, caller TokenEndpointCaller, clientID, refreshToken string, scopes []string) (*oauth2.Token, error) {
	ctx, span := Tracer.Start(ctx, "RefreshTokens")
	defer span.End()

	request := oidc.RefreshTokenRequest{
		RefreshToken: refreshToken,
		ClientID:     clientID,
		Scopes:       oidc.SpaceDelimitedArray(scopes),
		GrantType:    oidc.GrantTypeRefreshToken,
	}
	return callTokenEndpoint(ctx, request, caller)
}

// ExchangeCode redeems an authorization code, optionally with its PKCE
// verifier, for tokens.
func ExchangeCode(ctx context.Context, caller TokenEndpointCaller, clientID, redirectURI, code, codeVerifier string) (*oauth2.Token, error) {
	ctx, span := Tracer.Start(ctx, "ExchangeCode")
	defer span.End()

	request := oidc.AccessTokenRequest{
		Code:         code,
		RedirectURI:  redirectURI,
		ClientID:     clientID,
		CodeVerifier: codeVerifier,
		GrantType:    oidc.GrantTypeCode,
	}
	return callTokenEndpoint(ctx, request, caller)
}

// IDToken returns the id_token carried in the token response, if any.
func IDToken(token *oauth2.Token) string {
	idToken, _ := token.Extra("id_token").(string)
	return idToken
}

// GrantedScopes returns the scope set granted in the token response,
// or nil when the provider did not echo one.
func GrantedScopes(token *oauth2.Token) oidc.SpaceDelimitedArray {
	switch scope := token.Extra("scope").(type) {
	case oidc.SpaceDelimitedArray:
		return scope
	case string:
		var scopes oidc.SpaceDelimitedArray
		_ = scopes.UnmarshalText([]byte(scope))
		return scopes
	}
	return nil
}
