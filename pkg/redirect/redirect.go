// Package redirect turns raw redirect URLs captured by an interactive
// surface into validated, typed authorization responses.
package redirect

import (
	"net/url"
	"strings"

	"github.com/tasklens/authcore/pkg/oidc"
)

// Kind classifies a raw redirect URL by where its parameter block lives.
type Kind int

const (
	// KindFragment is a login/token response: parameters on the fragment.
	KindFragment Kind = iota + 1
	// KindQuery is a parameter block on the query string, either a
	// provider error or an authorization code response.
	KindQuery
	// KindBare carries no parameters at all: a logout-style navigation,
	// or a surface that was closed before the provider redirected.
	KindBare
)

// Classify inspects the raw URL without validating it. The fragment
// delimiter wins over query parameters, matching how providers deliver
// implicit flow responses.
func Classify(rawURL string) Kind {
	if strings.Contains(rawURL, "#") {
		return KindFragment
	}
	if u, err := url.Parse(rawURL); err == nil && u.RawQuery != "" {
		return KindQuery
	}
	return KindBare
}

var decoder = oidc.NewDecoder()

// Parse splits the raw redirect URL into its parameter block and decodes it.
// The echoed state must equal expectedState; a mismatching response is
// discarded and must never reach the account store, this is the primary
// cross-request/CSRF integrity check.
func Parse(rawURL, expectedState string) (*oidc.AuthResponse, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, oidc.ErrMalformedResponse().WithParent(err).WithDescription("redirect url does not parse")
	}

	var params url.Values
	switch Classify(rawURL) {
	case KindFragment:
		params, err = url.ParseQuery(u.EscapedFragment())
		if err != nil {
			return nil, oidc.ErrMalformedResponse().WithParent(err).WithDescription("fragment does not parse")
		}
	case KindQuery:
		params = u.Query()
	default:
		return nil, oidc.ErrMalformedResponse().WithDescription("no parameter block in redirect url")
	}
	if len(params) == 0 {
		return nil, oidc.ErrMalformedResponse().WithDescription("empty parameter block in redirect url")
	}

	// The state check runs before the error mapping: a response with a
	// foreign state may belong to another request entirely and must not
	// surface that request's provider error to this caller.
	if state := params.Get("state"); state != expectedState {
		return nil, oidc.ErrStateMismatch().WithState(state).WithDescription("response state does not match request state")
	}

	if params.Get("error") != "" {
		errResp := new(oidc.ErrorResponse)
		if err := decoder.Decode(errResp, params); err != nil {
			return nil, oidc.ErrMalformedResponse().WithParent(err).WithDescription("error payload does not decode")
		}
		return nil, oidc.ErrProvider(errResp.Error, errResp.Description).WithState(errResp.State)
	}

	resp := new(oidc.AuthResponse)
	if err := decoder.Decode(resp, params); err != nil {
		return nil, oidc.ErrMalformedResponse().WithParent(err).WithDescription("success payload does not decode")
	}
	if resp.AccessToken == "" && resp.IDToken == "" && resp.Code == "" {
		return nil, oidc.ErrMalformedResponse().WithDescription("response carries neither tokens nor code")
	}
	if resp.TokenType == "" && resp.AccessToken != "" {
		resp.TokenType = oidc.BearerToken
	}
	return resp, nil
}
