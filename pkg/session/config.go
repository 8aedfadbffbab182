package session

import (
	"github.com/caarlos0/env/v11"

	"github.com/tasklens/authcore/pkg/client"
)

// Config carries the provider and client settings of a session engine.
// Endpoints take precedence over discovery on Issuer when both are set.
type Config struct {
	Issuer                string
	ClientID              string
	RedirectURI           string
	PostLogoutRedirectURI string
	Scopes                []string
	Endpoints             client.Endpoints
}

type envConfig struct {
	Issuer                string   `env:"AUTHCORE_ISSUER"`
	ClientID              string   `env:"AUTHCORE_CLIENT_ID"`
	RedirectURI           string   `env:"AUTHCORE_REDIRECT_URI" envDefault:"http://localhost:8654/auth/callback"`
	PostLogoutRedirectURI string   `env:"AUTHCORE_POST_LOGOUT_REDIRECT_URI"`
	Scopes                []string `env:"AUTHCORE_SCOPES" envSeparator:" " envDefault:"openid profile"`
	AuthURL               string   `env:"AUTHCORE_AUTH_URL"`
	TokenURL              string   `env:"AUTHCORE_TOKEN_URL"`
	EndSessionURL         string   `env:"AUTHCORE_END_SESSION_URL"`
}

// ConfigFromEnv reads the configuration from AUTHCORE_* environment
// variables. Scopes are space separated, matching their wire format.
func ConfigFromEnv() (Config, error) {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return Config{
		Issuer:                cfg.Issuer,
		ClientID:              cfg.ClientID,
		RedirectURI:           cfg.RedirectURI,
		PostLogoutRedirectURI: cfg.PostLogoutRedirectURI,
		Scopes:                cfg.Scopes,
		Endpoints: client.Endpoints{
			AuthURL:       cfg.AuthURL,
			TokenURL:      cfg.TokenURL,
			EndSessionURL: cfg.EndSessionURL,
		},
	}, nil
}
