package main

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/zitadel/logging"

	"github.com/tasklens/authcore/pkg/account"
	"github.com/tasklens/authcore/pkg/authorizer"
	"github.com/tasklens/authcore/pkg/session"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

// These scopes cover the task API this client talks to.
var defaultScopes = []string{"Tasks.ReadWrite", "User.Read", "openid", "profile", "offline_access"}

func main() {
	ctx := logging.ToContext(context.Background(), logger)

	cfg, err := session.ConfigFromEnv()
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	if os.Getenv("AUTHCORE_SCOPES") == "" {
		cfg.Scopes = defaultScopes
	}

	store, err := openStore(cfg.ClientID)
	if err != nil {
		logger.Error("account store", "error", err)
		os.Exit(1)
	}

	browser, err := authorizer.NewBrowser(cfg.RedirectURI, authorizer.WithLogger(logger))
	if err != nil {
		logger.Error("browser surface", "error", err)
		os.Exit(1)
	}

	controller, err := session.New(ctx, cfg, store, browser,
		session.WithLogger(logger),
		session.WithInteractiveTimeout(5*time.Minute),
	)
	if err != nil {
		logger.Error("session engine", "error", err)
		os.Exit(1)
	}

	acct, err := controller.ActiveAccount(ctx)
	if err != nil {
		logger.Error("active account", "error", err)
		os.Exit(1)
	}
	if acct == nil {
		acct, err = controller.Login(ctx, "")
		if err != nil {
			logger.Error("login", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("signed in", "account", acct.ID, "username", acct.Username)

	token, err := controller.GetAccessToken(ctx, cfg.Scopes)
	if err != nil {
		logger.Error("token acquisition", "error", err)
		os.Exit(1)
	}
	logger.Info("access token acquired", "length", len(token))

	if len(os.Args) > 1 && os.Args[1] == "logout" {
		if err := controller.Logout(ctx); err != nil {
			logger.Error("logout", "error", err)
			os.Exit(1)
		}
	}
}

// openStore seals the token cache under the user's config directory.
// The keys only guard against casual reads of the cache file, so they
// are derived from the client id rather than managed secrets.
func openStore(clientID string) (account.Store, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return account.NewMemStore(), nil
	}
	hashKey := sha256.Sum256([]byte("authcore-hash:" + clientID))
	blockKey := sha256.Sum256([]byte("authcore-block:" + clientID))
	path := filepath.Join(configDir, "authcore", "session.bin")
	return account.NewFileStore(path, clientID, hashKey[:], blockKey[:])
}
