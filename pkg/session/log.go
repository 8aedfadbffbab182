package session

import (
	"context"
	"log/slog"

	"github.com/zitadel/logging"
)

// logCtx resolves the logger for an operation: the one travelling in the
// context wins over the controller's own, which wins over the default.
func logCtx(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := logging.FromContext(ctx); ok {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
