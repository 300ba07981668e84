// Package logging builds the process [log/slog] logger from the loaded
// configuration and scopes it to build targets.
//
// Every record about one target carries a "vendor" attribute, so the
// interleaved output of concurrent targets can be told apart with a
// single filter.
package logging

import (
	"context"
	"io"
	"log/slog"

	"github.com/hupe1980/extdev/internal/config"
	"github.com/hupe1980/extdev/internal/target"
)

// VendorKey is the attribute naming the target browser of a record.
const VendorKey = "vendor"

type ctxKey struct{}

// Setup creates the logger described by cfg, writing to w, and installs
// it as the process-wide default.
func Setup(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := slog.New(NewHandler(cfg, w))
	slog.SetDefault(logger)

	return logger
}

// NewHandler returns a text or JSON handler for cfg. Quiet mode raises the
// level to error.
func NewHandler(cfg *config.Config, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.EffectiveLogLevel())}

	if cfg.LogFormat == config.LogFormatJSON {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

// ParseLevel converts a configured level name to slog.Level. Unknown
// names map to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ForVendor scopes logger to records about v. A nil logger scopes the
// process default.
func ForVendor(logger *slog.Logger, v target.Vendor) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}

	return logger.With(slog.String(VendorKey, v.String()))
}

// NewContext returns a child context carrying logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts a logger from ctx, falling back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}

	return slog.Default()
}
