package logging

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"sync"
)

// scope is what a context carries for logging: the logger to write to and
// the attributes every line gets.
type scope struct {
	logger *slog.Logger
	attrs  []slog.Attr
}

type scopeKey struct{}

var fallbackLogger = sync.OnceValue(func() *slog.Logger {
	return New(os.Stderr, "info", "text")
})

func scopeOf(ctx context.Context) scope {
	if ctx == nil {
		return scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func withScope(ctx context.Context, s scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithLogger swaps the logger and keeps the attributes already on ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}

	s := scopeOf(ctx)
	s.logger = logger
	return withScope(ctx, s)
}

// WithAttrs adds attributes to every later log line. A key that is already
// present is replaced in place.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}

	s := scopeOf(ctx)
	s.attrs = mergeAttrs(s.attrs, attrs)
	return withScope(ctx, s)
}

// WithRequest tags log lines with the request id and caller of an API call.
func WithRequest(ctx context.Context, requestID string, userID uint64) context.Context {
	attrs := make([]slog.Attr, 0, 2)
	if requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}
	if userID != 0 {
		attrs = append(attrs, slog.Uint64("user_id", userID))
	}
	return WithAttrs(ctx, attrs...)
}

func Logger(ctx context.Context) *slog.Logger {
	if l := scopeOf(ctx).logger; l != nil {
		return l
	}
	return fallbackLogger()
}

// Attrs returns a copy of the attributes carried by ctx.
func Attrs(ctx context.Context) []slog.Attr {
	return slices.Clone(scopeOf(ctx).attrs)
}

func Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	write(ctx, slog.LevelDebug, msg, attrs)
}

func Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	write(ctx, slog.LevelInfo, msg, attrs)
}

func Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	write(ctx, slog.LevelWarn, msg, attrs)
}

func Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	write(ctx, slog.LevelError, msg, attrs)
}

func write(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	s := scopeOf(ctx)
	logger := s.logger
	if logger == nil {
		logger = fallbackLogger()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !logger.Enabled(ctx, level) {
		return
	}
	logger.LogAttrs(ctx, level, msg, mergeAttrs(s.attrs, attrs)...)
}

// mergeAttrs never mutates its inputs.
func mergeAttrs(base []slog.Attr, extra []slog.Attr) []slog.Attr {
	merged := slices.Clone(base)
	for _, attr := range extra {
		if attr.Key != "" {
			if i := slices.IndexFunc(merged, func(a slog.Attr) bool { return a.Key == attr.Key }); i >= 0 {
				merged[i] = attr
				continue
			}
		}
		merged = append(merged, attr)
	}
	return merged
}
