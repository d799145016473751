// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context and carries the
// caller-supplied or generated request ID through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen caps caller-supplied IDs so they cannot bloat log lines.
const maxRequestIDLen = 64

// Init creates a JSON logger on stdout for the given service and installs it
// as the slog default.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Unknown strings fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID stores a request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from context. Returns "" if not set.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateRequestID builds an ID of the form "{prefix}-{unixNano}".
func GenerateRequestID(prefix string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, ts.UnixNano())
}

// RequestIDFromHeader returns the X-Request-ID of h when it is a usable
// token (1-64 characters of [A-Za-z0-9._-]); otherwise it generates one
// from method and now.
func RequestIDFromHeader(h http.Header, method string, now time.Time) string {
	id := strings.TrimSpace(h.Get(RequestIDHeader))
	if validRequestID(id) {
		return id
	}
	return GenerateRequestID(method, now)
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// Attr returns the request ID of ctx as a typed slog attribute. The second
// result is false when ctx carries no ID.
func Attr(ctx context.Context) (slog.Attr, bool) {
	id := RequestID(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return slog.String("request_id", id), true
}

// LogAttrs returns the request ID attribute of ctx in the variadic form
// slog's logging methods accept: slog.Info("msg", logger.LogAttrs(ctx)...)
func LogAttrs(ctx context.Context) []any {
	a, ok := Attr(ctx)
	if !ok {
		return nil
	}
	return []any{a}
}
