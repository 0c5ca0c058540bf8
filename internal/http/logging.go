package http

import (
	"context"
	"log/slog"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger prefers the request-scoped logger installed by RequestLogger.
// Outside that middleware it falls back to base and tags the request id when
// one is present.
func handlerLogger(ctx context.Context, base *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	pairs := make([]any, 0, len(attrs)+6)
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = defaultLogger(base)
		if id, ok := RequestIDFromContext(ctx); ok {
			pairs = append(pairs, "request_id", id)
		}
	}

	pairs = append(pairs, "handler", handlerName)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	pairs = append(pairs, attrs...)
	return logger.With(pairs...)
}
