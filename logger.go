package octoterra

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/octoterra/region"
)

// Logger wraps slog.Logger with octoterra-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithRegion adds the region identifier to the logger.
func (l *Logger) WithRegion(key region.Key) *Logger {
	return &Logger{
		Logger: l.Logger.With("region", key.String()),
	}
}

// WithChunk adds a chunk index field to the logger.
func (l *Logger) WithChunk(index int) *Logger {
	return &Logger{
		Logger: l.Logger.With("chunk", index),
	}
}

// LogRegionLoad logs a region load.
func (l *Logger) LogRegionLoad(ctx context.Context, key region.Key, bytes, present int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "region load failed",
			"region", key.String(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "region loaded",
			"region", key.String(),
			"bytes", bytes,
			"chunks", present,
			"duration", duration,
		)
	}
}

// LogRegionSave logs a region save.
func (l *Logger) LogRegionSave(ctx context.Context, key region.Key, blob string, bytes int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "region save failed",
			"region", key.String(),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "region saved",
			"region", key.String(),
			"blob", blob,
			"bytes", bytes,
			"duration", duration,
		)
	}
}

// LogRegionCorrupt logs a stored region that failed verification.
func (l *Logger) LogRegionCorrupt(ctx context.Context, key region.Key, err error) {
	l.ErrorContext(ctx, "region corrupt, reading as air",
		"region", key.String(),
		"error", err,
	)
}

// LogChunkUpdate logs a chunk replacement.
func (l *Logger) LogChunkUpdate(ctx context.Context, key region.Key, chunk, bytes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "chunk update failed",
			"region", key.String(),
			"chunk", chunk,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "chunk updated",
			"region", key.String(),
			"chunk", chunk,
			"bytes", bytes,
		)
	}
}

// LogMesh logs a chunk mesh extraction.
func (l *Logger) LogMesh(ctx context.Context, key region.Key, chunk, vertices, triangles int, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "mesh extraction failed",
			"region", key.String(),
			"chunk", chunk,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "mesh extracted",
			"region", key.String(),
			"chunk", chunk,
			"vertices", vertices,
			"triangles", triangles,
			"duration", duration,
		)
	}
}

// LogFlush logs a flush of all dirty regions.
func (l *Logger) LogFlush(ctx context.Context, saved, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "flush completed with failures",
			"saved", saved,
			"failed", failed,
		)
	} else {
		l.InfoContext(ctx, "flush completed",
			"saved", saved,
		)
	}
}
