// Package logging installs the process wide slog handler: text on stderr,
// plus OpenTelemetry export and an append blob sink when configured.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"despensa/internal/config"
)

// Setup builds the default logger from cfg and returns a shutdown func that
// flushes every sink. The returned func is safe to call when Setup failed
// halfway.
func Setup(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	return setup(ctx, cfg, os.Stderr)
}

func setup(ctx context.Context, cfg *config.Config, stderr io.Writer) (func(context.Context) error, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Telemetry.Level)); err != nil {
		return noop, fmt.Errorf("invalid log level %q: %w", cfg.Telemetry.Level, err)
	}

	handlers := []slog.Handler{slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})}
	var closers []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i](ctx))
		}
		return errors.Join(errs...)
	}

	if cfg.Telemetry.Enabled() {
		h, closeOTel, err := newOTel(ctx, cfg.Telemetry)
		if err != nil {
			return shutdown, fmt.Errorf("failed to set up telemetry: %w", err)
		}
		handlers = append(handlers, h)
		closers = append(closers, closeOTel)
	}

	if cfg.Telemetry.LogToBlob {
		sink, err := NewBlobSink(ctx, BlobSinkConfig{
			AccountName: cfg.Storage.AccountName,
			AccountKey:  cfg.Storage.AccountKey,
			Container:   cfg.Storage.Container,
			Level:       level,
		})
		if err != nil {
			return shutdown, fmt.Errorf("failed to set up blob log sink: %w", err)
		}
		handlers = append(handlers, sink)
		closers = append(closers, func(context.Context) error { return sink.Close() })
	}

	slog.SetDefault(slog.New(fanout(handlers)))
	return shutdown, nil
}

func noop(context.Context) error { return nil }

// fanout hands every record to each handler that wants it.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		errs = append(errs, h.Handle(ctx, r.Clone()))
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
