package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"despensa/internal/cache"
	"despensa/internal/registry"
)

// readyOnce reports ready once every check has passed, and from then on
// without running them again.
type readyOnce struct {
	done   atomic.Bool
	checks []Readyable
}

type Readyable interface {
	Ready(context.Context) error
}

func (r *readyOnce) Add(f ...Readyable) {
	r.checks = append(r.checks, f...)
}

func (r *readyOnce) Ready(ctx context.Context) error {
	if r.done.Load() {
		return nil
	}
	for _, check := range r.checks {
		if err := check.Ready(ctx); err != nil {
			return err
		}
	}
	r.done.Store(true)
	return nil
}

func (r *readyOnce) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if err := r.Ready(req.Context()); err != nil {
		http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.ErrorContext(req.Context(), "failed to write readiness response", "error", err)
	}
}

// storageCheck checks the document store the registry persists to.
type storageCheck struct {
	reg *registry.Registry
}

func (s storageCheck) Ready(ctx context.Context) error {
	_, err := s.reg.Store().Exists(ctx, registry.StorageKey)
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}
