package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"despensa/internal/config"
	"despensa/internal/registry"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func runServer(cfg *config.Config, addr string) error {
	ctx := context.Background()
	reg, err := newRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           newMux(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the server
	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("Serving Despensa", "address", addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-shutdown:
		slog.Info("Shutdown signal received", "signal", sig)
		return gracefulShutdown(server)
	}
}

func newMux(reg *registry.Registry) http.Handler {
	mux := http.NewServeMux()
	registry.NewHandler(reg).Register(mux)

	ro := &readyOnce{}
	ro.Add(storageCheck{reg})
	mux.Handle("/ready", ro)
	mux.Handle("/metrics", promhttp.Handler())

	return WithMiddleware(mux)
}

func gracefulShutdown(svr *http.Server) error {
	// kubernetes gives 30 seconds
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := svr.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown error", "error", err)
		if closeErr := svr.Close(); closeErr != nil {
			slog.Error("Server close error", "error", closeErr)
		}
		return err
	}
	return nil
}
