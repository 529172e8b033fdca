package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/buzzer/go/internal/config"
)

const shutdownTimeout = 10 * time.Second

func setupServer(cfg config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	services.Gateway.RegisterRoutes(mux)
	setupStatic(mux, cfg.StaticDir)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// setupStatic serves the browser UI at / when a directory is configured.
func setupStatic(mux *http.ServeMux, dir string) {
	if dir == "" {
		return
	}
	mux.Handle("GET /", http.FileServer(http.Dir(dir)))
	log.Info().Str("static_dir", dir).Msg("serving static UI")
}

// run starts every long-lived task and blocks until ctx is cancelled or
// one of them fails.
func run(ctx context.Context, server *http.Server, services *Services) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return services.Gateway.Start(ctx)
	})

	if services.Relay != nil {
		g.Go(func() error {
			return services.Relay.Run(ctx)
		})
	}

	for _, src := range services.Sources {
		g.Go(func() error {
			if err := src.Run(ctx); err != nil {
				return fmt.Errorf("input source failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}
