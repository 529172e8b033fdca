package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start services")
	}

	server := setupServer(cfg, services)
	logBanner(cfg)

	runErr := run(ctx, server, services)

	if err := services.Close(); err != nil {
		log.Error().Err(err).Msg("failed to release hardware")
	}
	if runErr != nil {
		log.Fatal().Err(runErr).Msg("buzzer stopped with error")
	}
	log.Info().Msg("buzzer shutdown complete")
}
