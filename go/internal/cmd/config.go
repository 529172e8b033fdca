package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/buzzer/go/internal/config"
)

func loadConfig() (config.Config, error) {
	return config.NewConfigFromEnv()
}

func setupLogging(cfg config.Config) {
	if cfg.LogFormat != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// logBanner prints the wiring once at startup.
func logBanner(cfg config.Config) {
	hc := cfg.Hardware()
	log.Info().
		Ints("button_pins", hc.ButtonPins).
		Ints("control_pins", hc.ControlPins).
		Str("driver", hc.Driver).
		Int("players", len(cfg.Players)).
		Str("reset_policy", cfg.ResetPolicy).
		Bool("nats_relay", cfg.NATSURL != "").
		Msg("buzzer configured")
	log.Info().
		Int("port", cfg.Port).
		Msgf("serving HTTP, open http://localhost:%d in your browser", cfg.Port)
}
