package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
	"github.com/mcdev12/buzzer/go/internal/buzzer/gateway"
	"github.com/mcdev12/buzzer/go/internal/buzzer/hardware"
	"github.com/mcdev12/buzzer/go/internal/buzzer/relay"
	"github.com/mcdev12/buzzer/go/internal/config"
)

type Services struct {
	Arbiter *buzzer.Arbiter
	Devices *hardware.Devices
	Gateway *gateway.Service
	Relay   *relay.JetStreamPublisher
	Sources []hardware.Source

	nc *nats.Conn
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// Wire up: hardware → arbiter → listeners (gateway, relay) → inputs

	devices, err := hardware.Open(cfg.Hardware())
	if err != nil {
		return nil, fmt.Errorf("failed to open hardware: %w", err)
	}
	s := &Services{Devices: devices}

	arbiter, err := buzzer.NewArbiter(cfg.Roster(), devices.Sink)
	if err != nil {
		_ = devices.Close()
		return nil, fmt.Errorf("failed to create arbiter: %w", err)
	}
	s.Arbiter = arbiter

	connCfg := gateway.DefaultConnectionConfig()
	connCfg.AllowSimulatedPress = cfg.AllowSimulatedPress
	s.Gateway = gateway.NewService(arbiter, gateway.Config{
		ConnectionConfig:  connCfg,
		ResetPolicy:       cfg.ResetPolicyConfig(),
		HeartbeatInterval: cfg.HeartbeatInterval,
		Clock:             clockwork.NewRealClock(),
	})
	arbiter.AddListener(s.Gateway.Listener())

	s.Sources = append(s.Sources, devices.Source)

	if cfg.NATSURL != "" {
		if err := s.setupRelay(ctx, cfg); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	for _, src := range s.Sources {
		hardware.Bind(src, arbiter.Players(), arbiter)
	}

	if devices.Simulated != nil {
		go func() {
			if err := devices.Simulated.Feed(os.Stdin); err != nil {
				log.Debug().Err(err).Msg("simulated input closed")
			}
		}()
	}

	return s, nil
}

func (s *Services) setupRelay(ctx context.Context, cfg config.Config) error {
	relayCfg := relay.DefaultConfig()
	relayCfg.URL = cfg.NATSURL
	relayCfg.SubjectPrefix = cfg.NATSSubjectPrefix

	nc, err := relay.Connect(relayCfg)
	if err != nil {
		return err
	}
	s.nc = nc

	pub, err := relay.NewJetStreamPublisher(ctx, nc, relayCfg)
	if err != nil {
		return fmt.Errorf("failed to create event relay: %w", err)
	}
	s.Relay = pub
	s.Arbiter.AddListener(pub)

	s.Sources = append(s.Sources, relay.NewPressSubscriber(nc, relayCfg.SubjectPrefix))
	return nil
}

// Close drains NATS and turns every indicator off.
func (s *Services) Close() error {
	var errs []error
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain NATS: %w", err))
		}
	}
	if s.Devices != nil {
		if err := s.Devices.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
