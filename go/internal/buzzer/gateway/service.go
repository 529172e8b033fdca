package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
)

// Service is the observer gateway: WebSocket fan-out, heartbeat and the
// HTTP control surface.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	heartbeat         *Heartbeat
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig  ConnectionConfig
	ResetPolicy       ResetPolicy
	HeartbeatInterval time.Duration
	Clock             clockwork.Clock
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig:  DefaultConnectionConfig(),
		ResetPolicy:       OpenResetPolicy(),
		HeartbeatInterval: 5 * time.Second,
		Clock:             clockwork.NewRealClock(),
	}
}

// NewService creates the gateway. The caller registers Listener() with the
// arbiter before any input starts.
func NewService(contest Contest, config Config) *Service {
	cm := NewConnectionManager(contest, config.ResetPolicy, config.ConnectionConfig)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
		stateHandler:      NewStateHandler(contest, cm, config.ConnectionConfig.AllowSimulatedPress),
		heartbeat:         NewHeartbeat(cm, config.HeartbeatInterval, config.Clock),
	}
}

// Listener is the hook the arbiter publishes transitions to.
func (s *Service) Listener() buzzer.Listener {
	return s.connectionManager
}

// Start runs the connection manager and heartbeat until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting buzzer gateway service")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.connectionManager.Start(ctx)
		return nil
	})
	g.Go(func() error {
		return s.heartbeat.Run(ctx)
	})

	err := g.Wait()
	log.Info().Msg("buzzer gateway service stopped")
	return err
}

// RegisterRoutes registers the WebSocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("buzzer gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
