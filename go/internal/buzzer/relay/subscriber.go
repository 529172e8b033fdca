package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
	"github.com/mcdev12/buzzer/go/internal/buzzer/hardware"
)

// PressSubscriber is an input source fed by core NATS messages on
// <prefix>.press.<player>. The message body is ignored.
type PressSubscriber struct {
	nc     *nats.Conn
	prefix string

	mu       sync.Mutex
	handlers map[buzzer.PlayerID][]hardware.PressHandler
}

func NewPressSubscriber(nc *nats.Conn, prefix string) *PressSubscriber {
	return &PressSubscriber{
		nc:       nc,
		prefix:   prefix,
		handlers: make(map[buzzer.PlayerID][]hardware.PressHandler),
	}
}

func (s *PressSubscriber) OnPress(player buzzer.PlayerID, handler hardware.PressHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[player] = append(s.handlers[player], handler)
}

// Run subscribes and blocks until ctx is cancelled.
func (s *PressSubscriber) Run(ctx context.Context) error {
	subject := PressWildcard(s.prefix)
	sub, err := s.nc.Subscribe(subject, s.handleMsg)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	log.Info().Str("subject", subject).Msg("listening for remote presses")

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		log.Debug().Err(err).Str("subject", subject).Msg("unsubscribe failed")
	}
	return nil
}

func (s *PressSubscriber) handleMsg(msg *nats.Msg) {
	player, err := ParsePressSubject(s.prefix, msg.Subject)
	if err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("ignoring remote press")
		return
	}

	s.mu.Lock()
	hs := s.handlers[player]
	s.mu.Unlock()

	if len(hs) == 0 {
		log.Warn().Int("player", int(player)).Msg("remote press for unbound player")
		return
	}
	log.Debug().Int("player", int(player)).Msg("remote press")
	for _, h := range hs {
		h(player)
	}
}

var _ hardware.Source = (*PressSubscriber)(nil)
