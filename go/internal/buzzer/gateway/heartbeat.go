package gateway

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Broadcaster accepts messages for every observer.
type Broadcaster interface {
	Broadcast(msg *Message)
}

// Heartbeat publishes a counter to observers on a fixed interval.
// It never touches the contest.
type Heartbeat struct {
	target   Broadcaster
	interval time.Duration
	clock    clockwork.Clock
	count    uint64
}

// NewHeartbeat creates a heartbeat. A non-positive interval disables it.
func NewHeartbeat(target Broadcaster, interval time.Duration, clock clockwork.Clock) *Heartbeat {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Heartbeat{
		target:   target,
		interval: interval,
		clock:    clock,
	}
}

// Run ticks until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) error {
	if h.interval <= 0 {
		log.Info().Msg("heartbeat disabled")
		return nil
	}

	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", h.interval).Msg("heartbeat started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			h.count++
			now := h.clock.Now()
			msg, err := newMessage(MessageTypeHeartbeat, now, HeartbeatPayload{
				Count:      h.count,
				ServerTime: now,
			})
			if err != nil {
				log.Error().Err(err).Msg("failed to build heartbeat")
				continue
			}
			h.target.Broadcast(msg)
		}
	}
}
