package hardware

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
)

// PressHandler is invoked once per debounced press.
type PressHandler func(player buzzer.PlayerID)

// Source delivers button presses. Handlers are registered per player
// before Run, and Run blocks until ctx is cancelled.
type Source interface {
	OnPress(player buzzer.PlayerID, handler PressHandler)
	Run(ctx context.Context) error
}

// Submitter is the arbiter entry point presses are forwarded to.
type Submitter interface {
	SubmitBuzz(player buzzer.PlayerID) (bool, error)
}

// Bind registers one parameterized handler per player on src, each
// forwarding to arbiter.
func Bind(src Source, players []buzzer.Player, arbiter Submitter) {
	handler := func(player buzzer.PlayerID) {
		if _, err := arbiter.SubmitBuzz(player); err != nil {
			if errors.Is(err, buzzer.ErrInvalidPlayerID) {
				log.Warn().Err(err).Int("player", int(player)).Msg("press from unmapped input")
				return
			}
			log.Error().Err(err).Int("player", int(player)).Msg("failed to submit buzz")
		}
	}
	for _, p := range players {
		src.OnPress(p.ID, handler)
	}
}

// handlerSet is the per-player handler registry shared by sources.
type handlerSet map[buzzer.PlayerID][]PressHandler

func (hs handlerSet) dispatch(player buzzer.PlayerID) {
	for _, h := range hs[player] {
		h(player)
	}
}
