package buzzer

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the subset of clockwork.Clock the arbiter needs.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
}

// Arbiter latches exactly one winner per arming cycle.
// All state-mutating calls pass through mu, which is the arbitration boundary.
type Arbiter struct {
	mu        sync.Mutex
	players   []Player
	state     State
	sink      OutputSink
	listeners []Listener
	clock     Clock
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithClock overrides the clock used to timestamp transitions.
func WithClock(c Clock) Option {
	return func(a *Arbiter) { a.clock = c }
}

// NewArbiter creates an armed arbiter for the given roster.
func NewArbiter(players []Player, sink OutputSink, opts ...Option) (*Arbiter, error) {
	if len(players) == 0 {
		return nil, errors.New("arbiter needs at least one player")
	}
	if sink == nil {
		return nil, errors.New("arbiter needs an output sink")
	}

	roster := make([]Player, len(players))
	for i, p := range players {
		if p.ID != PlayerID(i) {
			return nil, invalidPlayer(p.ID, len(players))
		}
		roster[i] = p
	}

	a := &Arbiter{
		players: roster,
		sink:    sink,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// AddListener registers a consumer of state-change events.
// Listeners are invoked in registration order.
func (a *Arbiter) AddListener(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// Players returns a copy of the roster.
func (a *Arbiter) Players() []Player {
	out := make([]Player, len(a.players))
	copy(out, a.players)
	return out
}

// CurrentState returns a snapshot of the contest state.
func (a *Arbiter) CurrentState() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SubmitBuzz offers a press from player. It reports whether this press won.
// Presses that arrive while locked are ignored and return (false, nil).
func (a *Arbiter) SubmitBuzz(player PlayerID) (bool, error) {
	if player < 0 || int(player) >= len(a.players) {
		log.Warn().Int("player", int(player)).Msg("rejected buzz from unknown player")
		return false, invalidPlayer(player, len(a.players))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.Locked {
		winner, _ := a.state.WinnerID()
		log.Info().
			Int("player", int(player)).
			Str("player_name", a.players[player].Name).
			Int("winner", int(winner)).
			Str("winner_name", a.players[winner].Name).
			Msg("ignored buzz, contest already locked")
		return false, nil
	}

	now := a.clock.Now()
	winner := player
	a.state = State{
		Locked:   true,
		Winner:   &winner,
		LockedAt: &now,
		Version:  a.state.Version + 1,
	}

	if err := a.sink.SetActive(player); err != nil {
		log.Error().Err(err).Int("player", int(player)).Msg("failed to activate indicator")
	}

	log.Info().
		Int("player", int(player)).
		Str("player_name", a.players[player].Name).
		Uint64("version", a.state.Version).
		Msg("buzz admitted, contest locked")

	a.emit(Event{
		ID:     uuid.New(),
		Kind:   EventBuzzIn,
		Winner: player,
		State:  a.state,
		At:     now,
	})
	return true, nil
}

// Reset re-arms the contest and deactivates every indicator.
// It always emits a reset event, even when already armed.
func (a *Arbiter) Reset() Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	previous, wasLocked := a.state.WinnerID()
	a.state = State{Version: a.state.Version + 1}

	if err := a.sink.DeactivateAll(); err != nil {
		log.Error().Err(err).Msg("failed to deactivate indicators")
	}

	evt := Event{
		ID:    uuid.New(),
		Kind:  EventReset,
		State: a.state,
		At:    a.clock.Now(),
	}

	ev := log.Info().Uint64("version", a.state.Version).Bool("was_locked", wasLocked)
	if wasLocked {
		ev = ev.Int("previous_winner", int(previous))
	}
	ev.Msg("contest reset, ready for question")

	a.emit(evt)
	return evt
}

// emit must be called with mu held.
func (a *Arbiter) emit(evt Event) {
	for _, l := range a.listeners {
		l.Publish(evt)
	}
}
