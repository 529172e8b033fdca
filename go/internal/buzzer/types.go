package buzzer

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidPlayerID = errors.New("invalid player id")

// PlayerID is the zero-based index of one button/indicator pair.
type PlayerID int

// Player is one entry of the fixed roster loaded at startup.
type Player struct {
	ID   PlayerID `json:"id"`
	Name string   `json:"name"`
}

// State is the contest state. Winner is nil iff Locked is false.
type State struct {
	Locked   bool       `json:"locked"`
	Winner   *PlayerID  `json:"winner"`
	LockedAt *time.Time `json:"locked_at,omitempty"`
	Version  uint64     `json:"version"`
}

// WinnerID returns the admitted winner, if any.
func (s State) WinnerID() (PlayerID, bool) {
	if s.Winner == nil {
		return 0, false
	}
	return *s.Winner, true
}

type EventKind string

const (
	EventBuzzIn EventKind = "buzz_in"
	EventReset  EventKind = "reset"
)

// Event describes one transition. State is the state after the transition.
type Event struct {
	ID     uuid.UUID
	Kind   EventKind
	Winner PlayerID // only meaningful for EventBuzzIn
	State  State
	At     time.Time
}

// Listener receives every Event in the order the arbiter produced them.
// Publish is called while the arbiter is serialized, so it must only enqueue.
type Listener interface {
	Publish(event Event)
}

// OutputSink drives the per-player indicators. Calls are idempotent.
type OutputSink interface {
	SetActive(player PlayerID) error
	SetInactive(player PlayerID) error
	DeactivateAll() error
}

func invalidPlayer(player PlayerID, n int) error {
	return fmt.Errorf("%w: %d (valid range 0..%d)", ErrInvalidPlayerID, player, n-1)
}
