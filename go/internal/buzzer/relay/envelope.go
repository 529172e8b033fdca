package relay

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
)

// Envelope is the JSON body of every mirrored state-change event.
type Envelope struct {
	EventID   string           `json:"eventId"`
	EventType buzzer.EventKind `json:"eventType"`
	Winner    *buzzer.PlayerID `json:"winner,omitempty"`
	State     buzzer.State     `json:"state"`
	Timestamp time.Time        `json:"timestamp"`
}

func newEnvelope(evt buzzer.Event) Envelope {
	env := Envelope{
		EventID:   evt.ID.String(),
		EventType: evt.Kind,
		State:     evt.State,
		Timestamp: evt.At.UTC(),
	}
	if evt.Kind == buzzer.EventBuzzIn {
		w := evt.Winner
		env.Winner = &w
	}
	return env
}

// EventSubject is where events of kind are published, e.g. buzzer.events.buzz_in.
func EventSubject(prefix string, kind buzzer.EventKind) string {
	return fmt.Sprintf("%s.events.%s", prefix, kind)
}

// PressWildcard matches every remote press subject.
func PressWildcard(prefix string) string {
	return prefix + ".press.*"
}

// PressSubject is where a remote press for player is sent, e.g. buzzer.press.3.
func PressSubject(prefix string, player buzzer.PlayerID) string {
	return fmt.Sprintf("%s.press.%d", prefix, player)
}

// ParsePressSubject extracts the player from a press subject.
func ParsePressSubject(prefix, subject string) (buzzer.PlayerID, error) {
	rest, ok := strings.CutPrefix(subject, prefix+".press.")
	if !ok || rest == "" || strings.Contains(rest, ".") {
		return 0, fmt.Errorf("not a press subject: %q", subject)
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", buzzer.ErrInvalidPlayerID, rest)
	}
	return buzzer.PlayerID(n), nil
}
