package hardware

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
)

// SimulatedSource is an in-process Source fed by Press.
type SimulatedSource struct {
	mu       sync.Mutex
	handlers handlerSet
	presses  chan buzzer.PlayerID
}

func NewSimulatedSource() *SimulatedSource {
	return &SimulatedSource{
		handlers: make(handlerSet),
		presses:  make(chan buzzer.PlayerID, 64),
	}
}

func (s *SimulatedSource) OnPress(player buzzer.PlayerID, handler PressHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[player] = append(s.handlers[player], handler)
}

// Press queues a press for player. It reports false when the queue is full.
func (s *SimulatedSource) Press(player buzzer.PlayerID) bool {
	select {
	case s.presses <- player:
		return true
	default:
		log.Warn().Int("player", int(player)).Msg("simulated press queue full, dropping press")
		return false
	}
}

// Feed reads one player id per line from r and presses it. Blank lines
// are skipped. It returns when r is exhausted.
func (s *SimulatedSource) Feed(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			log.Warn().Str("input", line).Msg("simulated input is not a player id")
			continue
		}
		s.Press(buzzer.PlayerID(n))
	}
	return scanner.Err()
}

// Run dispatches queued presses until ctx is cancelled.
func (s *SimulatedSource) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case player := <-s.presses:
			s.mu.Lock()
			hs := s.handlers[player]
			s.mu.Unlock()
			if len(hs) == 0 {
				log.Warn().Int("player", int(player)).Msg("simulated press for unbound player")
				continue
			}
			for _, h := range hs {
				h(player)
			}
		}
	}
}

// MemorySink is an OutputSink that only records indicator state.
type MemorySink struct {
	mu     sync.Mutex
	size   int
	active map[buzzer.PlayerID]bool
}

func NewMemorySink(size int) *MemorySink {
	return &MemorySink{size: size, active: make(map[buzzer.PlayerID]bool)}
}

func (m *MemorySink) check(player buzzer.PlayerID) error {
	if player < 0 || int(player) >= m.size {
		return fmt.Errorf("%w: %d has no control output", buzzer.ErrInvalidPlayerID, player)
	}
	return nil
}

func (m *MemorySink) SetActive(player buzzer.PlayerID) error {
	if err := m.check(player); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[player] = true
	log.Info().Int("player", int(player)).Msg("indicator on (simulated)")
	return nil
}

func (m *MemorySink) SetInactive(player buzzer.PlayerID) error {
	if err := m.check(player); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, player)
	return nil
}

func (m *MemorySink) DeactivateAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.active)
	return nil
}

// Active returns the players whose indicator is on, in ascending order.
func (m *MemorySink) Active() []buzzer.PlayerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]buzzer.PlayerID, 0, len(m.active))
	for p := range m.active {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var (
	_ Source            = (*SimulatedSource)(nil)
	_ buzzer.OutputSink = (*MemorySink)(nil)
)
