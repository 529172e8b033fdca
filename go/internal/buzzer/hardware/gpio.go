package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/gpio"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
)

// InputPin is the part of gpio.PinIO a button needs.
type InputPin interface {
	Name() string
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
	Halt() error
}

// OutputPin is the part of gpio.PinIO an indicator needs.
type OutputPin interface {
	Name() string
	Out(l gpio.Level) error
	Halt() error
}

// edgePoll bounds how long a watcher waits before rechecking ctx.
const edgePoll = 200 * time.Millisecond

// ButtonBank watches one pulled-up, active-low button per player.
// Index i of pins belongs to player i.
type ButtonBank struct {
	pins     []InputPin
	debounce time.Duration
	clock    clockwork.Clock

	mu       sync.Mutex
	handlers handlerSet
}

// NewButtonBank configures every pin as an input with pull-up and
// falling-edge detection.
func NewButtonBank(pins []InputPin, debounce time.Duration, clock clockwork.Clock) (*ButtonBank, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	for i, p := range pins {
		if err := p.In(gpio.PullUp, gpio.FallingEdge); err != nil {
			return nil, fmt.Errorf("failed to configure button %d on %s: %w", i, p.Name(), err)
		}
	}
	return &ButtonBank{
		pins:     pins,
		debounce: debounce,
		clock:    clock,
		handlers: make(handlerSet),
	}, nil
}

func (b *ButtonBank) OnPress(player buzzer.PlayerID, handler PressHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[player] = append(b.handlers[player], handler)
}

// Run starts one watcher goroutine per button and blocks until ctx is done.
func (b *ButtonBank) Run(ctx context.Context) error {
	b.mu.Lock()
	handlers := make(handlerSet, len(b.handlers))
	for k, v := range b.handlers {
		handlers[k] = append([]PressHandler(nil), v...)
	}
	b.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for i, pin := range b.pins {
		player := buzzer.PlayerID(i)
		g.Go(func() error {
			b.watch(ctx, player, pin, handlers)
			return nil
		})
	}
	return g.Wait()
}

func (b *ButtonBank) watch(ctx context.Context, player buzzer.PlayerID, pin InputPin, handlers handlerSet) {
	var last time.Time
	pressed := false

	log.Debug().Int("player", int(player)).Str("pin", pin.Name()).Msg("watching button")
	for ctx.Err() == nil {
		if !pin.WaitForEdge(edgePoll) {
			continue
		}
		if pin.Read() != gpio.Low {
			continue
		}

		now := b.clock.Now()
		if pressed && now.Sub(last) < b.debounce {
			continue
		}
		pressed = true
		last = now

		log.Debug().Int("player", int(player)).Str("pin", pin.Name()).Msg("button pressed")
		handlers.dispatch(player)
	}
}

// Halt releases the button pins.
func (b *ButtonBank) Halt() error {
	var errs []error
	for _, p := range b.pins {
		if err := p.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ControlBank drives one indicator output per player. With activeLow the
// indicator is on when the pin is driven low.
type ControlBank struct {
	pins      []OutputPin
	activeLow bool
}

// NewControlBank drives every output to its inactive level.
func NewControlBank(pins []OutputPin, activeLow bool) (*ControlBank, error) {
	c := &ControlBank{pins: pins, activeLow: activeLow}
	if err := c.DeactivateAll(); err != nil {
		return nil, fmt.Errorf("failed to initialise control outputs: %w", err)
	}
	return c, nil
}

func (c *ControlBank) activeLevel() gpio.Level {
	return gpio.Level(!c.activeLow)
}

func (c *ControlBank) pin(player buzzer.PlayerID) (OutputPin, error) {
	if player < 0 || int(player) >= len(c.pins) {
		return nil, fmt.Errorf("%w: %d has no control output", buzzer.ErrInvalidPlayerID, player)
	}
	return c.pins[player], nil
}

func (c *ControlBank) SetActive(player buzzer.PlayerID) error {
	p, err := c.pin(player)
	if err != nil {
		return err
	}
	if err := p.Out(c.activeLevel()); err != nil {
		return fmt.Errorf("activate %s: %w", p.Name(), err)
	}
	log.Info().Int("player", int(player)).Str("pin", p.Name()).Msg("indicator on")
	return nil
}

func (c *ControlBank) SetInactive(player buzzer.PlayerID) error {
	p, err := c.pin(player)
	if err != nil {
		return err
	}
	if err := p.Out(!c.activeLevel()); err != nil {
		return fmt.Errorf("deactivate %s: %w", p.Name(), err)
	}
	return nil
}

// DeactivateAll attempts every output and reports all failures.
func (c *ControlBank) DeactivateAll() error {
	var errs []error
	for i := range c.pins {
		if err := c.SetInactive(buzzer.PlayerID(i)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Halt turns every indicator off and releases the pins.
func (c *ControlBank) Halt() error {
	errs := []error{c.DeactivateAll()}
	for _, p := range c.pins {
		if err := p.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var (
	_ Source            = (*ButtonBank)(nil)
	_ buzzer.OutputSink = (*ControlBank)(nil)
)
