package hardware

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
)

const (
	DriverGPIO      = "gpio"
	DriverSimulated = "simulated"
)

// Config describes the physical wiring. ButtonPins[i] and ControlPins[i]
// are BCM numbers belonging to player i.
type Config struct {
	Driver           string
	ButtonPins       []int
	ControlPins      []int
	ControlActiveLow bool
	Debounce         time.Duration
}

// Devices is the opened input source and output sink.
type Devices struct {
	Source Source
	Sink   buzzer.OutputSink

	// Simulated is set only for the simulated driver.
	Simulated *SimulatedSource

	closers []func() error
}

// Close turns outputs off and releases the pins.
func (d *Devices) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open initialises the configured driver.
func Open(cfg Config) (*Devices, error) {
	if len(cfg.ButtonPins) != len(cfg.ControlPins) {
		return nil, fmt.Errorf("button and control pin counts differ: %d vs %d", len(cfg.ButtonPins), len(cfg.ControlPins))
	}

	switch cfg.Driver {
	case DriverSimulated, "":
		src := NewSimulatedSource()
		sink := NewMemorySink(len(cfg.ControlPins))
		log.Info().Int("players", len(cfg.ButtonPins)).Msg("using simulated hardware")
		return &Devices{
			Source:    src,
			Sink:      sink,
			Simulated: src,
			closers:   []func() error{sink.DeactivateAll},
		}, nil

	case DriverGPIO:
		return openGPIO(cfg)

	default:
		return nil, fmt.Errorf("unknown hardware driver %q", cfg.Driver)
	}
}

func openGPIO(cfg Config) (*Devices, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise periph host: %w", err)
	}

	buttons := make([]InputPin, len(cfg.ButtonPins))
	for i, n := range cfg.ButtonPins {
		p := gpioreg.ByName(pinName(n))
		if p == nil {
			return nil, fmt.Errorf("button pin %s not found", pinName(n))
		}
		buttons[i] = p
	}

	controls := make([]OutputPin, len(cfg.ControlPins))
	for i, n := range cfg.ControlPins {
		p := gpioreg.ByName(pinName(n))
		if p == nil {
			return nil, fmt.Errorf("control pin %s not found", pinName(n))
		}
		controls[i] = p
	}

	ctrl, err := NewControlBank(controls, cfg.ControlActiveLow)
	if err != nil {
		return nil, err
	}
	bank, err := NewButtonBank(buttons, cfg.Debounce, clockwork.NewRealClock())
	if err != nil {
		_ = ctrl.Halt()
		return nil, err
	}

	log.Info().
		Ints("button_pins", cfg.ButtonPins).
		Ints("control_pins", cfg.ControlPins).
		Bool("control_active_low", cfg.ControlActiveLow).
		Dur("debounce", cfg.Debounce).
		Msg("GPIO hardware ready")

	return &Devices{
		Source:  bank,
		Sink:    ctrl,
		closers: []func() error{ctrl.Halt, bank.Halt},
	}, nil
}

func pinName(bcm int) string {
	return fmt.Sprintf("GPIO%d", bcm)
}
