package hardware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
)

const within = 2 * time.Second

type fakeInput struct {
	name  string
	edges chan gpio.Level
	level gpio.Level

	mu     sync.Mutex
	pull   gpio.Pull
	edge   gpio.Edge
	inErr  error
	halted bool
}

func newFakeInput(name string) *fakeInput {
	return &fakeInput{name: name, edges: make(chan gpio.Level), level: gpio.High}
}

func (f *fakeInput) Name() string { return f.name }

func (f *fakeInput) In(pull gpio.Pull, edge gpio.Edge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pull, f.edge = pull, edge
	return f.inErr
}

func (f *fakeInput) WaitForEdge(timeout time.Duration) bool {
	select {
	case l := <-f.edges:
		f.level = l
		return true
	case <-time.After(timeout):
		return false
	}
}

func (f *fakeInput) Read() gpio.Level { return f.level }

func (f *fakeInput) Halt() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halted = true
	return nil
}

type fakeOutput struct {
	name   string
	mu     sync.Mutex
	level  gpio.Level
	writes int
	outErr error
	halted bool
}

func (f *fakeOutput) Name() string { return f.name }

func (f *fakeOutput) Out(l gpio.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outErr != nil {
		return f.outErr
	}
	f.level = l
	f.writes++
	return nil
}

func (f *fakeOutput) Halt() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halted = true
	return nil
}

func (f *fakeOutput) get() gpio.Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

func newInputs(n int) ([]*fakeInput, []InputPin) {
	fakes := make([]*fakeInput, n)
	pins := make([]InputPin, n)
	for i := range fakes {
		fakes[i] = newFakeInput("GPIO" + string(rune('A'+i)))
		pins[i] = fakes[i]
	}
	return fakes, pins
}

func newOutputs(n int) ([]*fakeOutput, []OutputPin) {
	fakes := make([]*fakeOutput, n)
	pins := make([]OutputPin, n)
	for i := range fakes {
		fakes[i] = &fakeOutput{name: "OUT" + string(rune('A'+i))}
		pins[i] = fakes[i]
	}
	return fakes, pins
}

func recvPress(t *testing.T, ch <-chan buzzer.PlayerID) buzzer.PlayerID {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(within):
		t.Fatalf("timed out waiting for press")
		return -1
	}
}

func recvNoPress(t *testing.T, ch <-chan buzzer.PlayerID, wait time.Duration) {
	t.Helper()
	select {
	case p := <-ch:
		t.Fatalf("expected no press, got player %d", p)
	case <-time.After(wait):
	}
}

func TestNewButtonBank_ConfiguresPullUpFallingEdge(t *testing.T) {
	fakes, pins := newInputs(3)
	if _, err := NewButtonBank(pins, 0, clockwork.NewFakeClock()); err != nil {
		t.Fatalf("NewButtonBank: %v", err)
	}
	for _, f := range fakes {
		if f.pull != gpio.PullUp || f.edge != gpio.FallingEdge {
			t.Fatalf("%s: want pull-up/falling-edge, got %v/%v", f.name, f.pull, f.edge)
		}
	}
}

func TestNewButtonBank_PinError(t *testing.T) {
	fakes, pins := newInputs(2)
	fakes[1].inErr = errors.New("busy")
	if _, err := NewButtonBank(pins, 0, nil); err == nil {
		t.Fatalf("expected error from pin configuration")
	}
}

func TestButtonBank_DispatchesAndDebounces(t *testing.T) {
	fc := clockwork.NewFakeClock()
	fakes, pins := newInputs(4)
	bank, err := NewButtonBank(pins, 50*time.Millisecond, fc)
	if err != nil {
		t.Fatalf("NewButtonBank: %v", err)
	}

	presses := make(chan buzzer.PlayerID, 8)
	for i := range pins {
		bank.OnPress(buzzer.PlayerID(i), func(p buzzer.PlayerID) { presses <- p })
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- bank.Run(ctx) }()

	fakes[2].edges <- gpio.Low
	if p := recvPress(t, presses); p != 2 {
		t.Fatalf("want press from 2, got %d", p)
	}

	// bounce inside the window is swallowed; the high edge only syncs the watcher
	fakes[2].edges <- gpio.Low
	fakes[2].edges <- gpio.High
	recvNoPress(t, presses, 20*time.Millisecond)

	fc.Advance(50 * time.Millisecond)
	fakes[2].edges <- gpio.Low
	if p := recvPress(t, presses); p != 2 {
		t.Fatalf("want press from 2 after debounce window, got %d", p)
	}

	// other buttons are debounced independently
	fakes[0].edges <- gpio.Low
	if p := recvPress(t, presses); p != 0 {
		t.Fatalf("want press from 0, got %d", p)
	}

	cancel()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(within):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestButtonBank_IgnoresReleaseEdges(t *testing.T) {
	fakes, pins := newInputs(1)
	bank, err := NewButtonBank(pins, 0, clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("NewButtonBank: %v", err)
	}
	presses := make(chan buzzer.PlayerID, 1)
	bank.OnPress(0, func(p buzzer.PlayerID) { presses <- p })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bank.Run(ctx)

	fakes[0].edges <- gpio.High
	recvNoPress(t, presses, 20*time.Millisecond)
}

func TestControlBank_ActiveLow(t *testing.T) {
	fakes, pins := newOutputs(8)
	bank, err := NewControlBank(pins, true)
	if err != nil {
		t.Fatalf("NewControlBank: %v", err)
	}
	for _, f := range fakes {
		if f.get() != gpio.High {
			t.Fatalf("%s: outputs must start inactive (high)", f.name)
		}
	}

	if err := bank.SetActive(3); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	for i, f := range fakes {
		want := gpio.High
		if i == 3 {
			want = gpio.Low
		}
		if f.get() != want {
			t.Fatalf("output %d: want %v, got %v", i, want, f.get())
		}
	}

	if err := bank.DeactivateAll(); err != nil {
		t.Fatalf("DeactivateAll: %v", err)
	}
	if fakes[3].get() != gpio.High {
		t.Fatalf("output 3 should be inactive after DeactivateAll")
	}
}

func TestControlBank_ActiveHigh(t *testing.T) {
	fakes, pins := newOutputs(2)
	bank, err := NewControlBank(pins, false)
	if err != nil {
		t.Fatalf("NewControlBank: %v", err)
	}
	if fakes[1].get() != gpio.Low {
		t.Fatalf("active-high outputs must start low")
	}
	_ = bank.SetActive(1)
	if fakes[1].get() != gpio.High {
		t.Fatalf("active-high output should be high when on")
	}
	_ = bank.SetInactive(1)
	if fakes[1].get() != gpio.Low {
		t.Fatalf("active-high output should be low when off")
	}
}

func TestControlBank_Errors(t *testing.T) {
	fakes, pins := newOutputs(3)
	bank, err := NewControlBank(pins, true)
	if err != nil {
		t.Fatalf("NewControlBank: %v", err)
	}

	if err := bank.SetActive(7); !errors.Is(err, buzzer.ErrInvalidPlayerID) {
		t.Fatalf("want ErrInvalidPlayerID, got %v", err)
	}

	_ = bank.SetActive(0)
	_ = bank.SetActive(2)
	fakes[1].outErr = errors.New("stuck")
	if err := bank.DeactivateAll(); err == nil {
		t.Fatalf("expected DeactivateAll to report the failing pin")
	}
	if fakes[0].get() != gpio.High || fakes[2].get() != gpio.High {
		t.Fatalf("healthy outputs must still be deactivated")
	}
}

func TestControlBank_Halt(t *testing.T) {
	fakes, pins := newOutputs(2)
	bank, _ := NewControlBank(pins, true)
	_ = bank.SetActive(0)

	if err := bank.Halt(); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	for _, f := range fakes {
		if !f.halted || f.get() != gpio.High {
			t.Fatalf("%s: want halted and inactive", f.name)
		}
	}
}
