package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
	"github.com/mcdev12/buzzer/go/internal/buzzer/gateway"
	"github.com/mcdev12/buzzer/go/internal/buzzer/hardware"
)

var (
	defaultButtonPins  = []int{2, 3, 4, 17, 27, 22, 10, 9}
	defaultControlPins = []int{5, 6, 13, 19, 26, 20, 21, 16}
)

// Player is one roster entry; index in the roster is the player id.
type Player struct {
	Name       string `yaml:"name"`
	ButtonPin  int    `yaml:"button_pin"`
	ControlPin int    `yaml:"control_pin"`
}

// HardwareSettings describes how inputs and outputs are driven.
type HardwareSettings struct {
	Driver           string        `yaml:"driver"`
	ControlActiveLow *bool         `yaml:"control_active_low"`
	Debounce         time.Duration `yaml:"debounce"`
}

// File is the optional YAML document named by BUZZER_CONFIG.
type File struct {
	Players  []Player         `yaml:"players"`
	Hardware HardwareSettings `yaml:"hardware"`
}

// Config holds every runtime setting of the buzzer service.
type Config struct {
	Port    int
	Players []Player

	Driver           string
	ControlActiveLow bool
	Debounce         time.Duration

	ResetPolicy         string
	AdminToken          string
	HeartbeatInterval   time.Duration
	AllowSimulatedPress bool
	StaticDir           string

	NATSURL           string
	NATSSubjectPrefix string

	LogLevel  string
	LogFormat string
}

// Default returns the eight-player BCM layout with simulated hardware.
func Default() Config {
	players := make([]Player, len(defaultButtonPins))
	for i := range players {
		players[i] = Player{
			Name:       fmt.Sprintf("Player %d", i+1),
			ButtonPin:  defaultButtonPins[i],
			ControlPin: defaultControlPins[i],
		}
	}
	return Config{
		Port:              8000,
		Players:           players,
		Driver:            hardware.DriverSimulated,
		ControlActiveLow:  true,
		Debounce:          50 * time.Millisecond,
		ResetPolicy:       string(gateway.ResetOpen),
		HeartbeatInterval: 5 * time.Second,
		NATSSubjectPrefix: "buzzer",
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// NewConfigFromEnv starts from Default, applies the YAML file named by
// BUZZER_CONFIG if any, then environment overrides.
func NewConfigFromEnv() (Config, error) {
	cfg := Default()

	if path := os.Getenv("BUZZER_CONFIG"); path != "" {
		f, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.apply(f)
	}

	cfg.Port = getEnvAsInt("PORT", cfg.Port)
	cfg.Driver = getEnv("HARDWARE_DRIVER", cfg.Driver)
	cfg.ResetPolicy = getEnv("RESET_POLICY", cfg.ResetPolicy)
	cfg.AdminToken = getEnv("ADMIN_TOKEN", cfg.AdminToken)
	cfg.HeartbeatInterval = getEnvAsDuration("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	cfg.AllowSimulatedPress = getEnvAsBool("ALLOW_SIMULATED_PRESS", cfg.AllowSimulatedPress)
	cfg.StaticDir = getEnv("STATIC_DIR", cfg.StaticDir)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.NATSSubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATSSubjectPrefix)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	return cfg, cfg.Validate()
}

// LoadFile reads a roster/hardware YAML document.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &f, nil
}

func (c *Config) apply(f *File) {
	if len(f.Players) > 0 {
		c.Players = make([]Player, len(f.Players))
		for i, p := range f.Players {
			if p.Name == "" {
				p.Name = fmt.Sprintf("Player %d", i+1)
			}
			c.Players[i] = p
		}
	}
	if f.Hardware.Driver != "" {
		c.Driver = f.Hardware.Driver
	}
	if f.Hardware.ControlActiveLow != nil {
		c.ControlActiveLow = *f.Hardware.ControlActiveLow
	}
	if f.Hardware.Debounce > 0 {
		c.Debounce = f.Hardware.Debounce
	}
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if len(c.Players) == 0 {
		errs = append(errs, errors.New("roster is empty"))
	}

	seen := make(map[int]string)
	claim := func(pin int, owner string) {
		if pin < 0 {
			errs = append(errs, fmt.Errorf("%s: negative pin %d", owner, pin))
			return
		}
		if prev, ok := seen[pin]; ok {
			errs = append(errs, fmt.Errorf("pin %d used by both %s and %s", pin, prev, owner))
			return
		}
		seen[pin] = owner
	}
	for i, p := range c.Players {
		claim(p.ButtonPin, fmt.Sprintf("player %d button", i))
		claim(p.ControlPin, fmt.Sprintf("player %d control", i))
	}

	switch c.Driver {
	case hardware.DriverGPIO, hardware.DriverSimulated:
	default:
		errs = append(errs, fmt.Errorf("unknown hardware driver %q", c.Driver))
	}

	mode, err := gateway.ParseResetMode(c.ResetPolicy)
	if err != nil {
		errs = append(errs, err)
	}
	if mode == gateway.ResetToken && c.AdminToken == "" {
		errs = append(errs, errors.New("RESET_POLICY=token requires ADMIN_TOKEN"))
	}

	if c.HeartbeatInterval < 0 {
		errs = append(errs, fmt.Errorf("negative heartbeat interval %s", c.HeartbeatInterval))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// Roster returns the arbiter's player list.
func (c Config) Roster() []buzzer.Player {
	out := make([]buzzer.Player, len(c.Players))
	for i, p := range c.Players {
		out[i] = buzzer.Player{ID: buzzer.PlayerID(i), Name: p.Name}
	}
	return out
}

// Hardware returns the pin wiring for hardware.Open.
func (c Config) Hardware() hardware.Config {
	hc := hardware.Config{
		Driver:           c.Driver,
		ControlActiveLow: c.ControlActiveLow,
		Debounce:         c.Debounce,
	}
	for _, p := range c.Players {
		hc.ButtonPins = append(hc.ButtonPins, p.ButtonPin)
		hc.ControlPins = append(hc.ControlPins, p.ControlPin)
	}
	return hc
}

// ResetPolicyConfig returns the gateway reset policy. Call after Validate.
func (c Config) ResetPolicyConfig() gateway.ResetPolicy {
	return gateway.ResetPolicy{Mode: gateway.ResetMode(c.ResetPolicy), Token: c.AdminToken}
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
