// Package options assembles every flag group of the brickdrive command.
package options

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/brickdrive/brickdrive/internal/bridge"
	"github.com/brickdrive/brickdrive/internal/gamepad"
	"github.com/brickdrive/brickdrive/internal/hub"
	"github.com/brickdrive/brickdrive/pkg/app"
	"github.com/brickdrive/brickdrive/pkg/log"
	genericoptions "github.com/brickdrive/brickdrive/pkg/options"
)

var _ app.CliOptions = (*BridgeOptions)(nil)

// GamepadOptions configures the controller link.
type GamepadOptions struct {
	Name           string        `json:"name" mapstructure:"name"`
	ScanTimeout    time.Duration `json:"scan-timeout" mapstructure:"scan-timeout"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	DeadZone       float64       `json:"dead-zone" mapstructure:"dead-zone"`
}

func NewGamepadOptions() *GamepadOptions {
	return &GamepadOptions{
		Name:           "Xbox Wireless Controller",
		ScanTimeout:    30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		DeadZone:       0.03,
	}
}

func (o *GamepadOptions) Validate() []error {
	var errs []error
	if o.Name == "" {
		errs = append(errs, fmt.Errorf("gamepad.name must not be empty"))
	}
	if o.DeadZone < 0 || o.DeadZone >= 1 {
		errs = append(errs, fmt.Errorf("gamepad.dead-zone must be in [0, 1), got %v", o.DeadZone))
	}
	return errs
}

func (o *GamepadOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Name, "gamepad.name", o.Name, "Advertised name substring identifying the controller.")
	fs.DurationVar(&o.ScanTimeout, "gamepad.scan-timeout", o.ScanTimeout, "How long one controller discovery attempt may take.")
	fs.DurationVar(&o.ConnectTimeout, "gamepad.connect-timeout", o.ConnectTimeout, "Timeout for one controller connection attempt.")
	fs.Float64Var(&o.DeadZone, "gamepad.dead-zone", o.DeadZone, "Stick dead-zone radius in normalized axis units.")
}

// HubOptions configures the hub link.
type HubOptions struct {
	Name             string        `json:"name" mapstructure:"name"`
	ScanTimeout      time.Duration `json:"scan-timeout" mapstructure:"scan-timeout"`
	ConnectTimeout   time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	CalibrationDelay time.Duration `json:"calibration-delay" mapstructure:"calibration-delay"`
}

func NewHubOptions() *HubOptions {
	return &HubOptions{
		Name:             "Technic Move",
		ScanTimeout:      30 * time.Second,
		ConnectTimeout:   10 * time.Second,
		CalibrationDelay: 100 * time.Millisecond,
	}
}

func (o *HubOptions) Validate() []error {
	var errs []error
	if o.Name == "" {
		errs = append(errs, fmt.Errorf("hub.name must not be empty"))
	}
	return errs
}

func (o *HubOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Name, "hub.name", o.Name, "Advertised name substring identifying the hub.")
	fs.DurationVar(&o.ScanTimeout, "hub.scan-timeout", o.ScanTimeout, "How long one hub discovery attempt may take.")
	fs.DurationVar(&o.ConnectTimeout, "hub.connect-timeout", o.ConnectTimeout, "Timeout for one hub connection attempt.")
	fs.DurationVar(&o.CalibrationDelay, "hub.calibration-delay", o.CalibrationDelay, "Pause between the two steering calibration frames.")
}

// ControlOptions configures supervision and the control loop.
type ControlOptions struct {
	Tick              time.Duration `json:"tick" mapstructure:"tick"`
	FailSafeWindow    time.Duration `json:"fail-safe-window" mapstructure:"fail-safe-window"`
	Backoff           time.Duration `json:"backoff" mapstructure:"backoff"`
	MaxAttempts       int           `json:"max-attempts" mapstructure:"max-attempts"`
	TelemetryInterval time.Duration `json:"telemetry-interval" mapstructure:"telemetry-interval"`
}

func NewControlOptions() *ControlOptions {
	return &ControlOptions{
		Tick:              20 * time.Millisecond,
		FailSafeWindow:    500 * time.Millisecond,
		Backoff:           5 * time.Second,
		MaxAttempts:       0,
		TelemetryInterval: time.Second,
	}
}

func (o *ControlOptions) Validate() []error {
	var errs []error
	if o.Tick <= 0 {
		errs = append(errs, fmt.Errorf("control.tick must be positive, got %v", o.Tick))
	}
	if o.FailSafeWindow < o.Tick {
		errs = append(errs, fmt.Errorf("control.fail-safe-window (%v) must not be shorter than the tick (%v)", o.FailSafeWindow, o.Tick))
	}
	if o.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("control.max-attempts must not be negative, got %d", o.MaxAttempts))
	}
	return errs
}

func (o *ControlOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Tick, "control.tick", o.Tick, "Command re-send period.")
	fs.DurationVar(&o.FailSafeWindow, "control.fail-safe-window", o.FailSafeWindow, "Input silence after which the fail-safe stop engages.")
	fs.DurationVar(&o.Backoff, "control.backoff", o.Backoff, "Delay between link reconnect attempts.")
	fs.IntVar(&o.MaxAttempts, "control.max-attempts", o.MaxAttempts, "Reconnect attempt cap per link. 0 means retry forever.")
	fs.DurationVar(&o.TelemetryInterval, "control.telemetry-interval", o.TelemetryInterval, "Interval between telemetry status publications.")
}

// BridgeOptions is the complete option set of the brickdrive command.
type BridgeOptions struct {
	Adapter  string `json:"adapter" mapstructure:"adapter"`
	DeviceID string `json:"device-id" mapstructure:"device-id"`

	Gamepad *GamepadOptions             `json:"gamepad" mapstructure:"gamepad"`
	Hub     *HubOptions                 `json:"hub" mapstructure:"hub"`
	Control *ControlOptions             `json:"control" mapstructure:"control"`
	Http    *genericoptions.HttpOptions `json:"http" mapstructure:"http"`
	Mqtt    *genericoptions.MqttOptions `json:"mqtt" mapstructure:"mqtt"`
	Log     *log.Options                `json:"log" mapstructure:"log"`
}

func NewBridgeOptions() *BridgeOptions {
	return &BridgeOptions{
		Adapter:  "hci0",
		DeviceID: "brickdrive",
		Gamepad:  NewGamepadOptions(),
		Hub:      NewHubOptions(),
		Control:  NewControlOptions(),
		Http:     genericoptions.NewHttpOptions(),
		Mqtt:     genericoptions.NewMqttOptions(),
		Log:      log.NewOptions(),
	}
}

// AddFlags registers every flag group on the command.
func (o *BridgeOptions) AddFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&o.Adapter, "adapter", o.Adapter, "BlueZ adapter id.")
	fs.StringVar(&o.DeviceID, "device-id", o.DeviceID, "Device id used in telemetry topics.")

	o.Gamepad.AddFlags(fs)
	o.Hub.AddFlags(fs)
	o.Control.AddFlags(fs)
	o.Http.AddFlags(fs)
	o.Mqtt.AddFlags(fs)
	o.Log.AddFlags(fs)
}

// Complete fills in derived values after flag parsing.
func (o *BridgeOptions) Complete() error {
	if o.Mqtt.Enabled() && o.Mqtt.ClientID == "" {
		o.Mqtt.ClientID = "brickdrive-" + o.DeviceID
	}
	return nil
}

// Validate aggregates the validation of every group.
func (o *BridgeOptions) Validate() error {
	var errs []error
	errs = append(errs, o.Gamepad.Validate()...)
	errs = append(errs, o.Hub.Validate()...)
	errs = append(errs, o.Control.Validate()...)
	errs = append(errs, o.Http.Validate()...)
	errs = append(errs, o.Mqtt.Validate()...)
	errs = append(errs, o.Log.Validate()...)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid options: %v", errs)
}

// Config converts the options into the bridge configuration.
func (o *BridgeOptions) Config() bridge.Config {
	return bridge.Config{
		Gamepad: gamepad.Config{
			NamePattern:    o.Gamepad.Name,
			ScanTimeout:    o.Gamepad.ScanTimeout,
			ConnectTimeout: o.Gamepad.ConnectTimeout,
			DeadZone:       o.Gamepad.DeadZone,
		},
		Hub: hub.Config{
			NamePattern:      o.Hub.Name,
			ScanTimeout:      o.Hub.ScanTimeout,
			ConnectTimeout:   o.Hub.ConnectTimeout,
			CalibrationDelay: o.Hub.CalibrationDelay,
		},
		Manager: bridge.ManagerConfig{
			Backoff:     o.Control.Backoff,
			MaxAttempts: o.Control.MaxAttempts,
		},
		Loop: bridge.LoopConfig{
			Tick:           o.Control.Tick,
			FailSafeWindow: o.Control.FailSafeWindow,
		},
	}
}
