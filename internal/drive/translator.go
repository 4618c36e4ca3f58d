// Package drive turns decoded controller state into vehicle commands.
package drive

import (
	"math"

	"github.com/brickdrive/brickdrive/internal/gamepad"
	"github.com/brickdrive/brickdrive/internal/hub"
)

// ControlMode is a named driving preset.
type ControlMode int

const (
	ModeNormal ControlMode = iota
	ModeTurbo
	ModeSlow
)

func (m ControlMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeTurbo:
		return "turbo"
	case ModeSlow:
		return "slow"
	}
	return "unknown"
}

// next returns the following mode in the cycle order.
func (m ControlMode) next() ControlMode {
	switch m {
	case ModeNormal:
		return ModeTurbo
	case ModeTurbo:
		return ModeSlow
	default:
		return ModeNormal
	}
}

// LEDColor is the hub LED palette color signalling this mode to the driver.
func (m ControlMode) LEDColor() byte {
	switch m {
	case ModeTurbo:
		return hub.ColorRed
	case ModeSlow:
		return hub.ColorBlue
	default:
		return hub.ColorGreen
	}
}

// params bundles the per-mode speed cap and response curve exponent. A
// higher exponent gives finer control near stick center.
type params struct {
	maxSpeed int
	curve    float64
}

func (m ControlMode) params() params {
	switch m {
	case ModeTurbo:
		return params{maxSpeed: 100, curve: 1.5}
	case ModeSlow:
		return params{maxSpeed: 50, curve: 2.5}
	default:
		return params{maxSpeed: 100, curve: 2.0}
	}
}

// Command is one translated vehicle command.
type Command struct {
	// Speed is the throttle, -100..100, negative in reverse.
	Speed int
	// SteeringAngle is -100..100, negative left.
	SteeringAngle int
	LightsOn      bool
	// EmergencyStop forces the motors to zero regardless of stick input.
	EmergencyStop bool
}

// Stop is the fail-safe command.
func Stop() Command {
	return Command{EmergencyStop: true}
}

// LightsByte converts the lights flag to its wire value.
func (c Command) LightsByte() byte {
	if c.LightsOn {
		return hub.LightsOn
	}
	return hub.LightsOff
}

const speedLimitStep = 10

// Translator maps controller snapshots to vehicle commands. It holds the
// small amount of state the mapping needs: the active mode, the user speed
// limit, the lights and emergency-stop toggles, and the previous snapshot
// for button edge detection.
//
// Mapping: left stick Y is throttle, right stick X is steering. The left
// trigger brakes (down to 20% of intended speed), the right trigger boosts
// (up to +50%, still capped by the mode). A toggles lights, X toggles the
// emergency stop, LB cycles the mode, d-pad up/down steps the speed limit.
type Translator struct {
	mode       ControlMode
	speedLimit int
	lightsOn   bool
	stopped    bool

	prev    gamepad.State
	hasPrev bool
}

func NewTranslator() *Translator {
	return &Translator{
		mode:       ModeNormal,
		speedLimit: 100,
	}
}

// Mode returns the active control mode.
func (t *Translator) Mode() ControlMode { return t.mode }

// SpeedLimit returns the user speed limit, 0..100.
func (t *Translator) SpeedLimit() int { return t.speedLimit }

// LightsOn returns the lights toggle.
func (t *Translator) LightsOn() bool { return t.lightsOn }

// Stopped returns the emergency-stop toggle.
func (t *Translator) Stopped() bool { return t.stopped }

// ForceStop engages the emergency stop, as the power manager does on
// critical battery. The next X press edge releases it.
func (t *Translator) ForceStop() { t.stopped = true }

// Translate maps one controller snapshot to a vehicle command, applying
// button edges against the previous snapshot.
func (t *Translator) Translate(state gamepad.State) Command {
	prev := t.prev
	if !t.hasPrev {
		prev = gamepad.State{}
	}
	t.prev = state
	t.hasPrev = true

	if pressed(state.Buttons.X, prev.Buttons.X) {
		t.stopped = !t.stopped
	}
	if pressed(state.Buttons.A, prev.Buttons.A) {
		t.lightsOn = !t.lightsOn
	}
	if pressed(state.Buttons.LB, prev.Buttons.LB) {
		t.mode = t.mode.next()
	}
	if dpadUp(state.DPad) && !dpadUp(prev.DPad) {
		t.speedLimit = clampInt(t.speedLimit+speedLimitStep, 0, 100)
	}
	if dpadDown(state.DPad) && !dpadDown(prev.DPad) {
		t.speedLimit = clampInt(t.speedLimit-speedLimitStep, 0, 100)
	}

	if t.stopped {
		return Command{LightsOn: t.lightsOn, EmergencyStop: true}
	}

	p := t.mode.params()
	maxSpeed := p.maxSpeed
	if t.speedLimit < maxSpeed {
		maxSpeed = t.speedLimit
	}

	throttle := curve(state.LeftY, p.curve)
	steering := curve(state.RightX, p.curve)

	// Brake scales the throttle down to 20% at full pull; boost raises it
	// by up to half. The mode cap still bounds the result.
	brake := 1.0 - state.LeftTrigger*0.8
	boost := 1.0 + state.RightTrigger*0.5
	throttle *= brake * boost

	return Command{
		Speed:         scale(throttle, maxSpeed),
		SteeringAngle: scale(steering, maxSpeed),
		LightsOn:      t.lightsOn,
	}
}

func pressed(cur, prev bool) bool {
	return cur && !prev
}

func dpadUp(d gamepad.DPad) bool {
	return d == gamepad.DPadUp || d == gamepad.DPadUpLeft || d == gamepad.DPadUpRight
}

func dpadDown(d gamepad.DPad) bool {
	return d == gamepad.DPadDown || d == gamepad.DPadDownLeft || d == gamepad.DPadDownRight
}

// curve applies the response curve sign(x) * |x|^exp.
func curve(x, exp float64) float64 {
	if x == 0 {
		return 0
	}
	return math.Copysign(math.Pow(math.Abs(x), exp), x)
}

// scale maps a normalized value onto [-max, max], clamped to the wire range.
func scale(x float64, max int) int {
	return clampInt(int(math.Round(x*float64(max))), -100, 100)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
