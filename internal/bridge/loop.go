package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brickdrive/brickdrive/internal/ble"
	"github.com/brickdrive/brickdrive/internal/drive"
	"github.com/brickdrive/brickdrive/internal/gamepad"
	"github.com/brickdrive/brickdrive/pkg/log"
)

// InputSource is the controller side the loop consumes.
type InputSource interface {
	Ready() bool
	Latest() (gamepad.State, uint64)
	Changes() <-chan struct{}
	Status() string
}

// CommandSink is the hub side the loop drives.
type CommandSink interface {
	Ready() bool
	SendDrive(ctx context.Context, speed, angle int, lights byte) error
	SendStop(ctx context.Context) error
	SetLEDColor(ctx context.Context, color byte) error
	Status() string
}

// LoopConfig tunes the control loop timing.
type LoopConfig struct {
	// Tick is the command re-send period. The hub has no watchdog of its
	// own, so the last command is re-asserted even without new input.
	Tick time.Duration

	// FailSafeWindow bounds input silence. When the controller was ready
	// but no report arrived within the window, the loop sends the
	// fail-safe stop until input resumes.
	FailSafeWindow time.Duration
}

// Snapshot is the loop's externally visible state, served by the status
// API and the telemetry publisher.
type Snapshot struct {
	GamepadStatus string        `json:"gamepadStatus"`
	HubStatus     string        `json:"hubStatus"`
	Mode          string        `json:"mode"`
	SpeedLimit    int           `json:"speedLimit"`
	LightsOn      bool          `json:"lightsOn"`
	EmergencyStop bool          `json:"emergencyStop"`
	FailSafe      bool          `json:"failSafe"`
	LastCommand   drive.Command `json:"lastCommand"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Loop converts asynchronous controller reports into a bounded-rate
// command stream, enforcing the fail-safe stop whenever operator control
// is lost.
type Loop struct {
	cfg        LoopConfig
	input      InputSource
	sink       CommandSink
	translator *drive.Translator
	logger     log.Logger

	mu       sync.Mutex
	forced   bool
	failSafe bool
	last     drive.Command
	lastSeq  uint64
	lastSeen time.Time
	hadInput bool
	ledSet   bool
}

func NewLoop(cfg LoopConfig, input InputSource, sink CommandSink) *Loop {
	return &Loop{
		cfg:        cfg,
		input:      input,
		sink:       sink,
		translator: drive.NewTranslator(),
		logger:     log.WithName("loop"),
	}
}

// ForceStop latches the fail-safe stop until Release. Used by the power
// manager on critical battery and by the HTTP emergency-stop endpoint.
func (l *Loop) ForceStop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.forced = true
}

// Release lifts a ForceStop latch.
func (l *Loop) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.forced = false
}

// Forced reports whether the external stop latch is engaged.
func (l *Loop) Forced() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.forced
}

// Snapshot returns the current externally visible state.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		GamepadStatus: l.input.Status(),
		HubStatus:     l.sink.Status(),
		Mode:          l.translator.Mode().String(),
		SpeedLimit:    l.translator.SpeedLimit(),
		LightsOn:      l.translator.LightsOn(),
		EmergencyStop: l.translator.Stopped() || l.forced,
		FailSafe:      l.failSafe,
		LastCommand:   l.last,
		UpdatedAt:     time.Now(),
	}
}

// Run drives the loop until ctx is done. A final stop frame is sent on
// shutdown if the hub link is still up.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.shutdownStop()
			return ctx.Err()

		case <-l.input.Changes():
			l.onReport(ctx)

		case <-ticker.C:
			l.onTick(ctx)
		}
	}
}

// onReport translates the newest controller snapshot and sends it.
func (l *Loop) onReport(ctx context.Context) {
	state, seq := l.input.Latest()

	l.mu.Lock()
	if seq == l.lastSeq {
		l.mu.Unlock()
		return
	}
	l.lastSeq = seq
	l.lastSeen = time.Now()
	l.hadInput = true

	prevMode := l.translator.Mode()
	cmd := l.translator.Translate(state)
	if l.forced {
		cmd = drive.Stop()
	}
	l.last = cmd
	l.failSafe = false
	modeChanged := l.translator.Mode() != prevMode
	color := l.translator.Mode().LEDColor()
	l.mu.Unlock()

	l.send(ctx, cmd)
	if modeChanged {
		l.setLED(ctx, color)
	}
}

// onTick re-asserts the last command, or the fail-safe stop when operator
// control is lost.
func (l *Loop) onTick(ctx context.Context) {
	l.mu.Lock()
	lost := !l.input.Ready() ||
		(l.hadInput && time.Since(l.lastSeen) > l.cfg.FailSafeWindow)
	forced := l.forced

	var cmd drive.Command
	if lost || forced {
		cmd = drive.Stop()
		l.last = cmd
		l.failSafe = lost
	} else {
		cmd = l.last
	}
	l.mu.Unlock()

	l.send(ctx, cmd)

	// The LED follows the mode; re-assert it whenever the hub link comes
	// (back) up, since a fresh session boots with the default color.
	hubReady := l.sink.Ready()
	l.mu.Lock()
	if !hubReady {
		l.ledSet = false
	}
	needLED := hubReady && !l.ledSet
	color := l.translator.Mode().LEDColor()
	l.mu.Unlock()
	if needLED {
		l.setLED(ctx, color)
	}
}

func (l *Loop) send(ctx context.Context, cmd drive.Command) {
	if !l.sink.Ready() {
		return
	}

	var err error
	if cmd.EmergencyStop {
		err = l.sink.SendStop(ctx)
	} else {
		err = l.sink.SendDrive(ctx, cmd.Speed, cmd.SteeringAngle, cmd.LightsByte())
	}
	if err != nil && !errors.Is(err, ble.ErrNotReady) {
		l.logger.Warn("Command send failed", "error", err)
	}
}

func (l *Loop) setLED(ctx context.Context, color byte) {
	if !l.sink.Ready() {
		return
	}
	// Best effort. The LED is driver feedback, not a control surface.
	if err := l.sink.SetLEDColor(ctx, color); err != nil && !errors.Is(err, ble.ErrNotReady) {
		l.logger.Warn("LED update failed", "error", err)
	}
	l.mu.Lock()
	l.ledSet = true
	l.mu.Unlock()
}

// shutdownStop parks the vehicle on loop exit.
func (l *Loop) shutdownStop() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if l.sink.Ready() {
		_ = l.sink.SendStop(ctx)
	}
}
