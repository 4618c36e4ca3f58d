package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brickdrive/brickdrive/internal/ble"
	"github.com/brickdrive/brickdrive/internal/pkg/metrics"
	fsmutil "github.com/brickdrive/brickdrive/internal/pkg/util/fsm"
	"github.com/brickdrive/brickdrive/pkg/log"
)

// LEGO wireless protocol GATT UUIDs.
const (
	ServiceLWP = ble.UUID("00001623-1212-efde-1623-785feabcd123")
	CharLWP    = ble.UUID("00001624-1212-efde-1623-785feabcd123")
)

// Link states.
const (
	StateDisconnected = "disconnected"
	StateScanning     = "scanning"
	StateConnecting   = "connecting"
	StatePairing      = "pairing"
	StateCalibrating  = "calibrating"
	StateReady        = "ready"
	StateError        = "error"
)

const (
	eventScan       = "scan"
	eventFound      = "found"
	eventConnected  = "connected"
	eventPaired     = "paired"
	eventCalibrated = "calibrated"
	eventDrop       = "drop"
	eventFail       = "fail"
)

// Config tunes one hub link session.
type Config struct {
	// NamePattern selects the hub during discovery by case-insensitive
	// substring match on the advertised name.
	NamePattern string

	ScanTimeout    time.Duration
	ConnectTimeout time.Duration

	// CalibrationDelay separates the two steering calibration frames.
	CalibrationDelay time.Duration
}

// Client owns the hub BLE link. One Run call is one session: discover,
// connect, pair, calibrate the steering, then accept Send calls until the
// link drops or ctx is cancelled.
type Client struct {
	central ble.Central
	cfg     Config
	logger  log.Logger

	machine *fsm.FSM

	mu         sync.Mutex
	char       ble.Characteristic
	peripheral ble.Peripheral
	lastErr    error
}

// NewClient builds a hub client around a BLE central.
func NewClient(central ble.Central, cfg Config) *Client {
	c := &Client{
		central: central,
		cfg:     cfg,
		logger:  log.WithName("hub"),
	}

	c.machine = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: eventScan, Src: []string{StateDisconnected, StateError}, Dst: StateScanning},
			{Name: eventFound, Src: []string{StateScanning}, Dst: StateConnecting},
			{Name: eventConnected, Src: []string{StateConnecting}, Dst: StatePairing},
			{Name: eventPaired, Src: []string{StatePairing}, Dst: StateCalibrating},
			{Name: eventCalibrated, Src: []string{StateCalibrating}, Dst: StateReady},
			{Name: eventDrop, Src: []string{StateScanning, StateConnecting, StatePairing, StateCalibrating, StateReady}, Dst: StateDisconnected},
			{Name: eventFail, Src: []string{StateScanning, StateConnecting, StatePairing, StateCalibrating, StateReady}, Dst: StateError},
		},
		fsm.Callbacks{
			"enter_state": fsmutil.WrapEvent(func(ctx context.Context, event *fsm.Event) error {
				c.logger.Debug("Link state changed", "from", event.Src, "to", event.Dst)
				if event.Dst == StateReady {
					metrics.LinkStatus.WithLabelValues("hub").Set(1)
				} else {
					metrics.LinkStatus.WithLabelValues("hub").Set(0)
				}
				return nil
			}),
		},
	)

	return c
}

// Status returns the link state machine position. A failed session reports
// the error state with its reason until the next session starts scanning.
func (c *Client) Status() string {
	current := c.machine.Current()
	if current == StateError {
		c.mu.Lock()
		reason := c.lastErr
		c.mu.Unlock()
		if reason != nil {
			return fmt.Sprintf("%s: %v", StateError, reason)
		}
	}
	return current
}

// Ready reports whether the hub accepts commands.
func (c *Client) Ready() bool {
	return c.machine.Current() == StateReady
}

// Run performs one connection session and blocks until the link drops or
// ctx is cancelled. The caller is expected to call Run again to reconnect;
// between failed sessions the link sits in the error state.
func (c *Client) Run(ctx context.Context) (err error) {
	defer func() {
		c.mu.Lock()
		c.char = nil
		peripheral := c.peripheral
		c.peripheral = nil
		c.mu.Unlock()

		if peripheral != nil {
			_ = peripheral.Disconnect()
		}
		switch {
		case err != nil && ctx.Err() == nil:
			c.mu.Lock()
			c.lastErr = err
			c.mu.Unlock()
			_ = c.machine.Event(ctx, eventFail)
		case c.machine.Current() != StateDisconnected:
			_ = c.machine.Event(ctx, eventDrop)
		}
	}()

	if err := c.machine.Event(ctx, eventScan); err != nil {
		return fmt.Errorf("failed to enter scanning: %w", err)
	}
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()

	adv, err := ble.ScanForName(ctx, c.central, c.cfg.NamePattern, c.cfg.ScanTimeout)
	if err != nil {
		return fmt.Errorf("hub discovery failed: %w", err)
	}
	c.logger.Info("Hub found", "name", adv.Name, "address", adv.Address, "rssi", adv.RSSI)

	if err := c.machine.Event(ctx, eventFound); err != nil {
		return err
	}
	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	peripheral, err := c.central.Connect(connectCtx, adv.Address)
	cancel()
	if err != nil {
		return fmt.Errorf("hub connect failed: %w", err)
	}
	c.mu.Lock()
	c.peripheral = peripheral
	c.mu.Unlock()

	// Service discovery belongs to the connecting step; a device without
	// the LEGO service is rejected before pairing touches it.
	chars, err := peripheral.DiscoverCharacteristics(ctx, ServiceLWP, []ble.UUID{CharLWP})
	if err != nil {
		return fmt.Errorf("hub service discovery failed: %w", err)
	}
	char := chars[CharLWP]

	if err := c.machine.Event(ctx, eventConnected); err != nil {
		return err
	}
	// The hub silently ignores command frames on an unauthenticated link.
	if err := peripheral.Pair(ctx); err != nil {
		return fmt.Errorf("hub pairing failed: %w", err)
	}

	if err := c.machine.Event(ctx, eventPaired); err != nil {
		return err
	}
	if err := c.calibrate(ctx, char); err != nil {
		return fmt.Errorf("%w: steering calibration: %v", ble.ErrInitializationFailed, err)
	}

	c.mu.Lock()
	c.char = char
	c.mu.Unlock()

	if err := c.machine.Event(ctx, eventCalibrated); err != nil {
		return err
	}
	c.logger.Info("Hub link ready", "address", adv.Address)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-peripheral.Disconnected():
		return fmt.Errorf("%w: hub link dropped", ble.ErrLinkError)
	}
}

// calibrate writes the two steering calibration frames, spaced so the hub
// can finish the first sweep before the second frame arrives.
func (c *Client) calibrate(ctx context.Context, char ble.Characteristic) error {
	frames := EncodeCalibration()

	if err := char.Write(ctx, frames[0]); err != nil {
		return err
	}
	metrics.FramesSentTotal.WithLabelValues("calibration").Inc()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.CalibrationDelay):
	}

	if err := char.Write(ctx, frames[1]); err != nil {
		return err
	}
	metrics.FramesSentTotal.WithLabelValues("calibration").Inc()
	return nil
}

// Send writes one pre-encoded command frame with response. kind labels the
// frame for metrics. Returns ErrNotReady when no session is established.
func (c *Client) Send(ctx context.Context, frame []byte, kind string) error {
	c.mu.Lock()
	char := c.char
	c.mu.Unlock()

	if char == nil || c.machine.Current() != StateReady {
		return ble.ErrNotReady
	}

	timer := prometheus.NewTimer(metrics.SendLatency)
	err := char.Write(ctx, frame)
	timer.ObserveDuration()
	if err != nil {
		return fmt.Errorf("%w: %v", ble.ErrLinkError, err)
	}
	metrics.FramesSentTotal.WithLabelValues(kind).Inc()
	return nil
}

// SendDrive encodes and writes a drive frame.
func (c *Client) SendDrive(ctx context.Context, speed, angle int, lights byte) error {
	frame, err := EncodeDrive(speed, angle, lights)
	if err != nil {
		return err
	}
	return c.Send(ctx, frame, "drive")
}

// SendStop writes the fail-safe stop frame.
func (c *Client) SendStop(ctx context.Context) error {
	return c.Send(ctx, StopFrame(), "failsafe")
}

// SetLEDColor changes the hub LED. Best effort: callers use it for status
// signalling and should not fail a session over it.
func (c *Client) SetLEDColor(ctx context.Context, color byte) error {
	frame, err := EncodeLEDColor(color)
	if err != nil {
		return err
	}
	return c.Send(ctx, frame, "led")
}
