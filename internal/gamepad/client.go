package gamepad

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/brickdrive/brickdrive/internal/ble"
	"github.com/brickdrive/brickdrive/internal/pkg/metrics"
	fsmutil "github.com/brickdrive/brickdrive/internal/pkg/util/fsm"
	"github.com/brickdrive/brickdrive/pkg/log"
)

// HID over GATT UUIDs.
const (
	ServiceHID      = ble.UUID("00001812-0000-1000-8000-00805f9b34fb")
	CharReportMap   = ble.UUID("00002a4b-0000-1000-8000-00805f9b34fb")
	CharInputReport = ble.UUID("00002a4d-0000-1000-8000-00805f9b34fb")
)

// Link states.
const (
	StateDisconnected = "disconnected"
	StateScanning     = "scanning"
	StateConnecting   = "connecting"
	StatePairing      = "pairing"
	StateInitializing = "initializing"
	StateReady        = "ready"
	StateError        = "error"
)

// Link events.
const (
	eventScan       = "scan"
	eventFound      = "found"
	eventConnected  = "connected"
	eventPaired     = "paired"
	eventSubscribed = "subscribed"
	eventDrop       = "drop"
	eventFail       = "fail"
)

// Config tunes one controller link session.
type Config struct {
	// NamePattern selects the controller during discovery by
	// case-insensitive substring match on the advertised name.
	NamePattern string

	ScanTimeout    time.Duration
	ConnectTimeout time.Duration

	// DeadZone is the stick dead-zone radius, in normalized axis units.
	DeadZone float64
}

// Client owns the controller BLE link. One Run call is one session:
// discover, connect, pair, initialize, then stream input reports until
// the link drops or ctx is cancelled.
type Client struct {
	central ble.Central
	cfg     Config
	logger  log.Logger

	machine *fsm.FSM

	mu      sync.Mutex
	latest  State
	seq     uint64
	lastErr error

	changes chan struct{}

	peripheral ble.Peripheral
}

// NewClient builds a controller client around a BLE central.
func NewClient(central ble.Central, cfg Config) *Client {
	c := &Client{
		central: central,
		cfg:     cfg,
		logger:  log.WithName("gamepad"),
		changes: make(chan struct{}, 1),
	}

	c.machine = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: eventScan, Src: []string{StateDisconnected, StateError}, Dst: StateScanning},
			{Name: eventFound, Src: []string{StateScanning}, Dst: StateConnecting},
			{Name: eventConnected, Src: []string{StateConnecting}, Dst: StatePairing},
			{Name: eventPaired, Src: []string{StatePairing}, Dst: StateInitializing},
			{Name: eventSubscribed, Src: []string{StateInitializing}, Dst: StateReady},
			{Name: eventDrop, Src: []string{StateScanning, StateConnecting, StatePairing, StateInitializing, StateReady}, Dst: StateDisconnected},
			{Name: eventFail, Src: []string{StateScanning, StateConnecting, StatePairing, StateInitializing, StateReady}, Dst: StateError},
		},
		fsm.Callbacks{
			"enter_state": fsmutil.WrapEvent(func(ctx context.Context, event *fsm.Event) error {
				c.logger.Debug("Link state changed", "from", event.Src, "to", event.Dst)
				if event.Dst == StateReady {
					metrics.LinkStatus.WithLabelValues("gamepad").Set(1)
				} else {
					metrics.LinkStatus.WithLabelValues("gamepad").Set(0)
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

// Ready reports whether input reports are flowing.
func (c *Client) Ready() bool {
	return c.machine.Current() == StateReady
}

// Latest returns the most recent decoded state and its sequence number.
// The sequence number increments on every accepted report, so callers can
// tell a fresh report from a stale one.
func (c *Client) Latest() (State, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.seq
}

// Changes signals when a new report has been decoded. The channel has one
// slot; a slow consumer only ever misses intermediate states, never the
// latest one.
func (c *Client) Changes() <-chan struct{} {
	return c.changes
}

// Run performs one connection session and blocks until the link drops or
// ctx is cancelled. The caller is expected to call Run again to reconnect;
// between failed sessions the link sits in the error state.
func (c *Client) Run(ctx context.Context) (err error) {
	defer func() {
		if c.peripheral != nil {
			_ = c.peripheral.Disconnect()
			c.peripheral = nil
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
		return fmt.Errorf("controller discovery failed: %w", err)
	}
	c.logger.Info("Controller found", "name", adv.Name, "address", adv.Address, "rssi", adv.RSSI)

	if err := c.machine.Event(ctx, eventFound); err != nil {
		return err
	}
	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	peripheral, err := c.central.Connect(connectCtx, adv.Address)
	cancel()
	if err != nil {
		return fmt.Errorf("controller connect failed: %w", err)
	}
	c.peripheral = peripheral

	// Service discovery belongs to the connecting step; a controller
	// without the HID service is rejected before pairing touches it.
	chars, err := peripheral.DiscoverCharacteristics(ctx, ServiceHID, []ble.UUID{CharReportMap, CharInputReport})
	if err != nil {
		return fmt.Errorf("HID discovery failed: %w", err)
	}

	if err := c.machine.Event(ctx, eventConnected); err != nil {
		return err
	}
	// Pairing is not optional. The controller drops unauthenticated links
	// a few seconds after the HID subscription.
	if err := peripheral.Pair(ctx); err != nil {
		return fmt.Errorf("controller pairing failed: %w", err)
	}

	if err := c.machine.Event(ctx, eventPaired); err != nil {
		return err
	}
	// The report map read is part of the handshake. Some firmware revisions
	// refuse notification traffic until the host has read it.
	if _, err := chars[CharReportMap].Read(ctx); err != nil {
		return fmt.Errorf("%w: report map read: %v", ble.ErrInitializationFailed, err)
	}

	if err := chars[CharInputReport].Subscribe(ctx, c.handleReport); err != nil {
		return fmt.Errorf("%w: input report subscribe: %v", ble.ErrInitializationFailed, err)
	}

	if err := c.machine.Event(ctx, eventSubscribed); err != nil {
		return err
	}
	c.logger.Info("Controller link ready", "address", adv.Address)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-peripheral.Disconnected():
		return fmt.Errorf("%w: controller link dropped", ble.ErrLinkError)
	}
}

func (c *Client) handleReport(p []byte) {
	state, err := DecodeReport(p)
	if err != nil {
		metrics.ReportsDecodedTotal.WithLabelValues("malformed").Inc()
		c.logger.Warn("Dropping malformed input report", "len", len(p))
		return
	}
	metrics.ReportsDecodedTotal.WithLabelValues("decoded").Inc()

	state = state.WithDeadZone(c.cfg.DeadZone)

	c.mu.Lock()
	c.latest = state
	c.seq++
	c.mu.Unlock()

	select {
	case c.changes <- struct{}{}:
	default:
	}
}
