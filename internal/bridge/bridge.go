package bridge

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/brickdrive/brickdrive/internal/ble"
	"github.com/brickdrive/brickdrive/internal/bonding"
	"github.com/brickdrive/brickdrive/internal/gamepad"
	"github.com/brickdrive/brickdrive/internal/hub"
)

// Config collects the settings of the whole bridging core.
type Config struct {
	Gamepad gamepad.Config
	Hub     hub.Config
	Manager ManagerConfig
	Loop    LoopConfig
}

// Bridge composes the two link clients, their supervisor and the control
// loop. The BLE central and bond store are injected so the core stays
// independent of the BlueZ stack.
type Bridge struct {
	manager *Manager
	loop    *Loop

	gamepad *gamepad.Client
	hub     *hub.Client
}

func New(cfg Config, central ble.Central, bonds bonding.Store) *Bridge {
	gamepadClient := gamepad.NewClient(central, cfg.Gamepad)
	hubClient := hub.NewClient(central, cfg.Hub)

	return &Bridge{
		manager: NewManager(cfg.Manager, bonds, gamepadClient, hubClient),
		loop:    NewLoop(cfg.Loop, gamepadClient, hubClient),
		gamepad: gamepadClient,
		hub:     hubClient,
	}
}

// Loop exposes the control loop for the status API, the emergency-stop
// endpoint and the telemetry publisher.
func (b *Bridge) Loop() *Loop {
	return b.loop
}

// Status returns both link states.
func (b *Bridge) Status() (gamepadStatus, hubStatus string) {
	return b.manager.Status()
}

// Run drives the supervisor and the control loop until ctx is done or the
// supervisor fails fatally.
func (b *Bridge) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return b.manager.Run(ctx) })
	eg.Go(func() error { return b.loop.Run(ctx) })
	return eg.Wait()
}
