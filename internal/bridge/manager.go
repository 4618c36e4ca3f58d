// Package bridge wires the controller and hub links together: a connection
// manager supervising both links and a control loop turning input into
// drive frames.
package bridge

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brickdrive/brickdrive/internal/bonding"
	"github.com/brickdrive/brickdrive/internal/pkg/metrics"
	"github.com/brickdrive/brickdrive/pkg/log"
)

// linkClient is the supervision surface both BLE clients share.
type linkClient interface {
	// Run performs one connection session, blocking until the link drops
	// or ctx is cancelled.
	Run(ctx context.Context) error
	Status() string
}

// ManagerConfig tunes link supervision.
type ManagerConfig struct {
	// Backoff is the fixed delay between reconnect attempts.
	Backoff time.Duration

	// MaxAttempts caps reconnect attempts per link. Zero means unbounded,
	// the right default for a manually operated vehicle.
	MaxAttempts int
}

// Manager supervises both BLE links independently. Either link may be
// ready while the other is still scanning; neither blocks the other.
type Manager struct {
	cfg     ManagerConfig
	bonds   bonding.Store
	gamepad linkClient
	hub     linkClient
	logger  log.Logger
}

func NewManager(cfg ManagerConfig, bonds bonding.Store, gamepadClient, hubClient linkClient) *Manager {
	return &Manager{
		cfg:     cfg,
		bonds:   bonds,
		gamepad: gamepadClient,
		hub:     hubClient,
		logger:  log.WithName("manager"),
	}
}

// Status returns both link states.
func (m *Manager) Status() (gamepadStatus, hubStatus string) {
	return m.gamepad.Status(), m.hub.Status()
}

// Run clears stale bonds, then supervises both links until ctx is done.
// A bond-clearing failure is returned as fatal: stale bonds make later
// reconnects fail silently, which is far harder to diagnose than a
// refused startup.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.bonds.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear stale bonds: %w", err)
	}
	m.logger.Info("Bonding records cleared")

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return m.supervise(ctx, "gamepad", m.gamepad) })
	eg.Go(func() error { return m.supervise(ctx, "hub", m.hub) })
	return eg.Wait()
}

// supervise restarts one link's session with a fixed backoff.
func (m *Manager) supervise(ctx context.Context, name string, client linkClient) error {
	attempts := 0
	for {
		err := client.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempts++
		metrics.ReconnectsTotal.WithLabelValues(name).Inc()
		m.logger.Warn("Link session ended", "link", name, "attempt", attempts, "error", err)

		if m.cfg.MaxAttempts > 0 && attempts >= m.cfg.MaxAttempts {
			return fmt.Errorf("%s link gave up after %d attempts: %w", name, attempts, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.Backoff):
		}
	}
}
