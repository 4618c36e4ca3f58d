// Package telemetry publishes bridge status over MQTT for dashboards and
// remote monitoring. Publishing is optional; the bridge runs fine without
// a broker.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brickdrive/brickdrive/internal/bridge"
	"github.com/brickdrive/brickdrive/pkg/log"
	"github.com/brickdrive/brickdrive/pkg/mqtt"
	"github.com/brickdrive/brickdrive/pkg/mqtt/topic"
)

const (
	qosStatus  = 1
	qosCommand = 0

	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Source is what the publisher reads each interval.
type Source interface {
	Snapshot() bridge.Snapshot
}

// Config tunes the publisher.
type Config struct {
	// DeviceID is the last topic segment identifying this vehicle.
	DeviceID string

	// Interval between retained status publications.
	Interval time.Duration
}

// Publisher periodically pushes retained status snapshots, a live command
// stream, and an online flag whose LWT counterpart flips it to offline
// when the bridge drops off the broker.
type Publisher struct {
	cfg    Config
	client mqtt.Client
	topics *topic.Builder
	source Source
	logger log.Logger

	lastCommand string
}

func NewPublisher(cfg Config, client mqtt.Client, topics *topic.Builder, source Source) *Publisher {
	return &Publisher{
		cfg:    cfg,
		client: client,
		topics: topics,
		source: source,
		logger: log.WithName("telemetry"),
	}
}

// WillFor returns the LWT settings matching this publisher's online topic.
// Callers apply it to the client config before connecting.
func WillFor(topics *topic.Builder, deviceID string) (string, []byte) {
	return topics.Online(deviceID), []byte(payloadOffline)
}

// Run connects and publishes until ctx is done. An offline flag is
// published on clean shutdown; the LWT covers unclean ones.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mqtt client: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.client.Publish(shutdownCtx, p.topics.Online(p.cfg.DeviceID), qosStatus, true, []byte(payloadOffline))
		p.client.Disconnect(shutdownCtx)
	}()

	if err := p.client.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("failed to reach mqtt broker: %w", err)
	}
	p.logger.Info("Telemetry connected", "device", p.cfg.DeviceID)

	if err := p.client.Publish(ctx, p.topics.Online(p.cfg.DeviceID), qosStatus, true, []byte(payloadOnline)); err != nil {
		return fmt.Errorf("failed to publish online flag: %w", err)
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.publish(ctx)
		}
	}
}

func (p *Publisher) publish(ctx context.Context) {
	snap := p.source.Snapshot()

	payload, err := json.Marshal(snap)
	if err != nil {
		p.logger.Warn("Failed to marshal snapshot", "error", err)
		return
	}
	if err := p.client.Publish(ctx, p.topics.Status(p.cfg.DeviceID), qosStatus, true, payload); err != nil {
		p.logger.Warn("Failed to publish status", "error", err)
	}

	// The command stream only carries changes, at QoS 0: consumers want
	// the live feel, not guaranteed delivery of every frame.
	cmd, err := json.Marshal(snap.LastCommand)
	if err != nil {
		return
	}
	if string(cmd) == p.lastCommand {
		return
	}
	p.lastCommand = string(cmd)
	if err := p.client.Publish(ctx, p.topics.Command(p.cfg.DeviceID), qosCommand, false, cmd); err != nil {
		p.logger.Warn("Failed to publish command", "error", err)
	}
}
