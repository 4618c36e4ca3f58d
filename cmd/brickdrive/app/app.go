// Package app wires the brickdrive daemon: both BLE links, the control
// loop, the HTTP status server, and optional MQTT telemetry.
package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/brickdrive/brickdrive/cmd/brickdrive/app/options"
	"github.com/brickdrive/brickdrive/internal/ble/bluez"
	"github.com/brickdrive/brickdrive/internal/bonding"
	"github.com/brickdrive/brickdrive/internal/bridge"
	"github.com/brickdrive/brickdrive/internal/server"
	"github.com/brickdrive/brickdrive/internal/telemetry"
	"github.com/brickdrive/brickdrive/pkg/app"
	"github.com/brickdrive/brickdrive/pkg/log"
	"github.com/brickdrive/brickdrive/pkg/mqtt"
	"github.com/brickdrive/brickdrive/pkg/mqtt/topic"
)

const description = `brickdrive bridges an Xbox wireless controller and a LEGO Technic Move
hub over two independent BLE links, translating stick input into drive
frames in real time. It serves a local status API and can publish
telemetry to an MQTT broker.`

// NewApp builds the brickdrive application.
func NewApp() *app.App {
	opts := options.NewBridgeOptions()

	a := app.NewApp("brickdrive", "Xbox controller to LEGO hub BLE bridge",
		app.WithDescription(description),
		app.WithOptions(opts),
		app.WithLogOptions(opts.Log),
		app.WithRunFunc(func() error {
			return run(opts)
		}),
	)

	a.Command().AddCommand(newScanCommand(opts))
	return a
}

func run(opts *options.BridgeOptions) error {
	ctx := app.SetupSignalContext()
	logger := log.WithName("brickdrive")

	central, err := bluez.New(opts.Adapter)
	if err != nil {
		return fmt.Errorf("failed to set up bluetooth: %w", err)
	}
	bonds, err := bonding.NewBluezStore(opts.Adapter)
	if err != nil {
		return fmt.Errorf("failed to set up bond store: %w", err)
	}

	b := bridge.New(opts.Config(), central, bonds)
	srv := server.NewServer(opts.Http, b.Loop())

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return b.Run(ctx) })
	eg.Go(func() error { return srv.Start(ctx) })

	if opts.Mqtt.Enabled() {
		topics := topic.NewBuilder(opts.Mqtt.TopicRoot)

		cfg := opts.Mqtt.ToClientConfig()
		cfg.WillTopic, cfg.WillPayload = telemetry.WillFor(topics, opts.DeviceID)
		cfg.WillQoS = 1
		cfg.WillRetain = true

		client, err := mqtt.NewClient(cfg)
		if err != nil {
			return fmt.Errorf("failed to create mqtt client: %w", err)
		}

		pub := telemetry.NewPublisher(telemetry.Config{
			DeviceID: opts.DeviceID,
			Interval: opts.Control.TelemetryInterval,
		}, client, topics, b.Loop())
		eg.Go(func() error { return pub.Run(ctx) })

		logger.Info("Telemetry enabled", "broker", opts.Mqtt.Broker, "device", opts.DeviceID)
	}

	logger.Info("Bridge starting", "adapter", opts.Adapter)
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Bridge stopped")
	return nil
}
