package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/brickdrive/brickdrive/cmd/brickdrive/app/options"
	"github.com/brickdrive/brickdrive/internal/ble"
	"github.com/brickdrive/brickdrive/internal/ble/bluez"
	"github.com/brickdrive/brickdrive/pkg/log"
)

// newScanCommand builds the `brickdrive scan` subcommand: a discovery
// sweep printing nearby devices, used to pick name filters.
func newScanCommand(opts *options.BridgeOptions) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover nearby BLE devices and print their names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Init(log.NewOptions())
			return runScan(opts.Adapter, duration)
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "How long to scan.")
	return cmd
}

func runScan(adapter string, duration time.Duration) error {
	central, err := bluez.New(adapter)
	if err != nil {
		return fmt.Errorf("failed to set up bluetooth: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	seen := make(map[ble.Address]ble.Advertisement)
	err = central.Scan(ctx, func(adv ble.Advertisement) bool {
		// Keep the strongest advertisement per device.
		if prev, ok := seen[adv.Address]; !ok || adv.RSSI > prev.RSSI || (prev.Name == "" && adv.Name != "") {
			seen[adv.Address] = adv
		}
		return false
	})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	devices := make([]ble.Advertisement, 0, len(seen))
	for _, adv := range seen {
		devices = append(devices, adv)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].RSSI > devices[j].RSSI })

	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("ADDRESS", "NAME", "RSSI")
	for _, adv := range devices {
		name := adv.Name
		if name == "" {
			name = "(unnamed)"
		}
		table.AddRow(string(adv.Address), name, fmt.Sprintf("%d", adv.RSSI))
	}

	fmt.Fprintln(os.Stdout, table)
	fmt.Fprintf(os.Stdout, "\n%d devices in %s\n", len(devices), duration)
	return nil
}
