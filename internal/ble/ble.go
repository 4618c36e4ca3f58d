// Package ble defines the ports the bridge needs from a BLE central:
// scanning, connecting, GATT discovery, read/write/subscribe, and bonded
// pairing. The production adapter lives in the bluez subpackage; tests use
// in-memory fakes.
package ble

import (
	"context"
	"errors"
)

// Link-level error taxonomy. Handshake errors return the owning client to
// the disconnected state; none of them are fatal to the process.
var (
	ErrDeviceNotFound       = errors.New("ble: device not found")
	ErrConnectionTimeout    = errors.New("ble: connection timeout")
	ErrServiceNotFound      = errors.New("ble: service not found")
	ErrPairingFailed        = errors.New("ble: pairing failed")
	ErrInitializationFailed = errors.New("ble: initialization failed")
	ErrNotReady             = errors.New("ble: not ready")
	ErrLinkError            = errors.New("ble: link error")
)

// UUID is a BLE service or characteristic UUID in canonical string form.
// 16-bit UUIDs are expanded to the full 128-bit Bluetooth base form.
type UUID string

// Address is a device address in canonical "AA:BB:CC:DD:EE:FF" form.
type Address string

// Advertisement is one discovered device during a scan.
type Advertisement struct {
	Address Address
	Name    string
	RSSI    int16
}

// Central is the entry point to the BLE stack.
type Central interface {
	// Scan runs active discovery, calling found for every advertisement.
	// Scanning stops when found returns true or ctx is done. Active scanning
	// is required: passive advertising packets lack the device name.
	Scan(ctx context.Context, found func(Advertisement) bool) error

	// Connect opens a connection to a previously discovered device.
	// The deadline on ctx bounds the attempt.
	Connect(ctx context.Context, addr Address) (Peripheral, error)
}

// Peripheral is an open connection to a remote device.
type Peripheral interface {
	Address() Address

	// Pair performs an authenticated pairing exchange with bonding.
	Pair(ctx context.Context) error

	// DiscoverCharacteristics resolves the given characteristics of one
	// service. Every requested UUID must resolve or an error is returned.
	DiscoverCharacteristics(ctx context.Context, service UUID, chars []UUID) (map[UUID]Characteristic, error)

	// Disconnected is closed when the link drops, however that happens.
	Disconnected() <-chan struct{}

	Disconnect() error
}

// Characteristic is an addressable data endpoint on a connected peripheral.
type Characteristic interface {
	// Read reads the characteristic value.
	Read(ctx context.Context) ([]byte, error)

	// Write writes with response; transport failures surface synchronously.
	Write(ctx context.Context, p []byte) error

	// WriteWithoutResponse writes without waiting for an acknowledgement.
	WriteWithoutResponse(ctx context.Context, p []byte) error

	// Subscribe enables notifications, invoking fn for every value.
	Subscribe(ctx context.Context, fn func(p []byte)) error
}
