// Package bonding manages the adapter's persisted BLE bonds. Stale bonds
// left over from a previous run break reconnection on both links, so the
// bridge clears them before its first connection attempt.
package bonding

import "context"

// Store abstracts persisted bond management.
type Store interface {
	// Clear removes every bond known to the adapter. Partial failure is
	// reported as an error; callers treat it as fatal because a stale bond
	// makes later pairing attempts fail in hard-to-diagnose ways.
	Clear(ctx context.Context) error

	// Forget removes the bond for one device, if present. Forgetting an
	// unknown device is not an error.
	Forget(ctx context.Context, addr string) error
}
