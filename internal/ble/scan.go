package ble

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ScanForName discovers the first device whose advertised name contains
// pattern (case-insensitive). Returns ErrDeviceNotFound when the timeout
// elapses without a match.
func ScanForName(ctx context.Context, c Central, pattern string, timeout time.Duration) (Advertisement, error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var match Advertisement
	found := false

	err := c.Scan(scanCtx, func(adv Advertisement) bool {
		if adv.Name == "" {
			return false
		}
		if strings.Contains(strings.ToLower(adv.Name), strings.ToLower(pattern)) {
			match = adv
			found = true
			return true
		}
		return false
	})

	if found {
		return match, nil
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return Advertisement{}, err
	}
	if ctx.Err() != nil {
		return Advertisement{}, ctx.Err()
	}
	return Advertisement{}, ErrDeviceNotFound
}
