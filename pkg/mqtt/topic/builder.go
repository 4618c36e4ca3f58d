package topic

import (
	"fmt"
)

// Topic segments shared between the bridge and any telemetry consumer.
// Changing these values breaks existing dashboards.
const (
	// SuffixStatus carries link-status snapshots (retained).
	// Structure: {root}/status/{deviceID}
	SuffixStatus = "status"

	// SuffixCommand carries the live drive-command stream.
	// Structure: {root}/command/{deviceID}
	SuffixCommand = "command"

	// SuffixOnline carries the online/offline flag, also used for the LWT.
	// Structure: {root}/online/{deviceID}
	SuffixOnline = "online"
)

// Builder encapsulates the construction of MQTT topic strings so the
// namespace root is configured in exactly one place.
type Builder struct {
	root string
}

// NewBuilder creates a Builder with the given root namespace (e.g. "brickdrive/v1").
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Status returns the retained link-status topic for the given device.
func (b *Builder) Status(deviceID string) string {
	return b.build(SuffixStatus, deviceID)
}

// Command returns the drive-command stream topic for the given device.
func (b *Builder) Command(deviceID string) string {
	return b.build(SuffixCommand, deviceID)
}

// Online returns the online/LWT topic for the given device.
func (b *Builder) Online(deviceID string) string {
	return b.build(SuffixOnline, deviceID)
}

func (b *Builder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
