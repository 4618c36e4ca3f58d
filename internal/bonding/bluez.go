package bonding

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/brickdrive/brickdrive/pkg/log"
)

const (
	bluezService         = "org.bluez"
	deviceInterface      = "org.bluez.Device1"
	adapterRemoveDevice  = "org.bluez.Adapter1.RemoveDevice"
	objectManagerGetAll  = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
	errDoesNotExist      = "org.bluez.Error.DoesNotExist"
	errUnknownObjectName = "org.freedesktop.DBus.Error.UnknownObject"
)

// BluezStore removes bonds through the org.bluez D-Bus API.
type BluezStore struct {
	bus         *dbus.Conn
	adapterName string
	logger      log.Logger
}

// NewBluezStore connects to the system bus. adapterName is the BlueZ
// adapter id, normally "hci0".
func NewBluezStore(adapterName string) (*BluezStore, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return &BluezStore{
		bus:         bus,
		adapterName: adapterName,
		logger:      log.WithName("bonding"),
	}, nil
}

func (s *BluezStore) adapterPath() dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + s.adapterName)
}

// Clear enumerates every paired device under the adapter and removes it.
func (s *BluezStore) Clear(ctx context.Context) error {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	root := s.bus.Object(bluezService, "/")
	if err := root.CallWithContext(ctx, objectManagerGetAll, 0).Store(&objects); err != nil {
		return fmt.Errorf("failed to enumerate bluez objects: %w", err)
	}

	prefix := string(s.adapterPath()) + "/"
	adapter := s.bus.Object(bluezService, s.adapterPath())

	for path, ifaces := range objects {
		props, ok := ifaces[deviceInterface]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		paired, _ := props["Paired"].Value().(bool)
		if !paired {
			continue
		}

		addr, _ := props["Address"].Value().(string)
		s.logger.Info("Removing stale bond", "address", addr)
		call := adapter.CallWithContext(ctx, adapterRemoveDevice, 0, path)
		if call.Err != nil && !isMissing(call.Err) {
			return fmt.Errorf("failed to remove bond for %s: %w", addr, call.Err)
		}
	}
	return nil
}

// Forget removes the bond for one device address.
func (s *BluezStore) Forget(ctx context.Context, addr string) error {
	suffix := strings.ReplaceAll(strings.ToUpper(addr), ":", "_")
	path := dbus.ObjectPath(string(s.adapterPath()) + "/dev_" + suffix)

	adapter := s.bus.Object(bluezService, s.adapterPath())
	call := adapter.CallWithContext(ctx, adapterRemoveDevice, 0, path)
	if call.Err != nil && !isMissing(call.Err) {
		return fmt.Errorf("failed to remove bond for %s: %w", addr, call.Err)
	}
	return nil
}

func isMissing(err error) bool {
	dbusErr, ok := err.(dbus.Error)
	if !ok {
		return false
	}
	return dbusErr.Name == errDoesNotExist || dbusErr.Name == errUnknownObjectName
}
