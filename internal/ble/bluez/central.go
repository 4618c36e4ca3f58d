// Package bluez adapts the BlueZ stack to the internal/ble ports. GATT
// traffic goes through tinygo.org/x/bluetooth; the bonded pairing exchange
// is driven over the org.bluez D-Bus API, which the tinygo layer does not
// expose.
package bluez

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"

	"github.com/brickdrive/brickdrive/internal/ble"
	"github.com/brickdrive/brickdrive/pkg/log"
)

const defaultConnectTimeout = 10 * time.Second

// Central implements ble.Central on top of the default BlueZ adapter.
type Central struct {
	adapter     *bluetooth.Adapter
	adapterName string
	logger      log.Logger

	mu sync.Mutex
	// seen caches native addresses from the last scans, keyed by canonical
	// string form, because tinygo addresses cannot be rebuilt portably.
	seen map[ble.Address]bluetooth.Address
	// links tracks the disconnect channel of every open connection.
	links map[ble.Address]chan struct{}

	bus *dbus.Conn
}

// New enables the default adapter and connects to the system bus.
// adapterName is the BlueZ adapter id, normally "hci0".
func New(adapterName string) (*Central, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}

	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	c := &Central{
		adapter:     adapter,
		adapterName: adapterName,
		logger:      log.WithName("bluez"),
		seen:        make(map[ble.Address]bluetooth.Address),
		links:       make(map[ble.Address]chan struct{}),
	}
	c.bus = bus

	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := ble.Address(device.Address.String())
		c.mu.Lock()
		ch, ok := c.links[addr]
		if ok {
			delete(c.links, addr)
		}
		c.mu.Unlock()
		if ok {
			c.logger.Warn("Link dropped", "address", addr)
			close(ch)
		}
	})

	return c, nil
}

// Scan implements ble.Central. Discovery is active so advertisements carry
// the device name.
func (c *Central) Scan(ctx context.Context, found func(ble.Advertisement) bool) error {
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			_ = c.adapter.StopScan()
			close(done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	err := c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		adv := ble.Advertisement{
			Address: ble.Address(result.Address.String()),
			Name:    result.LocalName(),
			RSSI:    result.RSSI,
		}

		c.mu.Lock()
		c.seen[adv.Address] = result.Address
		c.mu.Unlock()

		if found(adv) {
			stop()
		}
	})
	stop()

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

// Connect implements ble.Central. The attempt is bounded by the ctx deadline,
// falling back to a fixed default.
func (c *Central) Connect(ctx context.Context, addr ble.Address) (ble.Peripheral, error) {
	c.mu.Lock()
	native, ok := c.seen[addr]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s was never discovered", ble.ErrDeviceNotFound, addr)
	}

	timeout := defaultConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	device, err := c.adapter.Connect(native, bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ble.ErrConnectionTimeout, err)
	}

	lost := make(chan struct{})
	c.mu.Lock()
	c.links[addr] = lost
	c.mu.Unlock()

	return &peripheral{
		central: c,
		device:  device,
		addr:    addr,
		lost:    lost,
	}, nil
}

// devicePath computes the BlueZ object path for a device address.
func (c *Central) devicePath(addr ble.Address) dbus.ObjectPath {
	suffix := strings.ReplaceAll(string(addr), ":", "_")
	return dbus.ObjectPath(fmt.Sprintf("/org/bluez/%s/dev_%s", c.adapterName, suffix))
}

// characteristicPaths maps characteristic UUIDs to their BlueZ object paths
// under the given device. Acknowledged writes go through WriteValue on the
// raw object, which the tinygo layer does not hand out.
func (c *Central) characteristicPaths(device dbus.ObjectPath) (map[string]dbus.ObjectPath, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	root := c.bus.Object("org.bluez", "/")
	if err := root.Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("failed to list bluez objects: %w", err)
	}
	return characteristicPathsFrom(objects, device), nil
}

func characteristicPathsFrom(objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant, device dbus.ObjectPath) map[string]dbus.ObjectPath {
	prefix := string(device) + "/"
	out := make(map[string]dbus.ObjectPath)
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		props, ok := ifaces["org.bluez.GattCharacteristic1"]
		if !ok {
			continue
		}
		uuid, ok := props["UUID"].Value().(string)
		if !ok {
			continue
		}
		out[strings.ToLower(uuid)] = path
	}
	return out
}

type peripheral struct {
	central *Central
	device  bluetooth.Device
	addr    ble.Address
	lost    chan struct{}
}

var _ ble.Peripheral = (*peripheral)(nil)

func (p *peripheral) Address() ble.Address {
	return p.addr
}

// Pair performs a bonded pairing exchange via org.bluez.Device1.Pair.
// An already-bonded device is treated as success.
func (p *peripheral) Pair(ctx context.Context) error {
	obj := p.central.bus.Object("org.bluez", p.central.devicePath(p.addr))
	call := obj.CallWithContext(ctx, "org.bluez.Device1.Pair", 0)
	if call.Err != nil {
		if dbusErr, ok := call.Err.(dbus.Error); ok && dbusErr.Name == "org.bluez.Error.AlreadyExists" {
			return nil
		}
		return fmt.Errorf("%w: %v", ble.ErrPairingFailed, call.Err)
	}
	return nil
}

func (p *peripheral) DiscoverCharacteristics(ctx context.Context, service ble.UUID, chars []ble.UUID) (map[ble.UUID]ble.Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(string(service))
	if err != nil {
		return nil, fmt.Errorf("invalid service uuid %q: %w", service, err)
	}

	svcs, err := p.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(svcs) == 0 {
		return nil, fmt.Errorf("%w: service %s", ble.ErrServiceNotFound, service)
	}

	want := make([]bluetooth.UUID, 0, len(chars))
	for _, cu := range chars {
		u, err := bluetooth.ParseUUID(string(cu))
		if err != nil {
			return nil, fmt.Errorf("invalid characteristic uuid %q: %w", cu, err)
		}
		want = append(want, u)
	}

	discovered, err := svcs[0].DiscoverCharacteristics(want)
	if err != nil {
		return nil, fmt.Errorf("%w: characteristics of %s", ble.ErrServiceNotFound, service)
	}

	paths, err := p.central.characteristicPaths(p.central.devicePath(p.addr))
	if err != nil {
		return nil, err
	}

	out := make(map[ble.UUID]ble.Characteristic, len(chars))
	for _, dc := range discovered {
		for i, u := range want {
			if dc.UUID() != u {
				continue
			}
			path, ok := paths[strings.ToLower(string(chars[i]))]
			if !ok {
				return nil, fmt.Errorf("%w: no object path for characteristic %s", ble.ErrServiceNotFound, chars[i])
			}
			out[chars[i]] = &characteristic{char: dc, bus: p.central.bus, path: path}
		}
	}
	for _, cu := range chars {
		if _, ok := out[cu]; !ok {
			return nil, fmt.Errorf("%w: characteristic %s", ble.ErrServiceNotFound, cu)
		}
	}
	return out, nil
}

func (p *peripheral) Disconnected() <-chan struct{} {
	return p.lost
}

func (p *peripheral) Disconnect() error {
	p.central.mu.Lock()
	delete(p.central.links, p.addr)
	p.central.mu.Unlock()
	return p.device.Disconnect()
}

type characteristic struct {
	char bluetooth.DeviceCharacteristic
	bus  *dbus.Conn
	path dbus.ObjectPath
}

var _ ble.Characteristic = (*characteristic)(nil)

func (c *characteristic) Read(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 512)
	n, err := c.char.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Write performs an acknowledged write. BlueZ only exposes write-with-response
// through WriteValue on the characteristic object, so the frame goes over
// D-Bus rather than the tinygo layer.
func (c *characteristic) Write(ctx context.Context, p []byte) error {
	options := map[string]dbus.Variant{"type": dbus.MakeVariant("request")}
	obj := c.bus.Object("org.bluez", c.path)
	call := obj.CallWithContext(ctx, "org.bluez.GattCharacteristic1.WriteValue", 0, p, options)
	if call.Err != nil {
		return fmt.Errorf("%w: %v", ble.ErrLinkError, call.Err)
	}
	return nil
}

func (c *characteristic) WriteWithoutResponse(ctx context.Context, p []byte) error {
	if _, err := c.char.WriteWithoutResponse(p); err != nil {
		return fmt.Errorf("%w: %v", ble.ErrLinkError, err)
	}
	return nil
}

func (c *characteristic) Subscribe(ctx context.Context, fn func(p []byte)) error {
	return c.char.EnableNotifications(fn)
}
