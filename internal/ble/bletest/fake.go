// Package bletest provides in-memory fakes of the ble ports for tests.
package bletest

import (
	"context"
	"sync"

	"github.com/brickdrive/brickdrive/internal/ble"
)

// CallLog records the order of link operations across a fake peripheral
// and its characteristics.
type CallLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *CallLog) add(entry string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the recorded calls.
func (l *CallLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// Central is a scripted ble.Central.
type Central struct {
	mu sync.Mutex

	// Advertisements is replayed to every Scan call, in order.
	Advertisements []ble.Advertisement

	// Peripherals maps addresses to the peripheral Connect hands out.
	Peripherals map[ble.Address]*Peripheral

	ConnectErr error

	ConnectCalls int
}

func NewCentral() *Central {
	return &Central{Peripherals: make(map[ble.Address]*Peripheral)}
}

// AddDevice registers an advertisement and its connectable peripheral.
func (c *Central) AddDevice(adv ble.Advertisement, p *Peripheral) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Advertisements = append(c.Advertisements, adv)
	p.Addr = adv.Address
	c.Peripherals[adv.Address] = p
}

func (c *Central) Scan(ctx context.Context, found func(ble.Advertisement) bool) error {
	c.mu.Lock()
	advs := append([]ble.Advertisement(nil), c.Advertisements...)
	c.mu.Unlock()

	for _, adv := range advs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if found(adv) {
			return nil
		}
	}
	return nil
}

func (c *Central) Connect(ctx context.Context, addr ble.Address) (ble.Peripheral, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ConnectCalls++
	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}
	p, ok := c.Peripherals[addr]
	if !ok {
		return nil, ble.ErrDeviceNotFound
	}
	return p, nil
}

// Peripheral is a scripted ble.Peripheral.
type Peripheral struct {
	Addr ble.Address
	Log  *CallLog

	PairErr     error
	DiscoverErr error

	// Services maps service UUID to its characteristics.
	Services map[ble.UUID]map[ble.UUID]*Characteristic

	PairCalls int

	dropOnce sync.Once
	lost     chan struct{}
}

func NewPeripheral(log *CallLog) *Peripheral {
	return &Peripheral{
		Log:      log,
		Services: make(map[ble.UUID]map[ble.UUID]*Characteristic),
		lost:     make(chan struct{}),
	}
}

// AddCharacteristic registers a characteristic under a service and returns it.
func (p *Peripheral) AddCharacteristic(service, char ble.UUID) *Characteristic {
	if p.Services[service] == nil {
		p.Services[service] = make(map[ble.UUID]*Characteristic)
	}
	c := &Characteristic{UUID: char, Log: p.Log}
	p.Services[service][char] = c
	return c
}

// DropLink simulates the remote side vanishing.
func (p *Peripheral) DropLink() {
	p.dropOnce.Do(func() { close(p.lost) })
}

func (p *Peripheral) Address() ble.Address { return p.Addr }

func (p *Peripheral) Pair(ctx context.Context) error {
	p.Log.add("pair")
	p.PairCalls++
	return p.PairErr
}

func (p *Peripheral) DiscoverCharacteristics(ctx context.Context, service ble.UUID, chars []ble.UUID) (map[ble.UUID]ble.Characteristic, error) {
	p.Log.add("discover:" + string(service))
	if p.DiscoverErr != nil {
		return nil, p.DiscoverErr
	}
	svc, ok := p.Services[service]
	if !ok {
		return nil, ble.ErrServiceNotFound
	}
	out := make(map[ble.UUID]ble.Characteristic, len(chars))
	for _, cu := range chars {
		c, ok := svc[cu]
		if !ok {
			return nil, ble.ErrServiceNotFound
		}
		out[cu] = c
	}
	return out, nil
}

func (p *Peripheral) Disconnected() <-chan struct{} { return p.lost }

func (p *Peripheral) Disconnect() error {
	p.DropLink()
	return nil
}

// Characteristic is a scripted ble.Characteristic.
type Characteristic struct {
	UUID ble.UUID
	Log  *CallLog

	mu       sync.Mutex
	Value    []byte
	ReadErr  error
	WriteErr error
	writes   [][]byte
	notify   func([]byte)

	SubscribeErr error
}

func (c *Characteristic) Read(ctx context.Context) ([]byte, error) {
	c.Log.add("read:" + string(c.UUID))
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	return append([]byte(nil), c.Value...), nil
}

func (c *Characteristic) Write(ctx context.Context, p []byte) error {
	c.Log.add("write:" + string(c.UUID))
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	return nil
}

func (c *Characteristic) WriteWithoutResponse(ctx context.Context, p []byte) error {
	return c.Write(ctx, p)
}

func (c *Characteristic) Subscribe(ctx context.Context, fn func(p []byte)) error {
	c.Log.add("subscribe:" + string(c.UUID))
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		return c.SubscribeErr
	}
	c.notify = fn
	return nil
}

// Notify pushes a value to the subscriber, if any.
func (c *Characteristic) Notify(p []byte) {
	c.mu.Lock()
	fn := c.notify
	c.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// Writes returns a copy of everything written so far.
func (c *Characteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	for i, w := range c.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// LastWrite returns the most recent write, or nil.
func (c *Characteristic) LastWrite() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.writes) == 0 {
		return nil
	}
	return append([]byte(nil), c.writes[len(c.writes)-1]...)
}
