package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/srg/bleproxy/internal/backend"
)

// FakeBackend is an in-memory backend.Backend for tests. Scan events are
// injected with EmitAdvertisement; peripherals are registered by MAC with
// AddPeripheral.
type FakeBackend struct {
	Adapter    string // adapter MAC, "" means not exposed
	AdapterErr error
	ConnectErr error

	// ConnectGate, when set, parks Connect until the channel closes or the
	// context is cancelled. Lets tests observe the connecting state.
	ConnectGate chan struct{}

	mu          sync.Mutex
	peripherals map[string]*FakePeripheral
	scanHandler backend.ScanHandler
	scanCount   int
	scanning    bool
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		Adapter:     "AA:BB:CC:DD:EE:FF",
		peripherals: make(map[string]*FakePeripheral),
	}
}

func (f *FakeBackend) AdapterAddress() (string, error) {
	if f.AdapterErr != nil {
		return "", f.AdapterErr
	}
	if f.Adapter == "" {
		return "", errors.New("adapter does not report its address")
	}
	return f.Adapter, nil
}

func (f *FakeBackend) Scan(ctx context.Context, active bool, handler backend.ScanHandler) error {
	f.mu.Lock()
	f.scanHandler = handler
	f.scanCount++
	f.scanning = true
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	f.scanHandler = nil
	f.scanning = false
	f.mu.Unlock()
	return nil
}

// EmitAdvertisement injects a scan event as if the adapter observed it.
// Returns false when no scan is running.
func (f *FakeBackend) EmitAdvertisement(ev backend.ScanEvent) bool {
	f.mu.Lock()
	handler := f.scanHandler
	f.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(ev)
	return true
}

func (f *FakeBackend) Scanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanning
}

func (f *FakeBackend) ScanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanCount
}

// AddPeripheral registers a connectable peripheral under its MAC.
func (f *FakeBackend) AddPeripheral(p *FakePeripheral) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peripherals[p.Address] = p
}

func (f *FakeBackend) Connect(ctx context.Context, address string) (backend.Client, error) {
	if f.ConnectErr != nil {
		return nil, f.ConnectErr
	}
	if f.ConnectGate != nil {
		select {
		case <-f.ConnectGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	p, ok := f.peripherals[address]
	f.mu.Unlock()
	if !ok {
		return nil, backend.ErrTimeout
	}
	return newFakeClient(p), nil
}

// FakePeripheral describes a connectable device: its GATT database, stored
// values, and injectable failures.
type FakePeripheral struct {
	Address  string
	MTU      int
	Services []backend.Service

	Values       map[uint32][]byte
	ReadErr      error
	WriteErr     error
	SubscribeErr error
	DiscoverErr  error

	mu      sync.Mutex
	writes  map[uint32][][]byte
	clients []*FakeClient
}

func NewFakePeripheral(address string) *FakePeripheral {
	return &FakePeripheral{
		Address: address,
		MTU:     247,
		Values:  make(map[uint32][]byte),
		writes:  make(map[uint32][][]byte),
	}
}

// Writes returns the values written to a handle, in order.
func (p *FakePeripheral) Writes(handle uint32) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes[handle]
}

// Notify pushes a value to every connected client subscribed to the handle.
func (p *FakePeripheral) Notify(handle uint32, data []byte) {
	p.mu.Lock()
	clients := append([]*FakeClient(nil), p.clients...)
	p.mu.Unlock()
	for _, c := range clients {
		c.notify(handle, data)
	}
}

// DropAllConnections simulates the peripheral going away.
func (p *FakePeripheral) DropAllConnections() {
	p.mu.Lock()
	clients := append([]*FakeClient(nil), p.clients...)
	p.clients = nil
	p.mu.Unlock()
	for _, c := range clients {
		c.drop()
	}
}

// FakeClient implements backend.Client against a FakePeripheral.
type FakeClient struct {
	peripheral *FakePeripheral

	mu            sync.Mutex
	subscriptions map[uint32]func([]byte)
	disconnected  chan struct{}
	closed        bool
}

func newFakeClient(p *FakePeripheral) *FakeClient {
	c := &FakeClient{
		peripheral:    p,
		subscriptions: make(map[uint32]func([]byte)),
		disconnected:  make(chan struct{}),
	}
	p.mu.Lock()
	p.clients = append(p.clients, c)
	p.mu.Unlock()
	return c
}

func (c *FakeClient) Address() string { return c.peripheral.Address }

func (c *FakeClient) MTU() int { return c.peripheral.MTU }

func (c *FakeClient) DiscoverServices(ctx context.Context) ([]backend.Service, error) {
	if c.peripheral.DiscoverErr != nil {
		return nil, c.peripheral.DiscoverErr
	}
	return c.peripheral.Services, nil
}

func (c *FakeClient) ReadCharacteristic(ctx context.Context, handle uint32) ([]byte, error) {
	return c.read(handle)
}

func (c *FakeClient) ReadDescriptor(ctx context.Context, handle uint32) ([]byte, error) {
	return c.read(handle)
}

func (c *FakeClient) read(handle uint32) ([]byte, error) {
	if c.peripheral.ReadErr != nil {
		return nil, c.peripheral.ReadErr
	}
	v, ok := c.peripheral.Values[handle]
	if !ok {
		return nil, &backend.NotFoundError{Resource: "characteristic", Handle: handle}
	}
	return v, nil
}

func (c *FakeClient) WriteCharacteristic(ctx context.Context, handle uint32, data []byte, withResponse bool) error {
	return c.write(handle, data)
}

func (c *FakeClient) WriteDescriptor(ctx context.Context, handle uint32, data []byte) error {
	return c.write(handle, data)
}

func (c *FakeClient) write(handle uint32, data []byte) error {
	if c.peripheral.WriteErr != nil {
		return c.peripheral.WriteErr
	}
	c.peripheral.mu.Lock()
	c.peripheral.writes[handle] = append(c.peripheral.writes[handle], append([]byte(nil), data...))
	c.peripheral.mu.Unlock()
	return nil
}

func (c *FakeClient) Subscribe(ctx context.Context, handle uint32, indicate bool, fn func(data []byte)) error {
	if c.peripheral.SubscribeErr != nil {
		return c.peripheral.SubscribeErr
	}
	c.mu.Lock()
	c.subscriptions[handle] = fn
	c.mu.Unlock()
	return nil
}

func (c *FakeClient) Unsubscribe(ctx context.Context, handle uint32) error {
	c.mu.Lock()
	delete(c.subscriptions, handle)
	c.mu.Unlock()
	return nil
}

func (c *FakeClient) notify(handle uint32, data []byte) {
	c.mu.Lock()
	fn := c.subscriptions[handle]
	c.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func (c *FakeClient) Disconnected() <-chan struct{} {
	return c.disconnected
}

func (c *FakeClient) Disconnect() error {
	c.drop()
	return nil
}

func (c *FakeClient) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.disconnected)
	}
}
