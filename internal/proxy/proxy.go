// Package proxy implements the Bluetooth side of the daemon: the scanner,
// the advertisement batcher, the outbound connection pool, and the fan-out
// of asynchronous messages to subscribed API clients.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/bleproxy/internal/backend"
	"github.com/srg/bleproxy/internal/groutine"
	"github.com/srg/bleproxy/internal/protocol"
)

// DefaultMaxConnections is the slot pool size unless configured otherwise.
const DefaultMaxConnections = 3

const connectTimeout = 20 * time.Second

// Subscriber receives asynchronous pushes: advertisement batches, scanner
// state changes, connection outcomes, and notification data. Push must not
// block; slow subscribers drop frames in their own queue.
type Subscriber interface {
	Push(msg protocol.Message)
}

// Errors surfaced to the request path. The API layer translates them into
// error-coded responses.
var (
	ErrAlreadyConnected    = errors.New("device already has a connection slot")
	ErrNoFreeSlot          = errors.New("no free connection slot")
	ErrConnectionsDisabled = errors.New("active connections are disabled")
	ErrNotConnected        = errors.New("device is not connected")
)

// Stats is a point-in-time snapshot of the coordinator.
type Stats struct {
	Subscribers  int
	ActiveSlots  int
	TotalSlots   int
	Batcher      BatcherStats
	ScannerState uint32
	ScannerMode  uint32
}

// Proxy owns the scanner, batcher, and slot pool, and fans out asynchronous
// messages to subscribers.
type Proxy struct {
	backend           backend.Backend
	logger            *logrus.Logger
	activeConnections bool

	scanner *Scanner
	batcher *Batcher

	slots        []*slot
	addressIndex *hashmap.Map[uint64, *slot]

	subMu       sync.RWMutex
	subscribers []Subscriber
}

func New(b backend.Backend, maxConnections int, activeConnections bool, logger *logrus.Logger) *Proxy {
	if maxConnections <= 0 {
		maxConnections = DefaultMaxConnections
	}

	p := &Proxy{
		backend:           b,
		logger:            logger,
		activeConnections: activeConnections,
		addressIndex:      hashmap.New[uint64, *slot](),
	}

	p.batcher = NewBatcher(p.sendBatch, logger)
	p.scanner = NewScanner(b, p.batcher.Acquire, p.batcher.Append, p.pushScannerState, logger)

	p.slots = make([]*slot, maxConnections)
	for i := range p.slots {
		p.slots[i] = newSlot(i, logger)
	}

	return p
}

// SetBatchSize tunes the advertisement flush threshold. Call before clients
// subscribe.
func (p *Proxy) SetBatchSize(n int) {
	p.batcher.SetBatchSize(n)
}

// ActiveConnectionsEnabled reports whether the slot pool accepts connects.
func (p *Proxy) ActiveConnectionsEnabled() bool {
	return p.activeConnections
}

// Subscribe registers a client for asynchronous pushes. The first subscriber
// starts the scanner.
func (p *Proxy) Subscribe(sub Subscriber) {
	p.subMu.Lock()
	for _, s := range p.subscribers {
		if s == sub {
			p.subMu.Unlock()
			return
		}
	}
	p.subscribers = append(p.subscribers, sub)
	first := len(p.subscribers) == 1
	p.subMu.Unlock()

	if first {
		p.scanner.Start(true)
	}
}

// Unsubscribe removes a client. When the last subscriber leaves, the scanner
// stops and the batcher flushes.
func (p *Proxy) Unsubscribe(sub Subscriber) {
	p.subMu.Lock()
	for i, s := range p.subscribers {
		if s == sub {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			break
		}
	}
	last := len(p.subscribers) == 0
	p.subMu.Unlock()

	if last {
		p.scanner.Stop()
		p.batcher.ForceFlush()
	}
}

// ScannerStateMessage returns the current scanner state for the initial push
// after a state subscription.
func (p *Proxy) ScannerStateMessage() *protocol.BluetoothScannerStateResponse {
	state, mode := p.scanner.State()
	return &protocol.BluetoothScannerStateResponse{State: state, Mode: mode}
}

// broadcast delivers a message to every subscriber. A slow subscriber drops
// frames in its own queue and never blocks the others.
func (p *Proxy) broadcast(msg protocol.Message) {
	p.subMu.RLock()
	subs := make([]Subscriber, len(p.subscribers))
	copy(subs, p.subscribers)
	p.subMu.RUnlock()

	for _, sub := range subs {
		sub.Push(msg)
	}
}

func (p *Proxy) sendBatch(batch []*Advertisement) {
	msg := &protocol.BluetoothLERawAdvertisementsResponse{
		Advertisements: make([]*protocol.BluetoothLEAdvertisementResponse, len(batch)),
	}
	for i, adv := range batch {
		msg.Advertisements[i] = &protocol.BluetoothLEAdvertisementResponse{
			Address:     adv.Address,
			RSSI:        adv.RSSI,
			AddressType: adv.AddressType,
			Data:        adv.Data,
		}
	}
	p.broadcast(msg)
}

func (p *Proxy) pushScannerState(state, mode uint32) {
	p.broadcast(&protocol.BluetoothScannerStateResponse{State: state, Mode: mode})
}

// ConnectDevice claims a free slot and starts the backend connect
// asynchronously. A nil return means the attempt is underway; the outcome
// arrives as a BluetoothDeviceConnectionResponse push.
func (p *Proxy) ConnectDevice(address uint64, addressType uint32) error {
	if !p.activeConnections {
		return ErrConnectionsDisabled
	}
	if _, exists := p.addressIndex.Get(address); exists {
		return ErrAlreadyConnected
	}

	var claimed *slot
	for _, s := range p.slots {
		if s.claim(address, addressType) {
			claimed = s
			break
		}
	}
	if claimed == nil {
		return ErrNoFreeSlot
	}

	if !p.addressIndex.Insert(address, claimed) {
		// Lost a race against a concurrent connect for the same address
		claimed.reset()
		return ErrAlreadyConnected
	}

	p.logger.WithFields(logrus.Fields{
		"address": backend.FormatMAC(address),
		"slot":    claimed.index,
	}).Info("Connecting to device")

	// Releasing the slot cancels this context, aborting a dial that is
	// still in flight.
	connectCtx, cancelConnect := context.WithCancel(context.Background())
	claimed.setCancel(cancelConnect)

	groutine.Go(connectCtx, fmt.Sprintf("ble-connect-%s", backend.FormatMAC(address)), func(ctx context.Context) {
		p.runConnect(ctx, claimed, address)
	})
	return nil
}

func (p *Proxy) runConnect(ctx context.Context, s *slot, address uint64) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := p.backend.Connect(ctx, backend.FormatMAC(address))
	if err != nil {
		p.releaseSlot(s, address)
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			// Device disconnected while connecting; that path already
			// acknowledged the client, so stay silent.
			return
		}
		p.logger.WithError(err).WithField("address", backend.FormatMAC(address)).Warn("Device connection failed")
		p.broadcast(&protocol.BluetoothDeviceConnectionResponse{Address: address, Error: 1})
		return
	}

	if !s.attach(address, client) {
		// The slot was released (and possibly re-claimed) while the dial
		// was in flight. This connection has no owner.
		_ = client.Disconnect()
		return
	}
	groutine.Go(nil, fmt.Sprintf("ble-watch-%s", backend.FormatMAC(address)), func(context.Context) {
		p.watchDisconnect(s, address, client)
	})

	s.mu.Lock()
	mtu := s.mtu
	s.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"address": backend.FormatMAC(address),
		"mtu":     mtu,
	}).Info("Device connected")
	p.broadcast(&protocol.BluetoothDeviceConnectionResponse{Address: address, Connected: true, MTU: mtu})
}

// watchDisconnect cleans up when the link drops, whether by request or by
// the peripheral going away.
func (p *Proxy) watchDisconnect(s *slot, address uint64, client backend.Client) {
	<-client.Disconnected()

	p.logger.WithField("address", backend.FormatMAC(address)).Info("Device disconnected")
	p.releaseSlot(s, address)
	p.broadcast(&protocol.BluetoothDeviceConnectionResponse{Address: address})
}

func (p *Proxy) releaseSlot(s *slot, address uint64) {
	if current, ok := p.addressIndex.Get(address); ok && current == s {
		p.addressIndex.Del(address)
	}
	if client := s.resetIf(address); client != nil {
		_ = client.Disconnect()
	}
}

// DisconnectDevice tears down the slot for the address. Unknown addresses
// are acknowledged with a disconnected push so the request is idempotent.
func (p *Proxy) DisconnectDevice(address uint64) error {
	s, ok := p.addressIndex.Get(address)
	if !ok {
		p.broadcast(&protocol.BluetoothDeviceConnectionResponse{Address: address})
		return nil
	}

	client, state, _ := s.snapshot()
	if client == nil || state != SlotConnected {
		// Still connecting: release immediately. The release cancels the
		// in-flight dial, and the connect goroutine stays silent.
		p.releaseSlot(s, address)
		p.broadcast(&protocol.BluetoothDeviceConnectionResponse{Address: address})
		return nil
	}

	s.mu.Lock()
	s.state = SlotDisconnecting
	s.mu.Unlock()

	// The disconnect watcher observes the drop and finishes cleanup.
	go func() {
		if err := client.Disconnect(); err != nil {
			p.logger.WithError(err).WithField("address", backend.FormatMAC(address)).Warn("Backend disconnect failed")
			p.releaseSlot(s, address)
			p.broadcast(&protocol.BluetoothDeviceConnectionResponse{Address: address})
		}
	}()
	return nil
}

// slotFor resolves the slot currently serving an address.
func (p *Proxy) slotFor(address uint64) (*slot, bool) {
	return p.addressIndex.Get(address)
}

// StatsSnapshot reports the coordinator state.
func (p *Proxy) StatsSnapshot() Stats {
	p.subMu.RLock()
	subscribers := len(p.subscribers)
	p.subMu.RUnlock()

	state, mode := p.scanner.State()
	return Stats{
		Subscribers:  subscribers,
		ActiveSlots:  p.addressIndex.Len(),
		TotalSlots:   len(p.slots),
		Batcher:      p.batcher.Stats(),
		ScannerState: state,
		ScannerMode:  mode,
	}
}

// Shutdown stops scanning and disconnects every slot concurrently.
func (p *Proxy) Shutdown(ctx context.Context) error {
	p.scanner.Stop()
	p.batcher.Clear()

	var wg sync.WaitGroup
	p.addressIndex.Range(func(address uint64, s *slot) bool {
		wg.Add(1)
		go func(address uint64, s *slot) {
			defer wg.Done()
			p.releaseSlot(s, address)
		}(address, s)
		return true
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("slot teardown incomplete: %w", ctx.Err())
	}
}
