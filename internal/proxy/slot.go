package proxy

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/bleproxy/internal/backend"
)

// SlotState is the lifecycle of one outbound connection slot.
type SlotState int32

const (
	SlotDisconnected SlotState = iota
	SlotConnecting
	SlotConnected
	SlotDisconnecting
)

func (s SlotState) String() string {
	switch s {
	case SlotDisconnected:
		return "disconnected"
	case SlotConnecting:
		return "connecting"
	case SlotConnected:
		return "connected"
	case SlotDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// DefaultMTU is assumed until the peripheral negotiates a larger one.
const DefaultMTU = 23

// Sentinels for the pending-service-send index.
const (
	servicesNotDiscovered = -2
	servicesSent          = -1
)

// slot is one entry in the fixed connection pool. A free slot has address 0
// and state SlotDisconnected. The slot mutex guards bookkeeping only; it is
// never held across backend calls.
type slot struct {
	index  int
	logger *logrus.Entry

	mu                 sync.Mutex
	address            uint64
	addressType        uint32
	state              SlotState
	client             backend.Client
	cancel             context.CancelFunc // aborts an in-flight connect
	mtu                uint32
	services           []backend.Service
	pendingServiceSend int
	// notification sinks by characteristic handle, in subscription order
	sinks *orderedmap.OrderedMap[uint32, struct{}]

	// serialises service discovery so concurrent requests share one
	// backend call
	discoveryMu sync.Mutex
}

func newSlot(index int, logger *logrus.Logger) *slot {
	return &slot{
		index:              index,
		logger:             logger.WithField("slot", index),
		mtu:                DefaultMTU,
		pendingServiceSend: servicesNotDiscovered,
		sinks:              orderedmap.New[uint32, struct{}](),
	}
}

// claim reserves a free slot for the given address. Returns false when the
// slot is occupied.
func (s *slot) claim(address uint64, addressType uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address != 0 || s.state != SlotDisconnected {
		return false
	}
	s.address = address
	s.addressType = addressType
	s.state = SlotConnecting
	return true
}

// setCancel stores the cancel function for the connect attempt the slot was
// claimed for. reset invokes it, aborting a dial that is still in flight.
func (s *slot) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

// reset returns the slot to the free state, dropping the service cache and
// all notification sinks. The backend client reference is returned so the
// caller can tear it down outside the lock.
func (s *slot) reset() backend.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked()
}

// resetIf resets only while the slot still serves the given address. A slot
// re-claimed for another device is left alone, so a stale connect or watch
// goroutine cannot clobber its successor.
func (s *slot) resetIf(address uint64) backend.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address != address {
		return nil
	}
	return s.resetLocked()
}

func (s *slot) resetLocked() backend.Client {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	client := s.client
	s.client = nil
	s.address = 0
	s.addressType = 0
	s.state = SlotDisconnected
	s.mtu = DefaultMTU
	s.services = nil
	s.pendingServiceSend = servicesNotDiscovered
	s.sinks = orderedmap.New[uint32, struct{}]()
	return client
}

// attach records a successfully established backend client. It fails when the
// slot no longer belongs to the address the dial was started for, meaning the
// device was disconnected (and the slot possibly re-claimed) mid-dial.
func (s *slot) attach(address uint64, client backend.Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address != address || s.state != SlotConnecting {
		return false
	}
	s.client = client
	s.state = SlotConnected
	if mtu := client.MTU(); mtu > 0 {
		s.mtu = uint32(mtu)
	}
	return true
}

// snapshot returns the fields needed by request dispatch without holding the
// lock across the backend call.
func (s *slot) snapshot() (client backend.Client, state SlotState, address uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client, s.state, s.address
}

// cachedServices returns the discovered database, or ok=false when discovery
// has not run on this connection.
func (s *slot) cachedServices() ([]backend.Service, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingServiceSend == servicesNotDiscovered {
		return nil, false
	}
	return s.services, true
}

func (s *slot) storeServices(services []backend.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = services
	if len(services) == 0 {
		s.pendingServiceSend = servicesSent
	} else {
		s.pendingServiceSend = 0
	}
}

// markServicesSent records that the full database has been transmitted.
func (s *slot) markServicesSent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingServiceSend = servicesSent
}

// findCharacteristic resolves a characteristic handle in the cached
// database.
func (s *slot) findCharacteristic(handle uint32) (backend.Characteristic, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.services {
		for _, char := range svc.Characteristics {
			if char.Handle == handle {
				return char, true
			}
		}
	}
	return backend.Characteristic{}, false
}

// findDescriptor resolves a descriptor handle in the cached database.
func (s *slot) findDescriptor(handle uint32) (backend.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.services {
		for _, char := range svc.Characteristics {
			for _, desc := range char.Descriptors {
				if desc.Handle == handle {
					return desc, true
				}
			}
		}
	}
	return backend.Descriptor{}, false
}

// addSink registers a notification sink; removeSink drops it. Both report
// whether the map changed, which drives the enable/disable rollback.
func (s *slot) addSink(handle uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, present := s.sinks.Get(handle); present {
		return false
	}
	s.sinks.Set(handle, struct{}{})
	return true
}

func (s *slot) removeSink(handle uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, present := s.sinks.Delete(handle)
	return present
}

func (s *slot) hasSink(handle uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, present := s.sinks.Get(handle)
	return present
}
