// Package backend defines the contract between the proxy core and the BLE
// stack. The core depends only on these interfaces; the go-ble implementation
// lives in the goble subpackage and tests substitute fakes.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ScanEvent is one observed advertisement as delivered by the adapter.
type ScanEvent struct {
	Address          string // colon-separated MAC
	RSSI             int
	AddressType      string // "public", "random", or "" when the adapter does not report it
	LocalName        string
	ManufacturerData []byte
	ServiceData      map[string][]byte // UUID string -> payload
}

// ScanHandler receives scan events on the backend's delivery goroutine. It
// must not block.
type ScanHandler func(ScanEvent)

// Backend is the adapter-level surface: scanning plus outbound connections.
type Backend interface {
	// AdapterAddress returns the local adapter MAC, or an error when the
	// platform does not expose it.
	AdapterAddress() (string, error)

	// Scan runs until ctx is cancelled, invoking handler for every
	// advertisement. active selects scan-request/scan-response mode.
	Scan(ctx context.Context, active bool, handler ScanHandler) error

	// Connect dials a peripheral and returns a live client. The returned
	// client owns the link until Disconnect or a drop reported via
	// Disconnected.
	Connect(ctx context.Context, address string) (Client, error)
}

// Client is one established peripheral link.
type Client interface {
	Address() string
	MTU() int

	// DiscoverServices enumerates the full GATT database.
	DiscoverServices(ctx context.Context) ([]Service, error)

	ReadCharacteristic(ctx context.Context, handle uint32) ([]byte, error)
	WriteCharacteristic(ctx context.Context, handle uint32, data []byte, withResponse bool) error
	ReadDescriptor(ctx context.Context, handle uint32) ([]byte, error)
	WriteDescriptor(ctx context.Context, handle uint32, data []byte) error

	// Subscribe starts notifications or indications on a characteristic.
	// fn is invoked on the backend's delivery goroutine for each value.
	Subscribe(ctx context.Context, handle uint32, indicate bool, fn func(data []byte)) error
	Unsubscribe(ctx context.Context, handle uint32) error

	// Disconnected is closed when the link drops, whether locally or by
	// the peripheral.
	Disconnected() <-chan struct{}

	Disconnect() error
}

// Service, Characteristic and Descriptor describe a discovered GATT
// database. UUIDs are backend-format strings; the proxy expands them to the
// 128-bit wire form. Property names are the backend's strings, mapped to the
// wire bitmap by PropertyMask.
type Service struct {
	UUID            string
	Handle          uint32
	Characteristics []Characteristic
}

type Characteristic struct {
	UUID        string
	Handle      uint32
	Properties  []string
	Descriptors []Descriptor
}

type Descriptor struct {
	UUID   string
	Handle uint32
}

// NotFoundError reports a handle that does not exist in the discovered
// database.
type NotFoundError struct {
	Resource string // "characteristic" or "descriptor"
	Handle   uint32
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with handle %d not found", e.Resource, e.Handle)
}

// Sentinel errors shared across backend implementations.
var (
	ErrNotConnected     = errors.New("device not connected")
	ErrAlreadyConnected = errors.New("device already connected")
	ErrTimeout          = errors.New("timeout")
)

// NormalizeError maps known go-ble error strings to the shared sentinels so
// callers never match on upstream message text. Unknown errors pass through
// unchanged.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case strings.Contains(msg, "already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timed out"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return err
	}
}
