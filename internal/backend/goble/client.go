package goble

import (
	"context"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/bleproxy/internal/backend"
)

// Target MTU requested on connect. The peripheral may negotiate down.
const requestedMTU = 247

// bleClient wraps ble.Client. GATT operations address attributes by handle,
// so discovery builds handle lookup tables once and reuses them.
type bleClient struct {
	cln    ble.Client
	logger *logrus.Entry
	mtu    int

	mu              sync.Mutex
	characteristics map[uint32]*ble.Characteristic
	descriptors     map[uint32]*ble.Descriptor
	indications     map[uint32]bool // handle -> subscribed with indication
}

func newClient(cln ble.Client, logger *logrus.Logger) *bleClient {
	c := &bleClient{
		cln:             cln,
		logger:          logger.WithField("peer", cln.Addr().String()),
		mtu:             23,
		characteristics: make(map[uint32]*ble.Characteristic),
		descriptors:     make(map[uint32]*ble.Descriptor),
		indications:     make(map[uint32]bool),
	}

	if mtu, err := cln.ExchangeMTU(requestedMTU); err == nil && mtu > 0 {
		c.mtu = mtu
	} else if err != nil {
		c.logger.WithError(err).Debug("MTU exchange failed, assuming 23")
	}

	return c
}

func (c *bleClient) Address() string {
	return strings.ToUpper(c.cln.Addr().String())
}

func (c *bleClient) MTU() int {
	return c.mtu
}

func (c *bleClient) DiscoverServices(ctx context.Context) ([]backend.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	profile, err := c.cln.DiscoverProfile(true)
	if err != nil {
		return nil, backend.NormalizeError(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	services := make([]backend.Service, 0, len(profile.Services))
	for _, svc := range profile.Services {
		out := backend.Service{
			UUID:   svc.UUID.String(),
			Handle: uint32(svc.Handle),
		}
		for _, char := range svc.Characteristics {
			// GATT operations target the value handle
			handle := uint32(char.ValueHandle)
			c.characteristics[handle] = char

			outChar := backend.Characteristic{
				UUID:       char.UUID.String(),
				Handle:     handle,
				Properties: propertyNames(char.Property),
			}
			for _, desc := range char.Descriptors {
				c.descriptors[uint32(desc.Handle)] = desc
				outChar.Descriptors = append(outChar.Descriptors, backend.Descriptor{
					UUID:   desc.UUID.String(),
					Handle: uint32(desc.Handle),
				})
			}
			out.Characteristics = append(out.Characteristics, outChar)
		}
		services = append(services, out)
	}

	return services, nil
}

func (c *bleClient) characteristic(handle uint32) (*ble.Characteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	char, ok := c.characteristics[handle]
	if !ok {
		return nil, &backend.NotFoundError{Resource: "characteristic", Handle: handle}
	}
	return char, nil
}

func (c *bleClient) descriptor(handle uint32) (*ble.Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	desc, ok := c.descriptors[handle]
	if !ok {
		return nil, &backend.NotFoundError{Resource: "descriptor", Handle: handle}
	}
	return desc, nil
}

func (c *bleClient) ReadCharacteristic(ctx context.Context, handle uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	char, err := c.characteristic(handle)
	if err != nil {
		return nil, err
	}
	data, err := c.cln.ReadCharacteristic(char)
	if err != nil {
		return nil, backend.NormalizeError(err)
	}
	return data, nil
}

func (c *bleClient) WriteCharacteristic(ctx context.Context, handle uint32, data []byte, withResponse bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	char, err := c.characteristic(handle)
	if err != nil {
		return err
	}
	return backend.NormalizeError(c.cln.WriteCharacteristic(char, data, !withResponse))
}

func (c *bleClient) ReadDescriptor(ctx context.Context, handle uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	desc, err := c.descriptor(handle)
	if err != nil {
		return nil, err
	}
	data, err := c.cln.ReadDescriptor(desc)
	if err != nil {
		return nil, backend.NormalizeError(err)
	}
	return data, nil
}

func (c *bleClient) WriteDescriptor(ctx context.Context, handle uint32, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	desc, err := c.descriptor(handle)
	if err != nil {
		return err
	}
	return backend.NormalizeError(c.cln.WriteDescriptor(desc, data))
}

func (c *bleClient) Subscribe(ctx context.Context, handle uint32, indicate bool, fn func(data []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	char, err := c.characteristic(handle)
	if err != nil {
		return err
	}
	if err := c.cln.Subscribe(char, indicate, func(req []byte) { fn(req) }); err != nil {
		return backend.NormalizeError(err)
	}

	c.mu.Lock()
	c.indications[handle] = indicate
	c.mu.Unlock()
	return nil
}

func (c *bleClient) Unsubscribe(ctx context.Context, handle uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	char, err := c.characteristic(handle)
	if err != nil {
		return err
	}

	c.mu.Lock()
	indicate := c.indications[handle]
	delete(c.indications, handle)
	c.mu.Unlock()

	return backend.NormalizeError(c.cln.Unsubscribe(char, indicate))
}

func (c *bleClient) Disconnected() <-chan struct{} {
	return c.cln.Disconnected()
}

func (c *bleClient) Disconnect() error {
	return backend.NormalizeError(c.cln.CancelConnection())
}

// propertyNames converts the go-ble property bitmask into the backend's
// property strings.
func propertyNames(p ble.Property) []string {
	var names []string
	if p&ble.CharRead != 0 {
		names = append(names, "read")
	}
	if p&ble.CharWriteNR != 0 {
		names = append(names, "write-without-response")
	}
	if p&ble.CharWrite != 0 {
		names = append(names, "write")
	}
	if p&ble.CharNotify != 0 {
		names = append(names, "notify")
	}
	if p&ble.CharIndicate != 0 {
		names = append(names, "indicate")
	}
	if p&ble.CharBroadcast != 0 {
		names = append(names, "broadcast")
	}
	return names
}
