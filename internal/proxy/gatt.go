package proxy

import (
	"context"

	"github.com/srg/bleproxy/internal/backend"
	"github.com/srg/bleproxy/internal/protocol"
)

// Wire error code for any failed GATT operation.
const gattErrorFailed = 1

// resolveConnected returns the slot and client for an address, or ok=false
// when the device has no established connection.
func (p *Proxy) resolveConnected(address uint64) (*slot, backend.Client, bool) {
	s, ok := p.slotFor(address)
	if !ok {
		return nil, nil, false
	}
	client, state, _ := s.snapshot()
	if client == nil || state != SlotConnected {
		return nil, nil, false
	}
	return s, client, true
}

// GetServices runs or reuses service discovery on the slot and returns the
// full database. Failures and unknown addresses yield a response with an
// empty service list.
func (p *Proxy) GetServices(ctx context.Context, address uint64) *protocol.BluetoothGATTGetServicesResponse {
	resp := &protocol.BluetoothGATTGetServicesResponse{Address: address}

	s, client, ok := p.resolveConnected(address)
	if !ok {
		return resp
	}

	// Concurrent requests on the same slot share one backend call: the
	// second caller blocks here and then hits the cache.
	s.discoveryMu.Lock()
	defer s.discoveryMu.Unlock()

	services, cached := s.cachedServices()
	if !cached {
		discovered, err := client.DiscoverServices(ctx)
		if err != nil {
			p.logger.WithError(err).WithField("address", backend.FormatMAC(address)).Warn("Service discovery failed")
			return resp
		}
		s.storeServices(discovered)
		services = discovered
	}

	resp.Services = convertServices(services)
	s.markServicesSent()
	return resp
}

func convertServices(services []backend.Service) []*protocol.GATTService {
	out := make([]*protocol.GATTService, 0, len(services))
	for _, svc := range services {
		uuid, err := backend.ExpandUUID(svc.UUID)
		if err != nil {
			continue
		}
		ws := &protocol.GATTService{UUID: uuid, Handle: svc.Handle}

		for _, char := range svc.Characteristics {
			charUUID, err := backend.ExpandUUID(char.UUID)
			if err != nil {
				continue
			}
			wc := &protocol.GATTCharacteristic{
				UUID:       charUUID,
				Handle:     char.Handle,
				Properties: backend.PropertyMask(char.Properties),
			}
			for _, desc := range char.Descriptors {
				descUUID, err := backend.ExpandUUID(desc.UUID)
				if err != nil {
					continue
				}
				wc.Descriptors = append(wc.Descriptors, &protocol.GATTDescriptor{
					UUID:   descUUID,
					Handle: desc.Handle,
				})
			}
			ws.Characteristics = append(ws.Characteristics, wc)
		}
		out = append(out, ws)
	}
	return out
}

// GATTRead reads a characteristic value.
func (p *Proxy) GATTRead(ctx context.Context, address uint64, handle uint32) *protocol.BluetoothGATTReadResponse {
	resp := &protocol.BluetoothGATTReadResponse{Address: address, Handle: handle}

	s, client, ok := p.resolveConnected(address)
	if !ok {
		resp.Error = gattErrorFailed
		return resp
	}
	if _, found := s.findCharacteristic(handle); !found {
		resp.Error = gattErrorFailed
		return resp
	}

	data, err := client.ReadCharacteristic(ctx, handle)
	if err != nil {
		p.logger.WithError(err).WithField("handle", handle).Warn("Characteristic read failed")
		resp.Error = gattErrorFailed
		return resp
	}
	resp.Data = data
	return resp
}

// GATTWrite writes a characteristic value. For writes without response a nil
// return means success and nothing is sent back; failures always produce a
// response.
func (p *Proxy) GATTWrite(ctx context.Context, address uint64, handle uint32, data []byte, withResponse bool) *protocol.BluetoothGATTWriteResponse {
	fail := &protocol.BluetoothGATTWriteResponse{Address: address, Handle: handle, Error: gattErrorFailed}

	s, client, ok := p.resolveConnected(address)
	if !ok {
		return fail
	}
	if _, found := s.findCharacteristic(handle); !found {
		return fail
	}

	if err := client.WriteCharacteristic(ctx, handle, data, withResponse); err != nil {
		p.logger.WithError(err).WithField("handle", handle).Warn("Characteristic write failed")
		return fail
	}
	if !withResponse {
		return nil
	}
	return &protocol.BluetoothGATTWriteResponse{Address: address, Handle: handle}
}

// GATTReadDescriptor reads a descriptor value; the reply reuses the
// characteristic read response shape.
func (p *Proxy) GATTReadDescriptor(ctx context.Context, address uint64, handle uint32) *protocol.BluetoothGATTReadResponse {
	resp := &protocol.BluetoothGATTReadResponse{Address: address, Handle: handle}

	s, client, ok := p.resolveConnected(address)
	if !ok {
		resp.Error = gattErrorFailed
		return resp
	}
	if _, found := s.findDescriptor(handle); !found {
		resp.Error = gattErrorFailed
		return resp
	}

	data, err := client.ReadDescriptor(ctx, handle)
	if err != nil {
		p.logger.WithError(err).WithField("handle", handle).Warn("Descriptor read failed")
		resp.Error = gattErrorFailed
		return resp
	}
	resp.Data = data
	return resp
}

// GATTWriteDescriptor writes a descriptor value.
func (p *Proxy) GATTWriteDescriptor(ctx context.Context, address uint64, handle uint32, data []byte) *protocol.BluetoothGATTWriteResponse {
	fail := &protocol.BluetoothGATTWriteResponse{Address: address, Handle: handle, Error: gattErrorFailed}

	s, client, ok := p.resolveConnected(address)
	if !ok {
		return fail
	}
	if _, found := s.findDescriptor(handle); !found {
		return fail
	}

	if err := client.WriteDescriptor(ctx, handle, data); err != nil {
		p.logger.WithError(err).WithField("handle", handle).Warn("Descriptor write failed")
		return fail
	}
	return &protocol.BluetoothGATTWriteResponse{Address: address, Handle: handle}
}

// GATTNotify enables or disables notifications on a characteristic. The sink
// is registered before the backend call and rolled back on failure. Incoming
// data is broadcast as BluetoothGATTNotifyDataResponse.
func (p *Proxy) GATTNotify(ctx context.Context, address uint64, handle uint32, enable bool) *protocol.BluetoothGATTNotifyResponse {
	fail := &protocol.BluetoothGATTNotifyResponse{Address: address, Handle: handle, Error: gattErrorFailed}

	s, client, ok := p.resolveConnected(address)
	if !ok {
		return fail
	}
	char, found := s.findCharacteristic(handle)
	if !found {
		return fail
	}

	if enable {
		if !s.addSink(handle) {
			// Already subscribed
			return &protocol.BluetoothGATTNotifyResponse{Address: address, Handle: handle}
		}

		// Prefer notifications; fall back to indications when the
		// characteristic only supports those.
		mask := backend.PropertyMask(char.Properties)
		indicate := mask&backend.PropertyNotify == 0 && mask&backend.PropertyIndicate != 0

		err := client.Subscribe(ctx, handle, indicate, func(data []byte) {
			if !s.hasSink(handle) {
				return
			}
			p.broadcast(&protocol.BluetoothGATTNotifyDataResponse{
				Address: address,
				Handle:  handle,
				Data:    data,
			})
		})
		if err != nil {
			p.logger.WithError(err).WithField("handle", handle).Warn("Notification enable failed")
			s.removeSink(handle)
			return fail
		}
		return &protocol.BluetoothGATTNotifyResponse{Address: address, Handle: handle}
	}

	if !s.removeSink(handle) {
		// Not subscribed; disabling is idempotent
		return &protocol.BluetoothGATTNotifyResponse{Address: address, Handle: handle}
	}
	if err := client.Unsubscribe(ctx, handle); err != nil {
		p.logger.WithError(err).WithField("handle", handle).Warn("Notification disable failed")
		s.addSink(handle)
		return fail
	}
	return &protocol.BluetoothGATTNotifyResponse{Address: address, Handle: handle}
}
