// Package goble implements the backend contract on top of go-ble's Linux
// HCI transport.
package goble

import (
	"context"
	"errors"
	"strings"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/sirupsen/logrus"

	"github.com/srg/bleproxy/internal/backend"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = func() (ble.Device, error) {
	return linux.NewDevice()
}

// bleBackend adapts a ble.Device to the backend.Backend surface.
type bleBackend struct {
	dev    ble.Device
	logger *logrus.Logger
}

// New opens the default HCI adapter.
func New(logger *logrus.Logger) (backend.Backend, error) {
	if logger == nil {
		logger = logrus.New()
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, backend.NormalizeError(err)
	}
	return &bleBackend{dev: dev, logger: logger}, nil
}

func (b *bleBackend) AdapterAddress() (string, error) {
	// The generic ble.Device interface does not expose the adapter MAC;
	// the Linux HCI implementation does.
	if a, ok := b.dev.(interface{ Address() ble.Addr }); ok {
		addr := strings.ToUpper(a.Address().String())
		if addr != "" && addr != "00:00:00:00:00:00" {
			return addr, nil
		}
	}
	return "", errors.New("adapter does not report its address")
}

func (b *bleBackend) Scan(ctx context.Context, active bool, handler backend.ScanHandler) error {
	if !active {
		// The HCI transport is configured for active scanning at device
		// creation; passive requests still observe all advertisements.
		b.logger.Debug("passive scan requested, adapter scans actively")
	}

	bleHandler := func(adv ble.Advertisement) {
		handler(convertAdvertisement(adv))
	}

	err := b.dev.Scan(ctx, true, bleHandler)
	if err != nil && !errors.Is(err, context.Canceled) {
		return backend.NormalizeError(err)
	}
	return nil
}

func (b *bleBackend) Connect(ctx context.Context, address string) (backend.Client, error) {
	cln, err := b.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, backend.NormalizeError(err)
	}
	return newClient(cln, b.logger), nil
}

func convertAdvertisement(adv ble.Advertisement) backend.ScanEvent {
	ev := backend.ScanEvent{
		Address:          strings.ToUpper(adv.Addr().String()),
		RSSI:             adv.RSSI(),
		LocalName:        adv.LocalName(),
		ManufacturerData: adv.ManufacturerData(),
	}
	if sd := adv.ServiceData(); len(sd) > 0 {
		ev.ServiceData = make(map[string][]byte, len(sd))
		for _, d := range sd {
			ev.ServiceData[d.UUID.String()] = d.Data
		}
	}
	return ev
}
