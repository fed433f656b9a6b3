package proxy

import (
	"sort"
	"strings"

	"github.com/srg/bleproxy/internal/backend"
)

// Address type tags carried in advertisement records.
const (
	AddressTypePublic uint32 = 0
	AddressTypeRandom uint32 = 1
)

// Advertisement data never exceeds 31 bytes of advertisement plus 31 bytes
// of scan response.
const maxAdvertisementData = 62

// Advertisement is one observed broadcast. The address is the 48-bit MAC in
// the low bits of a uint64. Records are recycled through the batcher's free
// pool once their batch has been sent.
type Advertisement struct {
	Address     uint64
	RSSI        int32
	AddressType uint32
	Data        []byte
}

// NewAdvertisement converts a backend scan event into a fresh advertisement
// record: MAC to integer form, address type resolution, and AD structure
// assembly capped at 62 bytes.
func NewAdvertisement(ev backend.ScanEvent) (*Advertisement, error) {
	adv := &Advertisement{}
	if err := adv.populate(ev); err != nil {
		return nil, err
	}
	return adv, nil
}

// populate refills a possibly recycled record in place, reusing the Data
// capacity from its previous life.
func (a *Advertisement) populate(ev backend.ScanEvent) error {
	address, err := backend.ParseMAC(ev.Address)
	if err != nil {
		return err
	}

	rssi := int32(ev.RSSI)
	if rssi == 0 {
		rssi = -127
	}

	a.Address = address
	a.RSSI = rssi
	a.AddressType = addressType(ev)
	a.Data = assembleData(a.Data[:0], ev)
	return nil
}

// addressType prefers the adapter's explicit tag. Without one, the top bits
// of the first MAC octet distinguish random addresses from public ones.
func addressType(ev backend.ScanEvent) uint32 {
	switch ev.AddressType {
	case "public":
		return AddressTypePublic
	case "random":
		return AddressTypeRandom
	}
	if ev.Address != "" && strings.ContainsRune("4567CDEFcdef", rune(ev.Address[0])) {
		return AddressTypeRandom
	}
	return AddressTypePublic
}

// assembleData rebuilds the raw AD byte stream from the decomposed scan
// event: manufacturer data (0xFF, company ID already little-endian first),
// service data (0x16 with the 16-bit UUID), and the complete local name
// (0x09). The stream is appended to data, which may carry recycled capacity.
func assembleData(data []byte, ev backend.ScanEvent) []byte {
	if len(ev.ManufacturerData) > 0 {
		data = append(data, 0xFF)
		data = append(data, ev.ManufacturerData...)
	}

	uuids := make([]string, 0, len(ev.ServiceData))
	for uuid := range ev.ServiceData {
		uuids = append(uuids, uuid)
	}
	sort.Strings(uuids)
	for _, uuid := range uuids {
		expanded, err := backend.ExpandUUID(uuid)
		if err != nil {
			continue
		}
		data = append(data, 0x16)
		// 16-bit UUID slot of the 128-bit form
		data = append(data, expanded[2], expanded[3])
		data = append(data, ev.ServiceData[uuid]...)
	}

	if ev.LocalName != "" {
		name := []byte(ev.LocalName)
		data = append(data, 0x09, byte(len(name)))
		data = append(data, name...)
	}

	if len(data) > maxAdvertisementData {
		data = data[:maxAdvertisementData]
	}
	return data
}
