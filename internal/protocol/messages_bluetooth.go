package protocol

// Scanner state values for BluetoothScannerStateResponse.
const (
	ScannerStateIdle     uint32 = 0
	ScannerStateStarting uint32 = 1
	ScannerStateRunning  uint32 = 2
	ScannerStateFailed   uint32 = 3
)

// Scanner mode values.
const (
	ScannerModePassive uint32 = 0
	ScannerModeActive  uint32 = 1
)

// BluetoothScannerStateResponse reports the scanner lifecycle to
// state-subscribed clients.
type BluetoothScannerStateResponse struct {
	State uint32
	Mode  uint32
}

func (m *BluetoothScannerStateResponse) MessageType() Type {
	return TypeBluetoothScannerStateResponse
}

func (m *BluetoothScannerStateResponse) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, uint64(m.State))
	w.uvarint(2, uint64(m.Mode))
	return w.buf
}

func decodeBluetoothScannerStateResponse(payload []byte) (*BluetoothScannerStateResponse, error) {
	m := &BluetoothScannerStateResponse{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.State = uint32(r.uvarint())
		case field == 2 && wire == wireVarint:
			m.Mode = uint32(r.uvarint())
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

// BluetoothLEAdvertisementResponse is one observed advertisement. Address is
// the 48-bit device MAC in the low bits of a uint64.
type BluetoothLEAdvertisementResponse struct {
	Address     uint64
	RSSI        int32
	AddressType uint32
	Data        []byte
}

func (m *BluetoothLEAdvertisementResponse) MessageType() Type {
	return TypeBluetoothLEAdvertisementResponse
}

func (m *BluetoothLEAdvertisementResponse) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	w.varint(2, int64(m.RSSI))
	w.uvarint(3, uint64(m.AddressType))
	w.bytes(4, m.Data)
	return w.buf
}

func decodeBluetoothLEAdvertisementResponse(payload []byte) (*BluetoothLEAdvertisementResponse, error) {
	m := &BluetoothLEAdvertisementResponse{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.Address = r.uvarint()
		case field == 2 && wire == wireVarint:
			m.RSSI = int32(r.varint())
		case field == 3 && wire == wireVarint:
			m.AddressType = uint32(r.uvarint())
		case field == 4 && wire == wireLengthDelimited:
			m.Data = r.bytes()
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

// BluetoothLERawAdvertisementsResponse is the batched fan-out unit: up to
// FlushBatchSize advertisements in arrival order.
type BluetoothLERawAdvertisementsResponse struct {
	Advertisements []*BluetoothLEAdvertisementResponse
}

func (m *BluetoothLERawAdvertisementsResponse) MessageType() Type {
	return TypeBluetoothLERawAdvertisementsResponse
}

func (m *BluetoothLERawAdvertisementsResponse) EncodePayload() []byte {
	var w fieldWriter
	for _, adv := range m.Advertisements {
		w.message(1, adv.EncodePayload())
	}
	return w.buf
}

func decodeBluetoothLERawAdvertisementsResponse(payload []byte) (*BluetoothLERawAdvertisementsResponse, error) {
	m := &BluetoothLERawAdvertisementsResponse{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		if field == 1 && wire == wireLengthDelimited {
			adv, err := decodeBluetoothLEAdvertisementResponse(r.bytes())
			if err != nil {
				return nil, err
			}
			m.Advertisements = append(m.Advertisements, adv)
		} else {
			r.skip(wire)
		}
	}
	return m, r.Err()
}

// Device request actions.
const (
	DeviceRequestConnect    uint32 = 0
	DeviceRequestDisconnect uint32 = 1
)

type BluetoothDeviceRequest struct {
	Address     uint64
	AddressType uint32
	Action      uint32
}

func (m *BluetoothDeviceRequest) MessageType() Type { return TypeBluetoothDeviceRequest }

func (m *BluetoothDeviceRequest) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	w.uvarint(2, uint64(m.AddressType))
	w.uvarint(3, uint64(m.Action))
	return w.buf
}

func decodeBluetoothDeviceRequest(payload []byte) (*BluetoothDeviceRequest, error) {
	m := &BluetoothDeviceRequest{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.Address = r.uvarint()
		case field == 2 && wire == wireVarint:
			m.AddressType = uint32(r.uvarint())
		case field == 3 && wire == wireVarint:
			m.Action = uint32(r.uvarint())
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

type BluetoothDeviceConnectionResponse struct {
	Address   uint64
	Connected bool
	MTU       uint32
	Error     int32
}

func (m *BluetoothDeviceConnectionResponse) MessageType() Type {
	return TypeBluetoothDeviceConnectionResponse
}

func (m *BluetoothDeviceConnectionResponse) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	w.boolean(2, m.Connected)
	w.uvarint(3, uint64(m.MTU))
	w.varint(4, int64(m.Error))
	return w.buf
}

func decodeBluetoothDeviceConnectionResponse(payload []byte) (*BluetoothDeviceConnectionResponse, error) {
	m := &BluetoothDeviceConnectionResponse{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.Address = r.uvarint()
		case field == 2 && wire == wireVarint:
			m.Connected = r.boolean()
		case field == 3 && wire == wireVarint:
			m.MTU = uint32(r.uvarint())
		case field == 4 && wire == wireVarint:
			m.Error = int32(r.varint())
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

type BluetoothGATTGetServicesRequest struct {
	Address uint64
}

func (m *BluetoothGATTGetServicesRequest) MessageType() Type {
	return TypeBluetoothGATTGetServicesRequest
}

func (m *BluetoothGATTGetServicesRequest) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	return w.buf
}

func decodeBluetoothGATTGetServicesRequest(payload []byte) (*BluetoothGATTGetServicesRequest, error) {
	m := &BluetoothGATTGetServicesRequest{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		if field == 1 && wire == wireVarint {
			m.Address = r.uvarint()
		} else {
			r.skip(wire)
		}
	}
	return m, r.Err()
}

// GATTDescriptor is the wire form of a discovered descriptor. UUID is always
// the 16-byte 128-bit form.
type GATTDescriptor struct {
	UUID   []byte
	Handle uint32
}

func (d *GATTDescriptor) encode() []byte {
	var w fieldWriter
	w.bytes(1, d.UUID)
	w.uvarint(2, uint64(d.Handle))
	return w.buf
}

func decodeGATTDescriptor(payload []byte) (*GATTDescriptor, error) {
	d := &GATTDescriptor{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireLengthDelimited:
			d.UUID = r.bytes()
		case field == 2 && wire == wireVarint:
			d.Handle = uint32(r.uvarint())
		default:
			r.skip(wire)
		}
	}
	return d, r.Err()
}

// GATTCharacteristic is the wire form of a discovered characteristic.
type GATTCharacteristic struct {
	UUID        []byte
	Handle      uint32
	Properties  uint32
	Descriptors []*GATTDescriptor
}

func (c *GATTCharacteristic) encode() []byte {
	var w fieldWriter
	w.bytes(1, c.UUID)
	w.uvarint(2, uint64(c.Handle))
	w.uvarint(3, uint64(c.Properties))
	for _, d := range c.Descriptors {
		w.message(4, d.encode())
	}
	return w.buf
}

func decodeGATTCharacteristic(payload []byte) (*GATTCharacteristic, error) {
	c := &GATTCharacteristic{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireLengthDelimited:
			c.UUID = r.bytes()
		case field == 2 && wire == wireVarint:
			c.Handle = uint32(r.uvarint())
		case field == 3 && wire == wireVarint:
			c.Properties = uint32(r.uvarint())
		case field == 4 && wire == wireLengthDelimited:
			d, err := decodeGATTDescriptor(r.bytes())
			if err != nil {
				return nil, err
			}
			c.Descriptors = append(c.Descriptors, d)
		default:
			r.skip(wire)
		}
	}
	return c, r.Err()
}

// GATTService is the wire form of a discovered service.
type GATTService struct {
	UUID            []byte
	Handle          uint32
	Characteristics []*GATTCharacteristic
}

func (s *GATTService) encode() []byte {
	var w fieldWriter
	w.bytes(1, s.UUID)
	w.uvarint(2, uint64(s.Handle))
	for _, c := range s.Characteristics {
		w.message(3, c.encode())
	}
	return w.buf
}

func decodeGATTService(payload []byte) (*GATTService, error) {
	s := &GATTService{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireLengthDelimited:
			s.UUID = r.bytes()
		case field == 2 && wire == wireVarint:
			s.Handle = uint32(r.uvarint())
		case field == 3 && wire == wireLengthDelimited:
			c, err := decodeGATTCharacteristic(r.bytes())
			if err != nil {
				return nil, err
			}
			s.Characteristics = append(s.Characteristics, c)
		default:
			r.skip(wire)
		}
	}
	return s, r.Err()
}

type BluetoothGATTGetServicesResponse struct {
	Address  uint64
	Services []*GATTService
}

func (m *BluetoothGATTGetServicesResponse) MessageType() Type {
	return TypeBluetoothGATTGetServicesResponse
}

func (m *BluetoothGATTGetServicesResponse) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	for _, s := range m.Services {
		w.message(2, s.encode())
	}
	return w.buf
}

func decodeBluetoothGATTGetServicesResponse(payload []byte) (*BluetoothGATTGetServicesResponse, error) {
	m := &BluetoothGATTGetServicesResponse{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.Address = r.uvarint()
		case field == 2 && wire == wireLengthDelimited:
			s, err := decodeGATTService(r.bytes())
			if err != nil {
				return nil, err
			}
			m.Services = append(m.Services, s)
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

type BluetoothGATTReadRequest struct {
	Address uint64
	Handle  uint32
}

func (m *BluetoothGATTReadRequest) MessageType() Type { return TypeBluetoothGATTReadRequest }

func (m *BluetoothGATTReadRequest) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	w.uvarint(2, uint64(m.Handle))
	return w.buf
}

func decodeBluetoothGATTReadRequest(payload []byte) (*BluetoothGATTReadRequest, error) {
	m := &BluetoothGATTReadRequest{}
	if err := decodeAddressHandle(payload, &m.Address, &m.Handle); err != nil {
		return nil, err
	}
	return m, nil
}

type BluetoothGATTReadResponse struct {
	Address uint64
	Handle  uint32
	Data    []byte
	Error   int32
}

func (m *BluetoothGATTReadResponse) MessageType() Type { return TypeBluetoothGATTReadResponse }

func (m *BluetoothGATTReadResponse) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	w.uvarint(2, uint64(m.Handle))
	w.bytes(3, m.Data)
	w.varint(4, int64(m.Error))
	return w.buf
}

func decodeBluetoothGATTReadResponse(payload []byte) (*BluetoothGATTReadResponse, error) {
	m := &BluetoothGATTReadResponse{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.Address = r.uvarint()
		case field == 2 && wire == wireVarint:
			m.Handle = uint32(r.uvarint())
		case field == 3 && wire == wireLengthDelimited:
			m.Data = r.bytes()
		case field == 4 && wire == wireVarint:
			m.Error = int32(r.varint())
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

type BluetoothGATTWriteRequest struct {
	Address  uint64
	Handle   uint32
	Response bool
	Data     []byte
}

func (m *BluetoothGATTWriteRequest) MessageType() Type { return TypeBluetoothGATTWriteRequest }

func (m *BluetoothGATTWriteRequest) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	w.uvarint(2, uint64(m.Handle))
	w.boolean(3, m.Response)
	w.bytes(4, m.Data)
	return w.buf
}

func decodeBluetoothGATTWriteRequest(payload []byte) (*BluetoothGATTWriteRequest, error) {
	m := &BluetoothGATTWriteRequest{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.Address = r.uvarint()
		case field == 2 && wire == wireVarint:
			m.Handle = uint32(r.uvarint())
		case field == 3 && wire == wireVarint:
			m.Response = r.boolean()
		case field == 4 && wire == wireLengthDelimited:
			m.Data = r.bytes()
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

type BluetoothGATTWriteResponse struct {
	Address uint64
	Handle  uint32
	Error   int32
}

func (m *BluetoothGATTWriteResponse) MessageType() Type { return TypeBluetoothGATTWriteResponse }

func (m *BluetoothGATTWriteResponse) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	w.uvarint(2, uint64(m.Handle))
	w.varint(3, int64(m.Error))
	return w.buf
}

func decodeBluetoothGATTWriteResponse(payload []byte) (*BluetoothGATTWriteResponse, error) {
	m := &BluetoothGATTWriteResponse{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.Address = r.uvarint()
		case field == 2 && wire == wireVarint:
			m.Handle = uint32(r.uvarint())
		case field == 3 && wire == wireVarint:
			m.Error = int32(r.varint())
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

type BluetoothGATTNotifyRequest struct {
	Address uint64
	Handle  uint32
	Enable  bool
}

func (m *BluetoothGATTNotifyRequest) MessageType() Type { return TypeBluetoothGATTNotifyRequest }

func (m *BluetoothGATTNotifyRequest) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	w.uvarint(2, uint64(m.Handle))
	w.boolean(3, m.Enable)
	return w.buf
}

func decodeBluetoothGATTNotifyRequest(payload []byte) (*BluetoothGATTNotifyRequest, error) {
	m := &BluetoothGATTNotifyRequest{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.Address = r.uvarint()
		case field == 2 && wire == wireVarint:
			m.Handle = uint32(r.uvarint())
		case field == 3 && wire == wireVarint:
			m.Enable = r.boolean()
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

type BluetoothGATTNotifyResponse struct {
	Address uint64
	Handle  uint32
	Error   int32
}

func (m *BluetoothGATTNotifyResponse) MessageType() Type { return TypeBluetoothGATTNotifyResponse }

func (m *BluetoothGATTNotifyResponse) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	w.uvarint(2, uint64(m.Handle))
	w.varint(3, int64(m.Error))
	return w.buf
}

func decodeBluetoothGATTNotifyResponse(payload []byte) (*BluetoothGATTNotifyResponse, error) {
	m := &BluetoothGATTNotifyResponse{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.Address = r.uvarint()
		case field == 2 && wire == wireVarint:
			m.Handle = uint32(r.uvarint())
		case field == 3 && wire == wireVarint:
			m.Error = int32(r.varint())
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

type BluetoothGATTNotifyDataResponse struct {
	Address uint64
	Handle  uint32
	Data    []byte
}

func (m *BluetoothGATTNotifyDataResponse) MessageType() Type {
	return TypeBluetoothGATTNotifyDataResponse
}

func (m *BluetoothGATTNotifyDataResponse) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	w.uvarint(2, uint64(m.Handle))
	w.bytes(3, m.Data)
	return w.buf
}

func decodeBluetoothGATTNotifyDataResponse(payload []byte) (*BluetoothGATTNotifyDataResponse, error) {
	m := &BluetoothGATTNotifyDataResponse{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.Address = r.uvarint()
		case field == 2 && wire == wireVarint:
			m.Handle = uint32(r.uvarint())
		case field == 3 && wire == wireLengthDelimited:
			m.Data = r.bytes()
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

type BluetoothGATTReadDescriptorRequest struct {
	Address uint64
	Handle  uint32
}

func (m *BluetoothGATTReadDescriptorRequest) MessageType() Type {
	return TypeBluetoothGATTReadDescriptorRequest
}

func (m *BluetoothGATTReadDescriptorRequest) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	w.uvarint(2, uint64(m.Handle))
	return w.buf
}

func decodeBluetoothGATTReadDescriptorRequest(payload []byte) (*BluetoothGATTReadDescriptorRequest, error) {
	m := &BluetoothGATTReadDescriptorRequest{}
	if err := decodeAddressHandle(payload, &m.Address, &m.Handle); err != nil {
		return nil, err
	}
	return m, nil
}

type BluetoothGATTWriteDescriptorRequest struct {
	Address uint64
	Handle  uint32
	Data    []byte
}

func (m *BluetoothGATTWriteDescriptorRequest) MessageType() Type {
	return TypeBluetoothGATTWriteDescriptorRequest
}

func (m *BluetoothGATTWriteDescriptorRequest) EncodePayload() []byte {
	var w fieldWriter
	w.uvarint(1, m.Address)
	w.uvarint(2, uint64(m.Handle))
	w.bytes(3, m.Data)
	return w.buf
}

func decodeBluetoothGATTWriteDescriptorRequest(payload []byte) (*BluetoothGATTWriteDescriptorRequest, error) {
	m := &BluetoothGATTWriteDescriptorRequest{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.Address = r.uvarint()
		case field == 2 && wire == wireVarint:
			m.Handle = uint32(r.uvarint())
		case field == 3 && wire == wireLengthDelimited:
			m.Data = r.bytes()
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

// decodeAddressHandle handles the common two-field (address, handle) request shape.
func decodeAddressHandle(payload []byte, address *uint64, handle *uint32) error {
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			*address = r.uvarint()
		case field == 2 && wire == wireVarint:
			*handle = uint32(r.uvarint())
		default:
			r.skip(wire)
		}
	}
	return r.Err()
}
