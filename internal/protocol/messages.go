// Package protocol implements the ESPHome native API wire format: varint
// primitives, the 0x00-marker frame layout, and the typed message catalogue
// exchanged between the proxy and its API clients.
package protocol

// Type identifies a message on the wire. The numbers are part of the
// protocol contract and must never change.
type Type uint32

const (
	TypeHelloRequest             Type = 1
	TypeHelloResponse            Type = 2
	TypeConnectRequest           Type = 3
	TypeConnectResponse          Type = 4
	TypeDisconnectRequest        Type = 5
	TypeDisconnectResponse       Type = 6
	TypePingRequest              Type = 7
	TypePingResponse             Type = 8
	TypeDeviceInfoRequest        Type = 9
	TypeDeviceInfoResponse       Type = 10
	TypeListEntitiesRequest      Type = 11
	TypeListEntitiesDoneResponse Type = 19
	TypeSubscribeStatesRequest   Type = 20

	TypeBluetoothScannerStateResponse        Type = 21
	TypeBluetoothLEAdvertisementResponse     Type = 24
	TypeBluetoothLERawAdvertisementsResponse Type = 25
	TypeBluetoothDeviceRequest               Type = 26
	TypeBluetoothDeviceConnectionResponse    Type = 27
	TypeBluetoothGATTGetServicesRequest      Type = 28
	TypeBluetoothGATTGetServicesResponse     Type = 29
	TypeBluetoothGATTReadRequest             Type = 30
	TypeBluetoothGATTReadResponse            Type = 31
	TypeBluetoothGATTWriteRequest            Type = 32
	TypeBluetoothGATTWriteResponse           Type = 33
	TypeBluetoothGATTNotifyRequest           Type = 34
	TypeBluetoothGATTNotifyResponse          Type = 35
	TypeBluetoothGATTNotifyDataResponse      Type = 36
	TypeBluetoothGATTReadDescriptorRequest   Type = 37
	TypeBluetoothGATTWriteDescriptorRequest  Type = 38
)

// Message is implemented by every catalogue entry.
type Message interface {
	MessageType() Type
	EncodePayload() []byte
}

// Frame encodes m as a complete wire frame.
func Frame(m Message) []byte {
	return EncodeFrame(m.MessageType(), m.EncodePayload())
}

// Default API version advertised in the handshake.
const (
	APIVersionMajor = 1
	APIVersionMinor = 10
)

// HelloRequest opens the handshake. Version fields default to 1.10 and are
// omitted on the wire when they hold that default.
type HelloRequest struct {
	ClientInfo      string
	APIVersionMajor uint32
	APIVersionMinor uint32
}

// NewHelloRequest returns a HelloRequest with the version defaults applied.
func NewHelloRequest() *HelloRequest {
	return &HelloRequest{APIVersionMajor: APIVersionMajor, APIVersionMinor: APIVersionMinor}
}

func (m *HelloRequest) MessageType() Type { return TypeHelloRequest }

func (m *HelloRequest) EncodePayload() []byte {
	var w fieldWriter
	w.str(1, m.ClientInfo)
	if m.APIVersionMajor != APIVersionMajor {
		w.uvarint(2, uint64(m.APIVersionMajor))
	}
	if m.APIVersionMinor != APIVersionMinor {
		w.uvarint(3, uint64(m.APIVersionMinor))
	}
	return w.buf
}

func decodeHelloRequest(payload []byte) (*HelloRequest, error) {
	m := NewHelloRequest()
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireLengthDelimited:
			m.ClientInfo = r.str()
		case field == 2 && wire == wireVarint:
			m.APIVersionMajor = uint32(r.uvarint())
		case field == 3 && wire == wireVarint:
			m.APIVersionMinor = uint32(r.uvarint())
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

// HelloResponse carries the server identity back to the client.
type HelloResponse struct {
	APIVersionMajor uint32
	APIVersionMinor uint32
	ServerInfo      string
	Name            string
}

func NewHelloResponse() *HelloResponse {
	return &HelloResponse{APIVersionMajor: APIVersionMajor, APIVersionMinor: APIVersionMinor}
}

func (m *HelloResponse) MessageType() Type { return TypeHelloResponse }

func (m *HelloResponse) EncodePayload() []byte {
	var w fieldWriter
	if m.APIVersionMajor != APIVersionMajor {
		w.uvarint(1, uint64(m.APIVersionMajor))
	}
	if m.APIVersionMinor != APIVersionMinor {
		w.uvarint(2, uint64(m.APIVersionMinor))
	}
	w.str(3, m.ServerInfo)
	w.str(4, m.Name)
	return w.buf
}

func decodeHelloResponse(payload []byte) (*HelloResponse, error) {
	m := NewHelloResponse()
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.APIVersionMajor = uint32(r.uvarint())
		case field == 2 && wire == wireVarint:
			m.APIVersionMinor = uint32(r.uvarint())
		case field == 3 && wire == wireLengthDelimited:
			m.ServerInfo = r.str()
		case field == 4 && wire == wireLengthDelimited:
			m.Name = r.str()
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}

// ConnectRequest carries the optional plaintext password.
type ConnectRequest struct {
	Password string
}

func (m *ConnectRequest) MessageType() Type { return TypeConnectRequest }

func (m *ConnectRequest) EncodePayload() []byte {
	var w fieldWriter
	w.str(1, m.Password)
	return w.buf
}

func decodeConnectRequest(payload []byte) (*ConnectRequest, error) {
	m := &ConnectRequest{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		if field == 1 && wire == wireLengthDelimited {
			m.Password = r.str()
		} else {
			r.skip(wire)
		}
	}
	return m, r.Err()
}

type ConnectResponse struct {
	InvalidPassword bool
}

func (m *ConnectResponse) MessageType() Type { return TypeConnectResponse }

func (m *ConnectResponse) EncodePayload() []byte {
	var w fieldWriter
	w.boolean(1, m.InvalidPassword)
	return w.buf
}

func decodeConnectResponse(payload []byte) (*ConnectResponse, error) {
	m := &ConnectResponse{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		if field == 1 && wire == wireVarint {
			m.InvalidPassword = r.boolean()
		} else {
			r.skip(wire)
		}
	}
	return m, r.Err()
}

// Empty messages. Each still owns its wire type number.

type DisconnectRequest struct{}

func (m *DisconnectRequest) MessageType() Type     { return TypeDisconnectRequest }
func (m *DisconnectRequest) EncodePayload() []byte { return nil }

type DisconnectResponse struct{}

func (m *DisconnectResponse) MessageType() Type     { return TypeDisconnectResponse }
func (m *DisconnectResponse) EncodePayload() []byte { return nil }

type PingRequest struct{}

func (m *PingRequest) MessageType() Type     { return TypePingRequest }
func (m *PingRequest) EncodePayload() []byte { return nil }

type PingResponse struct{}

func (m *PingResponse) MessageType() Type     { return TypePingResponse }
func (m *PingResponse) EncodePayload() []byte { return nil }

type DeviceInfoRequest struct{}

func (m *DeviceInfoRequest) MessageType() Type     { return TypeDeviceInfoRequest }
func (m *DeviceInfoRequest) EncodePayload() []byte { return nil }

type ListEntitiesRequest struct{}

func (m *ListEntitiesRequest) MessageType() Type     { return TypeListEntitiesRequest }
func (m *ListEntitiesRequest) EncodePayload() []byte { return nil }

type ListEntitiesDoneResponse struct{}

func (m *ListEntitiesDoneResponse) MessageType() Type     { return TypeListEntitiesDoneResponse }
func (m *ListEntitiesDoneResponse) EncodePayload() []byte { return nil }

type SubscribeStatesRequest struct{}

func (m *SubscribeStatesRequest) MessageType() Type     { return TypeSubscribeStatesRequest }
func (m *SubscribeStatesRequest) EncodePayload() []byte { return nil }

// DeviceInfoResponse describes the proxy's identity to the client.
type DeviceInfoResponse struct {
	UsesPassword               bool
	Name                       string
	MacAddress                 string
	EsphomeVersion             string
	CompilationTime            string
	Model                      string
	HasDeepSleep               bool
	ProjectName                string
	ProjectVersion             string
	WebserverPort              uint32
	Manufacturer               string
	FriendlyName               string
	BluetoothProxyFeatureFlags uint32
	BluetoothMacAddress        string
}

func (m *DeviceInfoResponse) MessageType() Type { return TypeDeviceInfoResponse }

func (m *DeviceInfoResponse) EncodePayload() []byte {
	var w fieldWriter
	w.boolean(1, m.UsesPassword)
	w.str(2, m.Name)
	w.str(3, m.MacAddress)
	w.str(4, m.EsphomeVersion)
	w.str(5, m.CompilationTime)
	w.str(6, m.Model)
	w.boolean(7, m.HasDeepSleep)
	w.str(8, m.ProjectName)
	w.str(9, m.ProjectVersion)
	w.uvarint(10, uint64(m.WebserverPort))
	w.str(12, m.Manufacturer)
	w.str(13, m.FriendlyName)
	w.uvarint(15, uint64(m.BluetoothProxyFeatureFlags))
	w.str(18, m.BluetoothMacAddress)
	return w.buf
}

func decodeDeviceInfoResponse(payload []byte) (*DeviceInfoResponse, error) {
	m := &DeviceInfoResponse{}
	r := newFieldReader(payload)
	for {
		field, wire, ok := r.next()
		if !ok {
			break
		}
		switch {
		case field == 1 && wire == wireVarint:
			m.UsesPassword = r.boolean()
		case field == 2 && wire == wireLengthDelimited:
			m.Name = r.str()
		case field == 3 && wire == wireLengthDelimited:
			m.MacAddress = r.str()
		case field == 4 && wire == wireLengthDelimited:
			m.EsphomeVersion = r.str()
		case field == 5 && wire == wireLengthDelimited:
			m.CompilationTime = r.str()
		case field == 6 && wire == wireLengthDelimited:
			m.Model = r.str()
		case field == 7 && wire == wireVarint:
			m.HasDeepSleep = r.boolean()
		case field == 8 && wire == wireLengthDelimited:
			m.ProjectName = r.str()
		case field == 9 && wire == wireLengthDelimited:
			m.ProjectVersion = r.str()
		case field == 10 && wire == wireVarint:
			m.WebserverPort = uint32(r.uvarint())
		case field == 12 && wire == wireLengthDelimited:
			m.Manufacturer = r.str()
		case field == 13 && wire == wireLengthDelimited:
			m.FriendlyName = r.str()
		case field == 15 && wire == wireVarint:
			m.BluetoothProxyFeatureFlags = uint32(r.uvarint())
		case field == 18 && wire == wireLengthDelimited:
			m.BluetoothMacAddress = r.str()
		default:
			r.skip(wire)
		}
	}
	return m, r.Err()
}
