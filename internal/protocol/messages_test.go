package protocol_test

import (
	"fmt"
	"testing"

	"github.com/srg/bleproxy/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMessageRoundTrip encodes every catalogue message and decodes it back
// through the type dispatcher, expecting a structurally equal result.
func TestMessageRoundTrip(t *testing.T) {
	uuid := func(short byte) []byte {
		u := make([]byte, 16)
		copy(u, []byte{0x00, 0x00, 0x18, short, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0x80, 0x5F, 0x9B, 0x34, 0xFB})
		return u
	}

	messages := []protocol.Message{
		&protocol.HelloRequest{ClientInfo: "Home Assistant 2024.12", APIVersionMajor: 1, APIVersionMinor: 10},
		&protocol.HelloResponse{APIVersionMajor: 1, APIVersionMinor: 10, ServerInfo: "bleproxy", Name: "bleproxy"},
		&protocol.ConnectRequest{Password: "s3cr3t"},
		&protocol.ConnectResponse{InvalidPassword: true},
		&protocol.DisconnectRequest{},
		&protocol.DisconnectResponse{},
		&protocol.PingRequest{},
		&protocol.PingResponse{},
		&protocol.DeviceInfoRequest{},
		&protocol.DeviceInfoResponse{
			Name:                       "bleproxy",
			MacAddress:                 "AA:BB:CC:DD:EE:FF",
			EsphomeVersion:             "2024.12.0",
			CompilationTime:            "Aug 26 2026, 10:00:00",
			Model:                      "Host",
			Manufacturer:               "bleproxy",
			FriendlyName:               "Bluetooth Proxy",
			BluetoothProxyFeatureFlags: 127,
			BluetoothMacAddress:        "AA:BB:CC:DD:EE:FF",
		},
		&protocol.ListEntitiesRequest{},
		&protocol.ListEntitiesDoneResponse{},
		&protocol.SubscribeStatesRequest{},
		&protocol.BluetoothScannerStateResponse{State: protocol.ScannerStateRunning, Mode: protocol.ScannerModePassive},
		&protocol.BluetoothLEAdvertisementResponse{Address: 0xAABBCCDDEEFF, RSSI: -67, AddressType: 1, Data: []byte{0x02, 0x01, 0x06}},
		&protocol.BluetoothLERawAdvertisementsResponse{
			Advertisements: []*protocol.BluetoothLEAdvertisementResponse{
				{Address: 0x112233445566, RSSI: -40, Data: []byte{0x03, 0x09, 0x68, 0x69}},
				{Address: 0xAABBCCDDEEFF, RSSI: -90, AddressType: 1},
			},
		},
		&protocol.BluetoothDeviceRequest{Address: 0x112233445566, AddressType: 1, Action: protocol.DeviceRequestConnect},
		&protocol.BluetoothDeviceConnectionResponse{Address: 0x112233445566, Connected: true, MTU: 247},
		&protocol.BluetoothDeviceConnectionResponse{Address: 0x112233445566, Error: 1},
		&protocol.BluetoothGATTGetServicesRequest{Address: 0x112233445566},
		&protocol.BluetoothGATTGetServicesResponse{
			Address: 0x112233445566,
			Services: []*protocol.GATTService{
				{
					UUID:   uuid(0x0F),
					Handle: 1,
					Characteristics: []*protocol.GATTCharacteristic{
						{
							UUID:       uuid(0x19),
							Handle:     2,
							Properties: 2 | 16,
							Descriptors: []*protocol.GATTDescriptor{
								{UUID: uuid(0x02), Handle: 3},
							},
						},
					},
				},
			},
		},
		&protocol.BluetoothGATTReadRequest{Address: 0x112233445566, Handle: 42},
		&protocol.BluetoothGATTReadResponse{Address: 0x112233445566, Handle: 42, Data: []byte{0x64}},
		&protocol.BluetoothGATTReadResponse{Address: 0x112233445566, Handle: 42, Error: 1},
		&protocol.BluetoothGATTWriteRequest{Address: 0x112233445566, Handle: 42, Response: true, Data: []byte{0x01, 0x02}},
		&protocol.BluetoothGATTWriteResponse{Address: 0x112233445566, Handle: 42},
		&protocol.BluetoothGATTNotifyRequest{Address: 0x112233445566, Handle: 42, Enable: true},
		&protocol.BluetoothGATTNotifyResponse{Address: 0x112233445566, Handle: 42},
		&protocol.BluetoothGATTNotifyDataResponse{Address: 0x112233445566, Handle: 42, Data: []byte{0xDE, 0xAD}},
		&protocol.BluetoothGATTReadDescriptorRequest{Address: 0x112233445566, Handle: 7},
		&protocol.BluetoothGATTWriteDescriptorRequest{Address: 0x112233445566, Handle: 7, Data: []byte{0x00, 0x01}},
	}

	for _, m := range messages {
		t.Run(fmt.Sprintf("%T", m), func(t *testing.T) {
			decoded, err := protocol.Decode(m.MessageType(), m.EncodePayload())
			require.NoError(t, err)
			assert.Equal(t, m, decoded)
		})
	}
}

func TestDecode_UnknownTypeReturnsNil(t *testing.T) {
	msg, err := protocol.Decode(protocol.Type(200), []byte{0x08, 0x01})

	require.NoError(t, err)
	assert.Nil(t, msg)
}

// TestDecode_SkipsUnknownFields feeds a payload containing a field number the
// decoder does not know about; it must be skipped, not rejected.
func TestDecode_SkipsUnknownFields(t *testing.T) {
	// field 1 (password) "pw", then unknown varint field 9, then unknown
	// length-delimited field 10
	payload := []byte{
		0x0A, 0x02, 'p', 'w',
		0x48, 0x2A,
		0x52, 0x03, 0x01, 0x02, 0x03,
	}

	msg, err := protocol.Decode(protocol.TypeConnectRequest, payload)

	require.NoError(t, err)
	req, ok := msg.(*protocol.ConnectRequest)
	require.True(t, ok)
	assert.Equal(t, "pw", req.Password)
}

func TestDecode_TruncatedPayload(t *testing.T) {
	// Length-delimited field claims 10 bytes but only 2 follow
	payload := []byte{0x0A, 0x0A, 'a', 'b'}

	_, err := protocol.Decode(protocol.TypeConnectRequest, payload)
	assert.ErrorIs(t, err, protocol.ErrMalformedFrame)
}

// TestDefaultOmission checks that default-valued fields produce no bytes, so
// idle messages stay compact on the wire.
func TestDefaultOmission(t *testing.T) {
	assert.Empty(t, (&protocol.ConnectRequest{}).EncodePayload())
	assert.Empty(t, (&protocol.ConnectResponse{}).EncodePayload())
	assert.Empty(t, (&protocol.BluetoothScannerStateResponse{}).EncodePayload())

	// Hello at the default 1.10 version carries only the client info
	hello := protocol.NewHelloRequest()
	hello.ClientInfo = "x"
	assert.Equal(t, []byte{0x0A, 0x01, 'x'}, hello.EncodePayload())
}

func TestHelloRequest_DecodeAppliesVersionDefaults(t *testing.T) {
	// Empty payload: every field at its default
	msg, err := protocol.Decode(protocol.TypeHelloRequest, nil)

	require.NoError(t, err)
	hello := msg.(*protocol.HelloRequest)
	assert.Equal(t, uint32(1), hello.APIVersionMajor)
	assert.Equal(t, uint32(10), hello.APIVersionMinor)
}

func TestRSSI_TwosComplementEncoding(t *testing.T) {
	adv := &protocol.BluetoothLEAdvertisementResponse{Address: 1, RSSI: -1}
	payload := adv.EncodePayload()

	// field 1 address, then field 2 as a full-width two's complement varint:
	// ten bytes, 0xFF... with a final 0x01
	expected := []byte{
		0x08, 0x01,
		0x10, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01,
	}
	assert.Equal(t, expected, payload)

	decoded, err := protocol.Decode(protocol.TypeBluetoothLEAdvertisementResponse, payload)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), decoded.(*protocol.BluetoothLEAdvertisementResponse).RSSI)
}
