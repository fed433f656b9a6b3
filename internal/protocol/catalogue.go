package protocol

// Decode turns a (type, payload) pair into a typed message. Unknown message
// types return (nil, nil): the connection layer counts and discards them
// rather than dropping the client.
func Decode(t Type, payload []byte) (Message, error) {
	switch t {
	case TypeHelloRequest:
		return decodeHelloRequest(payload)
	case TypeHelloResponse:
		return decodeHelloResponse(payload)
	case TypeConnectRequest:
		return decodeConnectRequest(payload)
	case TypeConnectResponse:
		return decodeConnectResponse(payload)
	case TypeDisconnectRequest:
		return &DisconnectRequest{}, nil
	case TypeDisconnectResponse:
		return &DisconnectResponse{}, nil
	case TypePingRequest:
		return &PingRequest{}, nil
	case TypePingResponse:
		return &PingResponse{}, nil
	case TypeDeviceInfoRequest:
		return &DeviceInfoRequest{}, nil
	case TypeDeviceInfoResponse:
		return decodeDeviceInfoResponse(payload)
	case TypeListEntitiesRequest:
		return &ListEntitiesRequest{}, nil
	case TypeListEntitiesDoneResponse:
		return &ListEntitiesDoneResponse{}, nil
	case TypeSubscribeStatesRequest:
		return &SubscribeStatesRequest{}, nil
	case TypeBluetoothScannerStateResponse:
		return decodeBluetoothScannerStateResponse(payload)
	case TypeBluetoothLEAdvertisementResponse:
		return decodeBluetoothLEAdvertisementResponse(payload)
	case TypeBluetoothLERawAdvertisementsResponse:
		return decodeBluetoothLERawAdvertisementsResponse(payload)
	case TypeBluetoothDeviceRequest:
		return decodeBluetoothDeviceRequest(payload)
	case TypeBluetoothDeviceConnectionResponse:
		return decodeBluetoothDeviceConnectionResponse(payload)
	case TypeBluetoothGATTGetServicesRequest:
		return decodeBluetoothGATTGetServicesRequest(payload)
	case TypeBluetoothGATTGetServicesResponse:
		return decodeBluetoothGATTGetServicesResponse(payload)
	case TypeBluetoothGATTReadRequest:
		return decodeBluetoothGATTReadRequest(payload)
	case TypeBluetoothGATTReadResponse:
		return decodeBluetoothGATTReadResponse(payload)
	case TypeBluetoothGATTWriteRequest:
		return decodeBluetoothGATTWriteRequest(payload)
	case TypeBluetoothGATTWriteResponse:
		return decodeBluetoothGATTWriteResponse(payload)
	case TypeBluetoothGATTNotifyRequest:
		return decodeBluetoothGATTNotifyRequest(payload)
	case TypeBluetoothGATTNotifyResponse:
		return decodeBluetoothGATTNotifyResponse(payload)
	case TypeBluetoothGATTNotifyDataResponse:
		return decodeBluetoothGATTNotifyDataResponse(payload)
	case TypeBluetoothGATTReadDescriptorRequest:
		return decodeBluetoothGATTReadDescriptorRequest(payload)
	case TypeBluetoothGATTWriteDescriptorRequest:
		return decodeBluetoothGATTWriteDescriptorRequest(payload)
	default:
		return nil, nil
	}
}
