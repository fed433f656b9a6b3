package protocol

// Frame layout: one 0x00 marker byte, varint payload length, varint message
// type, then the payload. The marker is mandatory; any other first byte
// means the stream is unrecoverable and the connection must be closed.
const frameMarker = 0x00

// AppendFrame appends a complete frame for (msgType, payload) to dst.
func AppendFrame(dst []byte, msgType Type, payload []byte) []byte {
	dst = append(dst, frameMarker)
	dst = AppendUvarint(dst, uint64(len(payload)))
	dst = AppendUvarint(dst, uint64(msgType))
	return append(dst, payload...)
}

// EncodeFrame returns a freshly allocated frame for (msgType, payload).
func EncodeFrame(msgType Type, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, len(payload)+6), msgType, payload)
}

// ParseFrame parses one frame from the front of data. It returns the message
// type, the payload (sub-slice of data, not copied), and the total frame
// length. On incomplete input it returns ErrNeedMore without consuming
// anything; structurally invalid input yields ErrMalformedFrame.
func ParseFrame(data []byte) (Type, []byte, int, error) {
	if len(data) == 0 {
		return 0, nil, 0, ErrNeedMore
	}
	if data[0] != frameMarker {
		return 0, nil, 0, malformed("invalid start marker")
	}

	offset := 1
	payloadLen, n, err := Uvarint(data[offset:])
	if err != nil {
		return 0, nil, 0, err
	}
	offset += n

	msgType, n, err := Uvarint(data[offset:])
	if err != nil {
		return 0, nil, 0, err
	}
	offset += n

	end := offset + int(payloadLen)
	if end < offset {
		return 0, nil, 0, malformed("payload length overflow")
	}
	if end > len(data) {
		return 0, nil, 0, ErrNeedMore
	}

	return Type(msgType), data[offset:end], end, nil
}
