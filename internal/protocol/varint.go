package protocol

// maxVarintLen is the longest legal encoding of a 64-bit varint.
const maxVarintLen = 10

// AppendUvarint appends the base-128 little-endian encoding of v to dst.
// 7 data bits per byte, high bit set on every byte except the last.
func AppendUvarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// Uvarint decodes a varint from the front of data and returns the value and
// the number of bytes consumed. Returns ErrNeedMore if data ends mid-varint
// and ErrMalformedFrame if the encoding exceeds ten bytes.
func Uvarint(data []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i, b := range data {
		if i >= maxVarintLen {
			return 0, 0, malformed("varint exceeds 10 bytes")
		}
		v |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrNeedMore
}

// AppendVarint encodes a signed value as its two's-complement 64-bit varint.
// No zigzag: negative values always take ten bytes, matching protobuf int32/int64.
func AppendVarint(dst []byte, v int64) []byte {
	return AppendUvarint(dst, uint64(v))
}
