package backend

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Bluetooth base UUID 0000xxxx-0000-1000-8000-00805F9B34FB. 16- and 32-bit
// UUIDs occupy the xxxx slot; everything after the first four bytes is fixed.
var baseUUID = [16]byte{
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x10, 0x00,
	0x80, 0x00, 0x00, 0x80,
	0x5F, 0x9B, 0x34, 0xFB,
}

// ExpandUUID converts a backend UUID string into its 16-byte 128-bit form.
// Accepts 16-bit ("180f"), 32-bit ("0000180f"), and full 128-bit UUIDs with
// or without dashes, case-insensitive, optional 0x prefix.
func ExpandUUID(uuid string) ([]byte, error) {
	s := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(uuid, "0x"), "0X"))
	s = strings.ReplaceAll(s, "-", "")

	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID %q: %w", uuid, err)
	}

	switch len(raw) {
	case 2:
		out := baseUUID
		copy(out[2:4], raw)
		return out[:], nil
	case 4:
		out := baseUUID
		copy(out[0:4], raw)
		return out[:], nil
	case 16:
		out := make([]byte, 16)
		copy(out, raw)
		return out, nil
	default:
		return nil, fmt.Errorf("invalid UUID %q: %d hex bytes", uuid, len(raw))
	}
}

// Characteristic property bits as encoded on the wire.
const (
	PropertyRead                 uint32 = 2
	PropertyWriteWithoutResponse uint32 = 4
	PropertyWrite                uint32 = 8
	PropertyNotify               uint32 = 16
	PropertyIndicate             uint32 = 32
)

// PropertyMask folds backend property strings into the wire bitmap. Strings
// without a defined bit are dropped.
func PropertyMask(properties []string) uint32 {
	var mask uint32
	for _, p := range properties {
		switch strings.ToLower(p) {
		case "read":
			mask |= PropertyRead
		case "write-without-response", "writewithoutresponse":
			mask |= PropertyWriteWithoutResponse
		case "write":
			mask |= PropertyWrite
		case "notify":
			mask |= PropertyNotify
		case "indicate":
			mask |= PropertyIndicate
		}
	}
	return mask
}

// ParseMAC converts a colon-separated MAC into its 48-bit integer form, most
// significant octet first.
func ParseMAC(address string) (uint64, error) {
	parts := strings.Split(address, ":")
	if len(parts) != 6 {
		return 0, fmt.Errorf("invalid MAC %q", address)
	}
	var v uint64
	for _, part := range parts {
		b, err := hex.DecodeString(part)
		if err != nil || len(b) != 1 {
			return 0, fmt.Errorf("invalid MAC %q", address)
		}
		v = v<<8 | uint64(b[0])
	}
	return v, nil
}

// FormatMAC is the inverse of ParseMAC: upper-case, colon-separated.
func FormatMAC(address uint64) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		byte(address>>40), byte(address>>32), byte(address>>24),
		byte(address>>16), byte(address>>8), byte(address))
}
