package backend_test

import (
	"testing"

	"github.com/srg/bleproxy/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []byte
	}{
		{
			name:  "16-bit battery service",
			input: "180f",
			expected: []byte{
				0x00, 0x00, 0x18, 0x0F, 0x00, 0x00, 0x10, 0x00,
				0x80, 0x00, 0x00, 0x80, 0x5F, 0x9B, 0x34, 0xFB,
			},
		},
		{
			name:  "16-bit with 0x prefix",
			input: "0x2902",
			expected: []byte{
				0x00, 0x00, 0x29, 0x02, 0x00, 0x00, 0x10, 0x00,
				0x80, 0x00, 0x00, 0x80, 0x5F, 0x9B, 0x34, 0xFB,
			},
		},
		{
			name:  "32-bit",
			input: "1234abcd",
			expected: []byte{
				0x12, 0x34, 0xAB, 0xCD, 0x00, 0x00, 0x10, 0x00,
				0x80, 0x00, 0x00, 0x80, 0x5F, 0x9B, 0x34, 0xFB,
			},
		},
		{
			name:  "128-bit with dashes",
			input: "6E400001-B5A3-F393-E0A9-E50E24DCCA9E",
			expected: []byte{
				0x6E, 0x40, 0x00, 0x01, 0xB5, 0xA3, 0xF3, 0x93,
				0xE0, 0xA9, 0xE5, 0x0E, 0x24, 0xDC, 0xCA, 0x9E,
			},
		},
		{
			name:  "128-bit without dashes",
			input: "6e400001b5a3f393e0a9e50e24dcca9e",
			expected: []byte{
				0x6E, 0x40, 0x00, 0x01, 0xB5, 0xA3, 0xF3, 0x93,
				0xE0, 0xA9, 0xE5, 0x0E, 0x24, 0xDC, 0xCA, 0x9E,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := backend.ExpandUUID(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.Len(t, got, 16)
		})
	}
}

func TestExpandUUID_Invalid(t *testing.T) {
	for _, input := range []string{"", "xyz", "18", "180f0", "6e400001b5a3"} {
		_, err := backend.ExpandUUID(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestPropertyMask(t *testing.T) {
	tests := []struct {
		name       string
		properties []string
		expected   uint32
	}{
		{"read only", []string{"read"}, 2},
		{"read+notify", []string{"read", "notify"}, 18},
		{"all known", []string{"read", "write-without-response", "write", "notify", "indicate"}, 62},
		{"unknown dropped", []string{"read", "broadcast", "extended-properties"}, 2},
		{"case insensitive", []string{"Read", "WriteWithoutResponse"}, 6},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, backend.PropertyMask(tt.properties))
		})
	}
}

func TestParseMAC(t *testing.T) {
	v, err := backend.ParseMAC("AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	assert.Equal(t, uint64(0xAABBCCDDEEFF), v)

	v, err = backend.ParseMAC("00:00:00:00:00:01")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}

func TestParseMAC_Invalid(t *testing.T) {
	for _, input := range []string{"", "AA:BB:CC:DD:EE", "AA:BB:CC:DD:EE:FF:00", "GG:BB:CC:DD:EE:FF", "AABBCCDDEEFF"} {
		_, err := backend.ParseMAC(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestFormatMAC_RoundTrip(t *testing.T) {
	for _, addr := range []uint64{0, 1, 0xAABBCCDDEEFF, 0x0000FFFFFFFF} {
		formatted := backend.FormatMAC(addr)
		parsed, err := backend.ParseMAC(formatted)
		require.NoError(t, err)
		assert.Equal(t, addr, parsed)
	}
}

func TestNormalizeError(t *testing.T) {
	assert.NoError(t, backend.NormalizeError(nil))

	err := backend.NormalizeError(assert.AnError)
	assert.Equal(t, assert.AnError, err)

	err = backend.NormalizeError(errDeviceNotConnected)
	assert.ErrorIs(t, err, backend.ErrNotConnected)
}

var errDeviceNotConnected = &textError{"ble: device not connected"}

type textError struct{ msg string }

func (e *textError) Error() string { return e.msg }
