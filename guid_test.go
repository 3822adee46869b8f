package adauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeGUID(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name: "mixed-endian reordering",
			input: []byte{
				0x78, 0x56, 0x34, 0x12, // Data1, little-endian
				0x34, 0x12, // Data2, little-endian
				0x78, 0x56, // Data3, little-endian
				0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, // Data4, big-endian
			},
			expected: "{12345678-1234-5678-9abc-def012345678}",
		},
		{
			name: "uppercase hex normalized to lowercase",
			input: []byte{
				0xEF, 0xBE, 0xAD, 0xDE,
				0x0D, 0xF0,
				0xFE, 0xCA,
				0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE, 0xBA, 0xBE,
			},
			expected: "{deadbeef-f00d-cafe-dead-beefcafebabe}",
		},
		{
			name:     "all zeros",
			input:    make([]byte, 16),
			expected: "{00000000-0000-0000-0000-000000000000}",
		},
		{
			name:     "truncated input",
			input:    []byte{0x01, 0x02, 0x03},
			expected: "",
		},
		{
			name:     "oversized input",
			input:    make([]byte, 17),
			expected: "",
		},
		{
			name:     "empty input",
			input:    nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := DecodeGUID(tt.input)
			assert.Equal(t, tt.expected, decoded)
			if tt.expected != "" {
				assert.Len(t, decoded, 38)
			}
		})
	}
}
