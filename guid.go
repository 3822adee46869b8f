package adauth

import (
	"github.com/google/uuid"
)

// guidBytesLength is the fixed size of an objectGUID value.
const guidBytesLength = 16

// DecodeGUID converts the 16-byte objectGUID value to its canonical braced
// string form, {xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx}, lowercase hex.
//
// Active Directory stores GUIDs in a mixed-endian layout that differs from
// standard UUID byte ordering: the first three fields (4, 2 and 2 bytes) are
// little-endian, the final 8 bytes are big-endian. The bytes are reordered
// before formatting.
func DecodeGUID(b []byte) string {
	if len(b) != guidBytesLength {
		return ""
	}

	standard := make([]byte, guidBytesLength)

	// Data1 (bytes 0-3): reverse byte order (from little-endian)
	standard[0] = b[3]
	standard[1] = b[2]
	standard[2] = b[1]
	standard[3] = b[0]

	// Data2 (bytes 4-5): reverse byte order (from little-endian)
	standard[4] = b[5]
	standard[5] = b[4]

	// Data3 (bytes 6-7): reverse byte order (from little-endian)
	standard[6] = b[7]
	standard[7] = b[6]

	// Data4 (bytes 8-15): keep original order (big-endian)
	copy(standard[8:], b[8:])

	u, err := uuid.FromBytes(standard)
	if err != nil {
		return ""
	}

	return "{" + u.String() + "}"
}
