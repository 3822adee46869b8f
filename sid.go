package adauth

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/go-objectsid"
)

// DecodeSID converts a binary security identifier in its on-wire layout to
// the canonical S-R-A-S1-...-Sn string form: byte 0 is the revision, byte 1
// the sub-authority count, bytes 2-7 a 48-bit big-endian identifier
// authority, followed by one little-endian 32-bit group per sub-authority.
// Sub-authorities are unsigned; values above 2^31 are routine in real
// directories and must not be sign-extended.
//
// The input is expected to be a well-formed SID as returned in the objectSid
// attribute; behavior on truncated buffers is undefined.
func DecodeSID(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return objectsid.Decode(b).String()
}

// primaryGroupSID derives the SID of an account's primary group by replacing
// the final relative identifier of the account's own SID with the
// primaryGroupID value. The primary group is never reported by a membership
// search, so it has to be reconstructed this way.
func primaryGroupSID(objectSID string, rid uint32) (string, bool) {
	i := strings.LastIndex(objectSID, "-")
	if i < 0 {
		return "", false
	}
	return objectSID[:i+1] + strconv.FormatUint(uint64(rid), 10), true
}
