package adauth

import (
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Attribute names with binary values that are decoded during materialization.
const (
	attrObjectSID      = "objectSid"
	attrObjectGUID     = "objectGUID"
	attrMemberOf       = "memberOf"
	attrPrimaryGroupID = "primaryGroupID"
)

// Entry is a directory object materialized from a search result. Binary
// objectSid and objectGUID values are decoded to their canonical string forms
// before the entry is handed to any resolver logic; downstream code never
// sees the raw forms unless raw retention was requested.
type Entry struct {
	// DN is the distinguished name, the stable identity key of the object.
	DN string

	// ObjectSID is the decoded security identifier (S-1-5-21-...), empty if
	// the attribute was absent.
	ObjectSID string

	// ObjectGUID is the decoded object GUID ({...}), empty if absent.
	ObjectGUID string

	// Attributes holds every attribute returned by the server, with
	// objectSid/objectGUID replaced by their decoded forms.
	Attributes map[string][]string

	// Raw holds the verbatim binary attribute values. Populated only when
	// Config.IncludeRaw is set.
	Raw map[string][][]byte

	// Groups is the effective group membership in discovery order, with the
	// primary group first when one was resolved. Populated on the
	// authenticated user by Authenticate when group search is configured.
	Groups []*Entry
}

// newEntry materializes a search result entry, decoding binary attributes.
func newEntry(src *ldap.Entry, includeRaw bool) *Entry {
	e := &Entry{
		DN:         src.DN,
		Attributes: make(map[string][]string, len(src.Attributes)),
	}
	if includeRaw {
		e.Raw = make(map[string][][]byte, len(src.Attributes))
	}

	for _, attr := range src.Attributes {
		switch {
		case strings.EqualFold(attr.Name, attrObjectSID) && len(attr.ByteValues) > 0:
			e.ObjectSID = DecodeSID(attr.ByteValues[0])
			e.Attributes[attr.Name] = []string{e.ObjectSID}
		case strings.EqualFold(attr.Name, attrObjectGUID) && len(attr.ByteValues) > 0:
			e.ObjectGUID = DecodeGUID(attr.ByteValues[0])
			e.Attributes[attr.Name] = []string{e.ObjectGUID}
		default:
			values := make([]string, len(attr.Values))
			copy(values, attr.Values)
			e.Attributes[attr.Name] = values
		}

		if includeRaw {
			raw := make([][]byte, len(attr.ByteValues))
			for i, bv := range attr.ByteValues {
				raw[i] = append([]byte(nil), bv...)
			}
			e.Raw[attr.Name] = raw
		}
	}

	return e
}

// GetAttributeValues returns every value of the named attribute. Attribute
// name matching is case-insensitive, as in the directory itself.
func (e *Entry) GetAttributeValues(name string) []string {
	if values, ok := e.Attributes[name]; ok {
		return values
	}
	for attr, values := range e.Attributes {
		if strings.EqualFold(attr, name) {
			return values
		}
	}
	return nil
}

// GetAttributeValue returns the first value of the named attribute, or the
// empty string if the attribute is absent.
func (e *Entry) GetAttributeValue(name string) string {
	values := e.GetAttributeValues(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// MemberOf returns the entry's memberOf attribute normalized to a sequence of
// DNs. The directory returns a bare string for single membership; callers
// always see a slice.
func (e *Entry) MemberOf() []string {
	return e.GetAttributeValues(attrMemberOf)
}

// PrependMemberOf inserts a DN at the front of the entry's memberOf
// attribute, creating the attribute if necessary.
func (e *Entry) PrependMemberOf(dn string) {
	if e.Attributes == nil {
		e.Attributes = make(map[string][]string, 1)
	}
	key := attrMemberOf
	for attr := range e.Attributes {
		if strings.EqualFold(attr, attrMemberOf) {
			key = attr
			break
		}
	}
	e.Attributes[key] = append([]string{dn}, e.Attributes[key]...)
}

// PrimaryGroupRID returns the entry's primaryGroupID attribute as an unsigned
// relative identifier. The second return value is false when the attribute is
// absent or unparsable.
func (e *Entry) PrimaryGroupRID() (uint32, bool) {
	value := e.GetAttributeValue(attrPrimaryGroupID)
	if value == "" {
		return 0, false
	}
	rid, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(rid), true
}

// dedupKey is the identity used for group resolution deduplication: the
// decoded objectSid when present, otherwise the DN.
func (e *Entry) dedupKey() string {
	if e.ObjectSID != "" {
		return e.ObjectSID
	}
	return e.DN
}
