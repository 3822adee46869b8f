package adauth

import (
	"strings"
)

// EscapeFilter escapes a value for safe interpolation into an LDAP search
// filter against Active Directory.
//
// Characters outside the safe set (space, letters, digits, and
// . & - _ [ ] ` ~ | @ $ % ^ ? : { } ! ') are replaced with a backslash
// followed by the two-digit lowercase hex code of the byte. A leading or
// trailing space is additionally escaped as \20 even though interior spaces
// are left alone: AD silently trims unescaped boundary whitespace when
// matching, so "bob " would otherwise match "bob".
func EscapeFilter(value string) string {
	if value == "" {
		return value
	}

	var result strings.Builder
	result.Grow(len(value) + 8)

	// Escaping operates on bytes; multi-byte runes become one hex escape per
	// byte, which is the representation AD expects in filters.
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c == ' ':
			if i == 0 || i == len(value)-1 {
				result.WriteString(`\20`)
			} else {
				result.WriteByte(c)
			}
		case isFilterSafe(c):
			result.WriteByte(c)
		default:
			result.WriteByte('\\')
			result.WriteByte(hexDigits[c>>4])
			result.WriteByte(hexDigits[c&0x0f])
		}
	}

	return result.String()
}

const hexDigits = "0123456789abcdef"

// Placeholder tokens recognized in filter templates.
const (
	tokenDN       = "{{dn}}"
	tokenUPN      = "{{upn}}"
	tokenUsername = "{{username}}"
)

func isFilterSafe(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '.', '&', '-', '_', '[', ']', '`', '~', '|', '@', '$', '%', '^', '?', ':', '{', '}', '!', '\'':
		return true
	}
	return false
}

// expandFilter substitutes every occurrence of each placeholder token in a
// configured filter template. Substitution is global: templates are free to
// repeat a token.
func expandFilter(template string, tokens map[string]string) string {
	filter := template
	for token, value := range tokens {
		filter = strings.ReplaceAll(filter, token, value)
	}
	return filter
}
