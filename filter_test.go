package adauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeFilter(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain account name unchanged",
			input:    "bob",
			expected: "bob",
		},
		{
			name:     "safe punctuation unchanged",
			input:    "svc.backup-01_prod",
			expected: "svc.backup-01_prod",
		},
		{
			name:     "upn unchanged",
			input:    "bob@example.com",
			expected: "bob@example.com",
		},
		{
			name:     "interior space preserved",
			input:    "Bob Smith",
			expected: "Bob Smith",
		},
		{
			name:     "boundary spaces escaped",
			input:    " a,b ",
			expected: `\20a\2cb\20`,
		},
		{
			name:     "filter metacharacters",
			input:    "(o*b)",
			expected: `\28o\2ab\29`,
		},
		{
			name:     "backslash and equals",
			input:    `DOM\user=x`,
			expected: `DOM\5cuser\3dx`,
		},
		{
			name:     "dn separators",
			input:    "CN=Bob Smith,DC=example,DC=com",
			expected: `CN\3dBob Smith\2cDC\3dexample\2cDC\3dcom`,
		},
		{
			name:     "nul byte",
			input:    "a\x00b",
			expected: `a\00b`,
		},
		{
			name:     "multi-byte rune escaped per byte",
			input:    "café",
			expected: `caf\c3\a9`,
		},
		{
			name:     "empty value",
			input:    "",
			expected: "",
		},
		{
			name:     "single space",
			input:    " ",
			expected: `\20`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EscapeFilter(tt.input))
		})
	}
}

func TestExpandFilter(t *testing.T) {
	t.Run("substitutes every occurrence", func(t *testing.T) {
		filter := expandFilter("(|(cn={{username}})(sAMAccountName={{username}}))", map[string]string{
			tokenUsername: "bob",
		})
		assert.Equal(t, "(|(cn=bob)(sAMAccountName=bob))", filter)
	})

	t.Run("multiple tokens", func(t *testing.T) {
		filter := expandFilter("(&(member={{dn}})(managedBy={{dn}})(x={{username}}))", map[string]string{
			tokenDN:       "CN\\3da",
			tokenUsername: "bob",
		})
		assert.Equal(t, "(&(member=CN\\3da)(managedBy=CN\\3da)(x=bob))", filter)
	})

	t.Run("absent token left intact", func(t *testing.T) {
		filter := expandFilter("(userPrincipalName={{upn}})", map[string]string{
			tokenUsername: "bob",
		})
		assert.Equal(t, "(userPrincipalName={{upn}})", filter)
	})
}
