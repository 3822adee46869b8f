package adauth

import (
	"regexp"
	"strings"
)

// A distinguished name is a comma-separated sequence of attr=value pairs.
var distinguishedNameRegex = regexp.MustCompile(`^(?:[^,=]+=[^,]+,?)+$`)

func isDistinguishedName(s string) bool {
	return strings.Contains(s, "=") && distinguishedNameRegex.MatchString(s)
}

// findUser locates the directory object for a login identifier over an
// already-bound connection. The identifier may be a down-level logon
// (DOMAIN\account), a UPN (user@domain), a full DN, or a bare SAM account
// name; each form selects its configured filter template.
//
// Exactly one user search is issued. Zero matches returns (nil, nil); more
// than one fails with *AmbiguousUserError rather than guessing.
func (a *Authenticator) findUser(conn directoryConn, username string) (*Entry, error) {
	if username == "" {
		return nil, ErrEmptyUsername
	}

	var filter string
	switch {
	case strings.Contains(username, `\`):
		// Down-level logon. The NetBIOS domain name is validated against the
		// directory before the account name is trusted.
		parts := strings.SplitN(username, `\`, 2)
		domain, account := parts[0], parts[1]
		if err := a.validateNetBIOSDomain(conn, domain); err != nil {
			return nil, err
		}
		filter = expandFilter(a.config.Filters.SAMAccountName, map[string]string{
			tokenUsername: EscapeFilter(account),
		})
	case isDistinguishedName(username):
		filter = expandFilter(a.config.Filters.DistinguishedName, map[string]string{
			tokenDN: EscapeFilter(username),
		})
	case strings.Contains(username, "@"):
		filter = expandFilter(a.config.Filters.UserPrincipalName, map[string]string{
			tokenUPN: EscapeFilter(username),
		})
	default:
		filter = expandFilter(a.config.Filters.SAMAccountName, map[string]string{
			tokenUsername: EscapeFilter(username),
		})
	}

	entries, err := a.search(conn, &SearchRequest{
		BaseDN:     a.config.BaseDN,
		Scope:      a.config.Scope,
		Filter:     filter,
		Attributes: a.config.Attributes,
	})
	if err != nil {
		return nil, err
	}

	switch len(entries) {
	case 0:
		return nil, nil
	case 1:
		return entries[0], nil
	default:
		return nil, &AmbiguousUserError{Username: username, Matches: len(entries)}
	}
}

// validateNetBIOSDomain checks a down-level logon's domain component against
// the directory's own msDS-PrincipalName, read from the domain object at the
// search base. Comparison is case-insensitive with trailing backslashes
// stripped from both sides.
func (a *Authenticator) validateNetBIOSDomain(conn directoryConn, domain string) error {
	entries, err := a.search(conn, &SearchRequest{
		BaseDN:     a.config.BaseDN,
		Scope:      ScopeBase,
		Filter:     "(objectClass=*)",
		Attributes: []string{"msDS-PrincipalName"},
		SizeLimit:  1,
	})
	if err != nil {
		return err
	}

	supplied := strings.TrimSuffix(domain, `\`)
	if len(entries) > 0 {
		actual := strings.TrimSuffix(entries[0].GetAttributeValue("msDS-PrincipalName"), `\`)
		if actual != "" && strings.EqualFold(actual, supplied) {
			return nil
		}
	}

	a.log.Debug().Str("netbios_domain", supplied).Msg("NetBIOS domain validation failed")
	return &UnknownDomainError{NetBIOSName: supplied}
}
