package adauth

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Scope selects how deep a search descends from its base DN.
type Scope int

const (
	ScopeBase     Scope = iota // The base object only
	ScopeOneLevel              // Immediate children of the base
	ScopeSubtree               // The base and its entire subtree
)

// String returns the string representation of the search scope.
func (s Scope) String() string {
	switch s {
	case ScopeBase:
		return "base"
	case ScopeOneLevel:
		return "one"
	case ScopeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

func (s Scope) ldapScope() int {
	switch s {
	case ScopeBase:
		return ldap.ScopeBaseObject
	case ScopeOneLevel:
		return ldap.ScopeSingleLevel
	default:
		return ldap.ScopeWholeSubtree
	}
}

// FilterTemplates are the user-lookup search filters. Each template contains
// placeholder tokens ({{username}}, {{upn}}, {{dn}}) that are replaced by
// every occurrence with the escaped login identifier.
type FilterTemplates struct {
	// SAMAccountName locates a user by pre-Windows 2000 account name. Used
	// for bare account names and the account part of DOMAIN\account logons.
	SAMAccountName string `toml:"sam_account_name" default:"(&(objectCategory=person)(objectClass=user)(sAMAccountName={{username}}))"`

	// UserPrincipalName locates a user by UPN (user@domain).
	UserPrincipalName string `toml:"user_principal_name" default:"(&(objectCategory=person)(objectClass=user)(userPrincipalName={{upn}}))"`

	// DistinguishedName locates a user presented as a full DN.
	DistinguishedName string `toml:"distinguished_name" default:"(&(objectCategory=person)(objectClass=user)(distinguishedName={{dn}}))"`
}

// GroupConfig enables and configures effective group resolution. A nil
// GroupConfig on Config disables group resolution entirely.
type GroupConfig struct {
	// BaseDN is the search base for group membership searches. Defaults to
	// the user search base.
	BaseDN string `toml:"base_dn"`

	// Scope of group membership searches.
	Scope Scope `toml:"scope" default:"2"`

	// Filter is the group membership filter template. {{dn}} is replaced
	// with the entry's DNProperty value and {{username}} with its
	// UsernameProperty value, both escaped, every occurrence.
	Filter string `toml:"filter" default:"(&(objectClass=group)(member={{dn}}))"`

	// FilterFunc, when set, computes the membership filter directly from the
	// entry and takes precedence over Filter. The function is responsible
	// for its own escaping.
	FilterFunc func(*Entry) string `toml:"-"`

	// DNProperty names the entry property substituted for {{dn}}. The
	// default "dn" uses the entry's distinguished name; any attribute name
	// may be configured instead.
	DNProperty string `toml:"dn_property" default:"dn"`

	// UsernameProperty names the attribute substituted for {{username}}.
	UsernameProperty string `toml:"username_property" default:"sAMAccountName"`

	// Attributes restricts the attributes requested for group entries.
	// Empty requests everything.
	Attributes []string `toml:"attributes"`

	// PrimaryGroupBase is the search base for the primary-group objectSid
	// lookup. This is deliberately its own setting rather than inheriting
	// the group-search base: the primary group is found by an object-SID
	// lookup rooted at the domain, not by a membership filter. Defaults to
	// the user search base.
	PrimaryGroupBase string `toml:"primary_group_base"`

	// PrimaryGroupScope is the scope of the primary-group lookup.
	PrimaryGroupScope Scope `toml:"primary_group_scope" default:"2"`
}

// CacheConfig enables and configures the short-lived credential cache. A nil
// CacheConfig on Config disables caching.
type CacheConfig struct {
	// Size is the fixed capacity; the least recently used entry is evicted
	// beyond it.
	Size int `toml:"size" default:"256"`

	// TTL bounds how long a cached authentication remains valid.
	TTL time.Duration `toml:"ttl" default:"5m"`

	// BcryptCost is the work factor for the stored password hash.
	BcryptCost int `toml:"bcrypt_cost" default:"10"`
}

// TLSConfig carries TLS material for ldaps:// and StartTLS connections.
type TLSConfig struct {
	// CACertFile is a path to a PEM bundle of trusted CAs.
	CACertFile string `toml:"ca_cert_file"`

	// CACert is a PEM bundle of trusted CAs, inline.
	CACert string `toml:"ca_cert"`

	// ClientCertFile and ClientKeyFile supply a client certificate.
	ClientCertFile string `toml:"client_cert_file"`
	ClientKeyFile  string `toml:"client_key_file"`

	// ServerName overrides the expected server name during verification.
	ServerName string `toml:"server_name"`

	// InsecureSkipVerify disables certificate verification. Not recommended.
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
}

// build assembles a *tls.Config from the configured material.
func (t *TLSConfig) build() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}

	caPEM := []byte(t.CACert)
	if t.CACertFile != "" {
		data, err := os.ReadFile(t.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caPEM = data
	}
	if len(caPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no CA certificates parsed from PEM data")
		}
		cfg.RootCAs = pool
	}

	if t.ClientCertFile != "" && t.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.ClientCertFile, t.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// buildOrDefault assembles a *tls.Config, falling back to a verification
// default when no TLS material was configured. Used for StartTLS, which needs
// a config even when the caller supplied none.
func (t *TLSConfig) buildOrDefault() (*tls.Config, error) {
	if t == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}
	return t.build()
}

// Config configures an Authenticator.
type Config struct {
	// URL of the directory server, ldap:// or ldaps://.
	URL string `toml:"url"`

	// BaseDN is the search base for user lookups, normally the domain root.
	BaseDN string `toml:"base_dn"`

	// Scope of user lookups.
	Scope Scope `toml:"scope" default:"2"`

	// Attributes restricts the attributes requested for user entries. Empty
	// requests everything the server will return.
	Attributes []string `toml:"attributes"`

	// IncludeRaw retains the verbatim binary attribute values on each entry
	// under Entry.Raw.
	IncludeRaw bool `toml:"include_raw"`

	// Filters are the user-lookup filter templates.
	Filters FilterTemplates `toml:"filters"`

	// Groups configures effective group resolution; nil disables it.
	Groups *GroupConfig `toml:"groups"`

	// Cache configures the credential cache; nil disables it.
	Cache *CacheConfig `toml:"cache"`

	// Timeout bounds the connection and every in-flight operation on it.
	// Expiry aborts the whole authenticate call.
	Timeout time.Duration `toml:"timeout" default:"10s"`

	// StartTLS upgrades a plain ldap:// connection before binding.
	StartTLS bool `toml:"start_tls"`

	// TLS supplies TLS material for ldaps:// or StartTLS.
	TLS *TLSConfig `toml:"tls"`

	// Logger receives diagnostic events. It is a side-channel only and never
	// alters control flow. Nil defaults to a no-op logger.
	Logger *zerolog.Logger `toml:"-"`
}

// normalize applies defaults and validates the configuration. Returns a
// *ConfigError describing the first problem found.
func (c *Config) normalize() error {
	if err := defaults.Set(c); err != nil {
		return &ConfigError{Field: "defaults", Reason: err.Error()}
	}

	if c.URL == "" {
		return &ConfigError{Field: "URL", Reason: "directory server URL is required"}
	}
	if c.BaseDN == "" {
		return &ConfigError{Field: "BaseDN", Reason: "search base is required"}
	}
	if c.Filters.SAMAccountName == "" || c.Filters.UserPrincipalName == "" || c.Filters.DistinguishedName == "" {
		return &ConfigError{Field: "Filters", Reason: "all three user-lookup filter templates are required"}
	}

	if g := c.Groups; g != nil {
		if g.BaseDN == "" {
			g.BaseDN = c.BaseDN
		}
		if g.PrimaryGroupBase == "" {
			g.PrimaryGroupBase = c.BaseDN
		}
		if g.Filter == "" && g.FilterFunc == nil {
			return &ConfigError{Field: "Groups.Filter", Reason: "a group filter template or filter function is required"}
		}
	}

	if ch := c.Cache; ch != nil {
		if ch.Size <= 0 {
			return &ConfigError{Field: "Cache.Size", Reason: "capacity must be positive"}
		}
		if ch.TTL <= 0 {
			return &ConfigError{Field: "Cache.TTL", Reason: "TTL must be positive"}
		}
		if ch.BcryptCost < bcrypt.MinCost || ch.BcryptCost > bcrypt.MaxCost {
			return &ConfigError{Field: "Cache.BcryptCost", Reason: fmt.Sprintf("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)}
		}
	}

	return nil
}
