// Package adauth authenticates username/password credentials against an
// Active Directory domain over LDAP, resolving the authenticated identity to
// its directory record and its complete effective group membership: direct
// memberships, the implicit primary group derived by SID arithmetic, and
// groups inherited transitively through nested membership.
//
// Authentication binds with the user's own credential before any directory
// query is issued, letting the directory apply its lockout and audit policy
// to the real credential and keeping response latency independent of whether
// the username exists.
package adauth

import (
	"context"
	"errors"
	"net"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
)

// Authenticator authenticates credentials against one directory. It is safe
// for concurrent use; each Authenticate call uses its own connection and
// working state.
type Authenticator struct {
	config *Config
	log    zerolog.Logger
	cache  *credentialCache

	// dial opens and prepares a connection. Overridable in tests.
	dial func(ctx context.Context) (directoryConn, error)
}

// New validates the configuration, applies defaults, and constructs an
// Authenticator. Configuration problems surface as *ConfigError and are
// never retried.
func New(cfg *Config) (*Authenticator, error) {
	if cfg == nil {
		return nil, &ConfigError{Field: "Config", Reason: "configuration is required"}
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	a := &Authenticator{
		config: cfg,
		log:    zerolog.Nop(),
	}
	if cfg.Logger != nil {
		a.log = *cfg.Logger
	}
	if cfg.Cache != nil {
		a.cache = newCredentialCache(cfg.Cache)
	}
	a.dial = a.dialDirectory

	return a, nil
}

// CacheStats returns credential cache counters, or the zero value when
// caching is not configured.
func (a *Authenticator) CacheStats() CacheStats {
	if a.cache == nil {
		return CacheStats{}
	}
	return a.cache.Stats()
}

// Authenticate validates a username/password pair against the directory and
// returns the user's directory record with effective groups resolved.
//
// The password is rejected before any network round-trip when empty. With a
// configured cache, a fresh entry whose stored hash verifies the supplied
// password short-circuits the directory entirely. Otherwise one connection is
// opened and bound with the supplied credential, the identity is resolved
// over that same connection, and effective groups are resolved unless group
// search is unconfigured. Distinct failure kinds are documented in this
// package's error types.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*Entry, error) {
	if password == "" {
		return nil, ErrMissingCredential
	}
	if username == "" {
		return nil, ErrEmptyUsername
	}

	if a.cache != nil {
		if user, ok := a.cache.lookup(username, password); ok {
			a.log.Debug().Str("username", username).Msg("authenticated from cache")
			return user, nil
		}
	}

	conn, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Bind(username, password); err != nil {
		var ldapErr *ldap.Error
		if errors.As(err, &ldapErr) && ldapErr.ResultCode == ldap.LDAPResultInvalidCredentials {
			a.log.Debug().Str("username", username).Msg("bind rejected")
			return nil, &InvalidCredentialsError{Username: username}
		}
		a.log.Debug().Str("username", username).Err(err).Msg("bind failed")
		return nil, &TransportError{Op: "bind", Err: err}
	}

	user, err := a.findUser(conn, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// The bind succeeded but the identifier matched nothing the filters
		// recognize. Surfaced distinctly, though callers should present it
		// as a generic authentication failure.
		return nil, &NoSuchUserError{Username: username}
	}

	if a.config.Groups != nil {
		groups, err := a.resolveGroups(ctx, conn, user)
		if err != nil {
			return nil, err
		}
		user.Groups = groups
	}

	if a.cache != nil {
		if err := a.cache.store(username, password, user); err != nil {
			// Caching is best-effort; a hashing failure must not fail an
			// authentication that already succeeded.
			a.log.Warn().Str("username", username).Err(err).Msg("credential cache store failed")
		}
	}

	a.log.Info().
		Str("username", username).
		Str("dn", user.DN).
		Int("groups", len(user.Groups)).
		Msg("authentication succeeded")

	return user, nil
}

// dialDirectory opens the configured directory connection, applies the
// operation timeout, and negotiates StartTLS when requested.
func (a *Authenticator) dialDirectory(ctx context.Context) (directoryConn, error) {
	var opts []ldap.DialOpt

	dialer := &net.Dialer{Timeout: a.config.Timeout}
	opts = append(opts, ldap.DialWithDialer(dialer))

	if a.config.TLS != nil {
		tlsConfig, err := a.config.TLS.build()
		if err != nil {
			return nil, &ConfigError{Field: "TLS", Reason: err.Error()}
		}
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
	}

	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	conn, err := ldap.DialURL(a.config.URL, opts...)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	conn.SetTimeout(a.config.Timeout)

	if a.config.StartTLS {
		tlsConfig, err := a.config.TLS.buildOrDefault()
		if err != nil {
			conn.Close()
			return nil, &ConfigError{Field: "TLS", Reason: err.Error()}
		}
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			return nil, &TransportError{Op: "starttls", Err: err}
		}
	}

	return conn, nil
}
