package adauth

import (
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// Sentinel errors for credential validation. These are returned before any
// network round-trip is made.
var (
	// ErrMissingCredential is returned when Authenticate is called with an
	// empty password. An empty password is rejected up front: some directory
	// servers treat an empty-password simple bind as an anonymous bind and
	// report success.
	ErrMissingCredential = errors.New("adauth: password must not be empty")

	// ErrEmptyUsername is returned when a lookup is attempted with an empty
	// login identifier.
	ErrEmptyUsername = errors.New("adauth: username must not be empty")
)

// ConfigError reports a missing or invalid configuration option. It is only
// returned at construction time and is never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("adauth: invalid configuration: %s: %s", e.Field, e.Reason)
}

// TransportError reports a connection, bind, or search failure that occurred
// before the directory produced a result: dial failures, TLS negotiation
// failures, timeouts, and broken connections.
type TransportError struct {
	Op  string // "dial", "starttls", "bind", "search"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("adauth: %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// InvalidCredentialsError reports a bind rejected by the directory with LDAP
// result code 49 (invalid credentials). Account-policy outcomes such as
// lockout or expiry also surface under this code; the directory does not
// distinguish them to unauthenticated callers and neither does this package.
type InvalidCredentialsError struct {
	Username string
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("adauth: invalid credentials for %q", e.Username)
}

// DirectoryError reports a completed search whose result carried a
// non-success status code. The code is forwarded for diagnostics.
type DirectoryError struct {
	Op         string
	ResultCode uint16
	Message    string
}

func (e *DirectoryError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("adauth: %s returned status %d (%s): %s",
			e.Op, e.ResultCode, ldap.LDAPResultCodeMap[e.ResultCode], e.Message)
	}
	return fmt.Sprintf("adauth: %s returned status %d (%s)",
		e.Op, e.ResultCode, ldap.LDAPResultCodeMap[e.ResultCode])
}

// UnknownDomainError reports a down-level logon whose NetBIOS domain name did
// not match the domain's own msDS-PrincipalName.
type UnknownDomainError struct {
	NetBIOSName string
}

func (e *UnknownDomainError) Error() string {
	return fmt.Sprintf("adauth: unknown NetBIOS domain %q", e.NetBIOSName)
}

// AmbiguousUserError reports a login identifier that matched more than one
// directory object. This guards against misconfigured search filters silently
// authenticating the wrong account.
type AmbiguousUserError struct {
	Username string
	Matches  int
}

func (e *AmbiguousUserError) Error() string {
	return fmt.Sprintf("adauth: %d users found for %q, expected exactly one", e.Matches, e.Username)
}

// NoSuchUserError reports a bind that succeeded but whose identifier matched
// no directory object. Callers should not distinguish this from invalid
// credentials in user-facing messaging.
type NoSuchUserError struct {
	Username string
}

func (e *NoSuchUserError) Error() string {
	return fmt.Sprintf("adauth: no such user %q", e.Username)
}

// GroupResolutionError reports a failure at any depth of effective group
// resolution. The whole resolution is aborted; no partial group list is ever
// returned.
type GroupResolutionError struct {
	DN  string
	Err error
}

func (e *GroupResolutionError) Error() string {
	return fmt.Sprintf("adauth: resolving groups for %s: %v", e.DN, e.Err)
}

func (e *GroupResolutionError) Unwrap() error {
	return e.Err
}

// IsInvalidCredentials reports whether err represents a bind rejected by the
// directory rather than a transport or lookup failure.
func IsInvalidCredentials(err error) bool {
	var ice *InvalidCredentialsError
	return errors.As(err, &ice)
}

// go-ldap reserves codes 200-206 for client-side failures (network, filter
// compile, empty password); anything else in an *ldap.Error came from the
// server.
func isServerResultCode(code uint16) bool {
	return code < ldap.ErrorNetwork || code > ldap.ErrorEmptyPassword
}
