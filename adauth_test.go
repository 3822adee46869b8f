package adauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeConn is a scripted directory connection. Searches are answered by the
// respond function and every request is recorded for assertions. Safe for
// concurrent use, matching the fan-out in group resolution.
type fakeConn struct {
	mu       sync.Mutex
	bindErr  error
	binds    [][2]string
	searches []*ldap.SearchRequest
	respond  func(*ldap.SearchRequest) (*ldap.SearchResult, error)
	closed   bool
}

func (f *fakeConn) Bind(username, password string) error {
	f.mu.Lock()
	f.binds = append(f.binds, [2]string{username, password})
	f.mu.Unlock()
	return f.bindErr
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.mu.Lock()
	f.searches = append(f.searches, req)
	f.mu.Unlock()
	if f.respond == nil {
		return &ldap.SearchResult{}, nil
	}
	return f.respond(req)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) searchFilters() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	filters := make([]string, len(f.searches))
	for i, req := range f.searches {
		filters[i] = req.Filter
	}
	return filters
}

// directoryEntry builds a raw search result entry, optionally with binary
// attribute values the way the directory returns objectSid and objectGUID.
func directoryEntry(dn string, attrs map[string][]string, binary map[string][]byte) *ldap.Entry {
	entry := ldap.NewEntry(dn, attrs)
	for name, value := range binary {
		entry.Attributes = append(entry.Attributes, &ldap.EntryAttribute{
			Name:       name,
			Values:     []string{string(value)},
			ByteValues: [][]byte{value},
		})
	}
	return entry
}

func searchResult(entries ...*ldap.Entry) *ldap.SearchResult {
	return &ldap.SearchResult{Entries: entries}
}

// newTestAuthenticator constructs an Authenticator whose dial returns the
// supplied scripted connection.
func newTestAuthenticator(t *testing.T, cfg *Config, conn *fakeConn) *Authenticator {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.URL == "" {
		cfg.URL = "ldap://ad.example.com"
	}
	if cfg.BaseDN == "" {
		cfg.BaseDN = "DC=example,DC=com"
	}

	auth, err := New(cfg)
	require.NoError(t, err)

	auth.dial = func(ctx context.Context) (directoryConn, error) {
		return conn, nil
	}
	return auth
}

func TestNew(t *testing.T) {
	t.Run("nil configuration", func(t *testing.T) {
		auth, err := New(nil)
		assert.Nil(t, auth)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("invalid configuration", func(t *testing.T) {
		auth, err := New(&Config{})
		assert.Nil(t, auth)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "URL", cfgErr.Field)
	})
}

func TestAuthenticateRejectsEmptyCredentials(t *testing.T) {
	dialed := false
	auth := newTestAuthenticator(t, nil, &fakeConn{})
	auth.dial = func(ctx context.Context) (directoryConn, error) {
		dialed = true
		return nil, errors.New("unexpected dial")
	}

	t.Run("empty password", func(t *testing.T) {
		user, err := auth.Authenticate(context.Background(), "bob", "")
		assert.Nil(t, user)
		assert.ErrorIs(t, err, ErrMissingCredential)
	})

	t.Run("empty username", func(t *testing.T) {
		user, err := auth.Authenticate(context.Background(), "", "hunter2")
		assert.Nil(t, user)
		assert.ErrorIs(t, err, ErrEmptyUsername)
	})

	assert.False(t, dialed, "credential validation must precede any network round-trip")
}

func TestAuthenticateInvalidCredentials(t *testing.T) {
	conn := &fakeConn{
		bindErr: ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("80090308: LdapErr: DSID-0C09044E")),
	}
	auth := newTestAuthenticator(t, nil, conn)

	user, err := auth.Authenticate(context.Background(), "bob", "wrong")
	assert.Nil(t, user)

	var ice *InvalidCredentialsError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, "bob", ice.Username)
	assert.True(t, IsInvalidCredentials(err))
	assert.Empty(t, conn.searches, "no search may follow a rejected bind")
	assert.True(t, conn.closed)
}

func TestAuthenticateBindTransportFailure(t *testing.T) {
	conn := &fakeConn{
		bindErr: ldap.NewError(ldap.ErrorNetwork, errors.New("connection reset")),
	}
	auth := newTestAuthenticator(t, nil, conn)

	user, err := auth.Authenticate(context.Background(), "bob", "hunter2")
	assert.Nil(t, user)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "bind", te.Op)
	assert.False(t, IsInvalidCredentials(err))
}

func TestAuthenticateUnknownUser(t *testing.T) {
	conn := &fakeConn{} // bind succeeds, every search returns nothing
	auth := newTestAuthenticator(t, nil, conn)

	user, err := auth.Authenticate(context.Background(), "ghost", "hunter2")
	assert.Nil(t, user)

	var nsu *NoSuchUserError
	require.ErrorAs(t, err, &nsu)
	assert.Equal(t, "ghost", nsu.Username)
}

func TestAuthenticateSuccess(t *testing.T) {
	conn := &fakeConn{
		respond: func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			return searchResult(directoryEntry(
				"CN=Bob Smith,OU=People,DC=example,DC=com",
				map[string][]string{
					"sAMAccountName":    {"bob"},
					"userPrincipalName": {"bob@example.com"},
				},
				map[string][]byte{
					"objectSid": sidBytes(21, 1, 2, 3, 1104),
				},
			)), nil
		},
	}
	auth := newTestAuthenticator(t, nil, conn)

	user, err := auth.Authenticate(context.Background(), "bob", "hunter2")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, "CN=Bob Smith,OU=People,DC=example,DC=com", user.DN)
	assert.Equal(t, "S-1-5-21-1-2-3-1104", user.ObjectSID)
	assert.Nil(t, user.Groups, "group resolution is disabled without group configuration")

	require.Len(t, conn.binds, 1)
	assert.Equal(t, [2]string{"bob", "hunter2"}, conn.binds[0])
	assert.True(t, conn.closed)
}

func TestAuthenticateCachedCredential(t *testing.T) {
	dials := 0
	conn := &fakeConn{
		respond: func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			return searchResult(directoryEntry(
				"CN=Bob,DC=example,DC=com",
				map[string][]string{"sAMAccountName": {"bob"}},
				nil,
			)), nil
		},
	}

	auth := newTestAuthenticator(t, &Config{
		Cache: &CacheConfig{Size: 8, TTL: time.Minute, BcryptCost: bcrypt.MinCost},
	}, conn)
	auth.dial = func(ctx context.Context) (directoryConn, error) {
		dials++
		return conn, nil
	}

	first, err := auth.Authenticate(context.Background(), "bob", "hunter2")
	require.NoError(t, err)

	second, err := auth.Authenticate(context.Background(), "bob", "hunter2")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, dials, "a fresh cache hit must not touch the directory")

	// A different password must miss the cache and go back to the directory.
	_, err = auth.Authenticate(context.Background(), "bob", "other-password")
	require.NoError(t, err)
	assert.Equal(t, 2, dials)

	stats := auth.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestCacheStatsUnconfigured(t *testing.T) {
	auth := newTestAuthenticator(t, nil, &fakeConn{})
	assert.Equal(t, CacheStats{}, auth.CacheStats())
}
