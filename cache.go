package adauth

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// CacheStats provides counters for credential cache usage.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

// cachedCredential is one cache slot: the resolved user alongside a bcrypt
// hash of the password that authenticated it.
type cachedCredential struct {
	username string
	hash     []byte
	user     *Entry
	expires  time.Time
}

// credentialCache is a fixed-capacity, TTL-bounded store of recently
// authenticated users keyed by the submitted username. A hit requires the
// supplied password to verify against the stored hash, so the cache never
// weakens authentication; it only skips the directory round-trip.
type credentialCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	cost     int
	entries  map[string]*list.Element // username -> *cachedCredential element
	order    *list.List               // front is most recently used
	stats    CacheStats
}

func newCredentialCache(cfg *CacheConfig) *credentialCache {
	return &credentialCache{
		capacity: cfg.Size,
		ttl:      cfg.TTL,
		cost:     cfg.BcryptCost,
		entries:  make(map[string]*list.Element, cfg.Size),
		order:    list.New(),
	}
}

// lookup returns the cached user for a username when the entry is unexpired
// and the supplied password verifies against the stored hash.
func (c *credentialCache) lookup(username, password string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[username]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	cred := elem.Value.(*cachedCredential)
	if time.Now().After(cred.expires) {
		c.removeLocked(elem)
		c.stats.Misses++
		return nil, false
	}

	if bcrypt.CompareHashAndPassword(cred.hash, []byte(password)) != nil {
		c.stats.Misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.stats.Hits++
	return cred.user, true
}

// store hashes the password and records the resolved user under the
// username, overwriting any prior entry and evicting the least recently used
// entry beyond capacity.
func (c *credentialCache) store(username, password string, user *Entry) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return err
	}

	cred := &cachedCredential{
		username: username,
		hash:     hash,
		user:     user,
		expires:  time.Now().Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[username]; ok {
		elem.Value = cred
		c.order.MoveToFront(elem)
		return nil
	}

	c.entries[username] = c.order.PushFront(cred)

	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.stats.Evictions++
	}

	return nil
}

func (c *credentialCache) removeLocked(elem *list.Element) {
	cred := elem.Value.(*cachedCredential)
	c.order.Remove(elem)
	delete(c.entries, cred.username)
}

// Stats returns a snapshot of cache counters.
func (c *credentialCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Entries = len(c.entries)
	return stats
}
