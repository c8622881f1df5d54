package news

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v2"
	"golang.org/x/exp/slog"
)

// feedNamespace prefixes every feed cache key, i.e. "news:<userId>".
const feedNamespace = "news"

// Key returns the cache key holding the user's feed.
func Key(userID string) string { return feedNamespace + ":" + userID }

// UserID extracts the owning user id from a feed cache key. Reports false
// for keys outside the feed namespace.
func UserID(key string) (string, bool) {
	ns, userID, ok := strings.Cut(key, ":")
	if !ok || ns != feedNamespace || userID == "" {
		return "", false
	}
	return userID, true
}

// Cache holds one serialized feed per user with a bounded lifetime.
// Natural TTL expiry is the sole deletion path; expired keys are
// announced on the Expired channel. Entries are stored as JSON bytes, so
// callers always work on their own transient copy of the feed.
type Cache struct {
	log     *slog.Logger
	entries cache.Cache[string, []byte]
	ttl     time.Duration
	expired chan string
	done    chan struct{}
}

// NewCache creates a feed cache with the given entry lifetime. Close must
// be called to stop the janitor.
func NewCache(lg *slog.Logger, ttl time.Duration) *Cache {
	c := &Cache{
		log:     lg,
		ttl:     ttl,
		expired: make(chan string, 128),
		done:    make(chan struct{}),
	}

	c.entries = cache.NewCache[string, []byte]().
		WithTTL(ttl).
		WithOnEvicted(c.notifyExpired)

	go c.janitor()

	return c
}

// Get returns the user's feed, reporting a miss for absent or expired
// entries.
func (c *Cache) Get(userID string) (Feed, bool, error) {
	bts, ok := c.entries.Get(Key(userID))
	if !ok {
		return nil, false, nil
	}

	var feed Feed
	if err := json.Unmarshal(bts, &feed); err != nil {
		return nil, false, fmt.Errorf("unmarshal feed: %w", err)
	}

	return feed, true, nil
}

// Set stores the user's feed, overwriting the previous copy atomically
// and re-applying the full lifetime even when the entry already exists.
func (c *Cache) Set(userID string, feed Feed) error {
	bts, err := json.Marshal(feed)
	if err != nil {
		return fmt.Errorf("marshal feed: %w", err)
	}

	c.entries.Set(Key(userID), bts, c.ttl)
	return nil
}

// Expired returns the channel announcing keys of naturally expired
// entries. Notifications are best-effort; a dropped one degrades to a
// cold read on the user's next request.
func (c *Cache) Expired() <-chan string { return c.expired }

// Stat returns underlying cache stats.
func (c *Cache) Stat() cache.Stats { return c.entries.Stat() }

// Close stops the janitor. Cached feeds are disposable by contract, so
// nothing is flushed anywhere.
func (c *Cache) Close() error {
	close(c.done)

	stats := c.Stat()
	c.log.Debug("feed cache closed",
		slog.Int("hits", stats.Hits), slog.Int("misses", stats.Misses),
		slog.Int("evictions", stats.Evicted), slog.Int("size", stats.Added))

	return nil
}

func (c *Cache) notifyExpired(key string, _ []byte) {
	select {
	case c.expired <- key:
	default:
		c.log.Warn("expiry notification dropped", slog.String("key", key))
	}
}

// janitor collects expired entries, so expiry is observed even when
// nobody reads the key.
func (c *Cache) janitor() {
	period := c.ttl / 10
	if period > time.Minute {
		period = time.Minute
	}
	if period < 10*time.Millisecond {
		period = 10 * time.Millisecond
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.entries.DeleteExpired()
		case <-c.done:
			return
		}
	}
}
