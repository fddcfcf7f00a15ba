// Package cache implements merklesentry's TTL'd accelerator tier over Redis.
// Every operation degrades safely on outage: reads return a miss, writes
// return false, and nothing ever propagates a cache-originated error to the
// caller (SPEC_FULL.md §4.5). The degrade-on-outage discipline and the
// background-reconnect-with-backoff shape follow the teacher's general
// "warnings, not fatal" posture toward auxiliary subsystems (e.g.
// systemshift-memex-fs's dag.OpenRepository treats advisory index build
// failures as non-fatal); the concrete TTL/key-namespace behavior is
// SPEC_FULL.md §4.5 verbatim.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"lukechampine.com/blake3"

	"github.com/quietridge/merklesentry/internal/logging"
)

const (
	namespace        = "merkle:"
	KeyLatestRoot    = namespace + "latest_root_hash"
	KeyBuildStatus   = namespace + "build_status"
	metadataKeyFmt   = namespace + "tree_metadata:%s"
	buildStatusTTL   = 300 * time.Second
	maxBackoff       = 3 * time.Second
	maxConnectTries  = 10
	fingerprintBytes = 16
)

// MetadataKey returns the namespaced key for a root's metadata.
func MetadataKey(rootHash string) string {
	return fmt.Sprintf(metadataKeyFmt, rootHash)
}

// envelope wraps a cached payload with the time it was cached.
type envelope struct {
	Payload  json.RawMessage `json:"payload"`
	CachedAt time.Time       `json:"cachedAt"`
}

// Cache is the safe-on-outage accelerator tier described in SPEC_FULL.md
// §4.5. The zero value is not usable; construct with New or NewDisabled.
type Cache struct {
	client     *redis.Client
	enabled    bool
	defaultTTL time.Duration
	log        *logging.Component

	mu           sync.Mutex
	healthy      bool
	reconnecting bool
	fingerprints map[string][fingerprintBytes]byte
}

// Config configures a Cache's Redis connection.
type Config struct {
	Enabled    bool
	Host       string
	Port       int
	Password   string
	DB         int
	DefaultTTL time.Duration
}

// New constructs a Cache from cfg. If cfg.Enabled is false, the returned
// Cache behaves exactly like NewDisabled — every operation is a safe no-op.
func New(cfg Config, log *logging.Logger) *Cache {
	c := &Cache{
		enabled:      cfg.Enabled,
		defaultTTL:   cfg.DefaultTTL,
		log:          log.With("cache"),
		fingerprints: make(map[string][fingerprintBytes]byte),
	}
	if !cfg.Enabled {
		return c
	}
	c.client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	go c.connectLoop()
	return c
}

// NewDisabled returns a Cache that always behaves as if the cache tier were
// absent — every read is a miss, every write is a no-op.
func NewDisabled(log *logging.Logger) *Cache {
	return &Cache{enabled: false, log: log.With("cache")}
}

// Healthy reports whether the underlying Redis connection is currently up.
// A disabled cache reports unhealthy but that is never treated as an error
// by callers (§4.5's "cache down is a warning, not a failure").
func (c *Cache) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && c.healthy
}

func (c *Cache) connectLoop() {
	backoff := 100 * time.Millisecond
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := c.client.Ping(ctx).Err()
		cancel()
		if err == nil {
			c.mu.Lock()
			c.healthy = true
			c.mu.Unlock()
			c.log.Infof("connected")
			c.watchConnection()
			return
		}
		if attempt >= maxConnectTries {
			c.log.Warnf("giving up connecting after %d attempts, will keep retrying in background: %v", attempt, err)
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// watchConnection pings periodically and restarts the connect loop if the
// connection drops, so the cache recovers automatically after an outage.
func (c *Cache) watchConnection() {
	ticker := time.NewTicker(maxBackoff)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := c.client.Ping(ctx).Err()
		cancel()
		if err != nil {
			c.mu.Lock()
			c.healthy = false
			c.mu.Unlock()
			c.log.Warnf("lost connection: %v", err)
			go c.connectLoop()
			return
		}
	}
}

// ok reports whether it's safe to attempt a round trip right now.
func (c *Cache) ok() bool {
	if !c.enabled {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

// Get returns the raw payload for key, and whether it was present. Any
// connection error is treated identically to a miss.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	if !c.ok() {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warnf("get %s: %v", key, err)
		}
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warnf("get %s: corrupt envelope: %v", key, err)
		return nil, false
	}
	return env.Payload, true
}

// Set stores payload under key with the given TTL (or the configured
// default if ttl <= 0). It returns false on any failure, including a cache
// outage; it never returns an error.
func (c *Cache) Set(ctx context.Context, key string, payload interface{}, ttl time.Duration) bool {
	if !c.ok() {
		return false
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		c.log.Warnf("set %s: marshal: %v", key, err)
		return false
	}

	sum := blake3.Sum256(raw)
	var fp [fingerprintBytes]byte
	copy(fp[:], sum[:fingerprintBytes])
	c.mu.Lock()
	prev, seen := c.fingerprints[key]
	c.mu.Unlock()
	if seen && prev == fp {
		// Identical payload already cached; skip rewriting it but still
		// refresh the TTL so the entry doesn't expire early.
		if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
			c.log.Warnf("refresh ttl %s: %v", key, err)
		}
		return true
	}

	env := envelope{Payload: raw, CachedAt: time.Now().UTC()}
	encoded, err := json.Marshal(env)
	if err != nil {
		c.log.Warnf("set %s: marshal envelope: %v", key, err)
		return false
	}
	if err := c.client.Set(ctx, key, encoded, ttl).Err(); err != nil {
		c.log.Warnf("set %s: %v", key, err)
		return false
	}
	c.mu.Lock()
	c.fingerprints[key] = fp
	c.mu.Unlock()
	return true
}

// Del removes key. Safe on outage.
func (c *Cache) Del(ctx context.Context, key string) bool {
	if !c.ok() {
		return false
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Warnf("del %s: %v", key, err)
		return false
	}
	c.mu.Lock()
	delete(c.fingerprints, key)
	c.mu.Unlock()
	return true
}

// Exists reports whether key is present. Safe on outage (returns false).
func (c *Cache) Exists(ctx context.Context, key string) bool {
	if !c.ok() {
		return false
	}
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		c.log.Warnf("exists %s: %v", key, err)
		return false
	}
	return n > 0
}

// Invalidate deletes every key under the merkle: namespace matching pattern
// (a glob, per SPEC_FULL.md §4.5), using SCAN rather than KEYS so it never
// blocks the server on a large keyspace.
func (c *Cache) Invalidate(ctx context.Context, pattern string) int {
	if !c.ok() {
		return 0
	}
	if !strings.HasPrefix(pattern, namespace) {
		pattern = namespace + pattern
	}
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.log.Warnf("invalidate scan %s: %v", pattern, err)
			return deleted
		}
		if len(keys) > 0 {
			pipe := c.client.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				c.log.Warnf("invalidate del: %v", err)
			} else {
				deleted += len(keys)
			}
			c.mu.Lock()
			for _, k := range keys {
				delete(c.fingerprints, k)
			}
			c.mu.Unlock()
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted
}

// ListKeys returns every key currently in the merkle: namespace, used by the
// /health/cache endpoint.
func (c *Cache) ListKeys(ctx context.Context) []string {
	if !c.ok() {
		return nil
	}
	var cursor uint64
	var keys []string
	for {
		batch, next, err := c.client.Scan(ctx, cursor, namespace+"*", 100).Result()
		if err != nil {
			c.log.Warnf("list keys: %v", err)
			return keys
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys
}

// Enabled reports whether the cache tier is configured on, independent of
// current connection health.
func (c *Cache) Enabled() bool { return c.enabled }
