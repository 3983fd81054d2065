// Package cache keeps results of expensive calls for the life of a process,
// keyed by a fingerprint of their inputs. Expired entries are dropped on read
// and by a cron-driven sweep.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/invoice-item-converter/internal/logger"
)

// Fingerprint hashes text together with any parameters that change the
// result of processing it. Parameters are length-prefixed so that
// ("ab", "c") and ("a", "bc") differ.
func Fingerprint(text string, params ...string) string {
	h := sha256.New()
	for _, s := range append([]string{text}, params...) {
		fmt.Fprintf(h, "%d:", len(s))
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is one cached value.
type Entry[V any] struct {
	ID        uuid.UUID
	Value     V
	StoredAt  time.Time
	ExpiresAt time.Time // zero when the cache has no TTL
}

func (e Entry[V]) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Cache is a mutex-guarded map with per-entry expiry. The zero value is
// not usable; call New.
type Cache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]Entry[V]
	now     func() time.Time

	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a cache whose entries live for ttl. A ttl of zero or less
// keeps entries until they are overwritten.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:     ttl,
		entries: make(map[string]Entry[V]),
		now:     time.Now,
		log:     logger.WithComponent("cache"),
	}
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Put stores v under key and returns the new entry's id.
func (c *Cache[V]) Put(key string, v V) uuid.UUID {
	now := c.now()
	e := Entry[V]{ID: uuid.New(), Value: v, StoredAt: now}
	if c.ttl > 0 {
		e.ExpiresAt = now.Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return e.ID
}

// Len reports the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes expired entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Start runs Sweep on the given cron spec, e.g. "@every 5m".
func (c *Cache[V]) Start(spec string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return errors.New("cache janitor already started")
	}

	cronLog := cron.PrintfLogger(&c.log)
	cr := cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog)))
	if _, err := cr.AddFunc(spec, c.sweepAndLog); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	cr.Start()
	c.cron = cr

	c.log.Debug().Str("spec", spec).Dur("ttl", c.ttl).Msg("cache janitor started")
	return nil
}

// Stop halts the janitor and waits for a running sweep to finish.
func (c *Cache[V]) Stop() {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()

	if cr != nil {
		<-cr.Stop().Done()
	}
}

func (c *Cache[V]) sweepAndLog() {
	if n := c.Sweep(); n > 0 {
		c.log.Debug().Int("removed", n).Msg("swept expired cache entries")
	}
}
