package recurrence

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cyp0633/libtodocal/event"
	"github.com/cyp0633/libtodocal/eventtime"
)

// CacheEntry represents a cached recurrence result
type CacheEntry struct {
	Result     interface{} // bool for overlap checks, []event.RepeatingTimes for expansion
	ExpiresAt  time.Time
	AccessedAt time.Time
}

// RecurrenceCache caches overlap and expansion results keyed by the event
// template and the queried range.
type RecurrenceCache struct {
	entries         map[string]*CacheEntry
	mutex           sync.RWMutex
	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
	now             func() time.Time
}

// CacheConfig holds configuration for the recurrence cache
type CacheConfig struct {
	TTL             time.Duration // How long entries stay valid
	MaxEntries      int           // Maximum number of entries before cleanup
	CleanupInterval time.Duration // How often to run cleanup
}

// DefaultCacheConfig provides sensible defaults for recurrence caching
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}

// NewRecurrenceCache creates a new recurrence cache with the given configuration
func NewRecurrenceCache(config CacheConfig) *RecurrenceCache {
	return newRecurrenceCache(config, time.Now)
}

func newRecurrenceCache(config CacheConfig, now func() time.Time) *RecurrenceCache {
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig.TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig.MaxEntries
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCacheConfig.CleanupInterval
	}

	cache := &RecurrenceCache{
		entries:         make(map[string]*CacheEntry),
		ttl:             config.TTL,
		maxEntries:      config.MaxEntries,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
		now:             now,
	}

	go cache.cleanupLoop()

	return cache
}

// generateCacheKey hashes every field of ev that affects occurrences, so an
// edited event never hits a stale entry.
func (c *RecurrenceCache) generateCacheKey(operation string, ev event.ScheduleEvent, rng eventtime.Range) string {
	hasher := sha256.New()

	hasher.Write([]byte(operation))
	writeEventTime(hasher, ev.Time)
	writeFloat(hasher, rng.Lower)
	writeFloat(hasher, rng.Upper)

	if r := ev.Repeating; r != nil {
		writeFloat(hasher, r.StartTime)
		fmt.Fprintf(hasher, "|%d|%d|%d|%d|%s|", r.Option.Kind, r.Option.Interval, r.Option.Ordinal, r.Option.Weekday, r.Option.TimeZone)
		if r.EndTime != nil {
			writeFloat(hasher, *r.EndTime)
		}
	}

	for _, key := range ev.ExcludeKeys() {
		hasher.Write([]byte(key))
		hasher.Write([]byte{0})
	}

	return fmt.Sprintf("%x", hasher.Sum(nil))
}

func writeEventTime(h hash.Hash, t eventtime.EventTime) {
	fmt.Fprintf(h, "%d|%s|%s|%d|", t.Kind, t.Start.TimeZone, t.End.TimeZone, t.SecondsFromGMT)
	writeFloat(h, t.Start.UTC)
	writeFloat(h, t.End.UTC)
}

func writeFloat(h hash.Hash, f float64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
	h.Write(buf[:])
}

// Get retrieves a cached result if it exists and hasn't expired
func (c *RecurrenceCache) Get(operation string, ev event.ScheduleEvent, rng eventtime.Range) (interface{}, bool) {
	key := c.generateCacheKey(operation, ev, rng)

	c.mutex.RLock()
	entry, exists := c.entries[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	now := c.now()
	if now.After(entry.ExpiresAt) {
		c.mutex.Lock()
		delete(c.entries, key)
		c.mutex.Unlock()
		return nil, false
	}

	c.mutex.Lock()
	entry.AccessedAt = now
	c.mutex.Unlock()

	return entry.Result, true
}

// Set stores a result in the cache
func (c *RecurrenceCache) Set(operation string, ev event.ScheduleEvent, rng eventtime.Range, result interface{}) {
	key := c.generateCacheKey(operation, ev, rng)
	now := c.now()

	entry := &CacheEntry{
		Result:     result,
		ExpiresAt:  now.Add(c.ttl),
		AccessedAt: now,
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = entry

	if len(c.entries) > c.maxEntries {
		c.cleanup()
	}
}

// cleanup removes expired entries, then the least recently accessed ones
// until the cache is within its limit. Callers hold the write lock.
func (c *RecurrenceCache) cleanup() {
	now := c.now()

	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}

	if len(c.entries) <= c.maxEntries {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].AccessedAt.Before(c.entries[keys[j]].AccessedAt)
	})

	for _, key := range keys[:len(c.entries)-c.maxEntries] {
		delete(c.entries, key)
	}
}

func (c *RecurrenceCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.cleanup()
			c.mutex.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine and clears the cache. It is safe to call
// more than once.
func (c *RecurrenceCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
	})
	c.mutex.Lock()
	c.entries = make(map[string]*CacheEntry)
	c.mutex.Unlock()
}

// Stats returns cache statistics
func (c *RecurrenceCache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entryCount := len(c.entries)
	expiredCount := 0
	now := c.now()

	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			expiredCount++
		}
	}

	return CacheStats{
		TotalEntries:   entryCount,
		ExpiredEntries: expiredCount,
		ActiveEntries:  entryCount - expiredCount,
	}
}

// CacheStats provides information about cache performance
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
}
