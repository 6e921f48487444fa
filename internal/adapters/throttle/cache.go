// Package throttle implements the report-admission cache (C3): a
// TTL-bounded, sharded map deciding whether a canonical event is
// reportable now for a given source address.
package throttle

import (
	"hash/maphash"
	"sync"
	"time"

	"github.com/oriongate/sentryhive/internal/domain"
	"github.com/oriongate/sentryhive/internal/ports"
)

var hashSeed = maphash.MakeSeed()

func shardIndex(key string, shards int) int {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	h.WriteString(key)
	return int(h.Sum64() % uint64(shards))
}

// Config configures the admission policy of §4.3.
type Config struct {
	TTL                   time.Duration // default 1h
	MaxReportsPerIP       int           // default 5
	ReportUniqueTypesOnly bool
	StoreThrottledAttacks bool
	ShardCount            int
	JanitorInterval       time.Duration // default 10m
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		TTL:                   time.Hour,
		MaxReportsPerIP:       5,
		ReportUniqueTypesOnly: false,
		StoreThrottledAttacks: false,
		ShardCount:            16,
		JanitorInterval:       10 * time.Minute,
	}
}

// SuppressedFunc is invoked for every suppressed record when
// StoreThrottledAttacks is enabled, so the caller can spool it with
// throttled=true without the cache depending on the spool package.
type SuppressedFunc func(rec domain.CanonicalAttackRecord)

type shard struct {
	mu      sync.Mutex
	entries map[string]*domain.ThrottleEntry
}

// Cache is the throttle admission cache.
type Cache struct {
	cfg        Config
	shards     []*shard
	onSuppress SuppressedFunc
	stopOnce   sync.Once
	stopCh     chan struct{}
}

// New creates a throttle cache and starts its janitor sweep.
func New(cfg Config, onSuppress SuppressedFunc) *Cache {
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = 16
	}
	shards := make([]*shard, cfg.ShardCount)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*domain.ThrottleEntry)}
	}
	c := &Cache{cfg: cfg, shards: shards, onSuppress: onSuppress, stopCh: make(chan struct{})}
	go c.janitorLoop()
	return c
}

var _ ports.ThrottleCache = (*Cache)(nil)

// Admit implements the admission law of §4.3.
func (c *Cache) Admit(rec domain.CanonicalAttackRecord) ports.Decision {
	now := time.Now()
	s := c.shards[shardIndex(rec.SourceAddress, len(c.shards))]

	s.mu.Lock()
	entry, ok := s.entries[rec.SourceAddress]
	expired := ok && entry.Expired(now, c.cfg.TTL)
	if !ok || expired {
		entry = domain.NewThrottleEntry(now, rec.Kind)
		s.entries[rec.SourceAddress] = entry
		s.mu.Unlock()
		return ports.Admit
	}
	s.mu.Unlock()

	if !entry.HasKind(rec.Kind) {
		// A novel kind is always admitted, regardless of
		// ReportUniqueTypesOnly: the flag only tightens repeats.
		entry.Record(now, rec.Kind)
		return ports.Admit
	}

	if c.cfg.ReportUniqueTypesOnly {
		c.suppress(rec)
		return ports.Suppress
	}

	if entry.Count() >= c.cfg.MaxReportsPerIP {
		c.suppress(rec)
		return ports.Suppress
	}

	entry.Record(now, rec.Kind)
	return ports.Admit
}

func (c *Cache) suppress(rec domain.CanonicalAttackRecord) {
	if c.cfg.StoreThrottledAttacks && c.onSuppress != nil {
		c.onSuppress(rec)
	}
}

func (c *Cache) janitorLoop() {
	interval := c.cfg.JanitorInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now()
	for _, s := range c.shards {
		s.mu.Lock()
		for addr, entry := range s.entries {
			if entry.Expired(now, c.cfg.TTL) {
				delete(s.entries, addr)
			}
		}
		s.mu.Unlock()
	}
}

// Stats reports the number of distinct source addresses currently tracked,
// for the /api-diagnostics cache-stats surface.
func (c *Cache) Stats() Stats {
	var tracked int
	for _, s := range c.shards {
		s.mu.Lock()
		tracked += len(s.entries)
		s.mu.Unlock()
	}
	return Stats{TrackedAddresses: tracked, MaxReportsPerIP: c.cfg.MaxReportsPerIP, TTL: c.cfg.TTL}
}

// Stats is a point-in-time snapshot of the throttle cache's occupancy.
type Stats struct {
	TrackedAddresses int
	MaxReportsPerIP  int
	TTL              time.Duration
}

// Close implements ports.ThrottleCache.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	return nil
}
