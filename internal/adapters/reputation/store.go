// Package reputation persists source addresses that have ever produced an
// admitted attack report, across process restarts, so the classifier's
// frequency-based severity bump survives longer than the throttle cache's
// one-hour TTL window.
package reputation

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"github.com/oriongate/sentryhive/pkg/bloomfilter"
	"github.com/oriongate/sentryhive/pkg/lru"
)

var addressBucket = []byte("addresses")

// Record is the persisted per-address reputation entry.
type Record struct {
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	ReportCount  int       `json:"report_count"`
	LastKind     string    `json:"last_kind"`
}

// Config configures the store's Bolt file and Bloom filter sizing.
type Config struct {
	DBPath            string
	ExpectedItems     uint
	FalsePositiveRate float64
	HotCacheSize      int
}

// DefaultConfig returns production-sized defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:            "./data/reputation.db",
		ExpectedItems:     1_000_000,
		FalsePositiveRate: 0.01,
		HotCacheSize:      2000,
	}
}

// Store is a Bloom-filter-fronted BoltDB store of address reputation
// records. A negative Bloom lookup skips the disk read entirely; a
// positive lookup falls through to an LRU hot cache before touching Bolt.
type Store struct {
	bloom    *bloomfilter.BloomFilter
	bloomMu  sync.RWMutex
	db       *bolt.DB
	hotCache *lru.Cache[string, Record]
	count    atomic.Int64
}

// Open creates or opens the reputation store at cfg.DBPath.
func Open(cfg Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("reputation: create data dir: %w", err)
	}

	db, err := bolt.Open(cfg.DBPath, 0o600, &bolt.Options{NoGrowSync: true})
	if err != nil {
		return nil, fmt.Errorf("reputation: open bolt db: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(addressBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("reputation: create bucket: %w", err)
	}

	s := &Store{
		bloom:    bloomfilter.New(cfg.ExpectedItems, cfg.FalsePositiveRate),
		db:       db,
		hotCache: lru.New[string, Record](cfg.HotCacheSize),
	}

	var count int64
	db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(addressBucket)
		count = int64(b.Stats().KeyN)
		return b.ForEach(func(k, _ []byte) error {
			s.bloom.Add(k)
			return nil
		})
	})
	s.count.Store(count)

	log.Info().Str("db_path", cfg.DBPath).Int64("entries", count).Msg("reputation store opened")
	return s, nil
}

// FrequencyHint returns the historical admitted-report count for addr,
// used by the classifier's severity-bump rule. Zero for an unknown
// address; this is additive enrichment and never blocks a lookup.
func (s *Store) FrequencyHint(addr string) int {
	rec, ok := s.lookup(addr)
	if !ok {
		return 0
	}
	return rec.ReportCount
}

func (s *Store) lookup(addr string) (Record, bool) {
	s.bloomMu.RLock()
	maybe := s.bloom.Contains([]byte(addr))
	s.bloomMu.RUnlock()
	if !maybe {
		return Record{}, false
	}

	if rec, ok := s.hotCache.Get(addr); ok {
		return rec, true
	}

	var rec Record
	var found bool
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(addressBucket)
		data := b.Get([]byte(addr))
		if data == nil {
			return nil
		}
		found = decodeRecord(data, &rec)
		return nil
	})
	if found {
		s.hotCache.Put(addr, rec)
	}
	return rec, found
}

// RecordReport increments addr's reputation after an admitted report.
func (s *Store) RecordReport(addr, kind string, at time.Time) error {
	rec, existed := s.lookup(addr)
	if !existed {
		rec.FirstSeen = at
	}
	rec.LastSeen = at
	rec.ReportCount++
	rec.LastKind = kind

	data := encodeRecord(rec)

	s.bloomMu.Lock()
	s.bloom.Add([]byte(addr))
	s.bloomMu.Unlock()

	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(addressBucket)
		return b.Put([]byte(addr), data)
	}); err != nil {
		return fmt.Errorf("reputation: put %s: %w", addr, err)
	}
	if !existed {
		s.count.Add(1)
	}
	s.hotCache.Put(addr, rec)
	return nil
}

// Count returns the total number of distinct addresses tracked.
func (s *Store) Count() int64 { return s.count.Load() }

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	log.Info().Int64("entries", s.count.Load()).Msg("closing reputation store")
	return s.db.Close()
}
