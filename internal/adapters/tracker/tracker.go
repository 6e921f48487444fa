// Package tracker implements the per-source-address behavioral trackers
// used by the bruteforce and rapid-connection detection rules shared by
// every protocol listener.
//
// Both rules need the same shape of shared mutable state: a map keyed by
// source address, updated on every event, queried on every event, and
// garbage-collected on a timer. That state is sharded across N maps with
// per-shard locking, each holding a fixed-capacity ring buffer plus
// second-granularity time buckets for O(1) windowed counting, with LRU
// eviction bounding memory when an attacker rotates through many addresses.
package tracker

import (
	"container/list"
	"hash/maphash"
	"sync"
	"sync/atomic"
	"time"
)

var hashSeed = maphash.MakeSeed()

func secureHash(s string) uint64 {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	h.WriteString(s)
	return h.Sum64()
}

// event is a single recorded fact: either an authentication attempt (with a
// username hash) or a bare connection.
type event struct {
	Timestamp    int64
	IsAuth       bool
	UsernameHash uint32
}

type ringBuffer struct {
	data []event
	head int
	n    int
	cap  int
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 256
	}
	return &ringBuffer{data: make([]event, capacity), cap: capacity}
}

func (r *ringBuffer) push(e event) {
	r.data[r.head] = e
	r.head = (r.head + 1) % r.cap
	if r.n < r.cap {
		r.n++
	}
}

func (r *ringBuffer) countSince(cutoff int64, authOnly bool) int {
	count := 0
	for i := 0; i < r.n; i++ {
		idx := (r.head - r.n + i + r.cap) % r.cap
		ev := r.data[idx]
		if ev.Timestamp < cutoff {
			continue
		}
		if authOnly && !ev.IsAuth {
			continue
		}
		count++
	}
	return count
}

func (r *ringBuffer) uniqueUsernames(cutoff int64) map[uint32]struct{} {
	set := make(map[uint32]struct{})
	for i := 0; i < r.n; i++ {
		idx := (r.head - r.n + i + r.cap) % r.cap
		ev := r.data[idx]
		if ev.IsAuth && ev.Timestamp >= cutoff {
			set[ev.UsernameHash] = struct{}{}
		}
	}
	return set
}

func (r *ringBuffer) lastEventSince(cutoff int64) bool {
	return r.countSince(cutoff, false) > 0
}

const timeBucketCount = 120

// timeBuckets gives O(window) aggregate counting without scanning the ring
// buffer for the common "how many connects in the last N seconds" query.
type timeBuckets struct {
	total      [timeBucketCount]int32
	auth       [timeBucketCount]int32
	lastSecond int64
}

func (tb *timeBuckets) record(second int64, isAuth bool) {
	bucket := int(second % timeBucketCount)
	if second != tb.lastSecond {
		tb.clearStale(second)
		tb.lastSecond = second
	}
	atomic.AddInt32(&tb.total[bucket], 1)
	if isAuth {
		atomic.AddInt32(&tb.auth[bucket], 1)
	}
}

func (tb *timeBuckets) clearStale(current int64) {
	if tb.lastSecond == 0 {
		for i := range tb.total {
			tb.total[i], tb.auth[i] = 0, 0
		}
		return
	}
	gap := current - tb.lastSecond
	if gap >= timeBucketCount || gap < 0 {
		for i := range tb.total {
			tb.total[i], tb.auth[i] = 0, 0
		}
		return
	}
	for s := tb.lastSecond + 1; s <= current; s++ {
		bucket := int(s % timeBucketCount)
		tb.total[bucket], tb.auth[bucket] = 0, 0
	}
}

func (tb *timeBuckets) countSince(current, window int64) int64 {
	var total int64
	start := current - window + 1
	for s := start; s <= current; s++ {
		total += int64(atomic.LoadInt32(&tb.total[int(s%timeBucketCount)]))
	}
	return total
}

// AddressWindow is one source address's tracked history: connection times,
// auth attempts, and the bruteforce/rapid-connection report cooldowns
// specified in §4.1 of the detection rules.
type AddressWindow struct {
	mu             sync.RWMutex
	Events         *ringBuffer
	Buckets        *timeBuckets
	AuthAttempts   int
	LastAttempt    time.Time
	LastAuthReport time.Time
	ConnectTimes   []time.Time
	LastConnReport time.Time
}

const maxAddressesPerShard = 10000

type shard struct {
	mu      sync.RWMutex
	windows map[string]*AddressWindow
	lru     *list.List
	lruElem map[string]*list.Element
}

// Config configures the tracker's bruteforce and rapid-connection
// thresholds, mirroring the detection rules verbatim.
type Config struct {
	ShardCount int

	BruteForceAttempts int           // default 3
	BruteForceCooldown time.Duration // default 60s
	BruteForceMaxAge   time.Duration // default 1h, purge age

	RapidConnCount    int           // default 3
	RapidConnWindow   time.Duration // default 60s
	RapidConnCooldown time.Duration // default 120s

	CleanupInterval time.Duration // default 5m
}

// DefaultConfig returns the thresholds specified for the bruteforce and
// rapid-connection detection rules.
func DefaultConfig() Config {
	return Config{
		ShardCount:         16,
		BruteForceAttempts: 3,
		BruteForceCooldown: 60 * time.Second,
		BruteForceMaxAge:   time.Hour,
		RapidConnCount:     3,
		RapidConnWindow:    60 * time.Second,
		RapidConnCooldown:  120 * time.Second,
		CleanupInterval:    5 * time.Minute,
	}
}

// Tracker holds per-source-address state for every listener sharing the
// bruteforce and rapid-connection rules.
type Tracker struct {
	cfg      Config
	shards   []*shard
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a tracker and starts its background purge sweep.
func New(cfg Config) *Tracker {
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = 16
	}
	shards := make([]*shard, cfg.ShardCount)
	for i := range shards {
		shards[i] = &shard{
			windows: make(map[string]*AddressWindow),
			lru:     list.New(),
			lruElem: make(map[string]*list.Element),
		}
	}
	t := &Tracker{cfg: cfg, shards: shards, stopCh: make(chan struct{})}
	go t.cleanupLoop()
	return t
}

func (t *Tracker) getShard(addr string) *shard {
	return t.shards[secureHash(addr)%uint64(len(t.shards))]
}

func (t *Tracker) windowFor(addr string) *AddressWindow {
	s := t.getShard(addr)
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.windows[addr]; ok {
		if elem, ok := s.lruElem[addr]; ok {
			s.lru.MoveToFront(elem)
		}
		return w
	}

	if len(s.windows) >= maxAddressesPerShard {
		if oldest := s.lru.Back(); oldest != nil {
			oldAddr := oldest.Value.(string)
			delete(s.windows, oldAddr)
			delete(s.lruElem, oldAddr)
			s.lru.Remove(oldest)
		}
	}

	w := &AddressWindow{
		Events:  newRingBuffer(256),
		Buckets: &timeBuckets{},
	}
	s.windows[addr] = w
	s.lruElem[addr] = s.lru.PushFront(addr)
	return w
}

func hashUsername(u string) uint32 {
	if u == "" {
		return 0
	}
	var h maphash.Hash
	h.SetSeed(hashSeed)
	h.WriteString(u)
	return uint32(h.Sum64())
}

// RecordConnection records a bare TCP accept for the rapid-connection rule
// and returns true exactly when the rule should fire: at least
// RapidConnCount connects within RapidConnWindow, with the per-address
// cooldown respected.
func (t *Tracker) RecordConnection(addr string, now time.Time) bool {
	w := t.windowFor(addr)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.Events.push(event{Timestamp: now.Unix()})
	w.Buckets.record(now.Unix(), false)

	cutoff := now.Add(-t.cfg.RapidConnWindow)
	kept := w.ConnectTimes[:0]
	for _, ts := range w.ConnectTimes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	w.ConnectTimes = kept

	if len(w.ConnectTimes) >= t.cfg.RapidConnCount && now.Sub(w.LastConnReport) >= t.cfg.RapidConnCooldown {
		w.LastConnReport = now
		return true
	}
	return false
}

// RecordAuthAttempt records an authentication attempt for the bruteforce
// rule and returns true exactly when the rule should fire: attempts >= 3
// and at least BruteForceCooldown since the last report.
func (t *Tracker) RecordAuthAttempt(addr, username string, now time.Time) bool {
	w := t.windowFor(addr)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.Events.push(event{Timestamp: now.Unix(), IsAuth: true, UsernameHash: hashUsername(username)})
	w.Buckets.record(now.Unix(), true)
	w.AuthAttempts++
	w.LastAttempt = now

	if w.AuthAttempts >= t.cfg.BruteForceAttempts && now.Sub(w.LastAuthReport) >= t.cfg.BruteForceCooldown {
		w.LastAuthReport = now
		return true
	}
	return false
}

// AuthAttemptCount returns the current cumulative auth-attempt counter for
// diagnostics/evidence construction.
func (t *Tracker) AuthAttemptCount(addr string) int {
	w := t.windowFor(addr)
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.AuthAttempts
}

// Cleanup purges address windows whose last attempt/connection predates
// BruteForceMaxAge. Runs on a background timer; exported for tests.
func (t *Tracker) Cleanup(now time.Time) {
	cutoff := now.Add(-t.cfg.BruteForceMaxAge)
	var wg sync.WaitGroup
	for _, s := range t.shards {
		wg.Add(1)
		go func(s *shard) {
			defer wg.Done()
			s.mu.Lock()
			defer s.mu.Unlock()
			for addr, w := range s.windows {
				w.mu.RLock()
				stale := w.LastAttempt.Before(cutoff) && !w.Events.lastEventSince(cutoff.Unix())
				w.mu.RUnlock()
				if stale {
					delete(s.windows, addr)
					if elem, ok := s.lruElem[addr]; ok {
						s.lru.Remove(elem)
						delete(s.lruElem, addr)
					}
				}
			}
		}(s)
	}
	wg.Wait()
}

func (t *Tracker) cleanupLoop() {
	interval := t.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.Cleanup(time.Now())
		}
	}
}

// Stop halts the background cleanup goroutine. Idempotent.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}
