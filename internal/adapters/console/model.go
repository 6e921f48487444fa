package console

import (
	"container/heap"
	"sync"

	"github.com/oriongate/sentryhive/internal/domain"
)

// Model holds everything the console renders: the scrolling record feed,
// a max-heap of top source addresses by hit count, and the last known
// gauge snapshot. Adapted from internal/tui/model.go's IP-ranking heap,
// generalized from log lines to canonical attack records.
type Model struct {
	Width  int
	Height int

	ActiveView int
	ScrollPos  int

	Records []domain.CanonicalAttackRecord
	TopIPs  []*IPEntry
	Gauges  Gauges

	ipMap      map[string]*IPEntry
	ipHeap     *ipMaxHeap
	ipCounters map[string]int

	MaxRecords    int
	MaxTopIPs     int
	MaxTrackedIPs int

	mu          sync.RWMutex
	recordCount int
}

// Gauges is the periodic metrics snapshot pushed from the supervisor,
// standing in for the log-tailer ancestor's throughput/memory readings.
type Gauges struct {
	ObservationsPerSecond float64
	TotalObservations     int64
	TotalReports          int64
	TotalSuppressed       int64
	SpoolDepth            int
	HeartbeatFailures     int
}

type IPEntry struct {
	IP        string
	HitCount  int
	LastSeen  string
	Kinds     []string
	heapIndex int
}

type ipMaxHeap []*IPEntry

func (h ipMaxHeap) Len() int           { return len(h) }
func (h ipMaxHeap) Less(i, j int) bool { return h[i].HitCount > h[j].HitCount }
func (h ipMaxHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *ipMaxHeap) Push(x any) {
	n := len(*h)
	item := x.(*IPEntry)
	item.heapIndex = n
	*h = append(*h, item)
}
func (h *ipMaxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.heapIndex = -1
	*h = old[0 : n-1]
	return item
}

func NewModel() *Model {
	h := &ipMaxHeap{}
	heap.Init(h)

	return &Model{
		Width:         120,
		Height:        40,
		Records:       make([]domain.CanonicalAttackRecord, 0, 100),
		TopIPs:        make([]*IPEntry, 0, 10),
		ipMap:         make(map[string]*IPEntry),
		ipHeap:        h,
		ipCounters:    make(map[string]int),
		MaxRecords:    50,
		MaxTopIPs:     25,
		MaxTrackedIPs: 10000,
	}
}

func (m *Model) IncrementIPCounter(rec domain.CanonicalAttackRecord) {
	if rec.SourceAddress == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ip := rec.SourceAddress
	m.ipCounters[ip]++
	m.recordCount++

	if entry, exists := m.ipMap[ip]; exists {
		entry.HitCount = m.ipCounters[ip]
		entry.LastSeen = rec.Timestamp.Format("15:04:05")
		hasKind := false
		for _, k := range entry.Kinds {
			if k == string(rec.Kind) {
				hasKind = true
				break
			}
		}
		if !hasKind && len(entry.Kinds) < 5 {
			entry.Kinds = append(entry.Kinds, string(rec.Kind))
		}
		heap.Fix(m.ipHeap, entry.heapIndex)
		return
	}

	if len(m.ipMap) >= m.MaxTrackedIPs && m.ipHeap.Len() > 0 {
		minIdx := 0
		minCount := (*m.ipHeap)[0].HitCount
		for i := 1; i < m.ipHeap.Len(); i++ {
			if (*m.ipHeap)[i].HitCount < minCount {
				minCount = (*m.ipHeap)[i].HitCount
				minIdx = i
			}
		}
		oldEntry := (*m.ipHeap)[minIdx]
		heap.Remove(m.ipHeap, minIdx)
		delete(m.ipMap, oldEntry.IP)
	}

	entry := &IPEntry{
		IP:       ip,
		HitCount: m.ipCounters[ip],
		LastSeen: rec.Timestamp.Format("15:04:05"),
		Kinds:    []string{string(rec.Kind)},
	}
	m.ipMap[ip] = entry
	heap.Push(m.ipHeap, entry)
}

func (m *Model) AddRecord(rec domain.CanonicalAttackRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Records) >= m.MaxRecords {
		copy(m.Records, m.Records[1:])
		m.Records = m.Records[:len(m.Records)-1]
	}
	m.Records = append(m.Records, rec)
}

func (m *Model) rebuildTopIPs() {
	n := m.MaxTopIPs
	if n > m.ipHeap.Len() {
		n = m.ipHeap.Len()
	}

	m.TopIPs = make([]*IPEntry, 0, n)
	for i := 0; i < n && i < len(*m.ipHeap); i++ {
		m.TopIPs = append(m.TopIPs, (*m.ipHeap)[i])
	}
	for i := 0; i < len(m.TopIPs)-1; i++ {
		for j := i + 1; j < len(m.TopIPs); j++ {
			if m.TopIPs[j].HitCount > m.TopIPs[i].HitCount {
				m.TopIPs[i], m.TopIPs[j] = m.TopIPs[j], m.TopIPs[i]
			}
		}
	}
}

func (m *Model) UpdateGauges(g Gauges) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gauges = g
}

func (m *Model) GetRecords() []domain.CanonicalAttackRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]domain.CanonicalAttackRecord, len(m.Records))
	copy(result, m.Records)
	return result
}

func (m *Model) GetTopIPs() []*IPEntry {
	m.mu.Lock()
	m.rebuildTopIPs()
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*IPEntry, len(m.TopIPs))
	copy(result, m.TopIPs)
	return result
}

func (m *Model) GetGauges() Gauges {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Gauges
}

func (m *Model) TotalRecords() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recordCount
}

func (m *Model) TotalTrackedIPs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ipMap)
}

func (m *Model) SetDimensions(width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Width = width
	m.Height = height
}

func (m *Model) NextView() {
	m.ActiveView = (m.ActiveView + 1) % 2
	m.ScrollPos = 0
}
