package neural

import (
	"container/list"
	"math"
	"sort"
	"sync"
	"time"
)

// Match pairs a stored pattern with its distance to the query.
type Match struct {
	Pattern  *Pattern
	Distance float64
}

// PatternMemory is a bounded, similarity-searchable store of patterns with
// least-recently-touched eviction. Mutating operations are mutually
// exclusive per instance.
type PatternMemory struct {
	mu       sync.Mutex
	maxSize  int
	patterns map[string]*Pattern
	order    *list.List               // front = least recently touched
	index    map[string]*list.Element // hash -> order element
	dirty    bool
}

func NewPatternMemory(maxSize int) *PatternMemory {
	return &PatternMemory{
		maxSize:  maxSize,
		patterns: make(map[string]*Pattern),
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Add inserts a pattern or, if the hash already exists, records another
// sighting (hitCount, lastSeen). Weight and successCount are only changed
// by the trainer's feedback step, never here. Eviction happens before a new
// key is inserted at capacity, never for an update.
func (m *PatternMemory) Add(p *Pattern) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.patterns[p.Hash]; ok {
		existing.HitCount++
		existing.LastSeen = time.Now()
		m.touch(p.Hash)
		m.dirty = true
		return
	}

	if len(m.patterns) >= m.maxSize {
		m.evictOldest()
	}

	m.patterns[p.Hash] = p
	m.index[p.Hash] = m.order.PushBack(p.Hash)
	m.dirty = true
}

// touch moves a hash to the most-recently-touched end. O(1) via the
// element index.
func (m *PatternMemory) touch(hash string) {
	if el, ok := m.index[hash]; ok {
		m.order.MoveToBack(el)
	}
}

func (m *PatternMemory) evictOldest() {
	front := m.order.Front()
	if front == nil {
		return
	}
	hash := front.Value.(string)
	m.order.Remove(front)
	delete(m.index, hash)
	delete(m.patterns, hash)
}

// FindSimilar returns every stored pattern of the same length whose
// root-mean-square percentage distance to target is within tolerance,
// most similar first. The result is uncapped; callers apply their own cap.
// A full linear scan is deliberate: memory size is bounded by maxSize.
func (m *PatternMemory) FindSimilar(target []float64, tolerance float64) []Match {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []Match
	for _, stored := range m.patterns {
		if len(stored.CloseChanges) != len(target) {
			continue
		}

		var sum float64
		for i, tv := range target {
			if tv == 0 {
				continue
			}
			pctDiff := math.Abs(stored.CloseChanges[i]-tv) / math.Abs(tv) * 100
			sum += pctDiff * pctDiff
		}
		distance := math.Sqrt(sum / float64(len(target)))

		if distance <= tolerance {
			matches = append(matches, Match{Pattern: stored, Distance: distance})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	return matches
}

// Get returns the pattern for a hash without touching the access order.
func (m *PatternMemory) Get(hash string) (*Pattern, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patterns[hash]
	return p, ok
}

// Len returns the number of stored patterns.
func (m *PatternMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.patterns)
}

// MarkDirty flags unsaved mutations made directly to stored patterns
// (the trainer's weight feedback mutates patterns in place).
func (m *PatternMemory) MarkDirty() {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
}

// accessOrder returns hashes oldest-first. Caller must hold mu.
func (m *PatternMemory) accessOrder() []string {
	hashes := make([]string, 0, m.order.Len())
	for el := m.order.Front(); el != nil; el = el.Next() {
		hashes = append(hashes, el.Value.(string))
	}
	return hashes
}
