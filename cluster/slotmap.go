package cluster

import (
	"sort"
	"sync"
)

// Range is one contiguous band of hash slots and the node addresses
// serving it.
type Range struct {
	Start, End uint16 // inclusive
	Primary    string
	Replicas   []string
}

// SlotMap is the cluster's shard-to-node routing table: a sorted,
// non-overlapping list of Range entries, looked up by binary search
// (spec.md §3 "Slot Map").
type SlotMap struct {
	mu     sync.RWMutex
	ranges []Range // sorted by Start
}

// NewSlotMap builds a SlotMap from an unsorted set of ranges, such as
// freshly parsed from a CLUSTER SLOTS reply.
func NewSlotMap(ranges []Range) *SlotMap {
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	return &SlotMap{ranges: sorted}
}

// Lookup returns the Range covering slot, if any.
func (m *SlotMap) Lookup(slot uint16) (Range, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookupLocked(slot)
}

func (m *SlotMap) lookupLocked(slot uint16) (Range, bool) {
	i := sort.Search(len(m.ranges), func(i int) bool { return m.ranges[i].End >= slot })
	if i < len(m.ranges) && m.ranges[i].Start <= slot && slot <= m.ranges[i].End {
		return m.ranges[i], true
	}
	return Range{}, false
}

// AnyPrimary returns the primary address of the first range, for
// key-less commands that must still reach some node.
func (m *SlotMap) AnyPrimary() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.ranges) == 0 {
		return "", false
	}
	return m.ranges[0].Primary, true
}

// UpdatePrimary rewrites, in place, the primary address of whichever
// range covers slot — the point-update a MOVED reply triggers, which
// must not require a background refresh (spec.md §4.7.3).
func (m *SlotMap) UpdatePrimary(slot uint16, addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := sort.Search(len(m.ranges), func(i int) bool { return m.ranges[i].End >= slot })
	if i < len(m.ranges) && m.ranges[i].Start <= slot && slot <= m.ranges[i].End {
		m.ranges[i].Primary = addr
	}
}

// Swap atomically replaces the entire range table, as a background
// refresh does.
func (m *SlotMap) Swap(ranges []Range) {
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	m.mu.Lock()
	m.ranges = sorted
	m.mu.Unlock()
}

// Snapshot returns a copy of the current range table, for callers
// (such as the background refresher) that need to enumerate every
// known node address.
func (m *SlotMap) Snapshot() []Range {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Range(nil), m.ranges...)
}
