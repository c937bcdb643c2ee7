package ratelimit

import (
	"context"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// memoryShardCount is the number of mutex-guarded buckets the
// process-local store stripes its keys across. Concurrent admissions
// on two different keys only serialize if they happen to hash to the
// same shard; only requires that distinct keys "need not
// serialize", not that they never collide, so a modest fixed fan-out
// is sufficient.
const memoryShardCount = 64

// entry is one Timestamp Entry: a wall-clock instant and its weight.
type entry struct {
	at     time.Time
	weight float64
	seq    uint64
}

// series is a Window Series: entries sorted ascending by timestamp,
// with an incrementally maintained sum so Load is O(1).
type series struct {
	mu      sync.Mutex
	entries []entry
	sum     float64
}

// MemoryStore is the process-local Timestamp Store variant:
// an in-memory mapping from key to a sorted sequence of entries,
// guarded by a striped mutex. Prune is O(k) in the number of stale
// entries because they always live at the front of the slice.
type MemoryStore struct {
	shards [memoryShardCount]*memoryShard
	seq    uint64
}

type memoryShard struct {
	mu   sync.Mutex
	data map[string]*series
}

// NewMemoryStore creates an empty process-local store.
func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{}
	for i := range ms.shards {
		ms.shards[i] = &memoryShard{data: make(map[string]*series)}
	}
	return ms
}

func (ms *MemoryStore) shardFor(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return ms.shards[h.Sum32()%memoryShardCount]
}

func (ms *MemoryStore) seriesFor(key string) *series {
	shard := ms.shardFor(key)
	shard.mu.Lock()
	s, ok := shard.data[key]
	if !ok {
		s = &series{}
		shard.data[key] = s
	}
	shard.mu.Unlock()
	return s
}

// pruneLocked removes all entries with timestamp < cutoff. Caller
// must hold s.mu.
func (s *series) pruneLocked(cutoff time.Time) {
	i := 0
	for i < len(s.entries) && s.entries[i].at.Before(cutoff) {
		s.sum -= s.entries[i].weight
		i++
	}
	if i > 0 {
		s.entries = s.entries[i:]
	}
	if s.sum < 0 {
		// Guard against float drift after many prunes; the true sum
		// over a pruned slice can never be negative.
		s.sum = 0
	}
}

// CheckAndAdmit implements the atomic prune+count+conditional-add.
func (ms *MemoryStore) CheckAndAdmit(_ context.Context, key string, cutoff, now time.Time, limit, weight float64) (AdmitResult, error) {
	s := ms.seriesFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(cutoff)

	var result AdmitResult
	if s.sum+weight <= limit {
		seq := atomic.AddUint64(&ms.seq, 1)
		e := entry{at: now, weight: weight, seq: seq}
		s.entries = insertSorted(s.entries, e)
		s.sum += weight
		result.Admitted = true
		result.Token = strconv.FormatUint(seq, 10)
	}
	result.Load = s.sum
	if len(s.entries) > 0 {
		result.Oldest = s.entries[0].at
		result.HasOldest = true
	}
	return result, nil
}

// insertSorted inserts e into entries, kept sorted ascending by
// timestamp. Equal timestamps are admitted in arrival order, so ties
// are broken by the monotonically increasing seq.
func insertSorted(entries []entry, e entry) []entry {
	i := sort.Search(len(entries), func(i int) bool {
		if entries[i].at.Equal(e.at) {
			return entries[i].seq > e.seq
		}
		return entries[i].at.After(e.at)
	})
	entries = append(entries, entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

// Remove deletes the entry identified by token, if still present.
func (ms *MemoryStore) Remove(_ context.Context, key string, token string) error {
	seq, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return nil
	}
	s := ms.seriesFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.seq == seq {
			s.sum -= e.weight
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			if s.sum < 0 {
				s.sum = 0
			}
			break
		}
	}
	return nil
}

// Load returns the current sum of weights with timestamp >= cutoff,
// pruning stale entries first.
func (ms *MemoryStore) Load(_ context.Context, key string, cutoff time.Time) (float64, error) {
	s := ms.seriesFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(cutoff)
	return s.sum, nil
}

// Oldest returns the smallest surviving timestamp.
func (ms *MemoryStore) Oldest(_ context.Context, key string) (time.Time, bool, error) {
	s := ms.seriesFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return time.Time{}, false, nil
	}
	return s.entries[0].at, true, nil
}

// Clear removes all entries for key.
func (ms *MemoryStore) Clear(_ context.Context, key string) error {
	shard := ms.shardFor(key)
	shard.mu.Lock()
	delete(shard.data, key)
	shard.mu.Unlock()
	return nil
}

// AllKeys returns every key currently tracked, across all shards.
func (ms *MemoryStore) AllKeys(_ context.Context) ([]string, error) {
	var keys []string
	for _, shard := range ms.shards {
		shard.mu.Lock()
		for k := range shard.data {
			keys = append(keys, k)
		}
		shard.mu.Unlock()
	}
	return keys, nil
}

// ReportMemory approximates the store's footprint: 32 bytes per live
// entry (timestamp + weight + seq, roughly) summed across all series.
func (ms *MemoryStore) ReportMemory(_ context.Context) (int64, error) {
	var total int64
	for _, shard := range ms.shards {
		shard.mu.Lock()
		for _, s := range shard.data {
			s.mu.Lock()
			total += int64(len(s.entries)) * 32
			s.mu.Unlock()
		}
		shard.mu.Unlock()
	}
	return total, nil
}

// Variant identifies this backend for BackendInfo.
func (ms *MemoryStore) Variant() string { return "memory" }

// Ping always succeeds - the process-local store has no connection
// to lose.
func (ms *MemoryStore) Ping(_ context.Context) error { return nil }
