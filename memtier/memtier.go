// Package memtier implements the cache's in-process LRU tier: a bounded,
// arena-indexed map ordered by last access, with per-entry cost and TTL
// and three-pass (age, count, cost) trimming.
//
// The arena design — nodes referenced by integer indices inside a slice,
// rather than pointer-linked list nodes — follows the same shape as
// go-ethereum's own common/lru package (see basiclru_test.go in the
// retrieved reference pack), which itself traces back to
// hashicorp/golang-lru's simplelru. Neither library is imported directly:
// this tier needs per-entry cost accounting and per-entry TTL alongside
// age/count budgets trimmed in a specific order, which is spec-level
// algorithmic logic, not a delegable concern.
package memtier

import (
	"context"
	"sync"
	"time"

	"github.com/coredao-org/tiercache/log"
)

const noIndex = -1

// node is one arena slot. free slots are linked through next (the prev
// field is unused while free).
type node[V any] struct {
	key        string
	value      V
	cost       int64
	expiresAt  time.Time // zero Time means "never expires"
	lastAccess time.Time
	prev, next int32
	inUse      bool
}

// Config configures a Tier's budgets, matching spec.md §6.3's memory
// defaults.
type Config struct {
	// CountLimit bounds the number of resident entries. Default 1000.
	CountLimit int
	// CostLimit bounds the sum of resident entries' cost. Default 50 MiB
	// (from DefaultConfig); zero disables cost-based trimming.
	CostLimit int64
	// AgeLimit bounds how long an entry may go unaccessed before it is
	// eligible for eviction. Zero means unlimited (the spec's default).
	AgeLimit time.Duration
	// AutoTrimInterval is the period of the background trim goroutine
	// started by StartAutoTrim. Default 5s; <=0 disables it.
	AutoTrimInterval time.Duration
}

const (
	DefaultCountLimit       = 1000
	DefaultCostLimit  int64 = 50 * 1024 * 1024
	DefaultAutoTrim         = 5 * time.Second
)

// DefaultConfig returns the spec's documented memory-tier defaults,
// following the Default*Config factory idiom used throughout the teacher
// (e.g. DefaultNetworkConfigCache).
func DefaultConfig() Config {
	return Config{
		CountLimit:       DefaultCountLimit,
		CostLimit:        DefaultCostLimit,
		AgeLimit:         0,
		AutoTrimInterval: DefaultAutoTrim,
	}
}

// Tier is the bounded, in-process LRU tier. It is safe for concurrent use.
type Tier[V any] struct {
	mu    sync.Mutex
	cfg   Config
	index map[string]int32
	nodes []node[V]
	free  int32 // head of the free list, or noIndex
	head  int32 // most-recently-used, or noIndex
	tail  int32 // least-recently-used, or noIndex
	cost  int64

	now func() time.Time

	onEvict func(key string, deletedBytes int64) // optional, used for metrics

	cancelAutoTrim context.CancelFunc
}

// New creates an empty Tier with the given configuration.
func New[V any](cfg Config) *Tier[V] {
	return &Tier[V]{
		cfg:   cfg,
		index: make(map[string]int32),
		free:  noIndex,
		head:  noIndex,
		tail:  noIndex,
		now:   time.Now,
	}
}

// OnEvict registers a callback, for metrics wiring, invoked whenever an
// entry leaves the tier through a trim pass, TTL expiry seen by Get, or
// Remove (Clear does not invoke it). It runs while the tier's lock is
// held; a call back into the Tier from it deadlocks.
func (t *Tier[V]) OnEvict(fn func(key string, deletedBytes int64)) {
	t.mu.Lock()
	t.onEvict = fn
	t.mu.Unlock()
}

// Get looks up key, refreshing its recency and reporting a miss if the
// entry has expired.
func (t *Tier[V]) Get(key string) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, ok := t.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	now := t.now()
	n := &t.nodes[idx]
	if !n.expiresAt.IsZero() && !n.expiresAt.After(now) {
		t.evict(idx)
		var zero V
		return zero, false
	}
	n.lastAccess = now
	t.moveToFront(idx)
	return n.value, true
}

// Contains reports whether key is resident and unexpired, without
// refreshing its recency (matching the spec's explicit "Contains doesn't
// change recency" requirement, mirrored in go-ethereum's own LRU tests).
func (t *Tier[V]) Contains(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, ok := t.index[key]
	if !ok {
		return false
	}
	n := &t.nodes[idx]
	if !n.expiresAt.IsZero() && !n.expiresAt.After(t.now()) {
		return false
	}
	return true
}

// Put inserts or replaces key, then runs the three-pass trim.
func (t *Tier[V]) Put(key string, value V, cost int64, ttl time.Duration) {
	t.mu.Lock()
	now := t.now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	if idx, ok := t.index[key]; ok {
		n := &t.nodes[idx]
		t.cost -= n.cost
		n.value = value
		n.cost = cost
		n.expiresAt = expiresAt
		n.lastAccess = now
		t.cost += cost
		t.moveToFront(idx)
	} else {
		idx := t.alloc()
		n := &t.nodes[idx]
		n.key = key
		n.value = value
		n.cost = cost
		n.expiresAt = expiresAt
		n.lastAccess = now
		n.inUse = true
		t.index[key] = idx
		t.cost += cost
		t.pushFront(idx)
	}
	t.trimLocked()
	t.mu.Unlock()
}

// Remove deletes key if present, reporting whether it was present.
func (t *Tier[V]) Remove(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, ok := t.index[key]
	if !ok {
		return false
	}
	t.unlinkAndFree(idx)
	return true
}

// Clear empties the tier.
func (t *Tier[V]) Clear() {
	t.mu.Lock()
	t.index = make(map[string]int32)
	t.nodes = t.nodes[:0]
	t.free = noIndex
	t.head = noIndex
	t.tail = noIndex
	t.cost = 0
	t.mu.Unlock()
}

// Len reports the number of resident entries (including any not yet swept
// for TTL expiry).
func (t *Tier[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.index)
}

// TotalCost reports the sum of resident entries' cost.
func (t *Tier[V]) TotalCost() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cost
}

// TrimNow runs the three-pass trim immediately (age, then count, then
// cost), matching spec.md §4.1's ordering.
func (t *Tier[V]) TrimNow() {
	t.mu.Lock()
	t.trimLocked()
	t.mu.Unlock()
}

// StartAutoTrim launches the background trimmer described in spec.md
// §4.1: it sleeps AutoTrimInterval and repeats the three-pass trim, until
// ctx is cancelled. A running pass always completes before the goroutine
// observes cancellation, matching "cancellation stops the task; a running
// pass completes." Calling StartAutoTrim again replaces any previously
// running trimmer.
func (t *Tier[V]) StartAutoTrim(ctx context.Context) {
	t.mu.Lock()
	interval := t.cfg.AutoTrimInterval
	if t.cancelAutoTrim != nil {
		t.cancelAutoTrim()
	}
	t.mu.Unlock()
	if interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancelAutoTrim = cancel
	t.mu.Unlock()

	log.Debug("memtier auto-trim started", "interval", interval)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Debug("memtier auto-trim stopped")
				return
			case <-ticker.C:
				t.TrimNow()
			}
		}
	}()
}

// StopAutoTrim cancels any running background trimmer.
func (t *Tier[V]) StopAutoTrim() {
	t.mu.Lock()
	cancel := t.cancelAutoTrim
	t.cancelAutoTrim = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// --- internal arena + LRU list management (caller holds t.mu) ---

func (t *Tier[V]) alloc() int32 {
	if t.free != noIndex {
		idx := t.free
		t.free = t.nodes[idx].next
		return idx
	}
	t.nodes = append(t.nodes, node[V]{})
	return int32(len(t.nodes) - 1)
}

func (t *Tier[V]) pushFront(idx int32) {
	n := &t.nodes[idx]
	n.prev = noIndex
	n.next = t.head
	if t.head != noIndex {
		t.nodes[t.head].prev = idx
	}
	t.head = idx
	if t.tail == noIndex {
		t.tail = idx
	}
}

func (t *Tier[V]) unlink(idx int32) {
	n := &t.nodes[idx]
	if n.prev != noIndex {
		t.nodes[n.prev].next = n.next
	} else {
		t.head = n.next
	}
	if n.next != noIndex {
		t.nodes[n.next].prev = n.prev
	} else {
		t.tail = n.prev
	}
}

func (t *Tier[V]) moveToFront(idx int32) {
	if t.head == idx {
		return
	}
	t.unlink(idx)
	t.pushFront(idx)
}

// unlinkAndFree removes idx from the list and index, releasing its slot
// to the free list, and reports its size to onEvict.
func (t *Tier[V]) unlinkAndFree(idx int32) {
	n := &t.nodes[idx]
	t.unlink(idx)
	delete(t.index, n.key)
	t.cost -= n.cost

	deletedBytes := n.cost
	key := n.key
	*n = node[V]{next: t.free}
	t.free = idx

	if t.onEvict != nil {
		t.onEvict(key, deletedBytes)
	}
}

// evict is unlinkAndFree with a name that reads better at call sites that
// are reacting to TTL expiry rather than budget pressure.
func (t *Tier[V]) evict(idx int32) { t.unlinkAndFree(idx) }

// trimLocked runs the three trim passes in spec order: age, count, cost.
// Each pass walks from the tail (LRU) forward.
func (t *Tier[V]) trimLocked() {
	now := t.now()

	// Pass 1: age (a tail entry past its TTL is evicted here too, since
	// both conditions make it the oldest useful definition of "stale").
	for t.tail != noIndex {
		n := &t.nodes[t.tail]
		expired := !n.expiresAt.IsZero() && !n.expiresAt.After(now)
		tooOld := t.cfg.AgeLimit > 0 && !n.lastAccess.After(now.Add(-t.cfg.AgeLimit))
		if !expired && !tooOld {
			break
		}
		t.unlinkAndFree(t.tail)
	}

	// Pass 2: count.
	if t.cfg.CountLimit > 0 {
		for len(t.index) > t.cfg.CountLimit && t.tail != noIndex {
			t.unlinkAndFree(t.tail)
		}
	}

	// Pass 3: cost.
	if t.cfg.CostLimit > 0 {
		for t.cost > t.cfg.CostLimit && t.tail != noIndex {
			t.unlinkAndFree(t.tail)
		}
	}
}

// Keys returns resident keys ordered from least- to most-recently-used
// (oldest first), mirroring go-ethereum's common/lru.Keys().
func (t *Tier[V]) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]string, 0, len(t.index))
	for idx := t.tail; idx != noIndex; idx = t.nodes[idx].prev {
		keys = append(keys, t.nodes[idx].key)
	}
	return keys
}
