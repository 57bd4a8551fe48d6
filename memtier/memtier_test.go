package memtier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTier[V any](cfg Config) *Tier[V] {
	tier := New[V](cfg)
	return tier
}

func TestPutGet(t *testing.T) {
	tier := newTestTier[int](DefaultConfig())
	tier.Put("answer", 42, 1, 0)

	v, ok := tier.Get("answer")
	require.True(t, ok)
	require.Equal(t, 42, v)
	require.True(t, tier.Contains("answer"))
}

func TestGetMiss(t *testing.T) {
	tier := newTestTier[int](DefaultConfig())
	_, ok := tier.Get("missing")
	require.False(t, ok)
}

// TestLRUDiscipline is scenario P4 from spec.md §8: put(a); put(b); get(a);
// put(c) with countLimit=2 leaves the resident set {a, c}.
func TestLRUDiscipline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CountLimit = 2
	tier := newTestTier[string](cfg)

	tier.Put("a", "A", 1, 0)
	tier.Put("b", "B", 1, 0)
	tier.Get("a")
	tier.Put("c", "C", 1, 0)

	require.True(t, tier.Contains("a"))
	require.False(t, tier.Contains("b"))
	require.True(t, tier.Contains("c"))
	require.Equal(t, 2, tier.Len())
}

func TestContainsDoesNotRefreshRecency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CountLimit = 2
	tier := newTestTier[int](cfg)

	tier.Put("a", 1, 1, 0)
	tier.Put("b", 2, 1, 0)
	require.True(t, tier.Contains("a"))
	tier.Put("c", 3, 1, 0)

	require.False(t, tier.Contains("a"), "Contains must not have refreshed a's recency")
	require.True(t, tier.Contains("c"))
}

func TestCostTrim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CountLimit = 0
	cfg.CostLimit = 25
	tier := newTestTier[int](cfg)

	tier.Put("a", 1, 10, 0)
	tier.Put("b", 2, 10, 0)
	tier.Put("c", 3, 10, 0)

	require.LessOrEqual(t, tier.TotalCost(), int64(25))
	require.False(t, tier.Contains("a"))
	require.True(t, tier.Contains("c"))
}

func TestReplaceUpdatesCostNotDouble(t *testing.T) {
	cfg := DefaultConfig()
	tier := newTestTier[int](cfg)

	tier.Put("a", 1, 10, 0)
	tier.Put("a", 2, 30, 0)

	require.Equal(t, int64(30), tier.TotalCost())
	v, ok := tier.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, v)
}

// TestTTLExpiry is scenario P5 (the in-memory half): an expired entry
// reports as a miss and is evicted from the tier.
func TestTTLExpiry(t *testing.T) {
	tier := newTestTier[int](DefaultConfig())
	fakeNow := time.Now()
	tier.now = func() time.Time { return fakeNow }

	tier.Put("k", 1, 1, 50*time.Millisecond)
	v, ok := tier.Get("k")
	require.True(t, ok)
	require.Equal(t, 1, v)

	fakeNow = fakeNow.Add(100 * time.Millisecond)
	_, ok = tier.Get("k")
	require.False(t, ok)
	require.Equal(t, 0, tier.Len())
}

func TestAgeTrim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AgeLimit = time.Minute
	tier := newTestTier[int](cfg)
	fakeNow := time.Now()
	tier.now = func() time.Time { return fakeNow }

	tier.Put("old", 1, 1, 0)
	fakeNow = fakeNow.Add(2 * time.Minute)
	tier.Put("new", 2, 1, 0)

	require.False(t, tier.Contains("old"))
	require.True(t, tier.Contains("new"))
}

func TestRemoveAndClear(t *testing.T) {
	tier := newTestTier[int](DefaultConfig())
	tier.Put("a", 1, 1, 0)

	require.True(t, tier.Remove("a"))
	require.False(t, tier.Remove("a"))
	require.False(t, tier.Contains("a"))

	tier.Put("b", 2, 1, 0)
	tier.Clear()
	require.Equal(t, 0, tier.Len())
	require.Equal(t, int64(0), tier.TotalCost())
}

func TestOnEvictCallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CountLimit = 1
	tier := newTestTier[int](cfg)

	var evictedKey string
	var evictedBytes int64
	tier.OnEvict(func(key string, bytes int64) {
		evictedKey = key
		evictedBytes = bytes
	})

	tier.Put("a", 1, 7, 0)
	tier.Put("b", 2, 9, 0)

	require.Equal(t, "a", evictedKey)
	require.Equal(t, int64(7), evictedBytes)
}

func TestStartAutoTrimTrimsInBackground(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CountLimit = 1
	cfg.AutoTrimInterval = 10 * time.Millisecond
	tier := newTestTier[int](cfg)

	ctx, cancel := context.WithCancel(context.Background())
	tier.StartAutoTrim(ctx)
	defer tier.StopAutoTrim()

	tier.mu.Lock()
	tier.cfg.CountLimit = 100 // avoid Put's own synchronous trim racing the assertion below
	tier.mu.Unlock()
	tier.Put("a", 1, 1, 0)
	tier.Put("b", 2, 1, 0)

	tier.mu.Lock()
	tier.cfg.CountLimit = 1
	tier.mu.Unlock()

	require.Eventually(t, func() bool {
		return tier.Len() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
}

func TestKeysOrderedOldestFirst(t *testing.T) {
	tier := newTestTier[int](DefaultConfig())
	tier.Put("a", 1, 1, 0)
	tier.Put("b", 2, 1, 0)
	tier.Put("c", 3, 1, 0)

	require.Equal(t, []string{"a", "b", "c"}, tier.Keys())
}
