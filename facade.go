// Package tiercache composes a bounded in-process LRU tier with an
// optional durable disk tier behind one facade: read-through with
// single-flight deduplication, write-through with per-key debounced
// coalescing, and counters for both, per spec.md §4.6.
package tiercache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coredao-org/tiercache/coalesce"
	"github.com/coredao-org/tiercache/codec"
	"github.com/coredao-org/tiercache/dedupe"
	"github.com/coredao-org/tiercache/disktier"
	"github.com/coredao-org/tiercache/log"
	"github.com/coredao-org/tiercache/memtier"
	"github.com/coredao-org/tiercache/metrics"
)

// diskPayload is what the write coalescer carries per submission: the
// already-encoded bytes and their TTL.
type diskPayload struct {
	bytes []byte
	ttl   time.Duration
}

// Cache is the two-tier cache facade. It is safe for concurrent use; the
// facade itself holds no mutable state beyond its tiers, which serialize
// their own access.
type Cache[V any] struct {
	cfg   Config
	codec codec.Codec[V]

	memory *memtier.Tier[V]
	disk   *disktier.Tier // nil when disk is disabled

	singleFlight *dedupe.Group[V]
	coalescer    *coalesce.Coalescer[diskPayload]

	metrics *metrics.Set

	autoTrimCancel context.CancelFunc
}

// Open assembles a Cache per cfg, opening the disk tier if enabled.
func Open[V any](cfg Config, c codec.Codec[V]) (*Cache[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.KeyEncoder == nil {
		cfg.KeyEncoder = identityKeyEncoder
	}

	cache := &Cache[V]{
		cfg:          cfg,
		codec:        c,
		memory:       memtier.New[V](memtier.Config(cfg.Memory)),
		singleFlight: dedupe.New[V](),
		metrics:      metrics.New(),
	}

	coalescer, err := coalesce.New[diskPayload](coalesce.DefaultSilenceWindow, coalesce.DefaultPoolSize)
	if err != nil {
		return nil, fmt.Errorf("tiercache: create write coalescer: %w", err)
	}
	cache.coalescer = coalescer

	if cfg.Disk.Enabled {
		dcfg := disktier.Config{
			BaseDir:            cfg.DirectoryURL,
			Name:               cfg.Name,
			StorageMode:        cfg.Disk.StorageMode,
			InlineThreshold:    cfg.Disk.InlineThreshold,
			CountLimit:         cfg.Disk.CountLimit,
			ByteLimit:          cfg.Disk.ByteLimit,
			AgeLimit:           cfg.Disk.AgeLimit,
			CheckpointInterval: disktier.DefaultCheckpoint,
		}
		disk, err := disktier.Open(dcfg)
		if err != nil {
			return nil, fmt.Errorf("tiercache: open disk tier: %w", err)
		}
		disk.OnTrim(cache.metrics.RecordTrim)
		cache.disk = disk
	}

	cache.memory.OnEvict(func(key string, deletedBytes int64) {
		cache.metrics.RecordTrim(1, deletedBytes)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cache.autoTrimCancel = cancel
	cache.memory.StartAutoTrim(ctx)
	if cache.disk != nil && cfg.Disk.AutoTrimInterval > 0 {
		go cache.runDiskAutoTrim(ctx, cfg.Disk.AutoTrimInterval)
	}

	return cache, nil
}

func (c *Cache[V]) runDiskAutoTrim(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.disk.TrimNow()
		}
	}
}

// Close stops background trimmers, waits for pending coalesced disk
// writes to land, and closes the disk tier, if any.
func (c *Cache[V]) Close() error {
	c.autoTrimCancel()
	c.memory.StopAutoTrim()
	c.coalescer.Release()
	if c.disk != nil {
		return c.disk.Close()
	}
	return nil
}

// Metrics returns a live snapshot of this cache's counters.
func (c *Cache[V]) Metrics() metrics.Snapshot {
	return c.metrics.Snapshot()
}

// Get implements spec.md §4.6's get algorithm: memory, then (if enabled
// and a single-flight slot is won) disk, decoding and repopulating memory
// on a disk hit.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	start := time.Now()
	defer func() { c.metrics.RecordGet(time.Since(start)) }()

	k := c.cfg.KeyEncoder(key)

	if v, ok := c.memory.Get(k); ok {
		c.metrics.MemoryHits.Inc(1)
		return v, true, nil
	}
	c.metrics.MemoryMisses.Inc(1)

	if c.disk == nil {
		var zero V
		return zero, false, nil
	}

	v, err, _ := c.singleFlight.DoContext(ctx, k, func() (V, error) {
		return c.fillFromDisk(context.Background(), k)
	})
	var zero V
	if err != nil {
		if errors.Is(err, errDiskMiss) {
			c.metrics.DiskMisses.Inc(1)
			return zero, false, nil
		}
		return zero, false, err
	}
	c.metrics.DiskHits.Inc(1)
	return v, true, nil
}

// errDiskMiss is an internal sentinel distinguishing "no such key on
// disk" from a real decoding/IO error inside the single-flight thunk; it
// never escapes Get.
var errDiskMiss = errors.New("tiercache: disk miss")

func (c *Cache[V]) fillFromDisk(ctx context.Context, k string) (V, error) {
	var zero V
	data, found, err := c.disk.Read(ctx, k)
	if err != nil {
		// spec.md §7: disk I/O errors during get degrade to miss, logged.
		log.Warn("tiercache: disk read failed, treating as miss", "key", k, "err", err)
		return zero, errDiskMiss
	}
	if !found {
		return zero, errDiskMiss
	}
	c.metrics.ReadsBytes.Inc(int64(len(data)))

	v, err := c.codec.Decode(data)
	if err != nil {
		return zero, newError(ErrDecoding, "get", k, err)
	}
	c.memory.Put(k, v, int64(len(data)), 0)
	return v, nil
}

// Set implements spec.md §4.6's set algorithm: encode, write memory
// synchronously, then submit the disk write to the coalescer.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, cost int64, ttl time.Duration) error {
	start := time.Now()
	defer func() { c.metrics.RecordSet(time.Since(start)) }()

	k := c.cfg.KeyEncoder(key)

	var data []byte
	if c.disk != nil {
		var err error
		data, err = c.codec.Encode(value)
		if err != nil {
			return newError(ErrEncoding, "set", k, err)
		}
	}

	c.memory.Put(k, value, cost, ttl)

	if c.disk != nil {
		c.coalescer.Submit(k, diskPayload{bytes: data, ttl: ttl}, func(key string, payload diskPayload) {
			if err := c.disk.Write(context.Background(), key, payload.bytes, payload.ttl); err != nil {
				log.Warn("tiercache: disk write failed", "key", key, "err", err)
				return
			}
			c.metrics.WritesBytes.Inc(int64(len(payload.bytes)))
		})
	}
	return nil
}

// Remove deletes key from both tiers.
func (c *Cache[V]) Remove(ctx context.Context, key string) error {
	k := c.cfg.KeyEncoder(key)
	c.memory.Remove(k)
	if c.disk != nil {
		return c.disk.Remove(ctx, k)
	}
	return nil
}

// Contains checks memory then, if absent and disk is enabled, probes the
// manifest without loading the payload.
func (c *Cache[V]) Contains(ctx context.Context, key string) (bool, error) {
	k := c.cfg.KeyEncoder(key)
	if c.memory.Contains(k) {
		return true, nil
	}
	if c.disk == nil {
		return false, nil
	}
	return c.disk.Contains(ctx, k)
}

// Clear empties both tiers.
func (c *Cache[V]) Clear(ctx context.Context) error {
	c.memory.Clear()
	if c.disk != nil {
		return c.disk.Clear(ctx)
	}
	return nil
}
