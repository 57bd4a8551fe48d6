package tiercache

import (
	"time"

	"github.com/coredao-org/tiercache/disktier"
	"github.com/coredao-org/tiercache/memtier"
)

// Config carries every tunable the facade needs to assemble a Cache, per
// spec.md §6.3.
type Config struct {
	// Name identifies this cache instance; it scopes its on-disk files
	// under DirectoryURL/Name/.
	Name string
	// DirectoryURL overrides the data root. Required when DiskEnabled.
	DirectoryURL string

	Memory MemoryConfig
	Disk   DiskConfig

	// KeyEncoder transforms caller keys before they reach either tier.
	// Defaults to identity. Production deployments are expected to
	// supply a collision-resistant digest (spec.md §6.2).
	KeyEncoder func(string) string

	LoggingEnabled bool
	MetricsEnabled bool
}

// MemoryConfig configures the in-process LRU tier.
type MemoryConfig struct {
	CountLimit       int
	CostLimit        int64
	AgeLimit         time.Duration
	AutoTrimInterval time.Duration
}

// DiskConfig configures the durable tier.
type DiskConfig struct {
	Enabled          bool
	ByteLimit        int64
	CountLimit       int64
	AgeLimit         time.Duration
	AutoTrimInterval time.Duration
	InlineThreshold  int64
	StorageMode      disktier.StorageMode
}

const (
	DefaultDiskByteLimit  int64 = 1024 * 1024 * 1024
	DefaultDiskCountLimit       = 100_000
	DefaultDiskAutoTrim         = 30 * time.Second
	DefaultInlineThreshold      = 20 * 1024
)

// DefaultConfig returns spec.md §6.3's documented defaults for a named
// cache, with the disk tier disabled (as the spec's own default is).
// Following the Default*Config factory idiom used throughout the teacher
// (e.g. DefaultNetworkConfigCache).
func DefaultConfig(name string) Config {
	return Config{
		Name: name,
		Memory: MemoryConfig{
			CountLimit:       memtier.DefaultCountLimit,
			CostLimit:        memtier.DefaultCostLimit,
			AgeLimit:         0,
			AutoTrimInterval: memtier.DefaultAutoTrim,
		},
		Disk: DiskConfig{
			Enabled:          false,
			ByteLimit:        DefaultDiskByteLimit,
			CountLimit:       DefaultDiskCountLimit,
			AgeLimit:         0,
			AutoTrimInterval: DefaultDiskAutoTrim,
			InlineThreshold:  DefaultInlineThreshold,
			StorageMode:      disktier.StorageMixed,
		},
		KeyEncoder:     identityKeyEncoder,
		LoggingEnabled: true,
		MetricsEnabled: true,
	}
}

func identityKeyEncoder(k string) string { return k }

// Validate reports a configuration error before Open commits to building
// any tier. A limit of zero means "unbounded" (spec.md §3.2/§4.2's
// sentinel convention, e.g. CountLimit 0 disables count-based trimming);
// only negative limits are rejected, mirroring the teacher's
// IsValidConfig-style guard functions (eth/feemarket/storage.go).
func (c Config) Validate() error {
	if c.Name == "" {
		return newError(ErrInvalidKey, "validate", "", errRequiredName)
	}
	if c.Disk.Enabled && c.DirectoryURL == "" {
		return newError(ErrInvalidKey, "validate", "", errRequiredDirectory)
	}

	if c.Memory.CountLimit < 0 {
		return newError(ErrInvalidKey, "validate", "", errNegativeMemoryCountLimit)
	}
	if c.Memory.CostLimit < 0 {
		return newError(ErrInvalidKey, "validate", "", errNegativeMemoryCostLimit)
	}
	if c.Memory.AgeLimit < 0 {
		return newError(ErrInvalidKey, "validate", "", errNegativeMemoryAgeLimit)
	}
	if c.Memory.AutoTrimInterval < 0 {
		return newError(ErrInvalidKey, "validate", "", errNegativeMemoryAutoTrim)
	}

	if c.Disk.ByteLimit < 0 {
		return newError(ErrInvalidKey, "validate", "", errNegativeDiskByteLimit)
	}
	if c.Disk.CountLimit < 0 {
		return newError(ErrInvalidKey, "validate", "", errNegativeDiskCountLimit)
	}
	if c.Disk.AgeLimit < 0 {
		return newError(ErrInvalidKey, "validate", "", errNegativeDiskAgeLimit)
	}
	if c.Disk.AutoTrimInterval < 0 {
		return newError(ErrInvalidKey, "validate", "", errNegativeDiskAutoTrim)
	}
	if c.Disk.InlineThreshold < 0 {
		return newError(ErrInvalidKey, "validate", "", errNegativeInlineThresh)
	}

	return nil
}
