package tiercache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateRequiresName(t *testing.T) {
	cfg := DefaultConfig("")
	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, errRequiredName)
}

func TestValidateRequiresDirectoryWhenDiskEnabled(t *testing.T) {
	cfg := DefaultConfig("cache")
	cfg.Disk.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, errRequiredDirectory)
}

func TestValidateAcceptsZeroLimitsAsUnbounded(t *testing.T) {
	cfg := DefaultConfig("cache")
	cfg.Memory.CountLimit = 0
	cfg.Memory.CostLimit = 0
	cfg.Memory.AgeLimit = 0
	cfg.Memory.AutoTrimInterval = 0
	cfg.Disk.ByteLimit = 0
	cfg.Disk.CountLimit = 0
	cfg.Disk.AgeLimit = 0
	cfg.Disk.AutoTrimInterval = 0
	cfg.Disk.InlineThreshold = 0
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsNegativeLimits(t *testing.T) {
	base := func() Config {
		cfg := DefaultConfig("cache")
		cfg.DirectoryURL = "/tmp/whatever"
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"memory count limit", func(c *Config) { c.Memory.CountLimit = -1 }, errNegativeMemoryCountLimit},
		{"memory cost limit", func(c *Config) { c.Memory.CostLimit = -1 }, errNegativeMemoryCostLimit},
		{"memory age limit", func(c *Config) { c.Memory.AgeLimit = -time.Second }, errNegativeMemoryAgeLimit},
		{"memory auto trim", func(c *Config) { c.Memory.AutoTrimInterval = -time.Second }, errNegativeMemoryAutoTrim},
		{"disk byte limit", func(c *Config) { c.Disk.ByteLimit = -1 }, errNegativeDiskByteLimit},
		{"disk count limit", func(c *Config) { c.Disk.CountLimit = -1 }, errNegativeDiskCountLimit},
		{"disk age limit", func(c *Config) { c.Disk.AgeLimit = -time.Second }, errNegativeDiskAgeLimit},
		{"disk auto trim", func(c *Config) { c.Disk.AutoTrimInterval = -time.Second }, errNegativeDiskAutoTrim},
		{"disk inline threshold", func(c *Config) { c.Disk.InlineThreshold = -1 }, errNegativeInlineThresh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.ErrorIs(t, err, tc.want)
		})
	}
}
