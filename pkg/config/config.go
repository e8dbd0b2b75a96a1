// Package config defines bakpak's runtime configuration: defaults,
// environment overrides (prefix BAKPAK_), and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// BakConfig holds every tunable knob for a snapshot run: chunking
// parameters, storage locations, and hot-path profiling.
type BakConfig struct {
	// StateDir is the root directory holding the CAS, pack files, and the
	// run history database.
	StateDir string

	// ChunkMinBytes is the minimum chunk size (bytes).
	ChunkMinBytes int
	// ChunkAvgBytes is the target average chunk size (bytes); must be a
	// power of two.
	ChunkAvgBytes int
	// ChunkMaxBytes is the hard maximum chunk size (bytes).
	ChunkMaxBytes int
	// ChunkNormalizationBits controls how strongly the chunker biases
	// towards the average size.
	ChunkNormalizationBits uint

	// StorageMode selects the blob layout under StateDir: "plain" keeps one
	// file per blob, "packed" appends blobs into size-bounded pack files
	// with a global index.
	StorageMode string

	// PackTargetBytes is the approximate size a pack file grows to before
	// it's rotated and a new one started. Only used in packed mode.
	PackTargetBytes int64

	// EnableWatch toggles the fsnotify-driven watch mode that re-snapshots
	// on change, an ambient extension beyond a one-shot snapshot.
	EnableWatch bool

	HotPath HotPathConfig
}

// Recognized StorageMode values.
const (
	StoragePlain  = "plain"
	StoragePacked = "packed"
)

// HotPathConfig controls the decayed-activity profiler that ranks which
// watched paths churn most often.
type HotPathConfig struct {
	// Enable toggles profiling; when false no per-path state is kept.
	Enable bool
	// DecayWindow is the half-life of a path's activity score.
	DecayWindow time.Duration
	// HotThreshold is the score at which a path counts as hot.
	HotThreshold float64
}

// DefaultConfig returns bakpak's default configuration.
func DefaultConfig() *BakConfig {
	return &BakConfig{
		StateDir:               defaultStateDir(),
		ChunkMinBytes:          1 << 20,  // 1MiB
		ChunkAvgBytes:          8 << 20,  // 8MiB, power of two
		ChunkMaxBytes:          64 << 20, // 64MiB
		ChunkNormalizationBits: 2,
		StorageMode:            StoragePlain,
		PackTargetBytes:        512 << 20, // 512MiB
		EnableWatch:            false,
		HotPath:                defaultHotPathConfig(),
	}
}

// LoadFromEnv loads configuration from environment variables, falling back
// to DefaultConfig for anything unset.
func LoadFromEnv() *BakConfig {
	cfg := DefaultConfig()

	if v := os.Getenv("BAKPAK_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("BAKPAK_CHUNK_MIN_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChunkMinBytes = n
		}
	}
	if v := os.Getenv("BAKPAK_CHUNK_AVG_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChunkAvgBytes = n
		}
	}
	if v := os.Getenv("BAKPAK_CHUNK_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChunkMaxBytes = n
		}
	}
	if v := os.Getenv("BAKPAK_CHUNK_NORMALIZATION_BITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ChunkNormalizationBits = uint(n)
		}
	}
	if v := os.Getenv("BAKPAK_STORAGE_MODE"); v != "" {
		cfg.StorageMode = v
	}
	if v := os.Getenv("BAKPAK_PACK_TARGET_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.PackTargetBytes = n
		}
	}
	if v := os.Getenv("BAKPAK_ENABLE_WATCH"); v != "" {
		cfg.EnableWatch = v == "1" || v == "true" || v == "TRUE"
	}

	cfg.HotPath = loadHotPathConfigFromEnv(cfg.HotPath)

	return cfg
}

// Validate checks that the configuration describes a usable chunker and
// storage layout.
func (c *BakConfig) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state directory must be set")
	}

	if c.ChunkMinBytes < 64 {
		return fmt.Errorf("chunk min size must be at least 64 bytes, got: %d", c.ChunkMinBytes)
	}
	if c.ChunkAvgBytes <= 0 || c.ChunkAvgBytes&(c.ChunkAvgBytes-1) != 0 {
		return fmt.Errorf("chunk average size must be a power of two, got: %d", c.ChunkAvgBytes)
	}
	if c.ChunkMinBytes > c.ChunkAvgBytes {
		return fmt.Errorf("chunk min size cannot exceed average (min=%d avg=%d)", c.ChunkMinBytes, c.ChunkAvgBytes)
	}
	if c.ChunkAvgBytes > c.ChunkMaxBytes {
		return fmt.Errorf("chunk average size cannot exceed max (avg=%d max=%d)", c.ChunkAvgBytes, c.ChunkMaxBytes)
	}

	switch c.StorageMode {
	case StoragePlain, StoragePacked:
	default:
		return fmt.Errorf("storage mode must be %q or %q, got: %q", StoragePlain, StoragePacked, c.StorageMode)
	}
	if c.PackTargetBytes <= 0 {
		return fmt.Errorf("pack target size must be positive, got: %d", c.PackTargetBytes)
	}

	if err := c.HotPath.Validate(); err != nil {
		return fmt.Errorf("hot path config invalid: %w", err)
	}

	return nil
}

// CASPath returns the directory the content-addressable store lives in.
func (c *BakConfig) CASPath() string {
	return filepath.Join(c.StateDir, "cas")
}

// PackPath returns the directory pack files are written into.
func (c *BakConfig) PackPath() string {
	return filepath.Join(c.StateDir, "packs")
}

// HistoryPath returns the path to the run-history database.
func (c *BakConfig) HistoryPath() string {
	return filepath.Join(c.StateDir, "history.db")
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".bakpak")
	}
	return filepath.Join(os.TempDir(), "bakpak")
}

func defaultHotPathConfig() HotPathConfig {
	return HotPathConfig{
		Enable:       true,
		DecayWindow:  30 * time.Second,
		HotThreshold: 3.0,
	}
}

func loadHotPathConfigFromEnv(cfg HotPathConfig) HotPathConfig {
	if v := os.Getenv("BAKPAK_HOTPATH_ENABLE"); v != "" {
		cfg.Enable = v == "1" || v == "true" || v == "TRUE"
	}
	if v := os.Getenv("BAKPAK_HOTPATH_DECAY_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DecayWindow = d
		}
	}
	if v := os.Getenv("BAKPAK_HOTPATH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.HotThreshold = f
		}
	}
	return cfg
}

// Validate ensures the hot-path profiler's parameters are usable.
func (c HotPathConfig) Validate() error {
	if !c.Enable {
		return nil
	}
	if c.DecayWindow <= 0 {
		return fmt.Errorf("decay window must be > 0")
	}
	if c.HotThreshold < 0 {
		return fmt.Errorf("hot path threshold must be >= 0")
	}
	return nil
}
