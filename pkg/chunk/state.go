package chunk

import (
	"fmt"
	"math/bits"

	"github.com/rasendubi/bakpak-go/pkg/gear"
)

// Config controls the content-defined chunker: the size bounds and the two
// masks derived from avg size and the normalization window.
type Config struct {
	Gear    *gear.Config
	MinSize int
	AvgSize int
	MaxSize int

	beforeAvgMask uint64
	afterAvgMask  uint64
}

// NewConfig builds a chunker configuration. avgSize must be a power of two
// strictly greater than 1<<normalizationBits, matching the invariant the
// mask derivation below depends on.
func NewConfig(gearCfg *gear.Config, minSize, avgSize, maxSize int, normalizationBits uint) (*Config, error) {
	if avgSize <= 0 || avgSize&(avgSize-1) != 0 {
		return nil, fmt.Errorf("chunk: avg_size %d must be a power of two", avgSize)
	}
	avgBase := uint(bits.Len(uint(avgSize)) - 1)
	if avgBase <= normalizationBits {
		return nil, fmt.Errorf("chunk: avg_size 2^%d too small for normalization_bits %d", avgBase, normalizationBits)
	}
	if minSize < 64 {
		return nil, fmt.Errorf("chunk: min_size %d must be at least 64", minSize)
	}
	if minSize > avgSize || avgSize > maxSize {
		return nil, fmt.Errorf("chunk: sizes must satisfy min_size <= avg_size <= max_size")
	}

	return &Config{
		Gear:          gearCfg,
		MinSize:       minSize,
		AvgSize:       avgSize,
		MaxSize:       maxSize,
		beforeAvgMask: (2 << (avgBase + normalizationBits)) - 1,
		afterAvgMask:  (2 << (avgBase - normalizationBits)) - 1,
	}, nil
}

// State is a single running chunk-boundary search, fed byte buffers via
// Update. It carries no data of its own: the caller accumulates the bytes
// that make up the current chunk.
type State struct {
	cfg  *Config
	gear *gear.Hash
	size int
}

// NewState starts a fresh boundary search bound to cfg.
func NewState(cfg *Config) *State {
	return &State{cfg: cfg, gear: gear.New(cfg.Gear)}
}

// Update processes buf and reports how many of its leading bytes belong to
// the chunk currently being searched. If it returns (n, true), a boundary
// was found after n bytes and the state resets for the next chunk; any
// remaining bytes in buf belong to the next chunk. If it returns
// (len(buf), false), the whole buffer was consumed without finding a
// boundary.
func (s *State) Update(buf []byte) (int, bool) {
	i := 0

	// The first min_size-64 bytes never influence the chunking decision, so
	// skip feeding them to the gear hash entirely.
	if s.size < s.cfg.MinSize-64 {
		toSkip := s.cfg.MinSize - 64 - s.size
		if toSkip >= len(buf) {
			s.size += len(buf)
			return len(buf), false
		}
		s.size += toSkip
		i += toSkip
	}

	// Warm up the gear hash over the next 63 bytes without checking for a
	// boundary: the hash needs a full window before it means anything.
	for s.size < s.cfg.MinSize-1 {
		if i >= len(buf) {
			return i, false
		}
		s.gear.Update(buf[i])
		s.size++
		i++
	}

	// Between min_size and avg_size, test against the stricter mask so
	// chunks lean towards avg_size rather than cutting too small.
	for s.size < s.cfg.AvgSize {
		if i >= len(buf) {
			return i, false
		}
		s.gear.Update(buf[i])
		s.size++
		i++
		if s.gear.Sum()&s.cfg.beforeAvgMask == 0 {
			s.size = 0
			return i, true
		}
	}

	// Past avg_size, test against the relaxed mask so a boundary becomes
	// more likely, again leaning towards avg_size.
	for s.size < s.cfg.MaxSize {
		if i >= len(buf) {
			return i, false
		}
		s.gear.Update(buf[i])
		s.size++
		i++
		if s.gear.Sum()&s.cfg.afterAvgMask == 0 {
			s.size = 0
			return i, true
		}
	}

	// Hit max_size: force a cut here.
	s.size = 0
	return i, true
}
