// Package hotpath ranks watched paths by how actively they change. Every
// recorded visit bumps a per-path score that halves once per decay window,
// so a score approximates the path's recent change rate and watch mode can
// re-chunk the busiest paths first.
package hotpath

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rasendubi/bakpak-go/pkg/config"
)

// noiseFloor is the score below which a path is dropped from the table
// entirely; a path idle for a few windows costs nothing to keep tracking.
const noiseFloor = 0.01

type entry struct {
	score float64
	seen  time.Time
}

// Profiler keeps a decayed activity score per path. A nil Profiler is
// valid and ignores every call, so callers never special-case a disabled
// configuration.
type Profiler struct {
	window    time.Duration
	threshold float64

	now func() time.Time

	mu     sync.Mutex
	scores map[string]entry
}

// New builds a profiler from cfg, or returns nil when profiling is
// disabled.
func New(cfg config.HotPathConfig) *Profiler {
	if !cfg.Enable {
		return nil
	}
	return &Profiler{
		window:    cfg.DecayWindow,
		threshold: cfg.HotThreshold,
		now:       time.Now,
		scores:    make(map[string]entry),
	}
}

// Record notes one visit to path, decaying whatever score it accumulated
// before this one.
func (p *Profiler) Record(path string) {
	if p == nil || path == "" {
		return
	}
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.scores[path]
	p.scores[path] = entry{score: p.decayed(e, now) + 1, seen: now}
}

// Score returns path's current activity score, zero for unknown paths.
func (p *Profiler) Score(path string) float64 {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decayed(p.scores[path], p.now())
}

// Hot returns every path whose score is at or above the threshold,
// busiest first. Paths whose score has decayed below the noise floor are
// dropped from the table as a side effect.
func (p *Profiler) Hot() []string {
	if p == nil {
		return nil
	}
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()

	type ranked struct {
		path  string
		score float64
	}
	var hot []ranked
	for path, e := range p.scores {
		s := p.decayed(e, now)
		if s < noiseFloor {
			delete(p.scores, path)
			continue
		}
		if s >= p.threshold {
			hot = append(hot, ranked{path: path, score: s})
		}
	}

	sort.Slice(hot, func(i, j int) bool {
		if hot[i].score != hot[j].score {
			return hot[i].score > hot[j].score
		}
		return hot[i].path < hot[j].path
	})
	out := make([]string, len(hot))
	for i, r := range hot {
		out[i] = r.path
	}
	return out
}

// decayed returns e.score halved once per window elapsed since it was
// last touched. Caller holds p.mu.
func (p *Profiler) decayed(e entry, now time.Time) float64 {
	if e.score == 0 {
		return 0
	}
	elapsed := now.Sub(e.seen)
	if elapsed <= 0 {
		return e.score
	}
	return e.score * math.Exp2(-float64(elapsed)/float64(p.window))
}
