package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bakpak"

var (
	// Registry is a dedicated Prometheus registry for all bakpak metrics.
	Registry = prometheus.NewRegistry()

	// SnapshotDuration measures time spent running a full snapshot.
	SnapshotDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_ms",
			Help:      "Duration of snapshot operations in milliseconds",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"trigger"}, // cli | watch
	)

	// SnapshotTotal counts snapshot runs by outcome.
	SnapshotTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_total",
			Help:      "Total number of snapshot runs",
		},
		[]string{"outcome"},
	)

	// ChunkTotal counts chunk processing outcomes (new vs reuse).
	ChunkTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_total",
			Help:      "Total chunks produced during content-defined chunking",
		},
		[]string{"outcome"}, // new | reuse
	)

	// ChunkDedupRatio reports the running dedup ratio across chunked content.
	ChunkDedupRatio = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunk_dedup_ratio",
			Help:      "Instant dedup ratio for content-defined chunking",
		},
	)

	// ChunkSizeBytes tracks the distribution of chunk sizes produced.
	ChunkSizeBytes = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_size_bytes",
			Help:      "Distribution of chunk sizes produced by the content-defined chunker",
			Buckets:   prometheus.ExponentialBuckets(1<<16, 2, 12),
		},
	)

	// PackRolloverTotal counts pack file rotations.
	PackRolloverTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pack_rollover_total",
			Help:      "Number of times a pack file was finalized and rotated",
		},
	)

	// PackBytesWritten accumulates bytes written to pack files.
	PackBytesWritten = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pack_bytes_written_total",
			Help:      "Cumulative bytes written into pack files",
		},
	)

	// ArchiveSegmentTotal counts encrypted archive segments sealed.
	ArchiveSegmentTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_segment_total",
			Help:      "Number of archive stream segments sealed",
		},
		[]string{"kind"}, // full | last
	)

	// StorageSavedBytesTotal accumulates bytes saved vs storing every chunk.
	StorageSavedBytesTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_saved_bytes_total",
			Help:      "Cumulative bytes saved by deduplication and compression",
		},
	)

	// StorageSavedRatio tracks the current savings ratio (0.0 - 1.0).
	StorageSavedRatio = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_saved_ratio",
			Help:      "Current storage savings ratio (saved_bytes / total_written_bytes)",
		},
	)

	// CASSizeBytes tracks on-disk CAS footprint.
	CASSizeBytes = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cas_size_bytes",
			Help:      "On-disk size of the content-addressable store",
		},
	)

	// HistoryRunsTotal tracks the number of recorded runs in the history ledger.
	HistoryRunsTotal = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_runs_total",
			Help:      "Number of snapshot runs recorded in the history ledger",
		},
	)

	// AgentInfo exposes static information about the running agent.
	AgentInfo = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_info",
			Help:      "Static information about the running agent",
		},
		[]string{"os", "arch", "version"},
	)

	// Up is a liveness gauge for the agent.
	Up = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 if the agent is running and healthy",
		},
	)
)

var (
	totalWrittenBytes atomic.Int64
	totalSavedBytes   atomic.Int64
	chunkTotalCount   atomic.Int64
	chunkReuseCount   atomic.Int64
)

func init() {
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	Registry.MustRegister(prometheus.NewGoCollector())
	Up.Set(1)
}

// SetAgentInfo publishes a single info metric for the running agent.
func SetAgentInfo(osName, arch, version string) {
	if osName == "" {
		osName = runtime.GOOS
	}
	if arch == "" {
		arch = runtime.GOARCH
	}
	if version == "" {
		version = "dev"
	}
	AgentInfo.WithLabelValues(osName, arch, version).Set(1)
}

// ObserveSnapshot records timing and counters for a snapshot run.
func ObserveSnapshot(start time.Time, trigger, outcome string) {
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	SnapshotDuration.WithLabelValues(trigger).Observe(elapsed)
	SnapshotTotal.WithLabelValues(outcome).Inc()
}

// ObserveChunk records a chunk outcome, its size, and updates the dedup ratio.
func ObserveChunk(outcome string, size int) {
	if outcome != "reuse" {
		outcome = "new"
	}
	count := chunkTotalCount.Add(1)
	if outcome == "reuse" {
		reused := chunkReuseCount.Add(1)
		if count > 0 {
			ChunkDedupRatio.Set(float64(reused) / float64(count))
		}
	}
	ChunkTotal.WithLabelValues(outcome).Inc()
	if size > 0 {
		ChunkSizeBytes.Observe(float64(size))
	}
}

// ObservePackRollover records a pack rotation and the bytes it held.
func ObservePackRollover(bytesWritten uint64) {
	PackRolloverTotal.Inc()
	PackBytesWritten.Add(float64(bytesWritten))
}

// ObserveArchiveSegment records a sealed archive stream segment.
func ObserveArchiveSegment(isLast bool) {
	kind := "full"
	if isLast {
		kind = "last"
	}
	ArchiveSegmentTotal.WithLabelValues(kind).Inc()
}

// ObserveStorageSavings updates storage delta counters and ratios.
func ObserveStorageSavings(originalBytes, storedBytes int64) {
	if originalBytes <= 0 || storedBytes < 0 {
		return
	}

	saved := originalBytes - storedBytes
	written := totalWrittenBytes.Add(originalBytes)

	if saved > 0 {
		totalSavedBytes.Add(saved)
		StorageSavedBytesTotal.Add(float64(saved))
	}

	if written > 0 {
		currentSaved := totalSavedBytes.Load()
		StorageSavedRatio.Set(float64(currentSaved) / float64(written))
	}
}

// SetCASSize reports the CAS store's on-disk footprint.
func SetCASSize(sizeBytes int64) {
	if sizeBytes < 0 {
		return
	}
	CASSizeBytes.Set(float64(sizeBytes))
}

// SetHistoryRuns reports the number of runs recorded in the history ledger.
func SetHistoryRuns(count int) {
	if count < 0 {
		count = 0
	}
	HistoryRunsTotal.Set(float64(count))
}

// SetUp toggles the liveness gauge.
func SetUp(healthy bool) {
	if healthy {
		Up.Set(1)
		return
	}
	Up.Set(0)
}

// Serve starts the /metrics HTTP endpoint on the provided address.
func Serve(ctx context.Context, addr string, logger *log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{Addr: addr, Handler: mux}

	idleClosed := make(chan struct{})
	go func() {
		defer close(idleClosed)
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Printf("[Metrics] Prometheus endpoint listening on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-idleClosed
		return nil
	}

	return err
}
