// Command bakpak snapshots one or more filesystem paths into a
// content-addressed, deduplicating store and records an integrity root for
// each run.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/rasendubi/bakpak-go/internal/cid"
	"github.com/rasendubi/bakpak-go/internal/history"
	"github.com/rasendubi/bakpak-go/internal/hotpath"
	"github.com/rasendubi/bakpak-go/internal/integrity"
	"github.com/rasendubi/bakpak-go/internal/manifest"
	"github.com/rasendubi/bakpak-go/internal/metrics"
	"github.com/rasendubi/bakpak-go/internal/walk"
	"github.com/rasendubi/bakpak-go/pkg/cas"
	"github.com/rasendubi/bakpak-go/pkg/chunk"
	"github.com/rasendubi/bakpak-go/pkg/config"
	"github.com/rasendubi/bakpak-go/pkg/gear"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

var debugEnabled bool

func logDebug(format string, args ...interface{}) {
	if !debugEnabled {
		return
	}
	log.Printf("[Debug] "+format, args...)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "bakpak",
		Short: "bakpak - content-defined deduplicating backup",
		Long: `bakpak snapshots one or more filesystem paths into a remote directory.
Content is split by a rolling-hash chunker, stored as content-addressed
blobs, and a Merkle root over every stored hash is recorded for the run.`,
	}
	rootCmd.PersistentFlags().BoolVar(&debugEnabled, "debug", false, "enable verbose debug logging")
	rootCmd.PersistentFlags().String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(newSnapshotCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newSealCommand())
	rootCmd.AddCommand(newKeygenCommand())

	metrics.SetAgentInfo("", "", version)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newSnapshotCommand() *cobra.Command {
	var name, remote string

	cmd := &cobra.Command{
		Use:   "snapshot [flags] <path>...",
		Short: "back up one or more paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, paths []string) error {
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			return runSnapshot(cmd.Context(), name, remote, paths, metricsAddr)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "snapshot name")
	cmd.Flags().StringVarP(&remote, "remote", "r", "", "directory to store the snapshot in")
	cmd.MarkFlagRequired("remote")

	return cmd
}

func newWatchCommand() *cobra.Command {
	var remote string

	cmd := &cobra.Command{
		Use:   "watch [flags] <path>...",
		Short: "re-snapshot a set of paths whenever they change",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, paths []string) error {
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			return runWatch(cmd.Context(), remote, paths, metricsAddr)
		},
	}
	cmd.Flags().StringVarP(&remote, "remote", "r", "", "directory to store snapshots in")
	cmd.MarkFlagRequired("remote")

	return cmd
}

// snapshotRunner ties together everything a single snapshot pass needs:
// the chunker, content store, manifest codec, history ledger, and hot-path
// profiler.
type snapshotRunner struct {
	cfg        *config.BakConfig
	store      cas.Store
	storeClose func() error
	ledger     *history.Ledger
	chunkCfg   *chunk.Config
}

func newSnapshotRunner(remote string) (*snapshotRunner, error) {
	cfg := config.LoadFromEnv()
	if remote != "" {
		cfg.StateDir = remote
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var (
		store      cas.Store
		storeClose func() error
		err        error
	)
	switch cfg.StorageMode {
	case config.StoragePacked:
		packed, perr := cas.NewPackedStore(cfg.PackPath(), cfg.PackTargetBytes)
		if perr != nil {
			return nil, fmt.Errorf("opening packed store: %w", perr)
		}
		packed.OnRollover = metrics.ObservePackRollover
		store, storeClose = packed, packed.Close
	default:
		store, err = cas.NewDirectoryStore(cfg.CASPath())
		if err != nil {
			return nil, fmt.Errorf("opening content store: %w", err)
		}
	}

	ledger, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("opening run history: %w", err)
	}

	chunkCfg, err := chunk.NewConfig(
		gear.NewDefaultConfig(),
		cfg.ChunkMinBytes, cfg.ChunkAvgBytes, cfg.ChunkMaxBytes, cfg.ChunkNormalizationBits,
	)
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("building chunker configuration: %w", err)
	}

	return &snapshotRunner{cfg: cfg, store: store, storeClose: storeClose, ledger: ledger, chunkCfg: chunkCfg}, nil
}

func (r *snapshotRunner) Close() error {
	var firstErr error
	if r.storeClose != nil {
		firstErr = r.storeClose()
	}
	if err := r.ledger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Run walks every path, builds an integrity root over everything stored,
// and records the outcome in the history ledger. It logs a human-facing
// content ID for the run's root on success.
func (r *snapshotRunner) Run(name, trigger string, paths []string) error {
	start := time.Now()

	profiler := hotpath.New(r.cfg.HotPath)
	w := walk.New(r.store, r.chunkCfg, manifest.CodecZstd)
	w.HotPath = profiler

	root := manifest.NewDirectory()
	for _, path := range paths {
		entry, err := w.Walk(path)
		if err != nil {
			r.recordFailure(name, trigger, start, err)
			return fmt.Errorf("walking %s: %w", path, err)
		}
		root.Add(path, entry)
	}
	if hot := profiler.Hot(); len(hot) > 0 {
		logDebug("busiest paths this run: %v", hot)
	}

	rootBlob, err := root.Marshal(manifest.CodecZstd)
	if err != nil {
		r.recordFailure(name, trigger, start, err)
		return fmt.Errorf("marshaling snapshot manifest: %w", err)
	}
	rootHash, err := r.store.Put(rootBlob)
	if err != nil {
		r.recordFailure(name, trigger, start, err)
		return fmt.Errorf("storing snapshot manifest: %w", err)
	}

	leaves := append(w.Leaves(), rootHash)
	tree, err := integrity.Build(leaves)
	if err != nil {
		r.recordFailure(name, trigger, start, err)
		return fmt.Errorf("building integrity tree: %w", err)
	}

	id, err := cid.Encode(tree.Root())
	if err != nil {
		return fmt.Errorf("encoding content id: %w", err)
	}

	rec := history.RunRecord{
		Name:          name,
		Timestamp:     start,
		IntegrityRoot: id,
		BytesOriginal: w.BytesOriginal(),
		BytesStored:   w.BytesStored(),
		ChunkCount:    len(leaves),
		Outcome:       "success",
	}
	if err := r.ledger.RecordRun(rec); err != nil {
		return fmt.Errorf("recording run history: %w", err)
	}

	metrics.ObserveSnapshot(start, trigger, "success")
	metrics.ObserveStorageSavings(w.BytesOriginal(), w.BytesStored())
	if runs, err := r.ledger.ListRuns(); err == nil {
		metrics.SetHistoryRuns(len(runs))
	}
	storagePath := r.cfg.CASPath()
	if r.cfg.StorageMode == config.StoragePacked {
		storagePath = r.cfg.PackPath()
	}
	if size, err := dirSize(storagePath); err == nil {
		metrics.SetCASSize(size)
	}
	log.Printf("[Snapshot] stored %d blobs, root=%s, elapsed=%s", len(leaves), id, time.Since(start))
	return nil
}

// dirSize totals the regular-file bytes under root.
func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

func (r *snapshotRunner) recordFailure(name, trigger string, start time.Time, cause error) {
	metrics.ObserveSnapshot(start, trigger, "failure")
	rec := history.RunRecord{
		Name:           name,
		Timestamp:      start,
		Outcome:        "failure",
		FailureMessage: cause.Error(),
	}
	if err := r.ledger.RecordRun(rec); err != nil {
		log.Printf("[Snapshot] failed to record failure in history: %v", err)
	}
}

func runSnapshot(ctx context.Context, name, remote string, paths []string, metricsAddr string) error {
	if metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, metricsAddr, log.Default()); err != nil {
				log.Printf("[Metrics] server exited: %v", err)
			}
		}()
	}

	runner, err := newSnapshotRunner(remote)
	if err != nil {
		return err
	}
	defer runner.Close()

	if name == "" {
		name = time.Now().UTC().Format("20060102T150405Z")
	}
	return runner.Run(name, "cli", paths)
}

func runWatch(ctx context.Context, remote string, paths []string, metricsAddr string) error {
	if metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, metricsAddr, log.Default()); err != nil {
				log.Printf("[Metrics] server exited: %v", err)
			}
		}()
	}

	runner, err := newSnapshotRunner(remote)
	if err != nil {
		return err
	}
	defer runner.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	for _, p := range paths {
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("[Watch] watching %d path(s) for changes", len(paths))
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			logDebug("[Watch] event %s for %s", event.Op, event.Name)
			if !pending {
				pending = true
				debounce.Reset(500 * time.Millisecond)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[Watch] error: %v", err)
		case <-debounce.C:
			pending = false
			name := time.Now().UTC().Format("20060102T150405Z")
			if err := runner.Run(name, "watch", paths); err != nil {
				log.Printf("[Watch] snapshot failed: %v", err)
			}
		}
	}
}
