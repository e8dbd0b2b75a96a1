// Package history records a local, append-only ledger of snapshot runs:
// when each ran, what it was named, its integrity root, and how much data
// it moved. It is not part of the content-addressable data path — purely
// an operational record for humans and the CLI's `--name` lookups.
package history

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rasendubi/bakpak-go/pkg/bakerr"
)

const runPrefix = "run:"

// RunRecord is one completed (or failed) snapshot run.
type RunRecord struct {
	Name           string    `json:"name"`
	Timestamp      time.Time `json:"timestamp"`
	IntegrityRoot  string    `json:"integrity_root"`
	BytesOriginal  int64     `json:"bytes_original"`
	BytesStored    int64     `json:"bytes_stored"`
	ChunkCount     int       `json:"chunk_count"`
	Outcome        string    `json:"outcome"` // success | failure
	FailureMessage string    `json:"failure_message,omitempty"`
}

// Ledger is a Pebble-backed store of RunRecords.
type Ledger struct {
	db *pebble.DB
}

// Open opens (creating if necessary) the history ledger at path.
func Open(path string) (*Ledger, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, bakerr.Wrap(bakerr.Io, err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying Pebble handle.
func (l *Ledger) Close() error {
	if err := l.db.Close(); err != nil {
		return bakerr.Wrap(bakerr.Io, err)
	}
	return nil
}

// RecordRun appends rec to the ledger, keyed by its timestamp so ledger
// scans come back in chronological order.
func (l *Ledger) RecordRun(rec RunRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return bakerr.Wrap(bakerr.InvalidInput, err)
	}

	key := runKey(rec.Timestamp, rec.Name)
	if err := l.db.Set(key, payload, pebble.Sync); err != nil {
		return bakerr.Wrap(bakerr.Io, err)
	}
	return nil
}

// ListRuns returns every recorded run in chronological order.
func (l *Ledger) ListRuns() ([]RunRecord, error) {
	upper := append([]byte(runPrefix), 0xff)
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(runPrefix),
		UpperBound: upper,
	})
	if err != nil {
		return nil, bakerr.Wrap(bakerr.Io, err)
	}
	defer iter.Close()

	var runs []RunRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec RunRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, bakerr.Wrap(bakerr.InvalidInput, err)
		}
		runs = append(runs, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, bakerr.Wrap(bakerr.Io, err)
	}
	return runs, nil
}

// LatestRun returns the most recently recorded run, if any.
func (l *Ledger) LatestRun() (RunRecord, bool, error) {
	runs, err := l.ListRuns()
	if err != nil {
		return RunRecord{}, false, err
	}
	if len(runs) == 0 {
		return RunRecord{}, false, nil
	}
	return runs[len(runs)-1], true, nil
}

func runKey(ts time.Time, name string) []byte {
	suffix := hex.EncodeToString([]byte(name))
	return []byte(fmt.Sprintf("%s%020d:%s", runPrefix, ts.UnixNano(), suffix))
}
