// Package index builds the global index: a flat, sorted table mapping
// every content hash ever stored to the pack that holds it and the offset
// within that pack, merged across all packs with no header or trailer.
package index

import (
	"encoding/binary"
	"io"
	"runtime"
	"sort"
	"sync"

	"github.com/rasendubi/bakpak-go/pkg/bakerr"
	"github.com/rasendubi/bakpak-go/pkg/pack"
)

const entrySize = pack.HashSize + pack.HashSize + 4 // hash + pack_id + u32 offset

// Entry is one row of the global index.
type Entry struct {
	Hash   [pack.HashSize]byte
	PackID [pack.HashSize]byte
	Offset uint32
}

// Writer accumulates entries from any number of finalized packs and emits
// them, sorted by hash, as a single flat table.
type Writer struct {
	entries []Entry
}

// New starts an empty index writer.
func New() *Writer {
	return &Writer{}
}

// Size returns the byte size the index will occupy once written.
func (w *Writer) Size() uint64 {
	return uint64(len(w.entries)) * entrySize
}

// ExtendFromPack appends every entry from a pack's index, tagging each with
// the pack's own content hash as its pack_id.
func (w *Writer) ExtendFromPack(packID [pack.HashSize]byte, entries []pack.IndexEntry) {
	for _, e := range entries {
		w.entries = append(w.entries, Entry{Hash: e.Hash, PackID: packID, Offset: e.Offset})
	}
}

// Write sorts the accumulated entries by hash and writes them to w in
// order, with no separate header or trailer. Sorting runs over multiple
// goroutines once the entry count makes it worthwhile.
func (w *Writer) Write(out io.Writer) error {
	parallelSortByHash(w.entries)

	buf := make([]byte, 0, 64*entrySize)
	for _, e := range w.entries {
		var rec [entrySize]byte
		copy(rec[:pack.HashSize], e.Hash[:])
		copy(rec[pack.HashSize:2*pack.HashSize], e.PackID[:])
		binary.LittleEndian.PutUint32(rec[2*pack.HashSize:], e.Offset)

		buf = append(buf, rec[:]...)
		if len(buf) == cap(buf) {
			if _, err := out.Write(buf); err != nil {
				return bakerr.Wrap(bakerr.Io, err)
			}
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		if _, err := out.Write(buf); err != nil {
			return bakerr.Wrap(bakerr.Io, err)
		}
	}

	if f, ok := out.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return bakerr.Wrap(bakerr.Io, err)
		}
	}
	return nil
}

// Read parses a global index produced by Write. The format is
// self-delimiting only by total length, so the input must contain a whole
// number of entries.
func Read(r io.Reader) ([]Entry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, bakerr.Wrap(bakerr.Io, err)
	}
	if len(raw)%entrySize != 0 {
		return nil, bakerr.New(bakerr.InvalidInput, "global index is not a whole number of entries")
	}

	entries := make([]Entry, 0, len(raw)/entrySize)
	for off := 0; off < len(raw); off += entrySize {
		rec := raw[off : off+entrySize]
		var e Entry
		copy(e.Hash[:], rec[:pack.HashSize])
		copy(e.PackID[:], rec[pack.HashSize:2*pack.HashSize])
		e.Offset = binary.LittleEndian.Uint32(rec[2*pack.HashSize:])
		entries = append(entries, e)
	}
	return entries, nil
}

// Extend appends previously read entries, for rebuilding the global index
// across runs.
func (w *Writer) Extend(entries []Entry) {
	w.entries = append(w.entries, entries...)
}

// parallelSortByHash sorts entries by hash, splitting the work across
// goroutines for large inputs and merging the sorted shards, since the
// standard library has no built-in parallel sort.
func parallelSortByHash(entries []Entry) {
	const minParallelSize = 1 << 16
	workers := runtime.GOMAXPROCS(0)
	if len(entries) < minParallelSize || workers < 2 {
		sort.Slice(entries, func(i, j int) bool { return lessHash(entries[i].Hash, entries[j].Hash) })
		return
	}

	shardSize := (len(entries) + workers - 1) / workers
	var wg sync.WaitGroup
	shards := make([][]Entry, 0, workers)
	for start := 0; start < len(entries); start += shardSize {
		end := start + shardSize
		if end > len(entries) {
			end = len(entries)
		}
		shard := entries[start:end]
		shards = append(shards, shard)
		wg.Add(1)
		go func(s []Entry) {
			defer wg.Done()
			sort.Slice(s, func(i, j int) bool { return lessHash(s[i].Hash, s[j].Hash) })
		}(shard)
	}
	wg.Wait()

	merged := mergeShards(shards)
	copy(entries, merged)
}

func mergeShards(shards [][]Entry) []Entry {
	total := 0
	for _, s := range shards {
		total += len(s)
	}
	out := make([]Entry, 0, total)

	indices := make([]int, len(shards))
	for {
		best := -1
		for i, idx := range indices {
			if idx >= len(shards[i]) {
				continue
			}
			if best == -1 || lessHash(shards[i][idx].Hash, shards[best][indices[best]].Hash) {
				best = i
			}
		}
		if best == -1 {
			break
		}
		out = append(out, shards[best][indices[best]])
		indices[best]++
	}
	return out
}

func lessHash(a, b [pack.HashSize]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
