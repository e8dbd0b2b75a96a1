package index

import (
	"bytes"
	"sort"
	"testing"

	"github.com/rasendubi/bakpak-go/pkg/pack"
	"lukechampine.com/blake3"
)

func TestWriterSortsAndSize(t *testing.T) {
	w := New()

	var packA, packB [pack.HashSize]byte
	packA[0] = 0xaa
	packB[0] = 0xbb

	w.ExtendFromPack(packA, []pack.IndexEntry{
		{Hash: blake3.Sum256([]byte("z")), Offset: 10},
		{Hash: blake3.Sum256([]byte("a")), Offset: 20},
	})
	w.ExtendFromPack(packB, []pack.IndexEntry{
		{Hash: blake3.Sum256([]byte("m")), Offset: 30},
	})

	wantSize := w.Size()

	var buf bytes.Buffer
	if err := w.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if uint64(buf.Len()) != wantSize {
		t.Fatalf("wrote %d bytes, Size() reported %d", buf.Len(), wantSize)
	}
	if buf.Len()%entrySize != 0 {
		t.Fatalf("output length %d is not a multiple of entry size %d", buf.Len(), entrySize)
	}

	entries := decodeEntries(t, buf.Bytes())
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if lessHash(entries[i].Hash, entries[i-1].Hash) {
			t.Fatalf("entries not sorted by hash at position %d", i)
		}
	}
}

func TestParallelSortMatchesSequentialOnLargeInput(t *testing.T) {
	const n = 1<<16 + 100 // exceeds minParallelSize to exercise the sharded path
	entries := make([]Entry, n)
	for i := range entries {
		h := blake3.Sum256([]byte{byte(i), byte(i >> 8), byte(i >> 16)})
		entries[i] = Entry{Hash: h, Offset: uint32(i)}
	}

	sequential := append([]Entry(nil), entries...)
	sort.Slice(sequential, func(i, j int) bool { return lessHash(sequential[i].Hash, sequential[j].Hash) })

	parallel := append([]Entry(nil), entries...)
	parallelSortByHash(parallel)

	for i := range sequential {
		if sequential[i].Hash != parallel[i].Hash {
			t.Fatalf("mismatch at index %d", i)
		}
	}
}

func decodeEntries(t *testing.T, data []byte) []Entry {
	t.Helper()
	var out []Entry
	for len(data) > 0 {
		var e Entry
		copy(e.Hash[:], data[:pack.HashSize])
		copy(e.PackID[:], data[pack.HashSize:2*pack.HashSize])
		out = append(out, e)
		data = data[entrySize:]
	}
	return out
}
