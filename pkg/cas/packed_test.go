package cas

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"lukechampine.com/blake3"

	"github.com/rasendubi/bakpak-go/pkg/index"
)

func TestPackedStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPackedStore(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewPackedStore: %v", err)
	}

	blobs := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	hashes := make([][32]byte, len(blobs))
	for i, b := range blobs {
		h, err := s.Put(b)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if h != blake3.Sum256(b) {
			t.Fatalf("Put returned wrong hash for blob %d", i)
		}
		hashes[i] = h
	}

	// Reads must work while the pack is still in progress.
	for i, h := range hashes {
		got, ok, err := s.Get(h)
		if err != nil || !ok {
			t.Fatalf("Get blob %d: ok=%v err=%v", i, ok, err)
		}
		if !bytes.Equal(got, blobs[i]) {
			t.Fatalf("Get blob %d returned wrong bytes", i)
		}
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Re-open: blobs must resolve through the global index into the
	// finalized pack file.
	s2, err := NewPackedStore(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewPackedStore (reopen): %v", err)
	}
	defer s2.Close()

	for i, h := range hashes {
		got, ok, err := s2.Get(h)
		if err != nil || !ok {
			t.Fatalf("Get after reopen, blob %d: ok=%v err=%v", i, ok, err)
		}
		if !bytes.Equal(got, blobs[i]) {
			t.Fatalf("Get after reopen, blob %d returned wrong bytes", i)
		}
	}

	list, err := s2.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != len(blobs) {
		t.Fatalf("List returned %d hashes, want %d", len(list), len(blobs))
	}
}

func TestPackedStorePutIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPackedStore(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewPackedStore: %v", err)
	}
	defer s.Close()

	h1, err := s.Put([]byte("same bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	h2, err := s.Put([]byte("same bytes"))
	if err != nil {
		t.Fatalf("Put (repeat): %v", err)
	}
	if h1 != h2 {
		t.Fatal("repeated Put returned different hashes")
	}
}

func TestPackedStoreRollsOver(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPackedStore(dir, 256)
	if err != nil {
		t.Fatalf("NewPackedStore: %v", err)
	}

	rollovers := 0
	s.OnRollover = func(uint64) { rollovers++ }

	// Each blob is 100 bytes plus record and index overhead, so a 256-byte
	// target fits one blob per pack.
	for i := 0; i < 3; i++ {
		data := bytes.Repeat([]byte{byte('a' + i)}, 100)
		if _, err := s.Put(data); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if rollovers != 3 {
		t.Fatalf("rollovers = %d, want 3", rollovers)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	packs := 0
	for _, e := range entries {
		if e.Name() == globalIndexName {
			continue
		}
		if _, err := hex.DecodeString(e.Name()); err == nil {
			packs++
		}
	}
	if packs != 3 {
		t.Fatalf("found %d pack files, want 3", packs)
	}
}

func TestPackedStoreGlobalIndexMatchesPacks(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPackedStore(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewPackedStore: %v", err)
	}

	want := map[[32]byte][]byte{}
	for _, b := range [][]byte{[]byte("x"), []byte("yy"), []byte("zzz")} {
		h, err := s.Put(b)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		want[h] = b
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, globalIndexName))
	if err != nil {
		t.Fatalf("open global index: %v", err)
	}
	defer f.Close()
	entries, err := index.Read(f)
	if err != nil {
		t.Fatalf("index.Read: %v", err)
	}
	if len(entries) != len(want) {
		t.Fatalf("global index has %d entries, want %d", len(entries), len(want))
	}

	// Every entry must resolve, by (pack_id, offset), to the bytes of the
	// blob it names, and the pack file must itself hash to its name.
	for _, e := range entries {
		packPath := filepath.Join(dir, hex.EncodeToString(e.PackID[:]))
		raw, err := os.ReadFile(packPath)
		if err != nil {
			t.Fatalf("read pack: %v", err)
		}
		if blake3.Sum256(raw) != e.PackID {
			t.Fatal("pack file content hash does not match its pack_id")
		}

		rec := raw[e.Offset:]
		var hash [32]byte
		copy(hash[:], rec[:32])
		if hash != e.Hash {
			t.Fatalf("record at offset %d has wrong hash", e.Offset)
		}
		size := binary.LittleEndian.Uint32(rec[32:36])
		if !bytes.Equal(rec[36:36+size], want[e.Hash]) {
			t.Fatalf("record bytes for %x do not match stored blob", e.Hash[:4])
		}
	}
}
