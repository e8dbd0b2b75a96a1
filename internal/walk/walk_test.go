package walk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rasendubi/bakpak-go/internal/manifest"
	"github.com/rasendubi/bakpak-go/pkg/cas"
	"github.com/rasendubi/bakpak-go/pkg/chunk"
	"github.com/rasendubi/bakpak-go/pkg/gear"
)

func testChunkConfig(t *testing.T) *chunk.Config {
	t.Helper()
	cfg, err := chunk.NewConfig(gear.NewDefaultConfig(), 256, 1024, 4096, 2)
	if err != nil {
		t.Fatalf("chunk.NewConfig: %v", err)
	}
	return cfg
}

func buildTree(t *testing.T, root string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "b.txt"), make([]byte, 8192), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkDirectoryProducesDeterministicRoot(t *testing.T) {
	src := t.TempDir()
	buildTree(t, src)

	store1, err := cas.NewDirectoryStore(filepath.Join(t.TempDir(), "cas1"))
	if err != nil {
		t.Fatalf("NewDirectoryStore: %v", err)
	}
	store2, err := cas.NewDirectoryStore(filepath.Join(t.TempDir(), "cas2"))
	if err != nil {
		t.Fatalf("NewDirectoryStore: %v", err)
	}

	w1 := New(store1, testChunkConfig(t), manifest.CodecNone)
	entry1, err := w1.Walk(src)
	if err != nil {
		t.Fatalf("Walk (1): %v", err)
	}

	w2 := New(store2, testChunkConfig(t), manifest.CodecNone)
	entry2, err := w2.Walk(src)
	if err != nil {
		t.Fatalf("Walk (2): %v", err)
	}

	if entry1.Content != entry2.Content {
		t.Fatalf("identical trees produced different roots: %x vs %x", entry1.Content, entry2.Content)
	}
	if entry1.Type != manifest.EntryDir {
		t.Fatalf("root entry type = %q, want directory", entry1.Type)
	}

	if len(w1.Leaves()) == 0 {
		t.Fatal("expected Walk to collect leaf content hashes")
	}
}

func TestWalkSingleFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "file.bin")
	if err := os.WriteFile(src, []byte("just one file"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := cas.NewDirectoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirectoryStore: %v", err)
	}

	w := New(store, testChunkConfig(t), manifest.CodecNone)
	entry, err := w.Walk(src)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if entry.Type != manifest.EntryFile {
		t.Fatalf("entry type = %q, want file", entry.Type)
	}

	stored, found, err := store.Get(entry.Content)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected the file's manifest blob to be stored")
	}
	decoded, err := manifest.Decode(stored, manifest.CodecNone)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Entries) == 0 {
		t.Fatal("expected at least one chunk entry in the file manifest")
	}
}

func TestWalkDeduplicatesRepeatedContent(t *testing.T) {
	src := t.TempDir()
	same := make([]byte, 2048)
	for i := range same {
		same[i] = 0x42
	}
	if err := os.WriteFile(filepath.Join(src, "one.bin"), same, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "two.bin"), same, 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := cas.NewDirectoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirectoryStore: %v", err)
	}

	w := New(store, testChunkConfig(t), manifest.CodecNone)
	if _, err := w.Walk(src); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	hashes, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	// Both files chunk to the same content, so the chunk blob appears once
	// in the store regardless of how many files reference it.
	seen := make(map[[32]byte]bool)
	for _, h := range hashes {
		if seen[h] {
			t.Fatalf("duplicate hash %x in store listing", h)
		}
		seen[h] = true
	}
}
