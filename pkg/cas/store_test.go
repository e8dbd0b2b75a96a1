package cas

import (
	"testing"

	"lukechampine.com/blake3"
)

func TestDirectoryStorePutAndGet(t *testing.T) {
	store, err := NewDirectoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirectoryStore() error = %v", err)
	}

	data := []byte("hello world")
	hash, err := store.Put(data)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	want := blake3.Sum256(data)
	if hash != want {
		t.Fatalf("Put() hash = %x, want %x", hash, want)
	}

	got, ok, err := store.Get(hash)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() = false for stored hash")
	}
	if string(got) != string(data) {
		t.Errorf("Get() = %q, want %q", got, data)
	}
}

func TestDirectoryStoreDeduplicates(t *testing.T) {
	store, err := NewDirectoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirectoryStore() error = %v", err)
	}

	data := []byte("duplicate data")
	hash1, err := store.Put(data)
	if err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	hash2, err := store.Put(data)
	if err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	if hash1 != hash2 {
		t.Errorf("hashes differ across identical Put calls: %x vs %x", hash1, hash2)
	}

	hashes, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(hashes) != 1 {
		t.Errorf("List() returned %d hashes, want 1", len(hashes))
	}
}

func TestDirectoryStoreGetMissing(t *testing.T) {
	store, err := NewDirectoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirectoryStore() error = %v", err)
	}

	var missing [32]byte
	_, ok, err := store.Get(missing)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() = true for a hash never stored")
	}
}

func TestDirectoryStoreList(t *testing.T) {
	store, err := NewDirectoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirectoryStore() error = %v", err)
	}

	want := map[[32]byte]bool{}
	for _, s := range []string{"a", "b", "c"} {
		h, err := store.Put([]byte(s))
		if err != nil {
			t.Fatalf("Put(%q) error = %v", s, err)
		}
		want[h] = true
	}

	hashes, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(hashes) != len(want) {
		t.Fatalf("List() returned %d hashes, want %d", len(hashes), len(want))
	}
	for _, h := range hashes {
		if !want[h] {
			t.Errorf("List() returned unexpected hash %x", h)
		}
	}
}
