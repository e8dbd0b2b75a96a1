// Package cas implements a directory-backed content-addressable store: one
// file per blob, named by the lowercase hex of its BLAKE3 hash.
package cas

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
)

const compressionMagic = "BAKZ1"

// Store is the content-addressable storage surface every subsystem writes
// blobs through: chunk payloads, pack files, manifests.
type Store interface {
	// List returns every hash currently stored.
	List() ([][32]byte, error)
	// Get returns the bytes for hash, or (nil, false) if absent.
	Get(hash [32]byte) ([]byte, bool, error)
	// Put stores bytes and returns their content hash. Storing the same
	// bytes twice is a no-op the second time.
	Put(data []byte) ([32]byte, error)
}

// DirectoryStore is a filesystem-backed Store: each blob lives at
// base/<hex hash>, transparently zstd-compressed on disk.
type DirectoryStore struct {
	basePath string

	mu  sync.Mutex
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewDirectoryStore opens (creating if needed) a directory-backed store
// rooted at basePath.
func NewDirectoryStore(basePath string) (*DirectoryStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("cas: create base dir: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("cas: init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("cas: init zstd decoder: %w", err)
	}

	return &DirectoryStore{basePath: basePath, enc: enc, dec: dec}, nil
}

func (s *DirectoryStore) pathFor(hash [32]byte) string {
	return filepath.Join(s.basePath, hex.EncodeToString(hash[:]))
}

// List walks the store's directory, decoding every entry's filename back
// into a hash; entries that aren't valid hex-encoded hashes are skipped.
func (s *DirectoryStore) List() ([][32]byte, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("cas: list: %w", err)
	}

	var hashes [][32]byte
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		raw, err := hex.DecodeString(entry.Name())
		if err != nil || len(raw) != 32 {
			continue
		}
		var hash [32]byte
		copy(hash[:], raw)
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

// Get reads and decompresses the blob for hash.
func (s *DirectoryStore) Get(hash [32]byte) ([]byte, bool, error) {
	raw, err := os.ReadFile(s.pathFor(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cas: get %x: %w", hash, err)
	}

	data, err := s.decompress(raw)
	if err != nil {
		return nil, false, fmt.Errorf("cas: decompress %x: %w", hash, err)
	}
	return data, true, nil
}

// Put computes data's BLAKE3 hash and writes it, compressed, under that
// name. If the blob already exists on disk, the write is skipped.
func (s *DirectoryStore) Put(data []byte) ([32]byte, error) {
	hash := blake3.Sum256(data)
	path := s.pathFor(hash)

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	} else if !os.IsNotExist(err) {
		return hash, fmt.Errorf("cas: stat %x: %w", hash, err)
	}

	log.Printf("[CAS] storing new blob %x (%d bytes)", hash, len(data))

	compressed := s.compress(data)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return hash, fmt.Errorf("cas: write %x: %w", hash, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return hash, fmt.Errorf("cas: finalize %x: %w", hash, err)
	}
	return hash, nil
}

func (s *DirectoryStore) compress(data []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst := s.enc.EncodeAll(data, nil)
	return append([]byte(compressionMagic), dst...)
}

func (s *DirectoryStore) decompress(data []byte) ([]byte, error) {
	if len(data) < len(compressionMagic) || !bytes.Equal(data[:len(compressionMagic)], []byte(compressionMagic)) {
		return nil, fmt.Errorf("cas: missing compression magic")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dec.DecodeAll(data[len(compressionMagic):], nil)
}
