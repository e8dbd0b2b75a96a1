package cas

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"lukechampine.com/blake3"

	"github.com/rasendubi/bakpak-go/pkg/index"
	"github.com/rasendubi/bakpak-go/pkg/pack"
)

const (
	currentPackName = "current.tmp"
	globalIndexName = "index"
)

// packRef is the shared location of one pack file. Blobs written to the
// in-progress pack point at the same ref, so renaming the pack on finalize
// retargets every blob at once.
type packRef struct {
	path string
}

type blobLoc struct {
	ref    *packRef
	offset uint32
}

// PackedStore is a Store that appends blobs into size-bounded pack files
// instead of one file per blob. Finished packs are named by the content
// hash of the pack file itself, and a global index mapping every blob hash
// to (pack_id, offset) is rewritten on Close.
type PackedStore struct {
	baseDir     string
	targetBytes int64

	// OnRollover, if set, is called with the finalized pack's byte size
	// every time a pack fills up and a new one is started.
	OnRollover func(packBytes uint64)

	mu        sync.Mutex
	locations map[[32]byte]blobLoc
	global    *index.Writer

	// state of the in-progress pack; nil until the first Put needs one
	file       *os.File
	hasher     *blake3.Hasher
	pw         *pack.Writer
	currentRef *packRef
}

// NewPackedStore opens (creating if needed) a pack-backed store rooted at
// baseDir. Packs roll over once they would exceed targetBytes. An existing
// global index in baseDir is loaded, so blobs from previous runs
// deduplicate against the new one.
func NewPackedStore(baseDir string, targetBytes int64) (*PackedStore, error) {
	if targetBytes <= 0 {
		return nil, fmt.Errorf("cas: pack target size must be positive, got %d", targetBytes)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("cas: create pack dir: %w", err)
	}

	s := &PackedStore{
		baseDir:     baseDir,
		targetBytes: targetBytes,
		locations:   make(map[[32]byte]blobLoc),
		global:      index.New(),
	}
	if err := s.loadGlobalIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PackedStore) loadGlobalIndex() error {
	f, err := os.Open(filepath.Join(s.baseDir, globalIndexName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cas: open global index: %w", err)
	}
	defer f.Close()

	entries, err := index.Read(f)
	if err != nil {
		return fmt.Errorf("cas: read global index: %w", err)
	}

	refs := make(map[[32]byte]*packRef)
	for _, e := range entries {
		ref, ok := refs[e.PackID]
		if !ok {
			ref = &packRef{path: filepath.Join(s.baseDir, hex.EncodeToString(e.PackID[:]))}
			refs[e.PackID] = ref
		}
		s.locations[e.Hash] = blobLoc{ref: ref, offset: e.Offset}
	}
	s.global.Extend(entries)
	return nil
}

// List returns every hash the store knows about, including blobs loaded
// from previous runs' packs.
func (s *PackedStore) List() ([][32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hashes := make([][32]byte, 0, len(s.locations))
	for h := range s.locations {
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// Get reads the blob for hash out of whichever pack holds it.
func (s *PackedStore) Get(hash [32]byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.locations[hash]
	if !ok {
		return nil, false, nil
	}

	f := s.file
	if s.currentRef == nil || loc.ref != s.currentRef {
		var err error
		f, err = os.Open(loc.ref.path)
		if err != nil {
			return nil, false, fmt.Errorf("cas: open pack %s: %w", loc.ref.path, err)
		}
		defer f.Close()
	}

	var header [pack.HashSize + 4]byte
	if _, err := f.ReadAt(header[:], int64(loc.offset)); err != nil {
		return nil, false, fmt.Errorf("cas: read pack record %x: %w", hash, err)
	}
	if [32]byte(header[:pack.HashSize]) != hash {
		return nil, false, fmt.Errorf("cas: pack record hash mismatch for %x", hash)
	}
	size := binary.LittleEndian.Uint32(header[pack.HashSize:])

	data := make([]byte, size)
	if _, err := f.ReadAt(data, int64(loc.offset)+pack.HashSize+4); err != nil {
		return nil, false, fmt.Errorf("cas: read pack data %x: %w", hash, err)
	}
	return data, true, nil
}

// Put appends data to the in-progress pack, rolling to a fresh pack first
// if the write would push the current one past the target size. Storing
// the same bytes twice is a no-op the second time, whichever pack the
// first copy landed in.
func (s *PackedStore) Put(data []byte) ([32]byte, error) {
	hash := blake3.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[hash]; ok {
		return hash, nil
	}

	if s.pw != nil && s.pw.Len() > 0 &&
		int64(s.pw.Size()+pack.ItemSize(len(data))) > s.targetBytes {
		if err := s.finalizeCurrent(); err != nil {
			return hash, err
		}
	}
	if s.pw == nil {
		if err := s.startPack(); err != nil {
			return hash, err
		}
	}

	offset := s.pw.PayloadSize()
	if err := s.pw.Write(hash, data); err != nil {
		return hash, err
	}
	s.locations[hash] = blobLoc{ref: s.currentRef, offset: uint32(offset)}
	return hash, nil
}

// Close finalizes the in-progress pack and rewrites the global index. The
// store must not be used afterwards.
func (s *PackedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pw != nil {
		if err := s.finalizeCurrent(); err != nil {
			return err
		}
	}
	return s.writeGlobalIndex()
}

func (s *PackedStore) startPack() error {
	path := filepath.Join(s.baseDir, currentPackName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("cas: create pack: %w", err)
	}

	s.file = f
	s.hasher = blake3.New(32, nil)
	s.pw = pack.New(io.MultiWriter(f, s.hasher))
	s.currentRef = &packRef{path: path}
	return nil
}

// finalizeCurrent sorts and appends the in-progress pack's index, renames
// the file to the hex of its whole-file content hash (its pack_id), and
// folds its index entries into the global index.
func (s *PackedStore) finalizeCurrent() error {
	finalized, err := s.pw.Finalize()
	if err != nil {
		return err
	}
	packBytes := s.pw.Size()

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("cas: close pack: %w", err)
	}

	var packID [32]byte
	s.hasher.Sum(packID[:0])
	finalPath := filepath.Join(s.baseDir, hex.EncodeToString(packID[:]))
	if err := os.Rename(s.currentRef.path, finalPath); err != nil {
		return fmt.Errorf("cas: finalize pack: %w", err)
	}
	s.currentRef.path = finalPath

	s.global.ExtendFromPack(packID, finalized.Index)
	log.Printf("[Pack] finalized %x (%d blobs, %d bytes)", packID[:8], len(finalized.Index), packBytes)
	if s.OnRollover != nil {
		s.OnRollover(packBytes)
	}

	s.file = nil
	s.hasher = nil
	s.pw = nil
	s.currentRef = nil
	return nil
}

func (s *PackedStore) writeGlobalIndex() error {
	tmp := filepath.Join(s.baseDir, globalIndexName+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("cas: create global index: %w", err)
	}
	if err := s.global.Write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("cas: close global index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.baseDir, globalIndexName)); err != nil {
		return fmt.Errorf("cas: finalize global index: %w", err)
	}
	return nil
}
