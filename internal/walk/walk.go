// Package walk drives a single snapshot pass: it recursively visits a
// directory tree, runs each file through the content-defined chunker, and
// assembles directory manifests bottom-up, storing every blob it produces
// in a content-addressable store along the way.
package walk

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"lukechampine.com/blake3"

	"github.com/rasendubi/bakpak-go/internal/hotpath"
	"github.com/rasendubi/bakpak-go/internal/manifest"
	"github.com/rasendubi/bakpak-go/internal/metrics"
	"github.com/rasendubi/bakpak-go/internal/platform"
	"github.com/rasendubi/bakpak-go/pkg/bakerr"
	"github.com/rasendubi/bakpak-go/pkg/cas"
	"github.com/rasendubi/bakpak-go/pkg/chunk"
)

// Walker ties the chunker, a content store, and the manifest builder
// together for one snapshot run.
type Walker struct {
	Store       cas.Store
	ChunkConfig *chunk.Config
	Codec       manifest.Codec
	HotPath     *hotpath.Profiler

	// leaves collects every content hash produced this run, in visit
	// order, so the caller can build an integrity tree over them.
	leaves [][32]byte

	bytesOriginal int64
	bytesStored   int64
}

// New builds a Walker bound to store and chunkCfg.
func New(store cas.Store, chunkCfg *chunk.Config, codec manifest.Codec) *Walker {
	return &Walker{Store: store, ChunkConfig: chunkCfg, Codec: codec}
}

// Leaves returns every content hash produced by the most recent Walk call.
func (w *Walker) Leaves() [][32]byte {
	return append([][32]byte(nil), w.leaves...)
}

// BytesOriginal returns how many plaintext bytes the walker has chunked.
func (w *Walker) BytesOriginal() int64 { return w.bytesOriginal }

// BytesStored returns how many of those bytes were new to the store, plus
// the manifest blobs the walk produced.
func (w *Walker) BytesStored() int64 { return w.bytesStored }

// Walk processes path (a file or directory) and returns the manifest entry
// describing it, recursing into subdirectories.
func (w *Walker) Walk(path string) (manifest.Entry, error) {
	path = platform.LongPathname(path)
	info, err := os.Lstat(path)
	if err != nil {
		return manifest.Entry{}, bakerr.Wrap(bakerr.Io, err)
	}

	if err := EnsureReadable(path, info); err != nil {
		return manifest.Entry{}, bakerr.New(bakerr.InvalidInput, err.Error())
	}

	if w.HotPath != nil {
		w.HotPath.Record(path)
	}

	var entry manifest.Entry
	switch {
	case info.Mode().IsRegular():
		entry, err = w.walkFile(path)
	case info.IsDir():
		entry, err = w.walkDir(path)
	default:
		return manifest.Entry{}, bakerr.New(bakerr.InvalidInput, fmt.Sprintf("%s is neither a regular file nor a directory", path))
	}
	if err != nil {
		return manifest.Entry{}, err
	}

	uid, gid := fileOwner(info)
	entry.Mode = uint32(info.Mode().Perm())
	entry.UID = uid
	entry.GID = gid
	entry.MTime = info.ModTime().Unix()
	return entry, nil
}

// storeBlob writes data to the content store, reporting whether the store
// had to take a new physical copy.
func (w *Walker) storeBlob(data []byte) ([32]byte, bool, error) {
	hash := blake3.Sum256(data)
	_, alreadyStored, err := w.Store.Get(hash)
	if err != nil {
		return hash, false, bakerr.Wrap(bakerr.Io, err)
	}
	if _, err := w.Store.Put(data); err != nil {
		return hash, false, bakerr.Wrap(bakerr.Io, err)
	}
	if !alreadyStored {
		w.bytesStored += int64(len(data))
	}
	return hash, !alreadyStored, nil
}

func (w *Walker) walkFile(path string) (manifest.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return manifest.Entry{}, bakerr.Wrap(bakerr.Io, err)
	}
	defer f.Close()

	chunker := chunk.NewChunker(f, w.ChunkConfig)
	dir := manifest.NewDirectory()

	index := 0
	for {
		c, chunkErr := chunker.Next()
		if chunkErr == io.EOF {
			break
		}
		if chunkErr != nil {
			return manifest.Entry{}, bakerr.Wrap(bakerr.Io, chunkErr)
		}

		_, newlyStored, storeErr := w.storeBlob(c.Data)
		if storeErr != nil {
			return manifest.Entry{}, storeErr
		}
		w.bytesOriginal += int64(len(c.Data))
		metrics.ObserveChunk(outcomeFor(newlyStored), len(c.Data))

		name := fmt.Sprintf("%010d", index)
		dir.Add(name, manifest.Entry{Type: manifest.EntryFile, Content: c.Ref.Hash})
		w.leaves = append(w.leaves, c.Ref.Hash)
		index++
	}

	blob, err := dir.Marshal(w.Codec)
	if err != nil {
		return manifest.Entry{}, err
	}
	hash, _, err := w.storeBlob(blob)
	if err != nil {
		return manifest.Entry{}, err
	}
	w.leaves = append(w.leaves, hash)

	return manifest.Entry{Type: manifest.EntryFile, Content: hash}, nil
}

func (w *Walker) walkDir(path string) (manifest.Entry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return manifest.Entry{}, bakerr.Wrap(bakerr.Io, err)
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)

	dir := manifest.NewDirectory()
	for _, name := range names {
		childEntry, err := w.Walk(filepath.Join(path, name))
		if err != nil {
			return manifest.Entry{}, err
		}
		dir.Add(name, childEntry)
	}

	blob, err := dir.Marshal(w.Codec)
	if err != nil {
		return manifest.Entry{}, err
	}
	hash, _, err := w.storeBlob(blob)
	if err != nil {
		return manifest.Entry{}, err
	}
	w.leaves = append(w.leaves, hash)

	log.Printf("[Walk] processed directory %s (%d entries)", path, len(names))
	return manifest.Entry{Type: manifest.EntryDir, Content: hash}, nil
}

func outcomeFor(newlyStored bool) string {
	if newlyStored {
		return "new"
	}
	return "reuse"
}
