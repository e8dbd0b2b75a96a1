// Package pack implements append-only pack files: a sequence of
// (hash, size, data) records followed by a sorted index and a trailing
// little-endian index-size footer.
package pack

import (
	"encoding/binary"
	"io"
	"math"
	"sort"

	"github.com/rasendubi/bakpak-go/pkg/bakerr"
)

const (
	// HashSize is the width of the content hash stored in every record.
	HashSize = 32

	entryHeaderSize = HashSize + 4 // hash + u32 size
	indexEntrySize  = HashSize + 4 // hash + u32 offset
	footerSize      = 4            // u32 index size
)

// IndexEntry records where a blob landed within a pack, keyed by hash.
type IndexEntry struct {
	Hash   [HashSize]byte
	Offset uint32
}

// FinalizedPack is the result of Writer.Finalize: the underlying writer,
// flushed and positioned past the footer, and the pack's sorted index.
type FinalizedPack struct {
	Index []IndexEntry
}

// Writer accumulates (hash, data) records into an underlying io.Writer,
// tracking the size the finished pack will occupy on disk.
type Writer struct {
	w           io.Writer
	writtenSize uint64
	index       []IndexEntry
}

// New starts a pack writer over w.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write appends one (hash, data) record to the pack.
func (pw *Writer) Write(hash [HashSize]byte, data []byte) error {
	if len(data) > math.MaxUint32 {
		return bakerr.New(bakerr.InvalidInput, "pack record exceeds 4GiB")
	}
	if pw.writtenSize > math.MaxUint32 {
		return bakerr.New(bakerr.FileTooLarge, "pack offset exceeds 4GiB")
	}
	offset := uint32(pw.writtenSize)

	var header [entryHeaderSize]byte
	copy(header[:HashSize], hash[:])
	binary.LittleEndian.PutUint32(header[HashSize:], uint32(len(data)))

	if _, err := pw.w.Write(header[:]); err != nil {
		return bakerr.Wrap(bakerr.Io, err)
	}
	if _, err := pw.w.Write(data); err != nil {
		return bakerr.Wrap(bakerr.Io, err)
	}

	pw.writtenSize += uint64(entryHeaderSize + len(data))
	pw.index = append(pw.index, IndexEntry{Hash: hash, Offset: offset})
	return nil
}

// Size returns the total byte size the pack will occupy once finalized,
// including the as-yet-unwritten index and footer.
func (pw *Writer) Size() uint64 {
	return pw.writtenSize + pw.indexSize() + footerSize
}

// Len returns how many records have been written so far.
func (pw *Writer) Len() int { return len(pw.index) }

// PayloadSize returns the byte length of the records written so far, which
// is also the offset the next record's header will land at.
func (pw *Writer) PayloadSize() uint64 { return pw.writtenSize }

// ItemSize returns how much writing a dataSize-byte blob would add to the
// pack's final size: its record plus its index entry.
func ItemSize(dataSize int) uint64 {
	return uint64(entryHeaderSize+dataSize) + indexEntrySize
}

func (pw *Writer) indexSize() uint64 {
	return uint64(len(pw.index)) * indexEntrySize
}

// Finalize sorts the accumulated index by hash, writes it followed by the
// little-endian index-size footer, and flushes the underlying writer if it
// supports flushing.
func (pw *Writer) Finalize() (FinalizedPack, error) {
	sort.Slice(pw.index, func(i, j int) bool {
		return lessHash(pw.index[i].Hash, pw.index[j].Hash)
	})

	for _, entry := range pw.index {
		var buf [indexEntrySize]byte
		copy(buf[:HashSize], entry.Hash[:])
		binary.LittleEndian.PutUint32(buf[HashSize:], entry.Offset)
		if _, err := pw.w.Write(buf[:]); err != nil {
			return FinalizedPack{}, bakerr.Wrap(bakerr.Io, err)
		}
	}

	indexSize := pw.indexSize()
	if indexSize > math.MaxUint32 {
		return FinalizedPack{}, bakerr.New(bakerr.FileTooLarge, "pack index exceeds 4GiB")
	}
	var footer [footerSize]byte
	binary.LittleEndian.PutUint32(footer[:], uint32(indexSize))
	if _, err := pw.w.Write(footer[:]); err != nil {
		return FinalizedPack{}, bakerr.Wrap(bakerr.Io, err)
	}

	if f, ok := pw.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return FinalizedPack{}, bakerr.Wrap(bakerr.Io, err)
		}
	}

	return FinalizedPack{Index: pw.index}, nil
}

func lessHash(a, b [HashSize]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
