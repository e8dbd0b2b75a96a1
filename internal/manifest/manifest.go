// Package manifest builds the directory manifest a snapshot records: a
// recursive description of a tree's entries keyed by name, each pointing at
// the content hash of either a file's chunk stream or a nested manifest
// blob, serialized deterministically so identical trees produce identical
// manifest bytes.
package manifest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/rasendubi/bakpak-go/pkg/bakerr"
)

// EntryType distinguishes a file entry from a nested directory entry.
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "directory"
)

// Entry describes one child of a directory: what it is and the content
// hash that identifies its data (a chunk manifest for files, another
// directory manifest for subdirectories).
type Entry struct {
	Type    EntryType `json:"type"`
	Content [32]byte  `json:"-"`

	Mode  uint32 `json:"mode,omitempty"`
	UID   uint32 `json:"uid,omitempty"`
	GID   uint32 `json:"gid,omitempty"`
	MTime int64  `json:"mtime,omitempty"`
}

// entryWire is Entry's JSON-visible shape; Content is hex-encoded through
// MarshalJSON/UnmarshalJSON so the on-disk format matches the hash's
// canonical string form instead of a base64 byte array.
type entryWire struct {
	Type    EntryType `json:"type"`
	Content string    `json:"content"`
	Mode    uint32    `json:"mode,omitempty"`
	UID     uint32    `json:"uid,omitempty"`
	GID     uint32    `json:"gid,omitempty"`
	MTime   int64     `json:"mtime,omitempty"`
}

// MarshalJSON renders Content as lowercase hex.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryWire{
		Type:    e.Type,
		Content: fmt.Sprintf("%x", e.Content),
		Mode:    e.Mode,
		UID:     e.UID,
		GID:     e.GID,
		MTime:   e.MTime,
	})
}

// UnmarshalJSON parses an entryWire back into an Entry.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w entryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	raw, err := hex.DecodeString(w.Content)
	if err != nil {
		return bakerr.Wrap(bakerr.InvalidInput, err)
	}
	if len(raw) != 32 {
		return bakerr.New(bakerr.InvalidInput, fmt.Sprintf("content hash is %d bytes, want 32", len(raw)))
	}
	var content [32]byte
	copy(content[:], raw)
	*e = Entry{Type: w.Type, Content: content, Mode: w.Mode, UID: w.UID, GID: w.GID, MTime: w.MTime}
	return nil
}

// Directory is a directory manifest: the sorted set of a directory's
// immediate children. encoding/json marshals map keys in sorted order, so
// two Directory values with the same entries always produce byte-identical
// JSON regardless of walk order.
type Directory struct {
	Entries   map[string]Entry `json:"entries"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewDirectory starts an empty directory manifest.
func NewDirectory() *Directory {
	return &Directory{Entries: make(map[string]Entry)}
}

// Add records a child entry under name.
func (d *Directory) Add(name string, entry Entry) {
	d.Entries[name] = entry
}

// Codec selects the compression applied to a marshalled manifest blob
// before it's handed to the content store.
type Codec string

const (
	CodecNone Codec = "none"
	CodecZstd Codec = "zstd"
	CodecXZ   Codec = "xz"
)

// Marshal serializes d to deterministic JSON and compresses it with codec.
func (d *Directory) Marshal(codec Codec) ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, bakerr.Wrap(bakerr.InvalidInput, err)
	}
	return compress(raw, codec)
}

func compress(raw []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone, "":
		return raw, nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, bakerr.Wrap(bakerr.Io, err)
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	case CodecXZ:
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, bakerr.Wrap(bakerr.Io, err)
		}
		if _, err := w.Write(raw); err != nil {
			return nil, bakerr.Wrap(bakerr.Io, err)
		}
		if err := w.Close(); err != nil {
			return nil, bakerr.Wrap(bakerr.Io, err)
		}
		return buf.Bytes(), nil
	default:
		return nil, bakerr.New(bakerr.InvalidInput, fmt.Sprintf("unknown manifest codec %q", codec))
	}
}

// Decode decompresses a manifest blob produced by Marshal and parses it.
func Decode(blob []byte, codec Codec) (*Directory, error) {
	raw, err := decompress(blob, codec)
	if err != nil {
		return nil, err
	}
	var d Directory
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, bakerr.Wrap(bakerr.InvalidInput, err)
	}
	return &d, nil
}

func decompress(blob []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone, "":
		return blob, nil
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, bakerr.Wrap(bakerr.Io, err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(blob, nil)
		if err != nil {
			return nil, bakerr.Wrap(bakerr.Io, err)
		}
		return out, nil
	case CodecXZ:
		r, err := xz.NewReader(bytes.NewReader(blob))
		if err != nil {
			return nil, bakerr.Wrap(bakerr.Io, err)
		}
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, bakerr.Wrap(bakerr.Io, err)
		}
		return out, nil
	default:
		return nil, bakerr.New(bakerr.InvalidInput, fmt.Sprintf("unknown manifest codec %q", codec))
	}
}
