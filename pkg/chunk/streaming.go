package chunk

import (
	"bufio"
	"io"

	"lukechampine.com/blake3"
)

// ChunkRef captures the identifying information for a content-defined chunk.
type ChunkRef struct {
	Hash   [32]byte // BLAKE3 identity hash, used as the CAS key
	Offset uint64   // Byte offset within the file
	Length uint32   // Length of the chunk
}

// Chunk holds a chunk's byte data and reference metadata.
type Chunk struct {
	Ref  ChunkRef
	Data []byte
}

// Chunker performs content-defined chunking over a stream, cutting
// boundaries with the gear-hash state machine rather than a fixed size.
type Chunker struct {
	r      *bufio.Reader
	cfg    *Config
	state  *State
	offset uint64
	ended  bool
}

// NewChunker builds a streaming chunker over r using cfg.
func NewChunker(r io.Reader, cfg *Config) *Chunker {
	return &Chunker{
		r:     bufio.NewReaderSize(r, cfg.MaxSize),
		cfg:   cfg,
		state: NewState(cfg),
	}
}

// Next returns the next content-defined chunk, or io.EOF once the stream is
// exhausted. Chunk data accumulates in memory up to MaxSize bytes; callers
// streaming very large files should consume chunks as they arrive rather
// than collecting them all.
func (c *Chunker) Next() (Chunk, error) {
	if c.ended {
		return Chunk{}, io.EOF
	}

	var data []byte
	for {
		// Peek(1) forces a fill attempt so EOF and read errors surface even
		// when the buffer is currently empty; Buffered() then reports
		// everything the fill actually pulled in.
		_, peekErr := c.r.Peek(1)
		buf, _ := c.r.Peek(c.r.Buffered())

		if len(buf) == 0 {
			c.ended = true
			if peekErr != nil && peekErr != io.EOF {
				return Chunk{}, peekErr
			}
			if len(data) == 0 {
				return Chunk{}, io.EOF
			}
			return c.finish(data), nil
		}

		consumed, boundary := c.state.Update(buf)
		data = append(data, buf[:consumed]...)
		if _, discardErr := c.r.Discard(consumed); discardErr != nil {
			return Chunk{}, discardErr
		}

		if boundary {
			return c.finish(data), nil
		}
		// else: the whole buffer was consumed without a boundary; loop to
		// pull more input.
	}
}

func (c *Chunker) finish(data []byte) Chunk {
	ref := ChunkRef{
		Hash:   blake3.Sum256(data),
		Offset: c.offset,
		Length: uint32(len(data)),
	}
	c.offset += uint64(len(data))
	return Chunk{Ref: ref, Data: data}
}
