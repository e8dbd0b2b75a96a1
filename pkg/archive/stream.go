package archive

import (
	"crypto/ed25519"
	"encoding/binary"
	"io"
	"math"

	"github.com/awnumar/memguard"
	"lukechampine.com/blake3"

	"github.com/rasendubi/bakpak-go/pkg/aead"
	"github.com/rasendubi/bakpak-go/pkg/bakerr"
)

const (
	// SegmentSize is the plaintext size of every segment but the last.
	SegmentSize = 64 * 1024

	signatureSize = ed25519.SignatureSize // 64
	// FrameSize is the on-wire size of every sealed segment: plaintext +
	// signature, then the AEAD tag.
	FrameSize = SegmentSize + signatureSize + aead.TagSize

	signatureDomain = "bakpak segment\x00" // 15 bytes including the trailing NUL

	maxSegmentCount = uint64(1) << 63
)

// StreamWriter segments a byte stream into fixed-size plaintext blocks,
// signs and AEAD-seals each one, and writes the resulting frames to an
// underlying io.Writer. It is single-owner: the caller must not use it
// from more than one goroutine at a time.
type StreamWriter struct {
	w                    io.Writer
	payloadEncryptionKey [aead.KeySize]byte
	signingKey           ed25519.PrivateKey
	segmentCount         uint64

	buf []byte // accumulates plaintext for the current segment, up to SegmentSize

	pending    []byte // a sealed frame not yet fully flushed
	pendingPos int

	finished bool

	// OnSegment, if set, is called once per sealed segment, after the
	// frame has been queued for writing.
	OnSegment func(last bool)
}

// NewStreamWriter returns a StreamWriter that seals segments under key and
// signs them with signingKey, writing frames to w.
func NewStreamWriter(w io.Writer, key [aead.KeySize]byte, signingKey ed25519.PrivateKey) *StreamWriter {
	return &StreamWriter{
		w:                    w,
		payloadEncryptionKey: key,
		signingKey:           append(ed25519.PrivateKey(nil), signingKey...),
		buf:                  make([]byte, 0, SegmentSize),
	}
}

// Destroy wipes the writer's secrets. Call after Finish (or on abort
// without calling Finish) discarding any partially written output.
func (s *StreamWriter) Destroy() {
	memguard.WipeBytes(s.payloadEncryptionKey[:])
	memguard.WipeBytes(s.signingKey)
	memguard.WipeBytes(s.buf[:cap(s.buf)])
}

// Write buffers p into the current segment, sealing and flushing complete
// segments as they fill. It consumes at least one byte of p on success.
func (s *StreamWriter) Write(p []byte) (int, error) {
	if s.finished {
		return 0, bakerr.New(bakerr.InvalidInput, "write after finish")
	}

	if err := s.drainPending(); err != nil {
		return 0, err
	}

	total := 0
	for len(p) > 0 {
		room := SegmentSize - len(s.buf)
		n := len(p)
		if n > room {
			n = room
		}
		s.buf = append(s.buf, p[:n]...)
		p = p[n:]
		total += n

		if len(s.buf) == SegmentSize {
			// A frame stuck from an earlier failed flush must drain before
			// sealing can reuse the pending slot.
			if err := s.drainPending(); err != nil {
				return total, err
			}
			if err := s.sealAndQueue(false); err != nil {
				return total, err
			}
			// Best-effort flush: input already consumed into the sealed
			// frame stays accepted, so a failure here is deferred to the
			// next Write/Flush, which retries from the saved position.
			_ = s.drainPending()
		}
	}

	return total, nil
}

// Flush drains any pending frame and flushes the underlying writer, if it
// supports flushing.
func (s *StreamWriter) Flush() error {
	if err := s.drainPending(); err != nil {
		return err
	}
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Finish pads and seals the final segment (even if empty), writes it, and
// returns the underlying writer. The StreamWriter must not be used again.
func (s *StreamWriter) Finish() (io.Writer, error) {
	if s.finished {
		return s.w, nil
	}
	if err := s.drainPending(); err != nil {
		return nil, err
	}

	padSegment(&s.buf)
	if err := s.sealAndQueue(true); err != nil {
		return nil, err
	}
	if err := s.drainPending(); err != nil {
		return nil, err
	}

	s.finished = true
	return s.w, nil
}

// drainPending flushes any previously sealed frame the underlying writer
// could not fully accept, retrying from the saved position.
func (s *StreamWriter) drainPending() error {
	for s.pendingPos < len(s.pending) {
		n, err := s.w.Write(s.pending[s.pendingPos:])
		if n == 0 && err == nil {
			return bakerr.New(bakerr.Io, "underlying writer accepted zero bytes")
		}
		s.pendingPos += n
		if err != nil {
			return bakerr.Wrap(bakerr.Io, err)
		}
	}
	s.pending = nil
	s.pendingPos = 0
	return nil
}

// sealAndQueue signs and encrypts the accumulated plaintext in s.buf
// (exactly SegmentSize bytes, or a padded final segment), queues the
// resulting frame in s.pending, and resets s.buf for the next segment.
func (s *StreamWriter) sealAndQueue(last bool) error {
	if s.segmentCount >= maxSegmentCount {
		return bakerr.New(bakerr.EncryptionError, "segment count exceeds the nonce's counter range")
	}

	nonce := segmentNonce(s.segmentCount, last)

	plainHash := blake3.Sum256(s.buf)
	sigBase := make([]byte, 0, len(signatureDomain)+aead.KeySize+aead.NonceSize+HashSize)
	sigBase = append(sigBase, signatureDomain...)
	sigBase = append(sigBase, s.payloadEncryptionKey[:]...)
	sigBase = append(sigBase, nonce[:]...)
	sigBase = append(sigBase, plainHash[:]...)

	signature := ed25519.Sign(s.signingKey, sigBase)

	frame := make([]byte, 0, FrameSize)
	frame = append(frame, s.buf...)
	frame = append(frame, signature...)

	cipher := aead.New(s.payloadEncryptionKey)
	tag, err := cipher.Seal(nonce, nil, frame)
	if err != nil {
		return err
	}
	frame = append(frame, tag[:]...)

	s.pending = frame
	s.pendingPos = 0
	s.buf = s.buf[:0]
	s.segmentCount++
	if s.OnSegment != nil {
		s.OnSegment(last)
	}
	return nil
}

// segmentNonce encodes the 12-byte nonce for a given segment index: the
// first 4 bytes are zero, the last 8 hold the little-endian segment
// counter with the high bit set when last is true.
func segmentNonce(segmentCount uint64, last bool) [aead.NonceSize]byte {
	n := segmentCount & (uint64(1)<<63 - 1)
	if last {
		n |= uint64(1) << 63
	}
	var nonce [aead.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:12], n)
	return nonce
}

// padSegment appends the self-describing padding trailer to buf so its
// length becomes exactly SegmentSize. buf must currently hold fewer than
// SegmentSize bytes.
func padSegment(buf *[]byte) {
	p := SegmentSize - len(*buf)
	if p <= 0 || p > SegmentSize {
		panic("padSegment: buffer not eligible for padding")
	}

	if p <= math.MaxUint8 {
		*buf = append(*buf, make([]byte, p-1)...)
		*buf = append(*buf, byte(p))
		return
	}

	*buf = append(*buf, make([]byte, p-3)...)
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(p))
	*buf = append(*buf, lenBuf[:]...)
	*buf = append(*buf, 0)
}

// unpadSegment recovers the plaintext length of a fully-padded SegmentSize
// buffer by reading its self-describing trailer, following the decoding
// rule in the padding scheme's design note.
func unpadSegment(buf []byte) (int, error) {
	if len(buf) != SegmentSize {
		return 0, bakerr.New(bakerr.InvalidInput, "padded segment must be exactly SegmentSize bytes")
	}
	terminator := buf[len(buf)-1]
	if terminator != 0 {
		p := int(terminator)
		return SegmentSize - p, nil
	}

	// Long form: the 16-bit field can't represent p == SegmentSize
	// (65536) directly, since to_pad is always >= 1 and the short form
	// already claims every value through 255, a stored field of 0 can
	// only mean the 16-bit value wrapped around from 65536.
	p := int(binary.LittleEndian.Uint16(buf[len(buf)-3 : len(buf)-1]))
	if p == 0 {
		p = SegmentSize
	}
	return SegmentSize - p, nil
}
