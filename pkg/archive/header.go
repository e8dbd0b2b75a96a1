// Package archive builds the signcryption container described by the
// on-disk archive format: a header that wraps a per-archive file key for
// one or more X25519 recipients, followed by a stream of signed,
// AEAD-sealed segments (see stream.go).
package archive

import (
	"crypto/ed25519"
	"encoding/binary"
	"io"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/curve25519"
	"lukechampine.com/blake3"

	"github.com/rasendubi/bakpak-go/pkg/aead"
	"github.com/rasendubi/bakpak-go/pkg/bakerr"
)

const (
	// HashSize is the width of every fixed-size field in the header
	// (hashes, keys, tags).
	HashSize = 32

	// Magic identifies an archive container.
	Magic = "bak0"

	senderEncryptionKeyCtx = "bakpak.rasen.dev 2025-11-01 sender encryption key"
	headerMACKeyCtx        = "bakpak.rasen.dev 2025-11-01 header mac key"
	payloadEncryptionCtx   = "bakpak.rasen.dev 2025-11-01 payload encryption"
	recipientMACKeyCtx     = "bakpak.rasen.dev 2025-11-01 recipient mac key"
	wrapKeyCtx             = "bakpak.rasen.dev 2025-11-01 wrap key"
	maxRecipients          = 1<<32 - 1
	recipientEntrySize     = HashSize + HashSize + HashSize // recipient_id || wrapped_file_key || wrap_tag
	senderBlockSize        = HashSize + HashSize            // sender_id || sender_id_tag
)

var zeroNonce [aead.NonceSize]byte

// HeaderSize returns the exact byte length of a header built for n
// recipients: 4 (magic) + 4 (count) + 32 (ephemeral share) +
// n*(32+32+32) + 32 (sender_id) + 32 (sender_id_tag) + 32 (header_mac).
func HeaderSize(n int) int {
	return 4 + 4 + HashSize + n*recipientEntrySize + senderBlockSize + HashSize
}

// Header is the result of building an archive header: the wire bytes ready
// to write, plus the two secrets the stream writer needs for the payload
// that follows.
type Header struct {
	// Bytes is the complete, already-MAC'd header.
	Bytes []byte

	// PayloadEncryptionKey seals every segment of the payload that
	// follows this header.
	PayloadEncryptionKey [aead.KeySize]byte

	// SigningKey signs every segment; it is a private copy the caller no
	// longer needs to retain.
	SigningKey ed25519.PrivateKey
}

// Destroy wipes the secrets held by h. The header bytes themselves are not
// secret (they are the on-disk header) and are left intact.
func (h *Header) Destroy() {
	memguard.WipeBytes(h.PayloadEncryptionKey[:])
	memguard.WipeBytes(h.SigningKey)
}

func validateRecipientCount(n int) error {
	if n < 0 || int64(n) > int64(maxRecipients) {
		return bakerr.New(bakerr.TooManyRecipients, "recipient count exceeds the u32 wire field")
	}
	return nil
}

// BuildHeader constructs an archive header wrapping a fresh random file key
// for every recipient in recipients (X25519 public keys, in wire order),
// signed by senderSigningKey. randSource is the CSPRNG used for the file
// key and the ephemeral X25519 secret (typically crypto/rand.Reader).
func BuildHeader(senderSigningKey ed25519.PrivateKey, recipients [][HashSize]byte, randSource io.Reader) (*Header, error) {
	if err := validateRecipientCount(len(recipients)); err != nil {
		return nil, err
	}

	fileKeyBuf := memguard.NewBuffer(aead.KeySize)
	defer fileKeyBuf.Destroy()
	if _, err := io.ReadFull(randSource, fileKeyBuf.Bytes()); err != nil {
		return nil, bakerr.Wrap(bakerr.Io, err)
	}
	fileKey := fileKeyBuf.Bytes()

	var senderEncryptionKey, headerMACKey, payloadEncryptionKey [aead.KeySize]byte
	blake3.DeriveKey(senderEncryptionKey[:], senderEncryptionKeyCtx, fileKey)
	blake3.DeriveKey(headerMACKey[:], headerMACKeyCtx, fileKey)
	blake3.DeriveKey(payloadEncryptionKey[:], payloadEncryptionCtx, fileKey)
	defer memguard.WipeBytes(senderEncryptionKey[:])
	defer memguard.WipeBytes(headerMACKey[:])

	ephemeralBuf := memguard.NewBuffer(aead.KeySize)
	defer ephemeralBuf.Destroy()
	if _, err := io.ReadFull(randSource, ephemeralBuf.Bytes()); err != nil {
		return nil, bakerr.Wrap(bakerr.Io, err)
	}
	ephemeralSharePoint, err := curve25519.X25519(ephemeralBuf.Bytes(), curve25519.Basepoint)
	if err != nil {
		return nil, bakerr.Wrap(bakerr.EncryptionError, err)
	}
	var ephemeralShare [HashSize]byte
	copy(ephemeralShare[:], ephemeralSharePoint)

	header := make([]byte, 0, HeaderSize(len(recipients)))
	header = append(header, Magic...)
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(recipients)))
	header = append(header, countBuf[:]...)
	header = append(header, ephemeralShare[:]...)

	for _, recipient := range recipients {
		shared, err := curve25519.X25519(ephemeralBuf.Bytes(), recipient[:])
		if err != nil {
			return nil, bakerr.Wrap(bakerr.EncryptionError, err)
		}

		var recipientMACKey [aead.KeySize]byte
		blake3.DeriveKey(recipientMACKey[:], recipientMACKeyCtx, shared)
		recipientID := keyedHash(recipientMACKey[:], recipient[:])
		memguard.WipeBytes(recipientMACKey[:])

		var wrapKey [aead.KeySize]byte
		blake3.DeriveKey(wrapKey[:], wrapKeyCtx, shared)
		memguard.WipeBytes(shared)

		wrappedKey := append([]byte(nil), fileKey...)
		cipher := aead.New(wrapKey)
		tag, err := cipher.Seal(zeroNonce, nil, wrappedKey)
		memguard.WipeBytes(wrapKey[:])
		if err != nil {
			return nil, err
		}

		header = append(header, recipientID...)
		header = append(header, wrappedKey...)
		header = append(header, tag[:]...)
	}

	senderVerifyingKey := append([]byte(nil), senderSigningKey.Public().(ed25519.PublicKey)...)
	senderCipher := aead.New(senderEncryptionKey)
	senderTag, err := senderCipher.Seal(zeroNonce, nil, senderVerifyingKey)
	if err != nil {
		return nil, err
	}
	header = append(header, senderVerifyingKey...)
	header = append(header, senderTag[:]...)

	headerMAC := keyedHash(headerMACKey[:], header)
	header = append(header, headerMAC...)

	return &Header{
		Bytes:                header,
		PayloadEncryptionKey: payloadEncryptionKey,
		SigningKey:           append(ed25519.PrivateKey(nil), senderSigningKey...),
	}, nil
}

// keyedHash computes BLAKE3's keyed-hash mode (the MAC primitive used for
// recipient IDs and the header MAC): a 32-byte tag over msg under key.
func keyedHash(key, msg []byte) []byte {
	h := blake3.New(HashSize, key)
	h.Write(msg)
	return h.Sum(nil)
}

