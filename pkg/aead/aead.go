// Package aead implements the custom authenticated cipher used to seal
// archive segments: a raw ChaCha20 stream cipher combined with a BLAKE3
// keyed hash as the MAC, both sub-keys derived from a single 32-byte key
// via BLAKE3's key-derivation mode so the caller only ever manages one
// secret.
package aead

import (
	"crypto/subtle"
	"encoding/binary"
	"math"

	"golang.org/x/crypto/chacha20"
	"lukechampine.com/blake3"

	"github.com/rasendubi/bakpak-go/pkg/bakerr"
)

const (
	// KeySize is the width of the cipher's single root key.
	KeySize = 32
	// NonceSize is the width of the ChaCha20 nonce used per call.
	NonceSize = chacha20.NonceSize
	// TagSize is the width of the BLAKE3-keyed authentication tag.
	TagSize = 32

	blockSize = 64
	maxBlocks = math.MaxUint32

	encryptionKeyCtx = "ChaCha20.Encrypt()"
	macKeyCtx        = "BLAKE3-256.KeyedHash()"
)

// Cipher holds the single root key both sub-keys are derived from. The key
// itself is never used directly for encryption or MAC; it only ever seeds
// BLAKE3's KDF.
type Cipher struct {
	key [KeySize]byte
}

// New binds a Cipher to key. key is copied; the caller remains responsible
// for zeroizing its own copy once done with it.
func New(key [KeySize]byte) *Cipher {
	return &Cipher{key: key}
}

// Seal encrypts plaintext in place and returns its authentication tag.
// associatedData is authenticated but not encrypted. Returns an
// EncryptionError if plaintext would require more than 2^32 ChaCha20
// blocks.
func (c *Cipher) Seal(nonce [NonceSize]byte, associatedData, plaintext []byte) ([TagSize]byte, error) {
	if len(plaintext)/blockSize >= maxBlocks {
		return [TagSize]byte{}, bakerr.New(bakerr.EncryptionError, "plaintext exceeds chacha20 block counter range")
	}

	if err := c.applyKeystream(nonce, plaintext); err != nil {
		return [TagSize]byte{}, err
	}

	tag, err := c.computeTag(nonce, associatedData, plaintext)
	if err != nil {
		return [TagSize]byte{}, err
	}
	return tag, nil
}

// Open verifies tag against associatedData and ciphertext, then decrypts
// ciphertext in place. Returns an EncryptionError on any tag mismatch,
// leaving ciphertext untouched.
func (c *Cipher) Open(nonce [NonceSize]byte, associatedData, ciphertext []byte, tag [TagSize]byte) error {
	if len(ciphertext)/blockSize >= maxBlocks {
		return bakerr.New(bakerr.EncryptionError, "ciphertext exceeds chacha20 block counter range")
	}

	computed, err := c.computeTag(nonce, associatedData, ciphertext)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(computed[:], tag[:]) != 1 {
		return bakerr.New(bakerr.EncryptionError, "authentication tag mismatch")
	}

	return c.applyKeystream(nonce, ciphertext)
}

func (c *Cipher) applyKeystream(nonce [NonceSize]byte, buf []byte) error {
	var encKey [KeySize]byte
	blake3.DeriveKey(encKey[:], encryptionKeyCtx, c.key[:])
	defer zero(encKey[:])

	cipher, err := chacha20.NewUnauthenticatedCipher(encKey[:], nonce[:])
	if err != nil {
		return bakerr.Wrap(bakerr.EncryptionError, err)
	}
	cipher.XORKeyStream(buf, buf)
	return nil
}

// computeTag derives the MAC sub-key and absorbs, in order: nonce,
// associated data, ciphertext, LE64 ad length, LE64 ciphertext length.
// Both sides of the construction depend on this exact ordering.
func (c *Cipher) computeTag(nonce [NonceSize]byte, associatedData, ciphertext []byte) ([TagSize]byte, error) {
	var macKey [KeySize]byte
	blake3.DeriveKey(macKey[:], macKeyCtx, c.key[:])
	defer zero(macKey[:])

	mac := blake3.New(TagSize, macKey[:])
	mac.Write(nonce[:])
	mac.Write(associatedData)
	mac.Write(ciphertext)

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(associatedData)))
	mac.Write(lenBuf[:])
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(ciphertext)))
	mac.Write(lenBuf[:])

	var tag [TagSize]byte
	copy(tag[:], mac.Sum(nil))
	return tag, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
