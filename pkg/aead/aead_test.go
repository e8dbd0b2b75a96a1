package aead

import (
	"bytes"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	var key [KeySize]byte
	for i := range key {
		key[i] = byte(i)
	}
	var nonce [NonceSize]byte
	for i := range nonce {
		nonce[i] = byte(i + 1)
	}

	cipher := New(key)
	ad := []byte("archive segment header")
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	ciphertext := append([]byte(nil), plaintext...)
	tag, err := cipher.Seal(nonce, ad, ciphertext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("ciphertext equals plaintext; encryption did not run")
	}

	if err := cipher.Open(nonce, ad, ciphertext, tag); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(ciphertext, plaintext) {
		t.Fatalf("decrypted = %q, want %q", ciphertext, plaintext)
	}
}

// TestZeroKeyScenario exercises the all-zero key/nonce/plaintext case: a
// scenario defined by inputs only, since the exact ciphertext is an
// implementation detail of the underlying primitives rather than a fixed
// constant this package can assert against without running them.
func TestZeroKeyScenario(t *testing.T) {
	var key [KeySize]byte
	var nonce [NonceSize]byte
	plaintext := make([]byte, 32)

	cipher := New(key)
	ciphertext := append([]byte(nil), plaintext...)
	tag, err := cipher.Seal(nonce, nil, ciphertext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	decoded := append([]byte(nil), ciphertext...)
	if err := cipher.Open(nonce, nil, decoded, tag); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(decoded, plaintext) {
		t.Fatalf("decrypted = %x, want all-zero", decoded)
	}

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0x01
	if err := cipher.Open(nonce, nil, tampered, tag); err == nil {
		t.Fatal("Open succeeded on tampered ciphertext byte 0")
	}
}

func TestOpenRejectsTamperedTag(t *testing.T) {
	var key [KeySize]byte
	key[0] = 0x42
	var nonce [NonceSize]byte

	cipher := New(key)
	plaintext := []byte("sensitive payload")
	ciphertext := append([]byte(nil), plaintext...)
	tag, err := cipher.Seal(nonce, []byte("ad"), ciphertext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	tag[0] ^= 0xff
	if err := cipher.Open(nonce, []byte("ad"), ciphertext, tag); err == nil {
		t.Fatal("Open succeeded with a corrupted tag")
	}
}

func TestOpenRejectsWrongAssociatedData(t *testing.T) {
	var key [KeySize]byte
	var nonce [NonceSize]byte

	cipher := New(key)
	plaintext := []byte("payload")
	ciphertext := append([]byte(nil), plaintext...)
	tag, err := cipher.Seal(nonce, []byte("correct ad"), ciphertext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if err := cipher.Open(nonce, []byte("wrong ad"), ciphertext, tag); err == nil {
		t.Fatal("Open succeeded with mismatched associated data")
	}
}

func TestDifferentNoncesProduceDifferentCiphertexts(t *testing.T) {
	var key [KeySize]byte
	plaintext := []byte("identical plaintext, different nonce")

	var nonceA, nonceB [NonceSize]byte
	nonceB[0] = 1

	cipher := New(key)
	ctA := append([]byte(nil), plaintext...)
	if _, err := cipher.Seal(nonceA, nil, ctA); err != nil {
		t.Fatalf("Seal A: %v", err)
	}
	ctB := append([]byte(nil), plaintext...)
	if _, err := cipher.Seal(nonceB, nil, ctB); err != nil {
		t.Fatalf("Seal B: %v", err)
	}

	if bytes.Equal(ctA, ctB) {
		t.Fatal("different nonces produced identical ciphertexts")
	}
}
