// Package gear implements the AES-Gear rolling hash used to find
// content-defined chunk boundaries: a byte-at-a-time gear hash whose state
// is decorrelated by running it through a single AES-128 block encryption,
// used purely as a PRF and not as a secret.
package gear

import (
	"crypto/aes"
	"encoding/binary"
)

// Config pairs the gear table with an AES-128 cipher used to mix the
// running state into the value tested against a chunker's masks. The key is
// a parameter, not a secret: AES here is only a decorrelation PRF.
type Config struct {
	block cipher128
}

// cipher128 is the minimal surface Config needs from crypto/aes.Block.
type cipher128 interface {
	Encrypt(dst, src []byte)
}

// NewConfig builds a gear configuration from a 16-byte AES-128 key.
func NewConfig(key [16]byte) (*Config, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return &Config{block: block}, nil
}

// NewDefaultConfig uses the all-zero AES-128 key, matching the tool's
// built-in default chunker configuration.
func NewDefaultConfig() *Config {
	cfg, err := NewConfig([16]byte{})
	if err != nil {
		// aes.NewCipher only fails on bad key length; 16 bytes is always valid.
		panic("gear: default AES-128 key rejected: " + err.Error())
	}
	return cfg
}

// Hash is a single running rolling-hash state, byte-fed via Update.
type Hash struct {
	cfg   *Config
	state uint64
}

// New starts a fresh rolling hash bound to cfg.
func New(cfg *Config) *Hash {
	return &Hash{cfg: cfg}
}

// Update folds one input byte into the running state.
func (h *Hash) Update(b byte) {
	h.state = (h.state << 1) + gearTable[b]
}

// Sum returns the current decorrelated hash value: the first 8 little-endian
// bytes of AES-128-encrypting (state_le || 0...0) under the configured key.
func (h *Hash) Sum() uint64 {
	var block [16]byte
	binary.LittleEndian.PutUint64(block[:8], h.state)
	h.cfg.block.Encrypt(block[:], block[:])
	return binary.LittleEndian.Uint64(block[:8])
}
