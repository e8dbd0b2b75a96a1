// Package cid renders a raw BLAKE3 content hash as a self-describing
// multihash string, the human-facing identifier printed by the CLI and
// recorded in the run history ledger. The underlying content addressing
// elsewhere in the repository always uses the raw 32-byte digest; this
// package only affects how that digest is displayed.
package cid

import (
	"github.com/multiformats/go-multihash"

	"github.com/rasendubi/bakpak-go/pkg/bakerr"
)

// Encode renders a BLAKE3 digest as a base58-encoded multihash string.
func Encode(digest [32]byte) (string, error) {
	mh, err := multihash.Encode(digest[:], multihash.BLAKE3)
	if err != nil {
		return "", bakerr.Wrap(bakerr.InvalidInput, err)
	}
	return multihash.Multihash(mh).B58String(), nil
}

// Decode parses a base58 multihash string produced by Encode back into a
// BLAKE3 digest.
func Decode(s string) ([32]byte, error) {
	var digest [32]byte

	mh, err := multihash.FromB58String(s)
	if err != nil {
		return digest, bakerr.Wrap(bakerr.InvalidInput, err)
	}

	decoded, err := multihash.Decode(mh)
	if err != nil {
		return digest, bakerr.Wrap(bakerr.InvalidInput, err)
	}
	if decoded.Code != multihash.BLAKE3 {
		return digest, bakerr.New(bakerr.InvalidInput, "multihash is not a BLAKE3 digest")
	}
	if len(decoded.Digest) != len(digest) {
		return digest, bakerr.New(bakerr.InvalidInput, "unexpected BLAKE3 digest length")
	}

	copy(digest[:], decoded.Digest)
	return digest, nil
}
