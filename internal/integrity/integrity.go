// Package integrity builds a Merkle tree over a snapshot's top-level
// content hashes, giving the snapshot a single root digest plus per-entry
// inclusion proofs, independent of how the content itself was chunked or
// compressed.
package integrity

import (
	"fmt"

	"github.com/cbergoon/merkletree"

	"github.com/rasendubi/bakpak-go/pkg/bakerr"
)

// leaf implements merkletree.Content over a single 32-byte content hash.
type leaf struct {
	hash [32]byte
}

// CalculateHash satisfies merkletree.Content; the leaf hash already is a
// cryptographic digest, so it's used directly rather than re-hashed.
func (l leaf) CalculateHash() ([]byte, error) {
	return l.hash[:], nil
}

// Equals satisfies merkletree.Content.
func (l leaf) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(leaf)
	if !ok {
		return false, fmt.Errorf("integrity: type mismatch comparing leaves")
	}
	return l.hash == o.hash, nil
}

// Tree wraps a Merkle tree over a fixed set of content hashes.
type Tree struct {
	tree   *merkletree.MerkleTree
	hashes [][32]byte
}

// Build constructs a Merkle tree over hashes, in the order given. hashes
// must be non-empty.
func Build(hashes [][32]byte) (*Tree, error) {
	if len(hashes) == 0 {
		return nil, bakerr.New(bakerr.InvalidInput, "cannot build integrity tree from empty hash list")
	}

	contents := make([]merkletree.Content, len(hashes))
	for i, h := range hashes {
		contents[i] = leaf{hash: h}
	}

	mt, err := merkletree.NewTree(contents)
	if err != nil {
		return nil, bakerr.Wrap(bakerr.InvalidInput, err)
	}

	return &Tree{tree: mt, hashes: append([][32]byte(nil), hashes...)}, nil
}

// Root returns the tree's Merkle root.
func (t *Tree) Root() [32]byte {
	var root [32]byte
	copy(root[:], t.tree.MerkleRoot())
	return root
}

// Verify checks that every leaf in the tree still hashes consistently up
// to the recorded root.
func (t *Tree) Verify() (bool, error) {
	ok, err := t.tree.VerifyTree()
	if err != nil {
		return false, bakerr.Wrap(bakerr.InvalidInput, err)
	}
	return ok, nil
}

// Proof returns the inclusion path and sibling-side markers for hash, so a
// verifier holding only the root can confirm hash was part of the tree.
func (t *Tree) Proof(hash [32]byte) ([][]byte, []int64, error) {
	path, indices, err := t.tree.GetMerklePath(leaf{hash: hash})
	if err != nil {
		return nil, nil, bakerr.Wrap(bakerr.InvalidInput, err)
	}
	return path, indices, nil
}
