package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/curve25519"

	"github.com/rasendubi/bakpak-go/internal/metrics"
	"github.com/rasendubi/bakpak-go/pkg/archive"
)

// newKeygenCommand generates the two keys the seal command needs: an
// Ed25519 identity for signing and an X25519 keypair for receiving.
func newKeygenCommand() *cobra.Command {
	var identityPath, recipientPath string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate a signing identity and a recipient key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, signing, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generating signing key: %w", err)
			}
			if err := writeKeyFile(identityPath, signing.Seed()); err != nil {
				return err
			}

			var secret [32]byte
			if _, err := rand.Read(secret[:]); err != nil {
				return fmt.Errorf("generating recipient key: %w", err)
			}
			public, err := curve25519.X25519(secret[:], curve25519.Basepoint)
			if err != nil {
				return fmt.Errorf("deriving recipient public key: %w", err)
			}
			if err := writeKeyFile(recipientPath, secret[:]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "identity written to %s\n", identityPath)
			fmt.Fprintf(cmd.OutOrStdout(), "recipient secret written to %s\n", recipientPath)
			fmt.Fprintf(cmd.OutOrStdout(), "recipient public key: %s\n", hex.EncodeToString(public))
			return nil
		},
	}
	cmd.Flags().StringVar(&identityPath, "identity", "bakpak-identity.key", "file to write the Ed25519 signing seed to")
	cmd.Flags().StringVar(&recipientPath, "recipient", "bakpak-recipient.key", "file to write the X25519 recipient secret to")

	return cmd
}

// newSealCommand wraps a file in the signcryption container: a recipient
// key-wrapping header followed by the signed, encrypted segment stream.
func newSealCommand() *cobra.Command {
	var identityPath, outputPath string
	var recipientHexes []string

	cmd := &cobra.Command{
		Use:   "seal [flags] <file>",
		Short: "encrypt and sign a file for a set of recipients",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signing, err := readSigningKey(identityPath)
			if err != nil {
				return err
			}

			recipients := make([][archive.HashSize]byte, 0, len(recipientHexes))
			for _, rh := range recipientHexes {
				raw, err := hex.DecodeString(strings.TrimSpace(rh))
				if err != nil || len(raw) != archive.HashSize {
					return fmt.Errorf("recipient %q is not a %d-byte hex public key", rh, archive.HashSize)
				}
				var r [archive.HashSize]byte
				copy(r[:], raw)
				recipients = append(recipients, r)
			}

			return seal(signing, recipients, args[0], outputPath)
		},
	}
	cmd.Flags().StringVar(&identityPath, "identity", "bakpak-identity.key", "Ed25519 signing seed file (from keygen)")
	cmd.Flags().StringArrayVar(&recipientHexes, "recipient-key", nil, "hex X25519 recipient public key (repeatable)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file")
	cmd.MarkFlagRequired("output")

	return cmd
}

func seal(signing ed25519.PrivateKey, recipients [][archive.HashSize]byte, inputPath, outputPath string) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer out.Close()

	header, err := archive.BuildHeader(signing, recipients, rand.Reader)
	if err != nil {
		return fmt.Errorf("building archive header: %w", err)
	}
	defer header.Destroy()

	if _, err := out.Write(header.Bytes); err != nil {
		return fmt.Errorf("writing archive header: %w", err)
	}

	sw := archive.NewStreamWriter(out, header.PayloadEncryptionKey, header.SigningKey)
	defer sw.Destroy()
	sw.OnSegment = metrics.ObserveArchiveSegment

	n, err := io.Copy(sw, in)
	if err != nil {
		return fmt.Errorf("sealing payload: %w", err)
	}
	if _, err := sw.Finish(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("syncing output: %w", err)
	}

	log.Printf("[Archive] sealed %d bytes for %d recipient(s) into %s", n, len(recipients), outputPath)
	return nil
}

func readSigningKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity file %s does not hold a %d-byte hex seed", path, ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func writeKeyFile(path string, key []byte) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing key file %s", path)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}
