// Package covert ties the primitive, header, block stream, archive, and
// signature layers into the two top-level operations every caller needs:
// Encrypt and Decrypt.
package covert

import (
	"bytes"
	"fmt"
	"io"

	"github.com/postalsys/covert/internal/archive"
	"github.com/postalsys/covert/internal/blockstream"
	"github.com/postalsys/covert/internal/header"
	"github.com/postalsys/covert/internal/identity"
	"github.com/postalsys/covert/internal/primitives"
	"github.com/postalsys/covert/internal/signature"
)

// blockChunkSize bounds how much inner-stream plaintext one block carries.
// It is an encoder policy choice (spec §4.3: "choice of next block length
// is an encoder policy, not a wire requirement"), well under the 2^24-1
// hard ceiling so ordinary files still produce a handful of blocks.
const blockChunkSize = 1 << 20

// EncryptOptions configures one Encrypt call.
type EncryptOptions struct {
	Recipients        []identity.Recipient
	WideOpen          bool
	PaddingProportion float64
	Decoys            int
	Signers           []identity.Identity
}

// Encrypt writes a Covert container for sources to w, addressed to
// opts.Recipients (or wide-open), optionally appending one signature block
// per entry in opts.Signers. rng supplies all randomness.
func Encrypt(w io.Writer, rng io.Reader, sources []archive.FileSource, opts EncryptOptions) error {
	recipients, err := resolveRecipients(opts)
	if err != nil {
		return err
	}

	built, err := header.Build(rng, recipients, opts.Decoys)
	if err != nil {
		return err
	}
	defer primitives.ZeroKey(&built.FileKey)

	var inner bytes.Buffer
	if err := archive.Encode(&inner, sources, opts.PaddingProportion, rng); err != nil {
		return fmt.Errorf("covert: encode archive: %w", err)
	}

	if _, err := w.Write(built.Bytes); err != nil {
		return fmt.Errorf("covert: write header: %w", err)
	}

	enc := blockstream.NewEncoder(built.FileKey, built.FileNonce, built.Bytes)
	if err := encodeBlocks(w, enc, inner.Bytes()); err != nil {
		return err
	}

	filehash := enc.SigningHash()
	for i, signer := range opts.Signers {
		block, err := signature.Sign(rng, signer.SecretKey, filehash)
		if err != nil {
			return fmt.Errorf("covert: sign (signer %d): %w", i, err)
		}
		if _, err := w.Write(block[:]); err != nil {
			return fmt.Errorf("covert: write signature block %d: %w", i, err)
		}
	}
	return nil
}

func resolveRecipients(opts EncryptOptions) ([]identity.Recipient, error) {
	if opts.WideOpen {
		if len(opts.Recipients) > 0 {
			return nil, ErrConflictingRecipients
		}
		return []identity.Recipient{identity.WideOpenRecipient()}, nil
	}
	if len(opts.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	return opts.Recipients, nil
}

func encodeBlocks(w io.Writer, enc *blockstream.Encoder, data []byte) error {
	// Block 0 must end within blindSearchWindow bytes of the header (tag
	// and 3-byte nextlen included) for Decrypt's blind search to find it.
	limit := blindSearchWindow - primitives.TagSize - 3
	for {
		n := len(data)
		if n > limit {
			n = limit
		}
		limit = blockChunkSize
		chunk := data[:n]
		data = data[n:]

		var nextlen uint32
		if len(data) > 0 {
			next := len(data)
			if next > blockChunkSize {
				next = blockChunkSize
			}
			nextlen = uint32(next)
		}

		ciphertext, err := enc.EncodeBlock(chunk, nextlen)
		if err != nil {
			return fmt.Errorf("covert: encode block: %w", err)
		}
		if _, err := w.Write(ciphertext); err != nil {
			return fmt.Errorf("covert: write block: %w", err)
		}
		if nextlen == 0 {
			return nil
		}
	}
}
