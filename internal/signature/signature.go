// Package signature implements Covert's 80-byte appended
// signature blocks (spec §4.5): an XEd25519 signature over the file's
// signing hash, itself AEAD-encrypted under a key derivable from that
// hash alone.
package signature

import (
	"errors"
	"fmt"
	"io"

	"github.com/postalsys/covert/internal/primitives"
)

// BlockSize is the fixed on-wire size of one signature block: a 16-byte
// Poly1305 tag over a 64-byte XEd25519 signature.
const BlockSize = 64 + primitives.TagSize

// ErrVerifyFailed collapses every verification failure — AEAD open
// failure or a failed XEd25519 check — into one outward result, matching
// the header and block stream layers' AuthFail discipline.
var ErrVerifyFailed = errors.New("signature: verification failed")

// Sign produces one 80-byte signature block binding signerSK to filehash
// (the block stream's final signing hash, spec §3). Multiple signers each
// call Sign independently with the same filehash; the blocks are
// concatenated in the order they should be verified.
func Sign(r io.Reader, signerSK [primitives.KeySize]byte, filehash [64]byte) ([BlockSize]byte, error) {
	var block [BlockSize]byte

	signerPK, err := primitives.X25519(signerSK, basepoint())
	if err != nil {
		return block, fmt.Errorf("signature: derive signer public key: %w", err)
	}

	sig, err := primitives.XEdDSASign(r, signerSK, filehash[:])
	if err != nil {
		return block, fmt.Errorf("signature: sign: %w", err)
	}

	key := blockKey(filehash)
	nonce := blockNonce(filehash, signerPK)

	ciphertext, err := primitives.Seal(nil, key[:], nonce[:], nil, sig[:])
	if err != nil {
		return block, fmt.Errorf("signature: seal: %w", err)
	}
	copy(block[:], ciphertext)
	return block, nil
}

// Verify checks a signature block against filehash and the claimed
// signer's public key. Both the AEAD open and the XEd25519 check over the
// recovered signature must succeed — AEAD success alone never proves
// sender identity, since key is derivable from filehash by anyone holding
// the file (spec §4.5).
func Verify(block [BlockSize]byte, filehash [64]byte, signerPK [primitives.KeySize]byte) bool {
	key := blockKey(filehash)
	nonce := blockNonce(filehash, signerPK)

	plaintext, err := primitives.Open(nil, key[:], nonce[:], nil, block[:])
	if err != nil {
		return false
	}
	if len(plaintext) != 64 {
		return false
	}

	var sig [64]byte
	copy(sig[:], plaintext)
	return primitives.XEdDSAVerify(signerPK, filehash[:], sig)
}

func blockKey(filehash [64]byte) [primitives.KeySize]byte {
	var key [primitives.KeySize]byte
	copy(key[:], filehash[:primitives.KeySize])
	return key
}

func blockNonce(filehash [64]byte, signerPK [primitives.KeySize]byte) [primitives.NonceSize]byte {
	digest := primitives.SHA512(filehash[:], signerPK[:])
	var nonce [primitives.NonceSize]byte
	copy(nonce[:], digest[:primitives.NonceSize])
	return nonce
}

func basepoint() [primitives.KeySize]byte {
	var bp [primitives.KeySize]byte
	bp[0] = 9
	return bp
}

// VerifyAny reports whether at least one signer in candidates produced any
// of blocks, and which one. It is the shape `covert verify` needs when
// checking a file against a set of known public keys without requiring the
// caller to match blocks to signers up front.
func VerifyAny(blocks [][BlockSize]byte, filehash [64]byte, candidates [][primitives.KeySize]byte) (signerIndex, blockIndex int, ok bool) {
	for bi, block := range blocks {
		for si, pk := range candidates {
			if Verify(block, filehash, pk) {
				return si, bi, true
			}
		}
	}
	return -1, -1, false
}
