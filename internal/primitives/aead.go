// Package primitives wraps the cryptographic building blocks used by the
// header, block stream, archive and signature layers: ChaCha20-Poly1305
// AEAD, X25519, Elligator2, XEdDSA, SHA-512 and Argon2id. It owns no state
// beyond the process CSPRNG and exposes pure functions so every other layer
// can be tested deterministically by injecting an io.Reader in place of
// crypto/rand.
package primitives

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the size of a ChaCha20-Poly1305 / X25519 key in bytes.
	KeySize = 32

	// NonceSize is the size of a ChaCha20-Poly1305 nonce in bytes.
	NonceSize = 12

	// TagSize is the size of the Poly1305 authentication tag in bytes.
	TagSize = 16
)

// ErrAuthFail is returned whenever a Poly1305 tag fails to verify. It is
// the single error the decrypt path ever surfaces for a bad key, a
// truncated stream or a tampered byte — see spec §7 on why these are not
// distinguished.
var ErrAuthFail = fmt.Errorf("covert: authentication failed")

// Seal encrypts plaintext with ChaCha20-Poly1305 under key and nonce,
// authenticating aad, and returns ciphertext||tag appended to dst.
func Seal(dst, key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("primitives: new aead: %w", err)
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("primitives: bad nonce length %d", len(nonce))
	}
	return aead.Seal(dst, nonce, plaintext, aad), nil
}

// Open decrypts ciphertext||tag with ChaCha20-Poly1305 under key and nonce,
// verifying aad, appending the plaintext to dst. Any failure — wrong key,
// tampered bytes, wrong nonce — is collapsed to ErrAuthFail.
func Open(dst, key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("primitives: new aead: %w", err)
	}
	if len(nonce) != NonceSize {
		return nil, ErrAuthFail
	}
	out, err := aead.Open(dst, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFail
	}
	return out, nil
}

// ZeroBytes overwrites b with zeroes. Call it on any buffer that held a
// file key, passphrase, pwhash or ephemeral secret once it is no longer
// needed — no secret material may outlive its layer.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroKey overwrites a fixed-size key array.
func ZeroKey(k *[KeySize]byte) {
	for i := range k {
		k[i] = 0
	}
}

// XORKey returns a ^ b for two KeySize arrays, as used to build and unwind
// auth slots (file_key XOR recipient_key).
func XORKey(a, b [KeySize]byte) [KeySize]byte {
	var out [KeySize]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}
