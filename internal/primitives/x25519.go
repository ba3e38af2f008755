package primitives

import (
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// GenerateX25519Keypair draws a fresh Curve25519 secret key from r (normally
// crypto/rand.Reader; tests inject a seeded DRBG) and derives the matching
// public key. The secret is clamped per RFC 7748 by curve25519.X25519.
func GenerateX25519Keypair(r io.Reader) (sk, pk [KeySize]byte, err error) {
	if _, err = io.ReadFull(r, sk[:]); err != nil {
		return sk, pk, fmt.Errorf("primitives: generate x25519 secret: %w", err)
	}
	pub, err := curve25519.X25519(sk[:], curve25519.Basepoint)
	if err != nil {
		return sk, pk, fmt.Errorf("primitives: derive x25519 public: %w", err)
	}
	copy(pk[:], pub)
	return sk, pk, nil
}

// X25519 performs the raw Curve25519 scalar multiplication sk*pk, returning
// the shared secret. It is the sole primitive both the ephemeral-key and
// passphrase-free header derivations build on.
func X25519(sk, pk [KeySize]byte) ([KeySize]byte, error) {
	var out [KeySize]byte
	shared, err := curve25519.X25519(sk[:], pk[:])
	if err != nil {
		return out, fmt.Errorf("primitives: x25519: %w", err)
	}
	copy(out[:], shared)
	return out, nil
}
