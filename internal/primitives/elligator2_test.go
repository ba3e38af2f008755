package primitives

import (
	"crypto/rand"
	"testing"
)

func TestElligator2RoundTrip(t *testing.T) {
	attempts := 0
	for attempts < 1000 {
		attempts++
		_, pk, err := GenerateX25519Keypair(rand.Reader)
		if err != nil {
			t.Fatalf("GenerateX25519Keypair() error = %v", err)
		}

		var randByte [1]byte
		if _, err := rand.Read(randByte[:]); err != nil {
			t.Fatalf("rand.Read() error = %v", err)
		}

		ephash, ok := Elligator2Encode(pk, randByte[0])
		if !ok {
			// Roughly half of public keys are not representable; try the
			// next generated key, matching the spec's documented retry.
			continue
		}

		decoded, err := Elligator2Decode(ephash)
		if err != nil {
			t.Fatalf("Elligator2Decode() error = %v", err)
		}
		if decoded != pk {
			t.Fatalf("Elligator2Decode(Elligator2Encode(pk)) = %x, want %x", decoded, pk)
		}
		return
	}
	t.Fatalf("no representable public key found in %d attempts", attempts)
}

func TestElligator2EncodeAllThreeBitChoices(t *testing.T) {
	var pk [KeySize]byte
	var found bool
	for i := 0; i < 1000 && !found; i++ {
		_, candidate, err := GenerateX25519Keypair(rand.Reader)
		if err != nil {
			t.Fatalf("GenerateX25519Keypair() error = %v", err)
		}
		if _, ok := Elligator2Encode(candidate, 0); ok {
			pk = candidate
			found = true
		}
	}
	if !found {
		t.Fatal("no representable public key found")
	}

	seen := make(map[[KeySize]byte]bool)
	for b := 0; b < 8; b++ {
		ephash, ok := Elligator2Encode(pk, byte(b))
		if !ok {
			t.Fatalf("Elligator2Encode(pk, %d) failed unexpectedly", b)
		}
		decoded, err := Elligator2Decode(ephash)
		if err != nil {
			t.Fatalf("Elligator2Decode() error = %v", err)
		}
		if decoded != pk {
			t.Fatalf("round trip mismatch for rand3bits=%d", b)
		}
		seen[ephash] = true
	}
	if len(seen) == 0 {
		t.Fatal("no ephash values produced")
	}
}

func TestElligator2DecodeAlwaysSucceeds(t *testing.T) {
	var ephash [KeySize]byte
	for i := 0; i < 256; i++ {
		ephash[0] = byte(i)
		if _, err := Elligator2Decode(ephash); err != nil {
			t.Fatalf("Elligator2Decode() error on byte %d: %v", i, err)
		}
	}
}
