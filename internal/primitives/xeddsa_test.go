package primitives

import (
	"crypto/rand"
	"testing"
)

func TestXEdDSASignVerifyRoundTrip(t *testing.T) {
	sk, pk, err := GenerateX25519Keypair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateX25519Keypair() error = %v", err)
	}

	msg := []byte("a 64-byte filehash would normally go here, but any message works")
	sig, err := XEdDSASign(rand.Reader, sk, msg)
	if err != nil {
		t.Fatalf("XEdDSASign() error = %v", err)
	}

	if !XEdDSAVerify(pk, msg, sig) {
		t.Fatal("XEdDSAVerify() = false, want true")
	}
}

func TestXEdDSAVerifyRejectsWrongKey(t *testing.T) {
	sk, _, err := GenerateX25519Keypair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateX25519Keypair() error = %v", err)
	}
	_, otherPk, err := GenerateX25519Keypair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateX25519Keypair() error = %v", err)
	}

	msg := []byte("message")
	sig, err := XEdDSASign(rand.Reader, sk, msg)
	if err != nil {
		t.Fatalf("XEdDSASign() error = %v", err)
	}

	if XEdDSAVerify(otherPk, msg, sig) {
		t.Fatal("XEdDSAVerify() = true for wrong public key, want false")
	}
}

func TestXEdDSAVerifyRejectsTamperedMessage(t *testing.T) {
	sk, pk, err := GenerateX25519Keypair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateX25519Keypair() error = %v", err)
	}

	sig, err := XEdDSASign(rand.Reader, sk, []byte("original"))
	if err != nil {
		t.Fatalf("XEdDSASign() error = %v", err)
	}

	if XEdDSAVerify(pk, []byte("tampered"), sig) {
		t.Fatal("XEdDSAVerify() = true for tampered message, want false")
	}
}

func TestXEdDSAVerifyRejectsTamperedSignature(t *testing.T) {
	sk, pk, err := GenerateX25519Keypair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateX25519Keypair() error = %v", err)
	}

	msg := []byte("message")
	sig, err := XEdDSASign(rand.Reader, sk, msg)
	if err != nil {
		t.Fatalf("XEdDSASign() error = %v", err)
	}
	sig[63] ^= 0xFF

	if XEdDSAVerify(pk, msg, sig) {
		t.Fatal("XEdDSAVerify() = true for tampered signature, want false")
	}
}
