package signature

import (
	"crypto/rand"
	"testing"

	"github.com/postalsys/covert/internal/identity"
	"github.com/postalsys/covert/internal/primitives"
)

func testFilehash(t *testing.T) [64]byte {
	t.Helper()
	return primitives.SHA512([]byte("a representative block-stream signing hash"))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	filehash := testFilehash(t)

	block, err := Sign(rand.Reader, signer.SecretKey, filehash)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if !Verify(block, filehash, signer.PublicKey) {
		t.Fatal("Verify() = false, want true")
	}
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	signer, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	impostor, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	filehash := testFilehash(t)

	block, err := Sign(rand.Reader, signer.SecretKey, filehash)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if Verify(block, filehash, impostor.PublicKey) {
		t.Fatal("Verify() = true for wrong signer, want false")
	}
}

func TestVerifyRejectsTamperedFilehash(t *testing.T) {
	signer, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	filehash := testFilehash(t)

	block, err := Sign(rand.Reader, signer.SecretKey, filehash)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	tampered := filehash
	tampered[0] ^= 0xFF
	if Verify(block, tampered, signer.PublicKey) {
		t.Fatal("Verify() = true for tampered filehash, want false")
	}
}

func TestMultiSignerChain(t *testing.T) {
	alice, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	bob, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	filehash := testFilehash(t)

	blockA, err := Sign(rand.Reader, alice.SecretKey, filehash)
	if err != nil {
		t.Fatalf("Sign(alice) error = %v", err)
	}
	blockB, err := Sign(rand.Reader, bob.SecretKey, filehash)
	if err != nil {
		t.Fatalf("Sign(bob) error = %v", err)
	}

	blocks := [][BlockSize]byte{blockA, blockB}
	candidates := [][primitives.KeySize]byte{alice.PublicKey, bob.PublicKey}

	si, bi, ok := VerifyAny(blocks, filehash, candidates)
	if !ok {
		t.Fatal("VerifyAny() ok = false, want true")
	}
	if si != 0 || bi != 0 {
		t.Fatalf("VerifyAny() = (%d, %d), want (0, 0) for alice's block first", si, bi)
	}

	if !Verify(blockB, filehash, bob.PublicKey) {
		t.Fatal("Verify() for bob's own block = false, want true")
	}
}

func TestTamperedSignatureBlockDetected(t *testing.T) {
	signer, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	filehash := testFilehash(t)

	block, err := Sign(rand.Reader, signer.SecretKey, filehash)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	block[len(block)-1] ^= 0xFF

	if Verify(block, filehash, signer.PublicKey) {
		t.Fatal("Verify() = true for tampered block, want false")
	}
}
