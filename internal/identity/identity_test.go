package identity

import (
	"crypto/rand"
	"path/filepath"
	"testing"
)

func TestGenerateProducesDistinctIdentities(t *testing.T) {
	id1, err := Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	id2, err := Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if id1.SecretKey == id2.SecretKey {
		t.Error("Generate() returned duplicate secret keys")
	}
	if id1.PublicKey == id2.PublicKey {
		t.Error("Generate() returned duplicate public keys")
	}
}

func TestIdentityStringRoundTrip(t *testing.T) {
	id, err := Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	parsed, err := ParseIdentity(id.String())
	if err != nil {
		t.Fatalf("ParseIdentity() error = %v", err)
	}
	if parsed.SecretKey != id.SecretKey {
		t.Error("ParseIdentity() secret key mismatch")
	}
	if parsed.PublicKey != id.PublicKey {
		t.Error("ParseIdentity() public key mismatch")
	}
}

func TestParseIdentityRejectsGarbage(t *testing.T) {
	if _, err := ParseIdentity("not an identity"); err == nil {
		t.Fatal("ParseIdentity() error = nil, want error")
	}
}

func TestIdentityStoreLoad(t *testing.T) {
	id, err := Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "nested", "identity.key")
	if err := id.Store(path); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.SecretKey != id.SecretKey {
		t.Error("Load() returned different secret key than Store() wrote")
	}
}

func TestLoadOrGenerateCreatesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.key")

	id1, created, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("LoadOrGenerate() error = %v", err)
	}
	if !created {
		t.Error("LoadOrGenerate() created = false on first call, want true")
	}

	id2, created, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("LoadOrGenerate() error = %v", err)
	}
	if created {
		t.Error("LoadOrGenerate() created = true on second call, want false")
	}
	if id1.SecretKey != id2.SecretKey {
		t.Error("LoadOrGenerate() returned a different identity on reload")
	}
}

func TestRecipientDedupKey(t *testing.T) {
	id, err := Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	r1 := NewPublicKeyRecipient(id.PublicKey)
	r2 := NewPublicKeyRecipient(id.PublicKey)
	if r1.DedupKey() != r2.DedupKey() {
		t.Error("DedupKey() differs for identical public keys")
	}

	p1 := NewPassphraseRecipient("correct horse battery staple")
	p2 := NewPassphraseRecipient("correct horse battery staple")
	if p1.DedupKey() != p2.DedupKey() {
		t.Error("DedupKey() differs for identical passphrases")
	}
	if r1.DedupKey() == p1.DedupKey() {
		t.Error("DedupKey() collided between a public key and a passphrase recipient")
	}
}

func TestPassphraseRecipientNormalizesNFKC(t *testing.T) {
	// U+FB01 LATIN SMALL LIGATURE FI normalizes to "fi" under NFKC.
	a := NewPassphraseRecipient("ﬁle secret")
	b := NewPassphraseRecipient("file secret")
	if a.DedupKey() != b.DedupKey() {
		t.Error("NewPassphraseRecipient() did not NFKC-normalize its input")
	}
}

func TestRecipientPublicKeyTextRoundTrip(t *testing.T) {
	id, err := Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	text := EncodeRecipientPublicKey(id.PublicKey)
	parsed, err := ParseRecipientPublicKey(text)
	if err != nil {
		t.Fatalf("ParseRecipientPublicKey() error = %v", err)
	}
	if parsed.PublicKey != id.PublicKey {
		t.Error("ParseRecipientPublicKey() round trip mismatch")
	}
}

func TestParseRecipientPublicKeyRejectsGarbage(t *testing.T) {
	if _, err := ParseRecipientPublicKey("definitely-not-a-recipient"); err == nil {
		t.Fatal("ParseRecipientPublicKey() error = nil, want error")
	}
}
