package covert

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/postalsys/covert/internal/archive"
	"github.com/postalsys/covert/internal/identity"
)

func messageSource(msg string) []archive.FileSource {
	return []archive.FileSource{{
		Entry:  archive.Entry{IsMessage: true, Size: int64(len(msg))},
		Reader: bytes.NewReader([]byte(msg)),
	}}
}

func TestWideOpenRoundTrip(t *testing.T) {
	var out bytes.Buffer
	opts := EncryptOptions{WideOpen: true, PaddingProportion: 0.05}
	if err := Encrypt(&out, rand.Reader, messageSource("Hello"), opts); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	file, err := Decrypt(bytes.NewReader(out.Bytes()), nil, nil)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(file.Message()) != "Hello" {
		t.Fatalf("Message() = %q, want %q", file.Message(), "Hello")
	}
}

func TestSinglePassphraseRoundTrip(t *testing.T) {
	passphrase := "oliveanglepeaceethics"
	var out bytes.Buffer
	opts := EncryptOptions{
		Recipients:        []identity.Recipient{identity.NewPassphraseRecipient(passphrase)},
		PaddingProportion: 0,
	}
	if err := Encrypt(&out, rand.Reader, messageSource(""), opts); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	file, err := Decrypt(bytes.NewReader(out.Bytes()), nil, [][]byte{[]byte(passphrase)})
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if len(file.Message()) != 0 {
		t.Fatalf("Message() = %q, want empty", file.Message())
	}
}

func TestTwoPubkeyRecipients(t *testing.T) {
	alice, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	bob, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	mallory, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var out bytes.Buffer
	opts := EncryptOptions{
		Recipients: []identity.Recipient{
			identity.NewPublicKeyRecipient(alice.PublicKey),
			identity.NewPublicKeyRecipient(bob.PublicKey),
		},
		PaddingProportion: 0.05,
	}
	if err := Encrypt(&out, rand.Reader, messageSource("shared"), opts); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := Decrypt(bytes.NewReader(out.Bytes()), []identity.Identity{alice}, nil); err != nil {
		t.Errorf("Decrypt() for alice error = %v", err)
	}
	if _, err := Decrypt(bytes.NewReader(out.Bytes()), []identity.Identity{bob}, nil); err != nil {
		t.Errorf("Decrypt() for bob error = %v", err)
	}
	if _, err := Decrypt(bytes.NewReader(out.Bytes()), []identity.Identity{mallory}, nil); err == nil {
		t.Error("Decrypt() for mallory = nil error, want ErrAuthFail")
	}
}

func TestAttachmentPlusMessage(t *testing.T) {
	var out bytes.Buffer
	sources := []archive.FileSource{
		{Entry: archive.Entry{IsMessage: true, Size: 2}, Reader: bytes.NewReader([]byte("hi"))},
		{Entry: archive.Entry{Name: "a.txt", Size: 3}, Reader: bytes.NewReader([]byte("abc"))},
	}
	opts := EncryptOptions{WideOpen: true, PaddingProportion: 0.05}
	if err := Encrypt(&out, rand.Reader, sources, opts); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	file, err := Decrypt(bytes.NewReader(out.Bytes()), nil, nil)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if len(file.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(file.Entries))
	}
	if string(file.Message()) != "hi" {
		t.Fatalf("Message() = %q, want %q", file.Message(), "hi")
	}
	if file.Entries[1].Name != "a.txt" || string(file.Payloads[1]) != "abc" {
		t.Fatalf("attachment = %q/%q, want a.txt/abc", file.Entries[1].Name, file.Payloads[1])
	}
}

func TestBitFlipCausesAuthFail(t *testing.T) {
	var out bytes.Buffer
	opts := EncryptOptions{WideOpen: true, PaddingProportion: 0.05}
	if err := Encrypt(&out, rand.Reader, messageSource("Hello"), opts); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	corrupted := append([]byte(nil), out.Bytes()...)
	corrupted[len(corrupted)-1] ^= 0x01

	if _, err := Decrypt(bytes.NewReader(corrupted), nil, nil); err == nil {
		t.Fatal("Decrypt() error = nil for bit-flipped ciphertext, want error")
	}
}

func TestTruncatedCiphertextFails(t *testing.T) {
	var out bytes.Buffer
	opts := EncryptOptions{WideOpen: true, PaddingProportion: 0.05}
	if err := Encrypt(&out, rand.Reader, messageSource("Hello world"), opts); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	truncated := out.Bytes()[:out.Len()-4]
	if _, err := Decrypt(bytes.NewReader(truncated), nil, nil); err == nil {
		t.Fatal("Decrypt() error = nil for truncated ciphertext, want error")
	}
}

func TestDuplicatePassphraseDedupesToOneSlot(t *testing.T) {
	recs := []identity.Recipient{
		identity.NewPassphraseRecipient("identical passphrase here"),
		identity.NewPassphraseRecipient("identical passphrase here"),
	}
	var out bytes.Buffer
	opts := EncryptOptions{Recipients: recs, PaddingProportion: 0.05}
	if err := Encrypt(&out, rand.Reader, messageSource("dedup test"), opts); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	file, err := Decrypt(bytes.NewReader(out.Bytes()), nil, [][]byte{[]byte("identical passphrase here")})
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(file.Message()) != "dedup test" {
		t.Fatalf("Message() = %q, want %q", file.Message(), "dedup test")
	}
}

func TestRejectsConflictingRecipientsAndWideOpen(t *testing.T) {
	id, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	var out bytes.Buffer
	opts := EncryptOptions{
		WideOpen:   true,
		Recipients: []identity.Recipient{identity.NewPublicKeyRecipient(id.PublicKey)},
	}
	if err := Encrypt(&out, rand.Reader, messageSource("x"), opts); err != ErrConflictingRecipients {
		t.Fatalf("Encrypt() error = %v, want ErrConflictingRecipients", err)
	}
}

func TestRejectsNoRecipients(t *testing.T) {
	var out bytes.Buffer
	if err := Encrypt(&out, rand.Reader, messageSource("x"), EncryptOptions{}); err != ErrNoRecipients {
		t.Fatalf("Encrypt() error = %v, want ErrNoRecipients", err)
	}
}

func TestTwoEncryptionsOfSameInputDiffer(t *testing.T) {
	opts := EncryptOptions{WideOpen: true, PaddingProportion: 0.05}

	var out1, out2 bytes.Buffer
	if err := Encrypt(&out1, rand.Reader, messageSource("same plaintext"), opts); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if err := Encrypt(&out2, rand.Reader, messageSource("same plaintext"), opts); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if bytes.Equal(out1.Bytes(), out2.Bytes()) {
		t.Fatal("two encryptions of identical input produced identical ciphertext")
	}

	f1, err := Decrypt(bytes.NewReader(out1.Bytes()), nil, nil)
	if err != nil {
		t.Fatalf("Decrypt(1) error = %v", err)
	}
	f2, err := Decrypt(bytes.NewReader(out2.Bytes()), nil, nil)
	if err != nil {
		t.Fatalf("Decrypt(2) error = %v", err)
	}
	if string(f1.Message()) != string(f2.Message()) {
		t.Fatal("two encryptions of identical input decrypted to different plaintext")
	}
}

func TestSignedWideOpenVerification(t *testing.T) {
	signer, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	impostor, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var out bytes.Buffer
	opts := EncryptOptions{
		WideOpen:          true,
		PaddingProportion: 0.05,
		Signers:           []identity.Identity{signer},
	}
	if err := Encrypt(&out, rand.Reader, messageSource("data"), opts); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	file, err := Decrypt(bytes.NewReader(out.Bytes()), nil, nil)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if len(file.SignatureBlocks) != 1 {
		t.Fatalf("len(SignatureBlocks) = %d, want 1", len(file.SignatureBlocks))
	}

	if _, _, ok := verifyAgainst(file, []identity.Identity{signer}); !ok {
		t.Error("signature did not verify against the real signer")
	}
	if _, _, ok := verifyAgainst(file, []identity.Identity{impostor}); ok {
		t.Error("signature verified against an impostor public key")
	}
}
