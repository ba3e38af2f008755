// Package identity manages the local X25519 keypair used to receive
// covert files, and the Recipient values used to address them.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/postalsys/covert/internal/primitives"
)

const (
	// identityPrefix tags the text encoding of a private Identity, so a
	// misplaced secret key is obvious on sight and never mistaken for a
	// Recipient public key.
	identityPrefix = "COVERT-IDENTITY-"

	// recipientPrefix tags the text encoding of a public-key Recipient.
	recipientPrefix = "covert1"

	keyFileName = "identity.key"
)

var (
	// ErrInvalidIdentity is returned when an identity secret key fails to parse.
	ErrInvalidIdentity = errors.New("identity: malformed secret key")

	// ErrInvalidRecipient is returned when a recipient string is neither a
	// valid public key nor usable as a passphrase.
	ErrInvalidRecipient = errors.New("identity: malformed recipient")
)

// Identity is a local X25519 keypair. The same secret scalar doubles as an
// XEdDSA signing key (primitives.XEdDSASign/XEdDSAVerify) — Covert never
// generates a separate Ed25519 keypair.
type Identity struct {
	SecretKey [primitives.KeySize]byte
	PublicKey [primitives.KeySize]byte
}

// Generate creates a new Identity using r as the entropy source.
func Generate(r io.Reader) (Identity, error) {
	sk, pk, err := primitives.GenerateX25519Keypair(r)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: generate: %w", err)
	}
	return Identity{SecretKey: sk, PublicKey: pk}, nil
}

// String encodes the Identity's secret key as text, suitable for writing to
// an identity file. It is never included in any covert ciphertext or header.
func (id Identity) String() string {
	return identityPrefix + strings.ToUpper(hex.EncodeToString(id.SecretKey[:]))
}

// Recipient returns the public-facing Recipient for this Identity.
func (id Identity) Recipient() Recipient {
	return Recipient{Kind: RecipientPublicKey, PublicKey: id.PublicKey}
}

// ParseIdentity decodes an Identity previously produced by String.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, identityPrefix)
	raw, err := hex.DecodeString(strings.ToLower(s))
	if err != nil || len(raw) != primitives.KeySize {
		return Identity{}, ErrInvalidIdentity
	}
	var sk [primitives.KeySize]byte
	copy(sk[:], raw)
	pk, err := primitives.X25519(sk, basepointKey())
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return Identity{SecretKey: sk, PublicKey: pk}, nil
}

// basepointKey lets ParseIdentity recover the public key from a bare secret
// scalar by treating X25519's fixed generator as the "other party".
func basepointKey() [primitives.KeySize]byte {
	var bp [primitives.KeySize]byte
	bp[0] = 9
	return bp
}

// GenerateToFile creates a new Identity and persists it atomically to path.
func GenerateToFile(path string) (Identity, error) {
	id, err := Generate(rand.Reader)
	if err != nil {
		return Identity{}, err
	}
	if err := id.Store(path); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Store writes the Identity to path, creating parent directories as needed
// and replacing any existing file atomically via rename.
func (id Identity) Store(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("identity: create directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(id.String()+"\n"), 0600); err != nil {
		return fmt.Errorf("identity: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("identity: persist: %w", err)
	}
	return nil
}

// Load reads an Identity from path.
func Load(path string) (Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: read %s: %w", path, err)
	}
	return ParseIdentity(string(data))
}

// LoadOrGenerate loads the Identity at path, generating and persisting a new
// one if the file does not yet exist.
func LoadOrGenerate(path string) (Identity, bool, error) {
	id, err := Load(path)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Identity{}, false, err
	}
	id, err = GenerateToFile(path)
	if err != nil {
		return Identity{}, false, err
	}
	return id, true, nil
}

// RecipientKind distinguishes how a Recipient derives its auth-slot key.
type RecipientKind int

const (
	// RecipientPublicKey addresses a recipient by X25519 public key; the
	// header layer derives the slot key via ephemeral X25519 agreement.
	RecipientPublicKey RecipientKind = iota
	// RecipientPassphrase addresses a recipient by shared secret; the
	// header layer derives the slot key via two-stage Argon2id.
	RecipientPassphrase
	// RecipientWideOpen marks a file with no real recipients: its slot key
	// is the all-zero key, so anyone holding the ciphertext can open it.
	RecipientWideOpen
)

// Recipient is the tagged union the header layer consumes: a public key, a
// normalized passphrase, or the wide-open marker. Exactly one of PublicKey
// or Passphrase is meaningful, selected by Kind.
type Recipient struct {
	Kind       RecipientKind
	PublicKey  [primitives.KeySize]byte
	Passphrase []byte
}

// NewPublicKeyRecipient builds a Recipient from a raw X25519 public key.
func NewPublicKeyRecipient(pk [primitives.KeySize]byte) Recipient {
	return Recipient{Kind: RecipientPublicKey, PublicKey: pk}
}

// NewPassphraseRecipient NFKC-normalizes passphrase (spec §4.2) and builds a
// Recipient from the resulting UTF-8 bytes.
func NewPassphraseRecipient(passphrase string) Recipient {
	normalized := norm.NFKC.String(passphrase)
	return Recipient{Kind: RecipientPassphrase, Passphrase: []byte(normalized)}
}

// WideOpenRecipient returns the marker Recipient for unprotected files.
func WideOpenRecipient() Recipient {
	return Recipient{Kind: RecipientWideOpen}
}

// DedupKey returns a value suitable for map-based deduplication of
// recipients that would otherwise derive the same auth-slot key: the public
// key bytes for key-based recipients, the normalized passphrase bytes for
// passphrase recipients. Two Recipient values with equal DedupKey results
// are collapsed to a single auth slot by the header layer.
func (r Recipient) DedupKey() string {
	switch r.Kind {
	case RecipientPublicKey:
		return "pk:" + hex.EncodeToString(r.PublicKey[:])
	case RecipientPassphrase:
		return "pp:" + string(r.Passphrase)
	default:
		return "wide-open"
	}
}

// ParseRecipientPublicKey decodes the covert1... text form of a public-key
// Recipient, as produced by EncodeRecipientPublicKey.
func ParseRecipientPublicKey(s string) (Recipient, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, recipientPrefix) {
		return Recipient{}, ErrInvalidRecipient
	}
	raw, err := hex.DecodeString(s[len(recipientPrefix):])
	if err != nil || len(raw) != primitives.KeySize {
		return Recipient{}, ErrInvalidRecipient
	}
	var pk [primitives.KeySize]byte
	copy(pk[:], raw)
	return NewPublicKeyRecipient(pk), nil
}

// EncodeRecipientPublicKey renders pk as the covert1... text form accepted
// by ParseRecipientPublicKey and printed by `covert keygen`.
func EncodeRecipientPublicKey(pk [primitives.KeySize]byte) string {
	return recipientPrefix + hex.EncodeToString(pk[:])
}
