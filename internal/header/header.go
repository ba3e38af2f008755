// Package header negotiates Covert's authentication slots: it derives the
// per-recipient candidate keys, picks the file key, and produces or
// consumes the 12-to-640-byte header prefix that precedes the block
// stream (spec §4.2).
package header

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/postalsys/covert/internal/identity"
	"github.com/postalsys/covert/internal/primitives"
)

// Mode selects the on-wire header shape.
type Mode int

const (
	// ModeShort is used for exactly one passphrase recipient, or wide-open,
	// when no decoy slots are requested.
	ModeShort Mode = iota
	// ModeAdvanced is used whenever at least one public-key recipient is
	// present, more than one recipient survives deduplication, or decoy
	// slots are requested.
	ModeAdvanced
)

// slotSize is the width in bytes of every auth slot and of the ephash.
const slotSize = 32

// MaxRecipients bounds both construction and the blind-search decoder
// (spec §4.2: "each file permits at most 20 recipients").
const MaxRecipients = 20

// MaxHeaderLen is the largest header prefix Build can produce: a 32-byte
// ephash plus 19 additional 32-byte slots.
const MaxHeaderLen = slotSize + (MaxRecipients-1)*slotSize

var (
	// ErrTooManyRecipients is returned when more than MaxRecipients
	// distinct recipients are supplied.
	ErrTooManyRecipients = errors.New("header: more than 20 recipients")

	// ErrPassphraseTooShort is returned for a passphrase shorter than 8
	// UTF-8 bytes after NFKC normalization.
	ErrPassphraseTooShort = errors.New("header: passphrase shorter than 8 bytes")

	// ErrNoRecipients is returned when Build is called with an empty
	// recipient set and WideOpen was not requested.
	ErrNoRecipients = errors.New("header: no recipients")

	// ErrAuthFail collapses every header-construction-time authentication
	// failure; the header layer never distinguishes "wrong key" from
	// "malformed input" outward, per spec §7.
	ErrAuthFail = primitives.ErrAuthFail
)

// Built is the result of constructing a header: the on-wire prefix, the
// derived file key, and the file nonce that seeds the block stream.
type Built struct {
	Bytes     []byte
	FileKey   [primitives.KeySize]byte
	FileNonce [primitives.NonceSize]byte
	Mode      Mode
}

// candidate is one recipient's derived key before deduplication.
type candidate struct {
	dedupKey string
	key      [primitives.KeySize]byte
}

// Build derives the file key and emits the header prefix for recipients.
// decoys additional random slots are inserted (Advanced mode only) to
// obscure the true recipient count. r supplies all randomness.
func Build(r io.Reader, recipients []identity.Recipient, decoys int) (Built, error) {
	if len(recipients) == 0 {
		return Built{}, ErrNoRecipients
	}
	if len(recipients) > MaxRecipients {
		return Built{}, ErrTooManyRecipients
	}

	for _, rec := range recipients {
		if rec.Kind == identity.RecipientPassphrase && len(rec.Passphrase) < 8 {
			return Built{}, ErrPassphraseTooShort
		}
	}

	// Dedup #1: by recipient identity string, before any hashing.
	seen := make(map[string]bool, len(recipients))
	unique := make([]identity.Recipient, 0, len(recipients))
	for _, rec := range recipients {
		k := rec.DedupKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, rec)
	}

	onlyPassphraseOrWideOpen := true
	for _, rec := range unique {
		if rec.Kind == identity.RecipientPublicKey {
			onlyPassphraseOrWideOpen = false
		}
	}

	if len(unique) == 1 && onlyPassphraseOrWideOpen && decoys == 0 {
		return buildShort(r, unique[0])
	}
	return buildAdvanced(r, unique, decoys)
}

func buildShort(r io.Reader, rec identity.Recipient) (Built, error) {
	fileNonce, err := randNonce(r)
	if err != nil {
		return Built{}, err
	}

	var fileKey [primitives.KeySize]byte
	switch rec.Kind {
	case identity.RecipientPassphrase:
		fileKey = derivePassphraseKey(rec.Passphrase, fileNonce)
	case identity.RecipientWideOpen:
		// zero key
	default:
		// A lone public-key recipient still needs an ephash, so Build
		// never routes it here; defensive fallback to Advanced shape.
		return buildAdvanced(r, []identity.Recipient{rec}, 0)
	}

	return Built{
		Bytes:     append([]byte(nil), fileNonce[:]...),
		FileKey:   fileKey,
		FileNonce: fileNonce,
		Mode:      ModeShort,
	}, nil
}

func buildAdvanced(r io.Reader, unique []identity.Recipient, decoys int) (Built, error) {
	// Advanced mode always carries an ephash slot — even when no
	// public-key recipient needs it for agreement — so slot 0 never
	// betrays whether a pubkey recipient is present.
	ephSK, ephPK, err := primitives.GenerateX25519Keypair(r)
	if err != nil {
		return Built{}, fmt.Errorf("header: generate ephemeral keypair: %w", err)
	}
	defer primitives.ZeroKey(&ephSK)

	var ephash [primitives.KeySize]byte
	var ok bool
	for attempts := 0; attempts < 64; attempts++ {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Built{}, fmt.Errorf("header: read randomness: %w", err)
		}
		ephash, ok = primitives.Elligator2Encode(ephPK, b[0])
		if ok {
			break
		}
		ephSK, ephPK, err = primitives.GenerateX25519Keypair(r)
		if err != nil {
			return Built{}, fmt.Errorf("header: regenerate ephemeral keypair: %w", err)
		}
	}
	if !ok {
		return Built{}, errors.New("header: no representable ephemeral key found")
	}

	var fileNonce [primitives.NonceSize]byte
	copy(fileNonce[:], ephash[:primitives.NonceSize])

	candidates := make([]candidate, 0, len(unique))
	for _, rec := range unique {
		key, err := deriveCandidateKey(rec, ephSK, fileNonce)
		if err != nil {
			return Built{}, err
		}
		candidates = append(candidates, candidate{dedupKey: rec.DedupKey(), key: key})
	}

	// Dedup #2: by derived key, so distinct recipients that happen to
	// collapse to the same material never produce two slots for one key.
	candidates = dedupByKey(candidates)

	fileKey := candidates[0].key
	slotCount := len(candidates) - 1 + decoys
	if slotCount+1 > MaxRecipients {
		return Built{}, ErrTooManyRecipients
	}

	slots := make([][slotSize]byte, 0, slotCount)
	for _, c := range candidates[1:] {
		slots = append(slots, primitives.XORKey(fileKey, c.key))
	}
	for i := 0; i < decoys; i++ {
		var decoy [slotSize]byte
		if _, err := io.ReadFull(r, decoy[:]); err != nil {
			return Built{}, fmt.Errorf("header: read decoy slot: %w", err)
		}
		slots = append(slots, decoy)
	}
	if err := shuffleSlots(r, slots); err != nil {
		return Built{}, err
	}

	out := make([]byte, 0, slotSize+len(slots)*slotSize)
	out = append(out, ephash[:]...)
	for _, s := range slots {
		out = append(out, s[:]...)
	}

	return Built{
		Bytes:     out,
		FileKey:   fileKey,
		FileNonce: fileNonce,
		Mode:      ModeAdvanced,
	}, nil
}

func deriveCandidateKey(rec identity.Recipient, ephSK [primitives.KeySize]byte, fileNonce [primitives.NonceSize]byte) ([primitives.KeySize]byte, error) {
	switch rec.Kind {
	case identity.RecipientPassphrase:
		return derivePassphraseKey(rec.Passphrase, fileNonce), nil
	case identity.RecipientWideOpen:
		return [primitives.KeySize]byte{}, nil
	case identity.RecipientPublicKey:
		shared, err := primitives.X25519(ephSK, rec.PublicKey)
		if err != nil {
			return [primitives.KeySize]byte{}, fmt.Errorf("header: derive pubkey candidate: %w", err)
		}
		digest := primitives.SHA512(fileNonce[:], shared[:])
		var key [primitives.KeySize]byte
		copy(key[:], digest[:primitives.KeySize])
		return key, nil
	default:
		return [primitives.KeySize]byte{}, fmt.Errorf("header: unknown recipient kind %d", rec.Kind)
	}
}

// derivePassphraseKey implements the two-stage Argon2id KDF of spec §4.2.
func derivePassphraseKey(pw []byte, nonce [primitives.NonceSize]byte) [primitives.KeySize]byte {
	shift := 12 - len(pw)
	if shift < 0 {
		shift = 0
	}
	timeCost1 := uint32(8) << uint(shift)

	pwhash := primitives.Argon2id(pw, []byte("covertpassphrase"), timeCost1, 16)
	keyBytes := primitives.Argon2id(nonce[:], pwhash, 2, primitives.KeySize)

	var key [primitives.KeySize]byte
	copy(key[:], keyBytes)
	return key
}

func dedupByKey(candidates []candidate) []candidate {
	seen := make(map[[primitives.KeySize]byte]bool, len(candidates))
	out := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.key] {
			continue
		}
		seen[c.key] = true
		out = append(out, c)
	}
	return out
}

func shuffleSlots(r io.Reader, slots [][slotSize]byte) error {
	for i := len(slots) - 1; i > 0; i-- {
		j, err := randIndex(r, i+1)
		if err != nil {
			return err
		}
		slots[i], slots[j] = slots[j], slots[i]
	}
	return nil
}

// randIndex returns a value in [0, n) drawn from r without modulo bias,
// by rejection sampling over the smallest sufficient byte width.
func randIndex(r io.Reader, n int) (int, error) {
	if n <= 1 {
		return 0, nil
	}
	limit := uint32((1 << 32) - (uint32(1<<32-1) % uint32(n)) - 1)
	for {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, fmt.Errorf("header: read shuffle randomness: %w", err)
		}
		v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		if v <= limit {
			return int(v % uint32(n)), nil
		}
	}
}

func randNonce(r io.Reader) ([primitives.NonceSize]byte, error) {
	var n [primitives.NonceSize]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return n, fmt.Errorf("header: read nonce: %w", err)
	}
	return n, nil
}

// SystemRandom is the default entropy source for callers that do not need
// deterministic tests (spec Design Note 9: RNG is always passed in).
var SystemRandom io.Reader = rand.Reader
