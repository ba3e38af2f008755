package header

import (
	"github.com/postalsys/covert/internal/identity"
	"github.com/postalsys/covert/internal/primitives"
)

// TryBlock0 attempts to AEAD-open a block-0 candidate given a file key,
// file nonce, the header bytes used as AAD, and the ciphertext bytes
// immediately following the header in the input stream. It returns the
// decoded plaintext and true on success. Supplied by the block stream
// layer so this package never needs to know block framing.
type TryBlock0 func(fileKey [primitives.KeySize]byte, fileNonce [primitives.NonceSize]byte, headerBytes, rest []byte) (plaintext []byte, ok bool)

// Opened is the result of a successful BlindSearch.
type Opened struct {
	FileKey   [primitives.KeySize]byte
	FileNonce [primitives.NonceSize]byte
	HeaderLen int
	Plaintext []byte

	// Attempts is how many (key, header length) candidates the search
	// passed to try before it succeeded or exhausted every candidate, set
	// regardless of outcome. One try call may itself make many AEAD opens.
	Attempts int
}

// candidateKeySet returns every file-key material derivable from ids
// (identities and bare passphrases) against a given file nonce, plus the
// always-present wide-open zero key.
func candidateKeySet(ids []identity.Identity, passphrases [][]byte, ephPK [primitives.KeySize]byte, fileNonce [primitives.NonceSize]byte, haveEphash bool) [][primitives.KeySize]byte {
	out := make([][primitives.KeySize]byte, 0, len(ids)+len(passphrases)+1)
	for _, pw := range passphrases {
		out = append(out, derivePassphraseKey(pw, fileNonce))
	}
	if haveEphash {
		for _, id := range ids {
			shared, err := primitives.X25519(id.SecretKey, ephPK)
			if err != nil {
				continue
			}
			digest := primitives.SHA512(fileNonce[:], shared[:])
			var key [primitives.KeySize]byte
			copy(key[:], digest[:primitives.KeySize])
			out = append(out, key)
		}
	}
	out = append(out, [primitives.KeySize]byte{}) // wide-open
	return out
}

// BlindSearch implements spec §4.2's blind decryption trial search. data
// must contain at least the header prefix plus enough of the block stream
// for try to make a determination (the covert package's try looks at most
// 1024 bytes past the header). It tries the Short shape first (data's leading 12 bytes as
// both nonce and, for every passphrase, a file key candidate; and the
// wide-open zero key), then the Advanced shape across every plausible
// header length and auth-slot offset.
func BlindSearch(ids []identity.Identity, passphrases [][]byte, data []byte, try TryBlock0) (Opened, bool) {
	if len(data) < primitives.NonceSize {
		return Opened{}, false
	}

	var fileNonce [primitives.NonceSize]byte
	copy(fileNonce[:], data[:primitives.NonceSize])

	attempts := 0

	// Short mode: header is exactly the 12-byte nonce; file key is the
	// candidate itself (no slot, nothing to XOR).
	for _, key := range candidateKeySet(ids, passphrases, [primitives.KeySize]byte{}, fileNonce, false) {
		attempts++
		if pt, ok := try(key, fileNonce, data[:primitives.NonceSize], data[primitives.NonceSize:]); ok {
			return Opened{FileKey: key, FileNonce: fileNonce, HeaderLen: primitives.NonceSize, Plaintext: pt, Attempts: attempts}, true
		}
	}

	// Advanced mode: bytes 0..32 are the ephash.
	if len(data) < slotSize {
		return Opened{Attempts: attempts}, false
	}
	var ephash [primitives.KeySize]byte
	copy(ephash[:], data[:slotSize])
	ephPK, err := primitives.Elligator2Decode(ephash)
	if err != nil {
		return Opened{Attempts: attempts}, false
	}
	copy(fileNonce[:], ephash[:primitives.NonceSize])

	keys := candidateKeySet(ids, passphrases, ephPK, fileNonce, true)

	// Slot offset and header length vary independently: the slot that
	// reveals a given recipient's candidate key says nothing about how
	// many further decoy or other-recipient slots follow it in the file
	// (spec §4.2 step 3 vs step 4). Every candidate key is therefore
	// tried against every plausible header length.
	candidateKeys := make([][primitives.KeySize]byte, 0, len(keys)*MaxRecipients)
	for _, k := range keys {
		candidateKeys = append(candidateKeys, k) // slot offset 0: key used directly
		for slotOffset := 1; slotOffset < MaxRecipients; slotOffset++ {
			start := slotSize + (slotOffset-1)*slotSize
			if start+slotSize > len(data) {
				break
			}
			var slot [slotSize]byte
			copy(slot[:], data[start:start+slotSize])
			candidateKeys = append(candidateKeys, primitives.XORKey(k, slot))
		}
	}

	maxHeaderLen := len(data)
	if maxHeaderLen > MaxHeaderLen {
		maxHeaderLen = MaxHeaderLen
	}

	for headerLen := slotSize; headerLen <= maxHeaderLen; headerLen += slotSize {
		for _, candidateKey := range candidateKeys {
			attempts++
			if pt, ok := try(candidateKey, fileNonce, data[:headerLen], data[headerLen:]); ok {
				return Opened{FileKey: candidateKey, FileNonce: fileNonce, HeaderLen: headerLen, Plaintext: pt, Attempts: attempts}, true
			}
		}
	}

	return Opened{Attempts: attempts}, false
}
