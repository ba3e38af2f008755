package primitives

import "crypto/sha512"

// SHA512 returns the 64-byte SHA-512 digest of data. It underlies the
// signing hash chain (block stream layer), the passphrase two-stage KDF and
// the public-key candidate derivation (header layer), and the signature
// block nonce (signature layer).
func SHA512(data ...[]byte) [64]byte {
	h := sha512.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [64]byte
	copy(out[:], h.Sum(nil))
	return out
}
