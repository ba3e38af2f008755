package covert

import (
	"github.com/postalsys/covert/internal/identity"
	"github.com/postalsys/covert/internal/signature"
)

// verifyAgainst checks file's signature blocks against candidates' public
// keys, reporting which identity and which block matched, if any.
func verifyAgainst(file *File, candidates []identity.Identity) (signer identity.Identity, blockIndex int, ok bool) {
	keys := make([][32]byte, len(candidates))
	for i, c := range candidates {
		keys[i] = c.PublicKey
	}

	si, bi, found := signature.VerifyAny(file.SignatureBlocks, file.Filehash, keys)
	if !found {
		return identity.Identity{}, -1, false
	}
	return candidates[si], bi, true
}
