package primitives

import "golang.org/x/crypto/argon2"

// DefaultArgon2Memory is the memory cost in KiB used by the header layer's
// passphrase KDF: 256 MiB, per the latest revision of the design (spec §9
// Open Questions — earlier revisions used 100/200 MiB).
const DefaultArgon2Memory = 256 * 1024

// Argon2id derives hashLen bytes from password and salt using the Argon2id
// hybrid variant, at the given time cost and the package default memory
// cost and a single parallelism lane (spec §4.1 — parallelism=1 keeps the
// memory access pattern single-lane so the cost estimate is reproducible
// across hosts).
func Argon2id(password, salt []byte, timeCost uint32, hashLen uint32) []byte {
	return argon2.IDKey(password, salt, timeCost, DefaultArgon2Memory, 1, hashLen)
}
