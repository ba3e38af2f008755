package primitives

import (
	"bytes"
	"crypto/sha512"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"filippo.io/edwards25519/field"
)

// xeddsaNoncePrefix domain-separates the nonce hash used below from a
// standard Ed25519 signature over the same scalar, so a Curve25519 secret
// key can safely be reused for X25519 key agreement and for signing.
var xeddsaNoncePrefix = [32]byte{
	0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe,
	0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe,
	0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe,
	0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe,
}

// XEdDSASign signs msg (normally a 64-byte filehash, spec §4.5) with the
// Montgomery-form Curve25519 secret key sk, producing a 64-byte signature
// compatible with verification against the matching Montgomery public key
// — no separate Ed25519 keypair is needed.
func XEdDSASign(r io.Reader, sk [KeySize]byte, msg []byte) ([64]byte, error) {
	var sig [64]byte

	a := edwards25519.NewScalar().SetBytesWithClamping(sk[:])
	A := new(edwards25519.Point).ScalarBaseMult(a)
	aBytes := A.Bytes()

	// Force the sign bit of the Edwards public key to 0 so Verify can
	// rebuild the same point deterministically from the Montgomery key
	// alone (which carries no sign information).
	if aBytes[31]&0x80 != 0 {
		a.Negate(a)
		A = new(edwards25519.Point).ScalarBaseMult(a)
		aBytes = A.Bytes()
	}

	nonceSeed, err := RandomBytes(r, 32)
	if err != nil {
		return sig, err
	}

	h1 := sha512.New()
	h1.Write(xeddsaNoncePrefix[:])
	h1.Write(a.Bytes())
	h1.Write(nonceSeed)
	h1.Write(msg)
	rScalar, err := edwards25519.NewScalar().SetUniformBytes(h1.Sum(nil))
	if err != nil {
		return sig, fmt.Errorf("primitives: xeddsa nonce reduction: %w", err)
	}

	R := new(edwards25519.Point).ScalarBaseMult(rScalar)
	rBytes := R.Bytes()

	h2 := sha512.New()
	h2.Write(rBytes)
	h2.Write(aBytes)
	h2.Write(msg)
	hScalar, err := edwards25519.NewScalar().SetUniformBytes(h2.Sum(nil))
	if err != nil {
		return sig, fmt.Errorf("primitives: xeddsa challenge reduction: %w", err)
	}

	sScalar := edwards25519.NewScalar().Multiply(hScalar, a)
	sScalar.Add(sScalar, rScalar)

	copy(sig[:32], rBytes)
	copy(sig[32:], sScalar.Bytes())
	return sig, nil
}

// XEdDSAVerify checks sig against msg for the Montgomery-form Curve25519
// public key pk. It returns false for any structurally invalid input
// (not a valid curve point, non-canonical scalar) as well as for a
// genuine signature mismatch — callers fold this into AuthFail, per spec
// §4.5: AEAD success alone never substitutes for this check, since the
// signature key is itself derivable from the filehash by anyone.
func XEdDSAVerify(pk [KeySize]byte, msg []byte, sig [64]byte) bool {
	u, err := new(field.Element).SetBytes(pk[:])
	if err != nil {
		return false
	}

	one := new(field.Element).One()
	num := new(field.Element).Subtract(u, one)
	den := new(field.Element).Add(u, one)
	y := new(field.Element).Multiply(num, new(field.Element).Invert(den))

	yBytes := y.Bytes()
	yBytes[31] &= 0x7F

	A, err := new(edwards25519.Point).SetBytes(yBytes)
	if err != nil {
		return false
	}

	R, err := new(edwards25519.Point).SetBytes(sig[:32])
	if err != nil {
		return false
	}

	sScalar, err := edwards25519.NewScalar().SetCanonicalBytes(sig[32:])
	if err != nil {
		return false
	}

	h2 := sha512.New()
	h2.Write(sig[:32])
	h2.Write(A.Bytes())
	h2.Write(msg)
	hScalar, err := edwards25519.NewScalar().SetUniformBytes(h2.Sum(nil))
	if err != nil {
		return false
	}

	negH := edwards25519.NewScalar().Negate(hScalar)
	check := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(negH, A, sScalar)

	return bytes.Equal(check.Bytes(), R.Bytes())
}
