package primitives

import (
	"fmt"

	"filippo.io/edwards25519/field"
)

// curveA is the Montgomery curve parameter A (486662) of Curve25519,
// y^2 = x^3 + A x^2 + x, as a field element.
var curveA = newFieldElementFromUint64(486662)

func newFieldElementFromUint64(v uint64) *field.Element {
	var b [32]byte
	for i := 0; v > 0; i++ {
		b[i] = byte(v)
		v >>= 8
	}
	e, err := new(field.Element).SetBytes(b[:])
	if err != nil {
		panic(fmt.Sprintf("primitives: invalid field constant: %v", err))
	}
	return e
}

// Elligator2Encode maps a Curve25519 public key pk to its 32-byte Elligator2
// representative (the "ephash"), using the non-square constant 2 per spec
// §4.1. Two of the low bits of rand3bits pick which of the two possible
// representatives to emit (decoding only ever uses r^2, so either sign
// works); the high two bits are folded into the unused high bits of the
// representative's last byte so the wire bytes carry no structure.
//
// Only about half of all Curve25519 public keys are representable this way
// — ok is false for the rest, and callers must draw a fresh ephemeral
// keypair and retry (spec: "expected 2 attempts").
func Elligator2Encode(pk [KeySize]byte, rand3bits byte) (ephash [KeySize]byte, ok bool) {
	x, err := new(field.Element).SetBytes(pk[:])
	if err != nil {
		return ephash, false
	}

	one := new(field.Element).One()
	two := new(field.Element).Add(one, one)

	// Case A: pk was produced as w = -A/(1+2r^2), i.e. r^2 = -(A+x)/(2x).
	negAx := new(field.Element).Add(curveA, x)
	negAx.Negate(negAx)
	denomA := new(field.Element).Multiply(two, x)
	r, wasSquare := new(field.Element).SqrtRatio(negAx, denomA)

	if wasSquare != 1 {
		// Case B: pk was produced via the curve's reflection, x = -w-A,
		// i.e. w = -x-A, giving r^2 = -x/(2(x+A)).
		negX := new(field.Element).Negate(x)
		denomB := new(field.Element).Multiply(two, new(field.Element).Add(x, curveA))
		r, wasSquare = new(field.Element).SqrtRatio(negX, denomB)
		if wasSquare != 1 {
			return ephash, false
		}
	}

	if rand3bits&1 == 1 {
		r.Negate(r)
	}

	b := r.Bytes()
	b[31] &= 0x3F
	b[31] |= (rand3bits & 0x6) << 5
	copy(ephash[:], b)
	return ephash, true
}

// Elligator2Decode recovers the Curve25519 public key hidden behind a
// 32-byte Elligator2 representative. Decoding always succeeds for any
// 32-byte input (the high two bits are masked off first, per spec §4.1),
// which is what lets the header layer treat an ephash as uniform random.
func Elligator2Decode(ephash [KeySize]byte) ([KeySize]byte, error) {
	var pk [KeySize]byte

	b := ephash
	b[31] &= 0x3F
	r, err := new(field.Element).SetBytes(b[:])
	if err != nil {
		return pk, fmt.Errorf("primitives: elligator2 decode: %w", err)
	}

	one := new(field.Element).One()
	two := new(field.Element).Add(one, one)

	rr2 := new(field.Element).Multiply(two, new(field.Element).Square(r))
	denom := new(field.Element).Add(one, rr2)
	w := new(field.Element).Multiply(curveA, new(field.Element).Invert(denom))
	w.Negate(w)

	w2 := new(field.Element).Square(w)
	w3 := new(field.Element).Multiply(w2, w)
	aw2 := new(field.Element).Multiply(curveA, w2)
	rhs := new(field.Element).Add(w3, aw2)
	rhs.Add(rhs, w)

	_, wasSquare := new(field.Element).SqrtRatio(rhs, one)

	var x *field.Element
	if wasSquare == 1 {
		x = w
	} else {
		x = new(field.Element).Negate(w)
		x.Subtract(x, curveA)
	}

	copy(pk[:], x.Bytes())
	return pk, nil
}
