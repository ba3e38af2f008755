// Package blockstream segments a byte stream into chained authenticated
// blocks (spec §4.3): each block is ChaCha20-Poly1305-sealed with a
// length-prefixed continuation announcing the next block's size, and a
// running SHA-512 hash is chained across every block's Poly1305 tag.
package blockstream

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/postalsys/covert/internal/primitives"
)

// MaxBlockPlaintext is the largest plaintext a single block may carry
// (spec §4.3: "maximum block plaintext is 2^24-1 bytes").
const MaxBlockPlaintext = 1<<24 - 1

// nextlenSize is the width in bytes of the length-prefixed continuation
// field appended to every block's plaintext before sealing.
const nextlenSize = 3

var (
	// ErrAuthFail is returned for any tag mismatch; truncation and
	// tampering are indistinguishable by design (spec §4.3).
	ErrAuthFail = primitives.ErrAuthFail

	// ErrBlockTooLarge is returned when a caller asks to encode more than
	// MaxBlockPlaintext bytes in one block.
	ErrBlockTooLarge = errors.New("blockstream: plaintext exceeds 2^24-1 bytes")

	// ErrEmptyNonFirstBlock is returned when a zero-length block is
	// requested anywhere but block 0 (only an empty archive may produce
	// an immediately-terminating block 0).
	ErrEmptyNonFirstBlock = errors.New("blockstream: only block 0 may be empty")
)

// initialSigningHash is h_0 = SHA512(""), per the "latest specification"
// reading of the Open Question in spec §9 (the alternative, SHA512(header),
// is explicitly not used here).
func initialSigningHash() [64]byte {
	return primitives.SHA512()
}

// Encoder seals successive blocks of a single file's block stream and
// maintains the running signing hash and nonce counter.
type Encoder struct {
	fileKey     [primitives.KeySize]byte
	nonce       [primitives.NonceSize]byte
	header      []byte
	blockIndex  int
	signingHash [64]byte
}

// NewEncoder starts a block stream under fileKey and fileNonce, with header
// serving as AAD for block 0 only.
func NewEncoder(fileKey [primitives.KeySize]byte, fileNonce [primitives.NonceSize]byte, header []byte) *Encoder {
	return &Encoder{
		fileKey:     fileKey,
		nonce:       fileNonce,
		header:      header,
		signingHash: initialSigningHash(),
	}
}

// EncodeBlock seals plaintext together with nextlen (the plaintext length
// the caller intends for the following block; 0 terminates the stream) and
// advances the encoder's nonce counter and signing hash.
func (e *Encoder) EncodeBlock(plaintext []byte, nextlen uint32) ([]byte, error) {
	if len(plaintext) > MaxBlockPlaintext {
		return nil, ErrBlockTooLarge
	}
	if len(plaintext) == 0 && e.blockIndex != 0 {
		return nil, ErrEmptyNonFirstBlock
	}

	framed := make([]byte, 0, len(plaintext)+nextlenSize)
	framed = append(framed, plaintext...)
	framed = appendUint24LE(framed, nextlen)

	aad := e.blockAAD()
	ciphertext, err := primitives.Seal(nil, e.fileKey[:], e.nonce[:], aad, framed)
	if err != nil {
		return nil, fmt.Errorf("blockstream: seal block %d: %w", e.blockIndex, err)
	}

	e.advance(ciphertext)
	return ciphertext, nil
}

// SigningHash returns the signing hash accumulated so far. After the final
// (nextlen == 0) block has been encoded, this is the file's filehash.
func (e *Encoder) SigningHash() [64]byte {
	return e.signingHash
}

func (e *Encoder) blockAAD() []byte {
	if e.blockIndex == 0 {
		return e.header
	}
	return nil
}

func (e *Encoder) advance(ciphertext []byte) {
	tag := ciphertext[len(ciphertext)-primitives.TagSize:]
	e.signingHash = primitives.SHA512(e.signingHash[:], tag)
	e.blockIndex++
	incrementNonce(&e.nonce)
}

// Decoder opens successive blocks of a block stream, mirroring Encoder.
type Decoder struct {
	fileKey     [primitives.KeySize]byte
	nonce       [primitives.NonceSize]byte
	header      []byte
	blockIndex  int
	signingHash [64]byte
}

// NewDecoder starts a decoder for a stream sealed under fileKey/fileNonce
// with header as the AAD that must match block 0's.
func NewDecoder(fileKey [primitives.KeySize]byte, fileNonce [primitives.NonceSize]byte, header []byte) *Decoder {
	return &Decoder{
		fileKey:     fileKey,
		nonce:       fileNonce,
		header:      header,
		signingHash: initialSigningHash(),
	}
}

// DecodeBlock opens the next block's ciphertext, returning its plaintext
// and the nextlen it announces. Any tag mismatch collapses to ErrAuthFail.
func (d *Decoder) DecodeBlock(ciphertext []byte) (plaintext []byte, nextlen uint32, err error) {
	if len(ciphertext) < primitives.TagSize+nextlenSize {
		return nil, 0, ErrAuthFail
	}

	aad := d.blockAAD()
	framed, err := primitives.Open(nil, d.fileKey[:], d.nonce[:], aad, ciphertext)
	if err != nil {
		return nil, 0, err
	}

	if len(framed) < nextlenSize {
		return nil, 0, ErrAuthFail
	}
	split := len(framed) - nextlenSize
	plaintext = framed[:split]
	nextlen = readUint24LE(framed[split:])

	if len(plaintext) == 0 && d.blockIndex != 0 {
		return nil, 0, ErrEmptyNonFirstBlock
	}

	d.advance(ciphertext)
	return plaintext, nextlen, nil
}

// SigningHash returns the signing hash accumulated so far.
func (d *Decoder) SigningHash() [64]byte {
	return d.signingHash
}

func (d *Decoder) blockAAD() []byte {
	if d.blockIndex == 0 {
		return d.header
	}
	return nil
}

func (d *Decoder) advance(ciphertext []byte) {
	tag := ciphertext[len(ciphertext)-primitives.TagSize:]
	d.signingHash = primitives.SHA512(d.signingHash[:], tag)
	d.blockIndex++
	incrementNonce(&d.nonce)
}

// incrementNonce adds 1 to nonce, interpreted as a 96-bit little-endian
// unsigned counter, matching the block nonce schedule of spec §3/§4.3.
func incrementNonce(nonce *[primitives.NonceSize]byte) {
	for i := range nonce {
		nonce[i]++
		if nonce[i] != 0 {
			return
		}
	}
}

func appendUint24LE(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[0], buf[1], buf[2])
}

func readUint24LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}
