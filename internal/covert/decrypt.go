package covert

import (
	"bytes"
	"fmt"
	"io"

	"github.com/postalsys/covert/internal/archive"
	"github.com/postalsys/covert/internal/blockstream"
	"github.com/postalsys/covert/internal/header"
	"github.com/postalsys/covert/internal/identity"
	"github.com/postalsys/covert/internal/metrics"
	"github.com/postalsys/covert/internal/primitives"
	"github.com/postalsys/covert/internal/signature"
)

// blindSearchWindow bounds how far past the header the blind search probes
// for a plausible block-0 end offset. Encrypt keeps block 0 within it.
const blindSearchWindow = 1024

// File is a fully decrypted and parsed Covert container.
type File struct {
	Entries         []archive.Entry
	Payloads        [][]byte // parallel to Entries
	Filehash        [64]byte
	SignatureBlocks [][signature.BlockSize]byte
}

// Message returns the concatenated bytes of every message entry (a nil
// Name), matching spec §4.4's "concatenated in order if multiple messages
// exist" note.
func (f *File) Message() []byte {
	var out []byte
	for i, e := range f.Entries {
		if e.IsMessage {
			out = append(out, f.Payloads[i]...)
		}
	}
	return out
}

// Decrypt reads a full Covert container from r and recovers its contents
// using a blind trial search over ids and passphrases (spec §4.2). Any
// failure — wrong key, truncation, or tampering — is reported uniformly as
// ErrAuthFail.
func Decrypt(r io.Reader, ids []identity.Identity, passphrases [][]byte) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("covert: read: %w", err)
	}

	opened, block0, dec, ok := blindOpenBlock0(data, ids, passphrases)
	metrics.Default().RecordBlindSearchAttempts(opened.Attempts)
	if !ok {
		return nil, ErrAuthFail
	}

	inner := append([]byte(nil), opened.Plaintext...)
	offset := opened.HeaderLen + block0.consumed
	nextlen := block0.nextlen

	for nextlen != 0 {
		end := offset + int(nextlen) + primitives.TagSize
		if end > len(data) {
			return nil, ErrAuthFail
		}
		plaintext, next, err := dec.DecodeBlock(data[offset:end])
		if err != nil {
			return nil, ErrAuthFail
		}
		inner = append(inner, plaintext...)
		offset = end
		nextlen = next
	}

	file, err := parseArchive(inner)
	if err != nil {
		return nil, err
	}
	file.Filehash = dec.SigningHash()
	file.SignatureBlocks = parseSignatureBlocks(data[offset:])

	return file, nil
}

func parseArchive(inner []byte) (*File, error) {
	ad, err := archive.NewDecoder(bytes.NewReader(inner))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	entries := ad.Entries()
	payloads := make([][]byte, len(entries))
	for i := range entries {
		var buf bytes.Buffer
		if err := ad.NextPayload(&buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		payloads[i] = buf.Bytes()
	}
	if err := ad.DiscardPadding(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	return &File{Entries: entries, Payloads: payloads}, nil
}

func parseSignatureBlocks(rest []byte) [][signature.BlockSize]byte {
	var blocks [][signature.BlockSize]byte
	for len(rest) >= signature.BlockSize {
		var b [signature.BlockSize]byte
		copy(b[:], rest[:signature.BlockSize])
		blocks = append(blocks, b)
		rest = rest[signature.BlockSize:]
	}
	return blocks
}

// block0Info carries the details BlindSearch's callback recovers about
// block 0 that header.Opened does not itself expose: how many ciphertext
// bytes it consumed, and the nextlen it announced.
type block0Info struct {
	consumed int
	nextlen  uint32
}

func blindOpenBlock0(data []byte, ids []identity.Identity, passphrases [][]byte) (header.Opened, block0Info, *blockstream.Decoder, bool) {
	var info block0Info
	var dec *blockstream.Decoder

	try := func(key [primitives.KeySize]byte, nonce [primitives.NonceSize]byte, aad, rest []byte) ([]byte, bool) {
		limit := len(rest)
		if limit > blindSearchWindow {
			limit = blindSearchWindow
		}
		minLen := primitives.TagSize + 3
		for end := minLen; end <= limit; end++ {
			candidate := blockstream.NewDecoder(key, nonce, aad)
			plaintext, nextlen, err := candidate.DecodeBlock(rest[:end])
			if err != nil {
				continue
			}
			info = block0Info{consumed: end, nextlen: nextlen}
			dec = candidate
			return plaintext, true
		}
		return nil, false
	}

	opened, ok := header.BlindSearch(ids, passphrases, data, try)
	return opened, info, dec, ok
}
