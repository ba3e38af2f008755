// Package archive implements Covert's inner container: a MessagePack-framed
// index, the concatenated file payloads it describes, and a trailing run of
// padding (spec §4.4). It reads and writes a plain byte stream — the block
// stream layer is free to chunk that stream at any boundary.
package archive

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/tinylib/msgp/msgp"
	"golang.org/x/text/unicode/norm"
)

// ErrFormat is returned for any malformed, disallowed, or unrecognized
// archive structure (spec §4.6: "any parse error ... ⇒ FormatError").
var ErrFormat = errors.New("archive: malformed container")

const (
	// indexKey is the sole reserved top-level index key.
	indexKey = "f"
	// metaExecKey is the sole reserved per-entry meta key (POSIX exec bit).
	metaExecKey = "x"
	// streamChunkSize bounds how much of a streaming source is buffered
	// in memory at once while re-chunking it into MessagePack frames.
	streamChunkSize = 64 * 1024
	// defaultPaddingProportion is used when callers pass a negative p, the
	// sentinel for "unset" (spec §6: 0 is a valid, meaningful value that
	// disables padding entirely, so it must never be silently overridden).
	defaultPaddingProportion = 0.05
)

// Entry describes one archive member, as read back from an index (or
// synthesized for the Short form's implicit single entry).
type Entry struct {
	Name       string // empty when IsMessage is true
	IsMessage  bool
	Executable bool
	Streaming  bool  // Size is unknown; payload is chunk-framed
	Size       int64 // meaningful only when !Streaming
	Extra      map[string]interface{}
}

// FileSource is one archive member to be written by Encode.
type FileSource struct {
	Entry
	Reader io.Reader
}

// countingWriter tracks how many bytes have been written, so Encode can
// size the trailing padding from the exact non-padding byte count S.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Encode writes sources to w as a Short-form (single fixed-size, bare
// entry) or Advanced-form (indexed) archive, followed by padding sized
// from paddingProportion using rng for its random component.
func Encode(w io.Writer, sources []FileSource, paddingProportion float64, rng io.Reader) error {
	if paddingProportion < 0 {
		paddingProportion = defaultPaddingProportion
	}

	cw := &countingWriter{w: w}

	if useShortForm(sources) {
		if err := writeShortHeader(cw, sources[0].Size); err != nil {
			return err
		}
	} else if err := writeIndex(cw, sources); err != nil {
		return err
	}

	for i, s := range sources {
		if err := writePayload(cw, s); err != nil {
			return fmt.Errorf("archive: write payload %d: %w", i, err)
		}
	}

	pad, err := paddingBytes(cw.n, paddingProportion, rng)
	if err != nil {
		return err
	}
	_, err = cw.Write(pad)
	return err
}

func useShortForm(sources []FileSource) bool {
	if len(sources) != 1 {
		return false
	}
	s := sources[0]
	return s.IsMessage && !s.Streaming && !s.Executable && len(s.Extra) == 0
}

func writeShortHeader(w io.Writer, size int64) error {
	_, err := w.Write(msgp.AppendInt64(nil, size))
	return err
}

func writeIndex(w io.Writer, sources []FileSource) error {
	buf := msgp.AppendMapHeader(nil, 1)
	buf = msgp.AppendString(buf, indexKey)
	buf = msgp.AppendArrayHeader(buf, uint32(len(sources)))

	for _, s := range sources {
		buf = msgp.AppendArrayHeader(buf, 3)

		if s.Streaming {
			buf = msgp.AppendNil(buf)
		} else {
			buf = msgp.AppendInt64(buf, s.Size)
		}

		if s.IsMessage {
			buf = msgp.AppendNil(buf)
		} else {
			name := norm.NFKC.String(s.Name)
			if strings.ContainsAny(name, "/\\") {
				return fmt.Errorf("%w: entry name %q contains a path separator", ErrFormat, name)
			}
			buf = msgp.AppendString(buf, name)
		}

		metaSize := uint32(len(s.Extra))
		if s.Executable {
			metaSize++
		}
		buf = msgp.AppendMapHeader(buf, metaSize)
		if s.Executable {
			buf = msgp.AppendString(buf, metaExecKey)
			buf = msgp.AppendBool(buf, true)
		}
		for k, v := range s.Extra {
			buf = msgp.AppendString(buf, k)
			buf = msgp.AppendIntf(buf, v)
		}
	}

	_, err := w.Write(buf)
	return err
}

func writePayload(w io.Writer, s FileSource) error {
	if !s.Streaming {
		if s.Size == 0 {
			return nil
		}
		_, err := io.CopyN(w, s.Reader, s.Size)
		return err
	}

	chunk := make([]byte, streamChunkSize)
	for {
		n, readErr := s.Reader.Read(chunk)
		if n > 0 {
			if _, err := w.Write(msgp.AppendInt64(nil, int64(n))); err != nil {
				return err
			}
			if _, err := w.Write(chunk[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			_, err := w.Write(msgp.AppendInt64(nil, 0))
			return err
		}
		if readErr != nil {
			return readErr
		}
	}
}

// paddingBytes implements the fixed+random padding formula of spec §4.4.
func paddingBytes(s int64, p float64, rng io.Reader) ([]byte, error) {
	fixed := int64(math.Floor(p*500)) - s
	if fixed < 0 {
		fixed = 0
	}

	eff := 200 + 1e8*math.Log(1+1e-8*float64(s+fixed))

	u1, err := readUint32(rng)
	if err != nil {
		return nil, err
	}
	u2, err := readUint32(rng)
	if err != nil {
		return nil, err
	}

	r := math.Log(math.Pow(2, 32)) - math.Log(float64(u1)+float64(u2)*math.Pow(2, -32)+math.Pow(2, -33))
	randomPad := int64(math.Round(r * p * eff))
	if randomPad < 0 {
		randomPad = 0
	}

	total := fixed + randomPad
	out := make([]byte, total)
	for i := range out {
		out[i] = 0xC0 // msgp NIL
	}
	return out, nil
}

func readUint32(rng io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(rng, b[:]); err != nil {
		return 0, fmt.Errorf("archive: read padding randomness: %w", err)
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}
