package archive

import (
	"bufio"
	"fmt"
	"io"

	"github.com/tinylib/msgp/msgp"
)

// Decoder reads a Short- or Advanced-form archive sequentially from an
// underlying reader, exposing one Entry plus a payload reader at a time.
type Decoder struct {
	r       *bufio.Reader
	entries []Entry
	index   int
	short   bool
}

// NewDecoder peeks the first MessagePack value on r to choose between Short
// and Advanced form (spec §4.4: "the decoder selects between forms by the
// type of the first non-NIL value read") and parses the index eagerly.
func NewDecoder(r io.Reader) (*Decoder, error) {
	br := bufio.NewReader(r)

	for {
		b, err := br.Peek(1)
		if err != nil || b[0] != 0xC0 {
			break
		}
		br.Discard(1)
	}

	t, err := peekType(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	d := &Decoder{r: br}

	switch t {
	case msgp.MapType:
		entries, err := readIndex(br)
		if err != nil {
			return nil, err
		}
		d.entries = entries
	case msgp.IntType, msgp.UintType:
		size, err := readInt(br)
		if err != nil {
			return nil, fmt.Errorf("%w: short-form size: %v", ErrFormat, err)
		}
		d.entries = []Entry{{IsMessage: true, Size: size}}
		d.short = true
	default:
		return nil, fmt.Errorf("%w: unexpected leading type %v", ErrFormat, t)
	}

	return d, nil
}

// Entries returns the parsed index. For Short form this is a single
// synthetic entry equivalent to {f: [[size, NIL, {}]]}.
func (d *Decoder) Entries() []Entry {
	return d.entries
}

// NextPayload copies the next entry's payload to dst in index order. For a
// streaming entry (Entry.Streaming) it consumes the chunk-framed encoding
// until the terminating zero-length chunk; otherwise it copies exactly
// Entry.Size bytes.
func (d *Decoder) NextPayload(dst io.Writer) error {
	if d.index >= len(d.entries) {
		return fmt.Errorf("%w: no more archive entries", ErrFormat)
	}
	entry := d.entries[d.index]
	d.index++

	if !entry.Streaming {
		if entry.Size == 0 {
			return nil
		}
		_, err := io.CopyN(dst, d.r, entry.Size)
		if err != nil {
			return fmt.Errorf("%w: truncated payload: %v", ErrFormat, err)
		}
		return nil
	}

	for {
		n, err := readInt(d.r)
		if err != nil {
			return fmt.Errorf("%w: streaming chunk length: %v", ErrFormat, err)
		}
		if n < 0 {
			return fmt.Errorf("%w: negative streaming chunk length", ErrFormat)
		}
		if n == 0 {
			return nil
		}
		if _, err := io.CopyN(dst, d.r, n); err != nil {
			return fmt.Errorf("%w: truncated streaming chunk: %v", ErrFormat, err)
		}
	}
}

// DiscardPadding consumes the remaining bytes on the stream, which must all
// be MessagePack NIL (0xC0); any other byte value is a format error.
func (d *Decoder) DiscardPadding() error {
	for {
		b, err := d.r.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if b != 0xC0 {
			return fmt.Errorf("%w: non-NIL byte in padding region", ErrFormat)
		}
	}
}

func peekType(r *bufio.Reader) (msgp.Type, error) {
	b, err := r.Peek(1)
	if err != nil {
		return msgp.InvalidType, err
	}
	return msgp.NextType(b), nil
}

func readInt(r *bufio.Reader) (int64, error) {
	b, err := r.Peek(9)
	if err != nil && len(b) == 0 {
		return 0, err
	}
	v, rest, err := msgp.ReadInt64Bytes(b)
	if err != nil {
		return 0, err
	}
	consumed := len(b) - len(rest)
	if _, err := r.Discard(consumed); err != nil {
		return 0, err
	}
	return v, nil
}

func readString(r *bufio.Reader) (string, error) {
	b, err := peekVarLen(r)
	if err != nil {
		return "", err
	}
	v, rest, err := msgp.ReadStringBytes(b)
	if err != nil {
		return "", err
	}
	if _, err := r.Discard(len(b) - len(rest)); err != nil {
		return "", err
	}
	return v, nil
}

// peekVarLen returns a buffer large enough to contain one complete
// MessagePack value starting at the reader's current position, using
// msgp.Skip to discover its length without consuming it.
func peekVarLen(r *bufio.Reader) ([]byte, error) {
	for size := 16; ; size *= 2 {
		b, err := r.Peek(size)
		if _, skipErr := msgp.Skip(b); skipErr == nil {
			return b, nil
		}
		if err != nil {
			if len(b) == 0 {
				return nil, err
			}
			return b, nil
		}
	}
}

func readIndex(r *bufio.Reader) ([]Entry, error) {
	mapSize, err := readMapHeader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: index map header: %v", ErrFormat, err)
	}

	var entries []Entry
	for i := uint32(0); i < mapSize; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: index key: %v", ErrFormat, err)
		}

		if key != indexKey {
			if len(key) == 1 {
				return nil, fmt.Errorf("%w: unknown reserved index key %q", ErrFormat, key)
			}
			// Unknown multi-character index keys are skipped, per spec
			// §3; their values are not kept.
			if err := skipValue(r); err != nil {
				return nil, err
			}
			continue
		}

		entries, err = readEntries(r)
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func readEntries(r *bufio.Reader) ([]Entry, error) {
	n, err := readArrayHeader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: entry array header: %v", ErrFormat, err)
	}

	entries := make([]Entry, 0, n)
	for i := uint32(0); i < n; i++ {
		entry, err := readEntry(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func readEntry(r *bufio.Reader) (Entry, error) {
	fieldCount, err := readArrayHeader(r)
	if err != nil || fieldCount != 3 {
		return Entry{}, fmt.Errorf("%w: entry must be a 3-element array", ErrFormat)
	}

	var e Entry
	isNil, err := peekIsNil(r)
	if err != nil {
		return Entry{}, err
	}
	if isNil {
		if err := skipValue(r); err != nil {
			return Entry{}, err
		}
		e.Streaming = true
	} else {
		size, err := readInt(r)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: entry size: %v", ErrFormat, err)
		}
		e.Size = size
	}

	isNil, err = peekIsNil(r)
	if err != nil {
		return Entry{}, err
	}
	if isNil {
		if err := skipValue(r); err != nil {
			return Entry{}, err
		}
		e.IsMessage = true
	} else {
		name, err := readString(r)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: entry name: %v", ErrFormat, err)
		}
		e.Name = name
	}

	meta, err := readMeta(r)
	if err != nil {
		return Entry{}, err
	}
	e.Executable = meta.executable
	e.Extra = meta.extra

	return e, nil
}

type metaFields struct {
	executable bool
	extra      map[string]interface{}
}

func readMeta(r *bufio.Reader) (metaFields, error) {
	n, err := readMapHeader(r)
	if err != nil {
		return metaFields{}, fmt.Errorf("%w: entry meta header: %v", ErrFormat, err)
	}

	var m metaFields
	for i := uint32(0); i < n; i++ {
		key, err := readString(r)
		if err != nil {
			return metaFields{}, fmt.Errorf("%w: meta key: %v", ErrFormat, err)
		}

		switch {
		case key == metaExecKey:
			v, err := readBool(r)
			if err != nil {
				return metaFields{}, fmt.Errorf("%w: exec meta value: %v", ErrFormat, err)
			}
			m.executable = v
		case len(key) == 1:
			return metaFields{}, fmt.Errorf("%w: unknown reserved meta key %q", ErrFormat, key)
		default:
			val, err := readAny(r)
			if err != nil {
				return metaFields{}, err
			}
			if m.extra == nil {
				m.extra = make(map[string]interface{})
			}
			m.extra[key] = val
		}
	}
	return m, nil
}

func readMapHeader(r *bufio.Reader) (uint32, error) {
	b, err := peekVarLen(r)
	if err != nil {
		return 0, err
	}
	v, rest, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return 0, err
	}
	_, err = r.Discard(len(b) - len(rest))
	return v, err
}

func readArrayHeader(r *bufio.Reader) (uint32, error) {
	b, err := peekVarLen(r)
	if err != nil {
		return 0, err
	}
	v, rest, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return 0, err
	}
	_, err = r.Discard(len(b) - len(rest))
	return v, err
}

func readBool(r *bufio.Reader) (bool, error) {
	b, err := r.Peek(1)
	if err != nil {
		return false, err
	}
	v, rest, err := msgp.ReadBoolBytes(b)
	if err != nil {
		return false, err
	}
	_, err = r.Discard(len(b) - len(rest))
	return v, err
}

func peekIsNil(r *bufio.Reader) (bool, error) {
	b, err := r.Peek(1)
	if err != nil {
		return false, err
	}
	return msgp.IsNil(b), nil
}

func skipValue(r *bufio.Reader) error {
	b, err := peekVarLen(r)
	if err != nil {
		return err
	}
	rest, err := msgp.Skip(b)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	_, err = r.Discard(len(b) - len(rest))
	return err
}

// readAny decodes an arbitrary MessagePack value for preservation inside an
// Entry's Extra map (spec §3: unknown multi-character keys are kept, not
// merely skipped, so a re-encode round-trips them).
func readAny(r *bufio.Reader) (interface{}, error) {
	b, err := peekVarLen(r)
	if err != nil {
		return nil, err
	}
	v, rest, err := msgp.ReadIntfBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	_, err = r.Discard(len(b) - len(rest))
	return v, err
}
