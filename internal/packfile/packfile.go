// Package packfile implements the binary packfile format: header, a
// sequence of type/size-prefixed zlib-deflated entries (optionally
// ref-delta or ofs-delta encoded), and a trailing SHA-1 checksum.
package packfile

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"

	"github.com/girvc/gir/internal/objstore"
)

// Packfile object types, as encoded in the variable-length entry header.
const (
	typeCommit   = 1
	typeTree     = 2
	typeBlob     = 3
	typeTag      = 4
	typeOfsDelta = 6
	typeRefDelta = 7
)

const magic = "PACK"
const version = 2

// Entry is a single fully-resolved object carried by a pack stream.
type Entry struct {
	Kind    objstore.Kind
	Payload []byte
}

// ErrUnresolvableDelta is returned when the two-pass resolution queue stops
// shrinking before every delta base has been found.
var ErrUnresolvableDelta = errors.New("packfile: unresolvable delta (missing base object)")

func kindToType(k objstore.Kind) (int, error) {
	switch k {
	case objstore.KindCommit:
		return typeCommit, nil
	case objstore.KindTree:
		return typeTree, nil
	case objstore.KindBlob:
		return typeBlob, nil
	case objstore.KindTag:
		return typeTag, nil
	default:
		return 0, errors.Errorf("packfile: unknown kind %q", k)
	}
}

func typeToKind(t int) (objstore.Kind, error) {
	switch t {
	case typeCommit:
		return objstore.KindCommit, nil
	case typeTree:
		return objstore.KindTree, nil
	case typeBlob:
		return objstore.KindBlob, nil
	case typeTag:
		return objstore.KindTag, nil
	default:
		return "", errors.Errorf("packfile: unknown object type %d", t)
	}
}

// Encode serializes entries as an undelta'd pack stream (magic, version,
// count, N type/size-prefixed deflated entries, trailing SHA-1).
func Encode(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	h := sha1.New()
	w := io.MultiWriter(&buf, h)

	if _, err := io.WriteString(w, magic); err != nil {
		return nil, errors.Wrap(err, "write magic")
	}
	if err := binary.Write(w, binary.BigEndian, uint32(version)); err != nil {
		return nil, errors.Wrap(err, "write version")
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(entries))); err != nil {
		return nil, errors.Wrap(err, "write object count")
	}

	for i, e := range entries {
		typ, err := kindToType(e.Kind)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", i)
		}
		writeEntryHeader(w, typ, len(e.Payload))

		zw := zlib.NewWriter(w)
		if _, err := zw.Write(e.Payload); err != nil {
			return nil, errors.Wrapf(err, "entry %d: deflate", i)
		}
		if err := zw.Close(); err != nil {
			return nil, errors.Wrapf(err, "entry %d: close deflate stream", i)
		}
	}

	buf.Write(h.Sum(nil))
	return buf.Bytes(), nil
}

func writeEntryHeader(w io.Writer, typ int, size int) {
	b := byte((typ & 0x07) << 4)
	b |= byte(size & 0x0f)
	remaining := size >> 4
	if remaining > 0 {
		b |= 0x80
	}
	hdr := []byte{b}
	for remaining > 0 {
		b = byte(remaining & 0x7f)
		remaining >>= 7
		if remaining > 0 {
			b |= 0x80
		}
		hdr = append(hdr, b)
	}
	w.Write(hdr)
}

// ResolveBase looks up a ref-delta base object outside the pack (typically
// in the repository's object store). ok is false if the id is not known
// yet; the decoder will retry it across resolution passes.
type ResolveBase func(id objstore.ID) (kind objstore.Kind, payload []byte, ok bool)

type pendingDelta struct {
	index      int
	isOfs      bool
	baseOffset int64 // absolute offset, for ofs-delta
	baseID     objstore.ID
	deltaData  []byte
}

// Decode parses a pack stream into fully-resolved entries, applying
// ref-delta and ofs-delta instructions against bases found either earlier
// in this same pack or via resolveBase. It verifies the trailing checksum.
func Decode(r io.Reader, resolveBase ResolveBase) ([]Entry, error) {
	all, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read packfile")
	}
	if len(all) < 12+20 {
		return nil, errors.New("packfile: too short")
	}
	body, trailer := all[:len(all)-20], all[len(all)-20:]

	sum := sha1.Sum(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, errors.New("packfile: trailing checksum mismatch")
	}

	br := bufio.NewReader(bytes.NewReader(body))
	var hdr [4]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, errors.Wrap(err, "read magic")
	}
	if string(hdr[:]) != magic {
		return nil, errors.Errorf("packfile: bad magic %q", hdr[:])
	}
	var ver, count uint32
	if err := binary.Read(br, binary.BigEndian, &ver); err != nil {
		return nil, errors.Wrap(err, "read version")
	}
	if ver != 2 && ver != 3 {
		return nil, errors.Errorf("packfile: unsupported version %d", ver)
	}
	if err := binary.Read(br, binary.BigEndian, &count); err != nil {
		return nil, errors.Wrap(err, "read object count")
	}

	entries := make([]Entry, count)
	resolved := make([]bool, count)
	offsetOf := make([]int64, count)
	byOffset := make(map[int64]int)

	var pending []pendingDelta

	pos := int64(12) // bytes consumed so far (magic+version+count)
	for i := uint32(0); i < count; i++ {
		offset := pos
		offsetOf[i] = offset
		byOffset[offset] = int(i)

		typ, size, headerLen, err := readEntryHeader(br)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d header", i)
		}
		pos += headerLen

		switch typ {
		case typeCommit, typeTree, typeBlob, typeTag:
			kind, _ := typeToKind(typ)
			payload, n, err := inflate(br, size)
			if err != nil {
				return nil, errors.Wrapf(err, "entry %d body", i)
			}
			pos += n
			entries[i] = Entry{Kind: kind, Payload: payload}
			resolved[i] = true

		case typeOfsDelta:
			negOffset, n, err := readOfsDeltaOffset(br)
			if err != nil {
				return nil, errors.Wrapf(err, "entry %d ofs-delta offset", i)
			}
			pos += n
			deltaData, n, err := inflate(br, size)
			if err != nil {
				return nil, errors.Wrapf(err, "entry %d delta body", i)
			}
			pos += n
			pending = append(pending, pendingDelta{
				index: int(i), isOfs: true, baseOffset: offset - negOffset, deltaData: deltaData,
			})

		case typeRefDelta:
			var baseRaw [20]byte
			if _, err := io.ReadFull(br, baseRaw[:]); err != nil {
				return nil, errors.Wrapf(err, "entry %d ref-delta base id", i)
			}
			pos += 20
			deltaData, n, err := inflate(br, size)
			if err != nil {
				return nil, errors.Wrapf(err, "entry %d delta body", i)
			}
			pos += n
			pending = append(pending, pendingDelta{
				index: int(i), isOfs: false, baseID: objstore.ID(fmt.Sprintf("%x", baseRaw)), deltaData: deltaData,
			})

		default:
			return nil, errors.Errorf("entry %d: unknown object type %d", i, typ)
		}
	}

	for len(pending) > 0 {
		var next []pendingDelta
		progressed := false
		for _, pd := range pending {
			var baseKind objstore.Kind
			var basePayload []byte
			var ok bool

			if pd.isOfs {
				if bi, found := byOffset[pd.baseOffset]; found && resolved[bi] {
					baseKind, basePayload, ok = entries[bi].Kind, entries[bi].Payload, true
				}
			} else {
				found := false
				for j := 0; j < len(entries); j++ {
					if resolved[j] {
						id := objectID(entries[j].Kind, entries[j].Payload)
						if id == pd.baseID {
							baseKind, basePayload = entries[j].Kind, entries[j].Payload
							found = true
							break
						}
					}
				}
				if !found && resolveBase != nil {
					baseKind, basePayload, found = resolveBase(pd.baseID)
				}
				ok = found
			}

			if !ok {
				next = append(next, pd)
				continue
			}

			result, err := applyDelta(basePayload, pd.deltaData)
			if err != nil {
				return nil, errors.Wrapf(err, "entry %d: apply delta", pd.index)
			}
			entries[pd.index] = Entry{Kind: baseKind, Payload: result}
			resolved[pd.index] = true
			progressed = true
		}
		if !progressed {
			return nil, ErrUnresolvableDelta
		}
		pending = next
	}

	return entries, nil
}

func objectID(kind objstore.Kind, payload []byte) objstore.ID {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", kind, len(payload))
	h.Write(payload)
	return objstore.ID(fmt.Sprintf("%x", h.Sum(nil)))
}

// readEntryHeader reads the variable-length type/size header, returning the
// number of bytes it consumed so the caller can track the pack cursor.
func readEntryHeader(r io.ByteReader) (typ int, size int64, consumed int64, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, 0, err
	}
	consumed = 1
	typ = int((b >> 4) & 0x07)
	size = int64(b & 0x0f)
	shift := uint(4)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, 0, err
		}
		consumed++
		size |= int64(b&0x7f) << shift
		shift += 7
	}
	return typ, size, consumed, nil
}

func readOfsDeltaOffset(r io.ByteReader) (offset int64, consumed int64, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	consumed = 1
	offset = int64(b & 0x7f)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		consumed++
		offset = ((offset + 1) << 7) | int64(b&0x7f)
	}
	return offset, consumed, nil
}

// countingReader tracks how many bytes the wrapped zlib reader actually
// consumed from the underlying stream, so the pack cursor can advance
// exactly (the spec requires inflate to report its consumed input length).
type countingReader struct {
	r io.ByteReader
	n int64
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

func (c *countingReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		b, err := c.ReadByte()
		if err != nil {
			return n, err
		}
		p[n] = b
		n++
	}
	return n, nil
}

func inflate(br *bufio.Reader, expectedSize int64) ([]byte, int64, error) {
	cr := &countingReader{r: br}
	zr, err := zlib.NewReader(cr)
	if err != nil {
		return nil, 0, errors.Wrap(err, "zlib header")
	}
	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, 0, errors.Wrap(err, "inflate")
	}
	if err := zr.Close(); err != nil {
		return nil, 0, errors.Wrap(err, "close inflate stream")
	}
	if int64(len(payload)) != expectedSize {
		return nil, 0, errors.Errorf("size mismatch: header says %d, got %d", expectedSize, len(payload))
	}
	return payload, cr.n, nil
}
