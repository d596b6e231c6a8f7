package packfile

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// applyDelta reconstructs a target payload from a base payload and a delta
// instruction stream: two leading variable-length sizes (source, target),
// then copy/insert instructions. A copy opcode has its high bit set; its
// low 7 bits select which of four offset bytes and three size bytes
// follow (absent fields default to 0; size 0 means 0x10000). Otherwise the
// opcode's low 7 bits (non-zero) count literal insert bytes.
func applyDelta(base, delta []byte) ([]byte, error) {
	dr := bytes.NewReader(delta)

	srcSize, err := readDeltaSize(dr)
	if err != nil {
		return nil, errors.Wrap(err, "read source size")
	}
	if srcSize != int64(len(base)) {
		return nil, errors.Errorf("delta source size %d does not match base length %d", srcSize, len(base))
	}
	targetSize, err := readDeltaSize(dr)
	if err != nil {
		return nil, errors.Wrap(err, "read target size")
	}

	result := make([]byte, 0, targetSize)
	for dr.Len() > 0 {
		opcode, err := dr.ReadByte()
		if err != nil {
			return nil, err
		}

		if opcode&0x80 != 0 {
			var offset, size int64
			if opcode&0x01 != 0 {
				b, _ := dr.ReadByte()
				offset |= int64(b)
			}
			if opcode&0x02 != 0 {
				b, _ := dr.ReadByte()
				offset |= int64(b) << 8
			}
			if opcode&0x04 != 0 {
				b, _ := dr.ReadByte()
				offset |= int64(b) << 16
			}
			if opcode&0x08 != 0 {
				b, _ := dr.ReadByte()
				offset |= int64(b) << 24
			}
			if opcode&0x10 != 0 {
				b, _ := dr.ReadByte()
				size |= int64(b)
			}
			if opcode&0x20 != 0 {
				b, _ := dr.ReadByte()
				size |= int64(b) << 8
			}
			if opcode&0x40 != 0 {
				b, _ := dr.ReadByte()
				size |= int64(b) << 16
			}
			if size == 0 {
				size = 0x10000
			}
			if offset+size > int64(len(base)) {
				return nil, errors.Errorf("delta copy out of bounds: offset=%d size=%d base=%d", offset, size, len(base))
			}
			result = append(result, base[offset:offset+size]...)
		} else if opcode > 0 {
			insert := make([]byte, opcode)
			if _, err := io.ReadFull(dr, insert); err != nil {
				return nil, errors.Wrap(err, "delta insert")
			}
			result = append(result, insert...)
		} else {
			return nil, errors.New("delta: invalid zero opcode")
		}
	}

	if int64(len(result)) != targetSize {
		return nil, errors.Errorf("delta result size mismatch: got %d, expected %d", len(result), targetSize)
	}
	return result, nil
}

func readDeltaSize(r *bytes.Reader) (int64, error) {
	var size int64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		size |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	return size, nil
}

func writeDeltaSize(buf *bytes.Buffer, size int64) {
	for {
		b := byte(size & 0x7f)
		size >>= 7
		if size > 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if size == 0 {
			return
		}
	}
}

// makeDelta produces a minimal copy/insert delta turning base into target,
// using a single longest-common-prefix/suffix split. It exists to let
// tests exercise apply∘generate without needing a
// full diff algorithm: any instruction stream satisfying the format is
// valid input to applyDelta.
func makeDelta(base, target []byte) []byte {
	var buf bytes.Buffer
	writeDeltaSize(&buf, int64(len(base)))
	writeDeltaSize(&buf, int64(len(target)))

	prefix := commonPrefixLen(base, target)
	suffix := commonSuffixLen(base[prefix:], target[prefix:])

	if prefix > 0 {
		writeCopy(&buf, 0, prefix)
	}
	midLen := len(target) - prefix - suffix
	if midLen > 0 {
		writeInsert(&buf, target[prefix:prefix+midLen])
	}
	if suffix > 0 {
		writeCopy(&buf, int64(len(base)-suffix), suffix)
	}
	return buf.Bytes()
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}

func writeCopy(buf *bytes.Buffer, offset int64, size int) {
	for size > 0 {
		chunk := size
		if chunk > 0x10000 {
			chunk = 0x10000
		}
		opcode := byte(0x80)
		var fields []byte
		o := offset
		if o&0xff != 0 {
			opcode |= 0x01
			fields = append(fields, byte(o))
		}
		if (o>>8)&0xff != 0 {
			opcode |= 0x02
			fields = append(fields, byte(o>>8))
		}
		if (o>>16)&0xff != 0 {
			opcode |= 0x04
			fields = append(fields, byte(o>>16))
		}
		if (o>>24)&0xff != 0 {
			opcode |= 0x08
			fields = append(fields, byte(o>>24))
		}
		sizeField := chunk
		if sizeField == 0x10000 {
			sizeField = 0
		}
		if sizeField&0xff != 0 {
			opcode |= 0x10
			fields = append(fields, byte(sizeField))
		}
		if (sizeField>>8)&0xff != 0 {
			opcode |= 0x20
			fields = append(fields, byte(sizeField>>8))
		}
		if (sizeField>>16)&0xff != 0 {
			opcode |= 0x40
			fields = append(fields, byte(sizeField>>16))
		}
		buf.WriteByte(opcode)
		buf.Write(fields)

		offset += int64(chunk)
		size -= chunk
	}
}

func writeInsert(buf *bytes.Buffer, data []byte) {
	for len(data) > 0 {
		chunk := len(data)
		if chunk > 0x7f {
			chunk = 0x7f
		}
		buf.WriteByte(byte(chunk))
		buf.Write(data[:chunk])
		data = data[chunk:]
	}
}
