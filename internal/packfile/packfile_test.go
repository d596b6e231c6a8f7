package packfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/girvc/gir/internal/objstore"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	entries := []Entry{
		{Kind: objstore.KindBlob, Payload: []byte("contenido uno")},
		{Kind: objstore.KindTree, Payload: []byte("")},
		{Kind: objstore.KindCommit, Payload: []byte("arbol deadbeef\n")},
	}

	data, err := Encode(entries)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte(magic)))

	got, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	require.Equal(t, entries, got)
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	entries := []Entry{{Kind: objstore.KindBlob, Payload: []byte("x")}}
	data, err := Encode(entries)
	require.NoError(t, err)

	corrupt := append([]byte{}, data...)
	corrupt[len(corrupt)-1] ^= 0xff

	_, err = Decode(bytes.NewReader(corrupt), nil)
	require.Error(t, err)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	entries := []Entry{{Kind: objstore.KindBlob, Payload: []byte("x")}}
	data, err := Encode(entries)
	require.NoError(t, err)

	corrupt := append([]byte{}, data...)
	corrupt[0] = 'X'

	_, err = Decode(bytes.NewReader(corrupt), nil)
	require.Error(t, err)
}

// TestRefDeltaAgainstInPackBase exercises scenario 6: a pack containing a
// blob B1 followed by a ref-delta whose base is B1 and whose instructions
// reproduce B2, where B1 was stored earlier in the very same pack stream.
func TestRefDeltaAgainstInPackBase(t *testing.T) {
	base := []byte("contenido original del archivo")
	target := []byte("contenido modificado del archivo")
	baseID := objectID(objstore.KindBlob, base)

	var raw bytes.Buffer
	raw.WriteString(magic)
	require.NoError(t, writeUint32(&raw, version))
	require.NoError(t, writeUint32(&raw, 2))

	writeTestEntryHeader(&raw, typeBlob, len(base))
	writeDeflated(t, &raw, base)

	deltaData := makeDelta(base, target)
	writeTestEntryHeader(&raw, typeRefDelta, len(deltaData))
	var idRaw [20]byte
	copy(idRaw[:], hexDecode(t, string(baseID)))
	raw.Write(idRaw[:])
	writeDeflated(t, &raw, deltaData)

	packed := sha1Sum(raw.Bytes())
	raw.Write(packed)

	entries, err := Decode(bytes.NewReader(raw.Bytes()), nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, base, entries[0].Payload)
	require.Equal(t, target, entries[1].Payload)
	require.Equal(t, objstore.KindBlob, entries[1].Kind)
}

// TestRefDeltaAgainstExternalBase checks that a ref-delta base missing from
// the pack is resolved via the external resolveBase callback (e.g. the
// object already present in the repository's store).
func TestRefDeltaAgainstExternalBase(t *testing.T) {
	base := []byte("base externa")
	target := []byte("objetivo derivado")
	baseID := objectID(objstore.KindBlob, base)

	var raw bytes.Buffer
	raw.WriteString(magic)
	require.NoError(t, writeUint32(&raw, version))
	require.NoError(t, writeUint32(&raw, 1))

	deltaData := makeDelta(base, target)
	writeTestEntryHeader(&raw, typeRefDelta, len(deltaData))
	var idRaw [20]byte
	copy(idRaw[:], hexDecode(t, string(baseID)))
	raw.Write(idRaw[:])
	writeDeflated(t, &raw, deltaData)

	raw.Write(sha1Sum(raw.Bytes()))

	resolve := func(id objstore.ID) (objstore.Kind, []byte, bool) {
		if id == baseID {
			return objstore.KindBlob, base, true
		}
		return "", nil, false
	}

	entries, err := Decode(bytes.NewReader(raw.Bytes()), resolve)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, target, entries[0].Payload)
}

func TestDecodeUnresolvableDelta(t *testing.T) {
	deltaData := makeDelta([]byte("base"), []byte("objetivo"))

	var raw bytes.Buffer
	raw.WriteString(magic)
	require.NoError(t, writeUint32(&raw, version))
	require.NoError(t, writeUint32(&raw, 1))

	writeTestEntryHeader(&raw, typeRefDelta, len(deltaData))
	var idRaw [20]byte // zero id: never resolvable
	raw.Write(idRaw[:])
	writeDeflated(t, &raw, deltaData)
	raw.Write(sha1Sum(raw.Bytes()))

	_, err := Decode(bytes.NewReader(raw.Bytes()), nil)
	require.ErrorIs(t, err, ErrUnresolvableDelta)
}

func TestApplyDeltaRoundTrip(t *testing.T) {
	base := []byte("el zorro marron salta sobre el perro perezoso")
	target := []byte("el zorro gris salta sobre el gato perezoso")

	delta := makeDelta(base, target)
	got, err := applyDelta(base, delta)
	require.NoError(t, err)
	require.Equal(t, target, got)
}
