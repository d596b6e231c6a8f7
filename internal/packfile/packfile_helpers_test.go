package packfile

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

func writeUint32(buf *bytes.Buffer, v uint32) error {
	return binary.Write(buf, binary.BigEndian, v)
}

func writeTestEntryHeader(buf *bytes.Buffer, typ int, size int) {
	writeEntryHeader(buf, typ, size)
}

func writeDeflated(t *testing.T, buf *bytes.Buffer, payload []byte) {
	t.Helper()
	zw := zlib.NewWriter(buf)
	_, err := zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func hexDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func sha1Sum(b []byte) []byte {
	sum := sha1.Sum(b)
	return sum[:]
}
