package pktline

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.SendString("version 1\n"))
	require.NoError(t, w.SendString("want deadbeef\n"))
	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	lines, err := r.ReadUntilFlush()
	require.NoError(t, err)
	require.Equal(t, []string{"version 1\n", "want deadbeef\n"}, toStrings(lines))
}

func TestEmptyFlushImmediately(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	lines, err := r.ReadUntilFlush()
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestPayloadTooLarge(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	err := w.Send(make([]byte, MaxPayload+1))
	require.Error(t, err)
}

func TestInvalidLengthPrefix(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("zzzz")))
	_, err := r.Next()
	require.Error(t, err)
}

func toStrings(lines [][]byte) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l)
	}
	return out
}
