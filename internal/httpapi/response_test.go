package httpapi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResponseWriteToIncludesStatusAndBody(t *testing.T) {
	resp, err := JSON(StatusCreated, map[string]int{"numero": 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, resp.WriteTo(&buf))

	out := buf.String()
	require.Contains(t, out, "HTTP/1.1 201 Created\r\n")
	require.Contains(t, out, "Content-Length: ")
	require.Contains(t, out, `"numero":1`)
}

func TestEmptyResponseHasNoBody(t *testing.T) {
	resp := Empty(StatusNoContent)
	var buf bytes.Buffer
	require.NoError(t, resp.WriteTo(&buf))
	require.Contains(t, buf.String(), "Content-Length: 0\r\n\r\n")
}

func TestWriteErrorMapsTagToStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeError(&buf, MergeNotAllowed("not a fast-forward")))
	require.Contains(t, buf.String(), "HTTP/1.1 205 Merge Not Allowed\r\n")
}
