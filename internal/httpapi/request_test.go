package httpapi

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadRequestParsesLineHeadersAndBody(t *testing.T) {
	raw := "POST /repos/demo/pulls HTTP/1.1\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: 13\r\n" +
		"\r\n" +
		`{"a":"value"}`
	req, err := ReadRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	require.Equal(t, MethodPost, req.Method)
	require.Equal(t, "/repos/demo/pulls", req.Path)
	require.Equal(t, ContentTypeJSON, req.ContentType)
	require.Equal(t, `{"a":"value"}`, string(req.Body))
}

func TestReadRequestStripsQueryString(t *testing.T) {
	raw := "GET /repos/demo/pulls?estado=abierto HTTP/1.1\r\n\r\n"
	req, err := ReadRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	require.Equal(t, "/repos/demo/pulls", req.Path)
}

func TestReadRequestRejectsUnknownMethod(t *testing.T) {
	raw := "DELETE /repos/demo/pulls HTTP/1.1\r\n\r\n"
	_, err := ReadRequest(bufio.NewReader(strings.NewReader(raw)))
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, StatusForbidden, StatusFor(apiErr))
}

func TestReadRequestRejectsUnsupportedContentType(t *testing.T) {
	raw := "POST /repos/demo/pulls HTTP/1.1\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 1\r\n\r\nx"
	_, err := ReadRequest(bufio.NewReader(strings.NewReader(raw)))
	require.Error(t, err)
}
