package httpapi

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Method is one of the four verbs the router recognizes, grounded on
// MetodoHttp — any other verb is rejected as Forbidden, matching the
// original's "access denied" treatment of unrecognized methods rather
// than a generic 405.
type Method string

const (
	MethodGet   Method = "GET"
	MethodPost  Method = "POST"
	MethodPut   Method = "PUT"
	MethodPatch Method = "PATCH"
)

func parseMethod(s string) (Method, error) {
	switch s {
	case string(MethodGet), string(MethodPost), string(MethodPut), string(MethodPatch):
		return Method(s), nil
	default:
		return "", Forbidden("method " + s + " is not permitted")
	}
}

// ContentType names the three request-body encodings the router
// recognizes, mirroring TipoContenido.
type ContentType string

const (
	ContentTypeJSON       ContentType = "application/json"
	ContentTypeXML        ContentType = "application/xml"
	ContentTypeURLEncoded ContentType = "application/x-www-form-urlencoded"
)

// Request is a fully-read HTTP/1.1 request: request line, headers, and
// (if Content-Length was present) body.
type Request struct {
	Method      Method
	Path        string
	Headers     map[string]string
	ContentType ContentType
	Body        []byte
}

// ReadRequest parses one request off r: request line, headers terminated
// by a blank line, then exactly Content-Length bytes of body if present.
// Unlike net/http it never chunks, pipelines, or keeps the connection
// alive past one request — the router is one-shot per accepted conn.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, errors.Wrap(err, "read request line")
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, BadRequest("malformed request line " + strconv.Quote(line))
	}
	method, err := parseMethod(fields[0])
	if err != nil {
		return nil, err
	}
	path := fields[1]
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}

	headers := make(map[string]string)
	for {
		hline, err := readLine(r)
		if err != nil {
			return nil, errors.Wrap(err, "read header line")
		}
		if hline == "" {
			break
		}
		idx := strings.IndexByte(hline, ':')
		if idx < 0 {
			return nil, BadRequest("malformed header line " + strconv.Quote(hline))
		}
		key := strings.ToLower(strings.TrimSpace(hline[:idx]))
		headers[key] = strings.TrimSpace(hline[idx+1:])
	}

	req := &Request{Method: method, Path: path, Headers: headers}

	if ct := headers["content-type"]; ct != "" {
		ct = strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
		switch ContentType(ct) {
		case ContentTypeJSON, ContentTypeXML, ContentTypeURLEncoded:
			req.ContentType = ContentType(ct)
		default:
			return nil, BadRequest("unsupported content type " + ct)
		}
	}

	if cl := headers["content-length"]; cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return nil, BadRequest("malformed content-length " + strconv.Quote(cl))
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, errors.Wrap(err, "read request body")
		}
		req.Body = body
	}

	return req, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
