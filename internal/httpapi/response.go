package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
)

// Response is what a Handler returns on success; WriteTo serializes it as
// a minimal HTTP/1.1 response with a body when one is present.
type Response struct {
	Status      Status
	Body        []byte
	ContentType string
}

// JSON builds a Response whose body is the JSON encoding of v. A nil v
// produces an empty body (used for 204/205 responses).
func JSON(status Status, v any) (*Response, error) {
	if v == nil {
		return &Response{Status: status}, nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return nil, Internal("failed to encode response body: " + err.Error())
	}
	return &Response{Status: status, Body: body, ContentType: "application/json"}, nil
}

// Text builds a Response with an arbitrary content type, used for the
// Prometheus exposition format on /metrics.
func Text(status Status, contentType string, body []byte) *Response {
	return &Response{Status: status, Body: body, ContentType: contentType}
}

// Empty builds a body-less Response, e.g. 204 No Content.
func Empty(status Status) *Response {
	return &Response{Status: status}
}

// WriteTo writes the status line, headers, and body to w.
func (r *Response) WriteTo(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %s\r\n", r.Status); err != nil {
		return err
	}
	if len(r.Body) > 0 {
		contentType := r.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		if _, err := fmt.Fprintf(w, "Content-Type: %s\r\n", contentType); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(r.Body)); err != nil {
		return err
	}
	if len(r.Body) > 0 {
		if _, err := w.Write(r.Body); err != nil {
			return err
		}
	}
	return nil
}

// writeError renders an APIError as a JSON error body under its mapped
// status, matching ErrorHttp's to_string() convention of "<code> <phrase>:
// <message>" but carried as structured JSON rather than plain text.
func writeError(w io.Writer, apiErr *APIError) error {
	status := StatusFor(apiErr)
	resp, err := JSON(status, map[string]string{"error": apiErr.Tag, "message": apiErr.Message})
	if err != nil {
		// JSON encoding a map[string]string cannot fail; fall back anyway.
		resp = Empty(status)
	}
	return resp.WriteTo(w)
}
