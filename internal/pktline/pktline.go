// Package pktline implements the length-prefixed frame primitive used by
// the git smart transport: a 4-hex-digit length (including itself) followed
// by that many bytes of payload.
package pktline

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// MaxPayload is the largest payload a single pkt-line may carry.
const MaxPayload = 65516

// Special lengths.
const (
	lenFlush = 0
	lenDelim = 1
)

// Flush and Delim are the two zero-payload sentinel frames recognized on
// read. A nil, no-error Payload result from Reader.Next means Flush.
var ErrDelim = errors.New("pktline: delim-pkt")

// Writer serializes pkt-line frames to an underlying io.Writer.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Send writes one length-prefixed frame containing payload.
func (pw *Writer) Send(payload []byte) error {
	if len(payload) > MaxPayload {
		return errors.Errorf("pktline: payload too large: %d bytes", len(payload))
	}
	length := len(payload) + 4
	if _, err := fmt.Fprintf(pw.w, "%04x", length); err != nil {
		return errors.Wrap(err, "write pkt-line length")
	}
	if _, err := pw.w.Write(payload); err != nil {
		return errors.Wrap(err, "write pkt-line payload")
	}
	return nil
}

// SendString is a convenience wrapper around Send.
func (pw *Writer) SendString(s string) error {
	return pw.Send([]byte(s))
}

// Flush writes the flush-pkt ("0000").
func (pw *Writer) Flush() error {
	_, err := io.WriteString(pw.w, "0000")
	return errors.Wrap(err, "write flush-pkt")
}

// Reader deserializes pkt-line frames from an underlying *bufio.Reader.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br}
}

// Underlying exposes the wrapped *bufio.Reader, so a caller that needs to
// switch from pkt-line framing to a raw byte stream mid-connection (e.g.
// the packfile that follows receive-pack's command list) can keep reading
// from exactly where pkt-line parsing left off.
func (pr *Reader) Underlying() *bufio.Reader {
	return pr.r
}

// Next reads one frame. It returns (nil, nil) on a flush-pkt, and
// (nil, ErrDelim) on a delim-pkt, which callers should tolerate per the
// framing spec even though this implementation never emits one.
func (pr *Reader) Next() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(pr.r, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "read pkt-line length")
	}
	length, err := strconv.ParseInt(string(lenBuf[:]), 16, 32)
	if err != nil {
		return nil, errors.Errorf("pktline: invalid length prefix %q", lenBuf[:])
	}
	switch length {
	case lenFlush:
		return nil, nil
	case lenDelim:
		return nil, ErrDelim
	}
	if length < 4 {
		return nil, errors.Errorf("pktline: invalid length %d", length)
	}
	payload := make([]byte, length-4)
	if _, err := io.ReadFull(pr.r, payload); err != nil {
		return nil, errors.Wrap(err, "read pkt-line payload")
	}
	return payload, nil
}

// ReadUntilFlush reads frames until (and excluding) the terminating
// flush-pkt, returning them in order. Delim-pkts are tolerated and skipped.
func (pr *Reader) ReadUntilFlush() ([][]byte, error) {
	var lines [][]byte
	for {
		payload, err := pr.Next()
		if errors.Is(err, ErrDelim) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if payload == nil {
			return lines, nil
		}
		lines = append(lines, payload)
	}
}
