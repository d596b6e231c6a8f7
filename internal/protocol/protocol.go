// Package protocol implements the smart git transport's finite-state
// machine: service request parsing, ref discovery, and the upload-pack
// and receive-pack negotiations, all framed in pkt-line (C3) and carrying
// object data encoded by the packfile codec (C2).
package protocol

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/girvc/gir/internal/objstore"
	"github.com/girvc/gir/internal/packfile"
	"github.com/girvc/gir/internal/pktline"
	"github.com/girvc/gir/internal/refstore"
)

// ProtocolError tags every malformed-input failure the FSM detects:
// bad service request lines, unparseable want/have/command lines, bad
// pack magic surfaced from the packfile codec.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Op + ": " + e.Err.Error() }
func (e *ProtocolError) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ProtocolError{Op: op, Err: err}
}

// Capabilities advertised by this server. upload-pack gets a multi_ack-free
// single-ack negotiation; receive-pack gets report-status, matching the
// minimum §6 requires.
var (
	uploadPackCaps  = "ofs-delta"
	receivePackCaps = "report-status ofs-delta"
)

const (
	ServiceUploadPack  = "git-upload-pack"
	ServiceReceivePack = "git-receive-pack"
)

// ServiceRequest is the client's opening frame naming the service and the
// repository it wants to operate on.
type ServiceRequest struct {
	Service string
	Repo    string
	Host    string
}

// ParseServiceRequest parses a line of the form
// "<service> <repo>\x00host=<host>\x00" (trailing NUL-terminated fields
// are optional beyond the repo path).
func ParseServiceRequest(line []byte) (ServiceRequest, error) {
	s := string(line)
	parts := strings.SplitN(s, "\x00", 3)
	head := parts[0]
	fields := strings.SplitN(strings.TrimRight(head, "\n"), " ", 2)
	if len(fields) != 2 {
		return ServiceRequest{}, wrapErr("parse service request", errors.Errorf("malformed request line %q", s))
	}
	req := ServiceRequest{Service: fields[0], Repo: fields[1]}
	if req.Service != ServiceUploadPack && req.Service != ServiceReceivePack {
		return ServiceRequest{}, wrapErr("parse service request", errors.Errorf("unknown service %q", req.Service))
	}
	for _, f := range parts[1:] {
		if strings.HasPrefix(f, "host=") {
			req.Host = strings.TrimPrefix(f, "host=")
		}
	}
	return req, nil
}

// WriteDiscovery sends the capability-announcement line, then the HEAD
// ref (if present), then every other ref sorted by name, then flush. An
// empty repository advertises the zero id under "capabilities^{}".
func WriteDiscovery(w *pktline.Writer, headID objstore.ID, refs map[string]objstore.ID, caps string) error {
	if err := w.SendString("version 1\n"); err != nil {
		return wrapErr("write discovery", err)
	}

	if headID == "" && len(refs) == 0 {
		line := fmt.Sprintf("%s capabilities^{}\x00%s\n", objstore.Zero, caps)
		if err := w.SendString(line); err != nil {
			return wrapErr("write discovery", err)
		}
		return wrapErr("write discovery", w.Flush())
	}

	first := true
	if headID != "" {
		line := fmt.Sprintf("%s HEAD\x00%s\n", headID, caps)
		if err := w.SendString(line); err != nil {
			return wrapErr("write discovery", err)
		}
		first = false
	}

	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var line string
		if first {
			line = fmt.Sprintf("%s %s\x00%s\n", refs[name], name, caps)
			first = false
		} else {
			line = fmt.Sprintf("%s %s\n", refs[name], name)
		}
		if err := w.SendString(line); err != nil {
			return wrapErr("write discovery", err)
		}
	}
	return wrapErr("write discovery", w.Flush())
}

// Repository bundles the object and ref stores the FSM operates on. It is
// small enough that upload-pack and receive-pack both take it directly
// rather than a narrower interface.
type Repository struct {
	Objects *objstore.Store
	Refs    *refstore.Store
}

// AdvertisedRefs collects every branch, tag, and the HEAD id for
// discovery, in the shape WriteDiscovery expects.
func (r *Repository) AdvertisedRefs() (headID objstore.ID, refs map[string]objstore.ID, err error) {
	refs = make(map[string]objstore.ID)
	branches, err := r.Refs.ListBranches()
	if err != nil {
		return "", nil, err
	}
	for name, id := range branches {
		refs[name] = id
	}
	tags, err := r.Refs.ListTags()
	if err != nil {
		return "", nil, err
	}
	for name, id := range tags {
		refs[name] = id
	}

	headID, err = r.Refs.ResolveHEAD()
	if err != nil {
		headID = ""
	}
	return headID, refs, nil
}

// RunUploadPack performs discovery followed by the want/have/ack
// negotiation, then sends a packfile covering every object reachable
// from the client's wants but not from its acknowledged haves.
func RunUploadPack(rw io.ReadWriter, repo *Repository) error {
	w := pktline.NewWriter(rw)
	headID, refs, err := repo.AdvertisedRefs()
	if err != nil {
		return wrapErr("upload-pack discovery", err)
	}
	if err := WriteDiscovery(w, headID, refs, uploadPackCaps); err != nil {
		return err
	}

	r := pktline.NewReader(rw)
	lines, err := r.ReadUntilFlush()
	if err != nil {
		return wrapErr("read wants", err)
	}

	var wants []objstore.ID
	for i, line := range lines {
		s := strings.TrimRight(string(line), "\n")
		if idx := strings.IndexByte(s, 0); idx >= 0 {
			s = s[:idx]
		}
		fields := strings.Fields(s)
		if len(fields) < 2 || fields[0] != "want" {
			return wrapErr("parse want", errors.Errorf("line %d: malformed want line %q", i, s))
		}
		wants = append(wants, objstore.ID(fields[1]))
	}
	if len(wants) == 0 {
		// A client that wants nothing (e.g. cloning an empty repository)
		// ends the session right after discovery.
		return nil
	}

	haves := make(map[objstore.ID]bool)
	foundCommon := false
	for {
		lines, err := r.ReadUntilFlush()
		if err != nil {
			return wrapErr("read haves", err)
		}
		done := false
		for _, line := range lines {
			s := strings.TrimRight(string(line), "\n")
			switch {
			case s == "done":
				done = true
			case strings.HasPrefix(s, "have "):
				id := objstore.ID(strings.Fields(s)[1])
				if repo.Objects.Exists(id) {
					haves[id] = true
					foundCommon = true
					if err := w.SendString(fmt.Sprintf("ACK %s common\n", id)); err != nil {
						return wrapErr("ack have", err)
					}
				}
			}
		}
		if done || len(lines) == 0 {
			break
		}
	}

	if !foundCommon {
		if err := w.SendString("NAK\n"); err != nil {
			return wrapErr("write nak", err)
		}
	}

	entries, err := packfile.Collect(repo.Objects, wants, haves)
	if err != nil {
		return wrapErr("collect objects", err)
	}
	packData, err := packfile.Encode(entries)
	if err != nil {
		return wrapErr("encode packfile", err)
	}
	if _, err := rw.Write(packData); err != nil {
		return wrapErr("send packfile", err)
	}
	return nil
}

// RefUpdateCommand is one receive-pack command line.
type RefUpdateCommand struct {
	OldID   objstore.ID
	NewID   objstore.ID
	RefName string
}

// RunReceivePack performs discovery, reads the client's ref update
// commands and packfile, applies both, and reports per-ref ok/ng.
func RunReceivePack(rw io.ReadWriter, repo *Repository) error {
	w := pktline.NewWriter(rw)
	headID, refs, err := repo.AdvertisedRefs()
	if err != nil {
		return wrapErr("receive-pack discovery", err)
	}
	if err := WriteDiscovery(w, headID, refs, receivePackCaps); err != nil {
		return err
	}

	r := pktline.NewReader(rw)
	lines, err := r.ReadUntilFlush()
	if err != nil {
		return wrapErr("read commands", err)
	}

	var commands []RefUpdateCommand
	for i, line := range lines {
		s := strings.TrimRight(string(line), "\n")
		if idx := strings.IndexByte(s, 0); idx >= 0 {
			s = s[:idx]
		}
		fields := strings.Fields(s)
		if len(fields) != 3 {
			return wrapErr("parse command", errors.Errorf("line %d: malformed command %q", i, s))
		}
		commands = append(commands, RefUpdateCommand{
			OldID:   objstore.ID(fields[0]),
			NewID:   objstore.ID(fields[1]),
			RefName: fields[2],
		})
	}

	if err := unpackIncomingObjects(r, repo.Objects); err != nil {
		if werr := sendReceivePackResult(w, err.Error(), nil); werr != nil {
			return werr
		}
		return wrapErr("unpack", err)
	}

	results := make(map[string]string, len(commands))
	for _, cmd := range commands {
		var expectedOld *objstore.ID
		if cmd.OldID != objstore.Zero {
			old := cmd.OldID
			expectedOld = &old
		}

		if cmd.NewID == objstore.Zero {
			if err := repo.Refs.DeleteRef(cmd.RefName); err != nil {
				results[cmd.RefName] = err.Error()
			} else {
				results[cmd.RefName] = ""
			}
			continue
		}

		if err := repo.Refs.UpdateRef(cmd.RefName, cmd.NewID, expectedOld); err != nil {
			var mismatch *refstore.CASMismatchError
			if errors.As(err, &mismatch) {
				results[cmd.RefName] = "fetch first"
			} else {
				results[cmd.RefName] = err.Error()
			}
		} else {
			results[cmd.RefName] = ""
		}
	}

	return sendReceivePackResult(w, "", results)
}

// unpackIncomingObjects decodes the packfile that follows the command
// list (if any bytes remain) and persists every object into the store.
func unpackIncomingObjects(r *pktline.Reader, store *objstore.Store) error {
	br := r.Underlying()
	if _, err := br.Peek(1); err != nil {
		if err == io.EOF {
			return nil
		}
		return wrapErr("peek packfile", err)
	}

	entries, err := packfile.Decode(br, func(id objstore.ID) (objstore.Kind, []byte, bool) {
		kind, payload, err := store.Read(id)
		if err != nil {
			return "", nil, false
		}
		return kind, payload, true
	})
	if err != nil {
		return wrapErr("decode packfile", err)
	}
	for _, e := range entries {
		if _, err := store.Write(e.Kind, e.Payload); err != nil {
			return wrapErr("write object", err)
		}
	}
	return nil
}

// sendReceivePackResult writes the "unpack ok|<error>" line followed by
// one ok/ng line per ref command, terminated by flush. results maps ref
// name to failure reason ("" means the update succeeded).
func sendReceivePackResult(w *pktline.Writer, unpackErr string, results map[string]string) error {
	if unpackErr != "" {
		if err := w.SendString(fmt.Sprintf("unpack %s\n", unpackErr)); err != nil {
			return wrapErr("send result", err)
		}
		return wrapErr("send result", w.Flush())
	}
	if err := w.SendString("unpack ok\n"); err != nil {
		return wrapErr("send result", err)
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		reason := results[name]
		var line string
		if reason == "" {
			line = fmt.Sprintf("ok %s\n", name)
		} else {
			line = fmt.Sprintf("ng %s %s\n", name, reason)
		}
		if err := w.SendString(line); err != nil {
			return wrapErr("send result", err)
		}
	}
	return wrapErr("send result", w.Flush())
}
