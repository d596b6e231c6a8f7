// Package objstore implements the content-addressed loose object store:
// blobs, trees, commits and tags, hashed and deflated the way git does.
package objstore

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// Kind identifies one of the four object variants.
type Kind string

const (
	KindBlob   Kind = "blob"
	KindTree   Kind = "tree"
	KindCommit Kind = "commit"
	KindTag    Kind = "tag"
)

// ID is the 40-hex-digit SHA-1 object id.
type ID string

// Zero is the all-zero id used to denote "no object" on the wire.
const Zero ID = "0000000000000000000000000000000000000000"

// ObjectError tags every failure this package returns, per the error
// taxonomy (missing object, corrupted header, length mismatch, inflate
// failure, permission denied).
type ObjectError struct {
	Op  string
	ID  ID
	Err error
}

func (e *ObjectError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("objstore: %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("objstore: %s: %v", e.Op, e.Err)
}

func (e *ObjectError) Unwrap() error { return e.Err }

func wrapErr(op string, id ID, err error) error {
	if err == nil {
		return nil
	}
	return &ObjectError{Op: op, ID: id, Err: err}
}

// TreeEntry is one entry of a tree object: a mode, a name, and the id of
// the blob/tree/etc it points to.
type TreeEntry struct {
	Mode Mode
	Name string
	ID   ID
}

// Mode is one of the four git file modes recognized by the data model.
type Mode string

const (
	ModeRegular    Mode = "100644"
	ModeExecutable Mode = "100755"
	ModeDirectory  Mode = "040000"
	ModeSymlink    Mode = "120000"
)

// CommitData holds the fields of a commit object.
type CommitData struct {
	Tree      ID
	Parents   []ID
	Author    string // "name <email> unix-seconds tz-offset"
	Committer string
	Message   string
}

// TagData holds the fields of a tag object.
type TagData struct {
	Object  ID
	Type    Kind
	Tag     string
	Tagger  string
	Message string
}

// Store is a per-repository loose-object database rooted at <repo>/objects.
type Store struct {
	root string
}

// Open returns a Store rooted at dir (typically "<repo>/.gir/objects").
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapErr("open", "", errors.Wrap(err, "create objects directory"))
	}
	return &Store{root: dir}, nil
}

func (s *Store) path(id ID) string {
	h := string(id)
	return filepath.Join(s.root, h[:2], h[2:])
}

// hash computes the canonical SHA-1 id of "<kind> <len>\0<payload>".
func hash(kind Kind, payload []byte) ID {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", kind, len(payload))
	h.Write(payload)
	return ID(fmt.Sprintf("%x", h.Sum(nil)))
}

// Write computes the object id and stores the deflated, header-prefixed
// payload atomically. Writing the same object twice is a no-op.
func (s *Store) Write(kind Kind, payload []byte) (ID, error) {
	id := hash(kind, payload)
	path := s.path(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", wrapErr("write", id, errors.Wrap(err, "create object shard directory"))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-obj-*")
	if err != nil {
		return "", wrapErr("write", id, errors.Wrap(err, "create temp file"))
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	zw := zlib.NewWriter(tmp)
	fmt.Fprintf(zw, "%s %d\x00", kind, len(payload))
	if _, err := zw.Write(payload); err != nil {
		zw.Close()
		tmp.Close()
		return "", wrapErr("write", id, errors.Wrap(err, "deflate payload"))
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return "", wrapErr("write", id, errors.Wrap(err, "close deflate stream"))
	}
	if err := tmp.Close(); err != nil {
		return "", wrapErr("write", id, errors.Wrap(err, "close temp file"))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", wrapErr("write", id, errors.Wrap(err, "rename into place"))
	}
	return id, nil
}

// Read inflates and parses the object stored under id.
func (s *Store) Read(id ID) (Kind, []byte, error) {
	f, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, wrapErr("read", id, errors.New("object not found"))
		}
		return "", nil, wrapErr("read", id, errors.Wrap(err, "open object file"))
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return "", nil, wrapErr("read", id, errors.Wrap(err, "inflate"))
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, wrapErr("read", id, errors.Wrap(err, "inflate"))
	}

	nul := bytes.IndexByte(data, 0)
	if nul < 0 {
		return "", nil, wrapErr("read", id, errors.New("corrupted header: no NUL byte"))
	}
	header := string(data[:nul])
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", nil, wrapErr("read", id, errors.Errorf("corrupted header %q", header))
	}
	kind := Kind(parts[0])
	declared, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", nil, wrapErr("read", id, errors.Wrapf(err, "corrupted header %q", header))
	}
	payload := data[nul+1:]
	if len(payload) != declared {
		return "", nil, wrapErr("read", id, errors.Errorf("length mismatch: header says %d, got %d", declared, len(payload)))
	}
	return kind, payload, nil
}

// Exists reports whether id is present in the store.
func (s *Store) Exists(id ID) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Size returns the declared payload length by inflating and parsing only
// the "<kind> <len>\0" header, without decoding the payload that follows it.
func (s *Store) Size(id ID) (int64, error) {
	f, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, wrapErr("size", id, errors.New("object not found"))
		}
		return 0, wrapErr("size", id, errors.Wrap(err, "open object file"))
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return 0, wrapErr("size", id, errors.Wrap(err, "inflate"))
	}
	defer zr.Close()

	var header []byte
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(zr, buf); err != nil {
			return 0, wrapErr("size", id, errors.Wrap(err, "inflate header"))
		}
		if buf[0] == 0 {
			break
		}
		header = append(header, buf[0])
		if len(header) > 64 {
			return 0, wrapErr("size", id, errors.New("corrupted header: no NUL byte"))
		}
	}

	parts := strings.SplitN(string(header), " ", 2)
	if len(parts) != 2 {
		return 0, wrapErr("size", id, errors.Errorf("corrupted header %q", header))
	}
	declared, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, wrapErr("size", id, errors.Wrapf(err, "corrupted header %q", header))
	}
	return int64(declared), nil
}

// HashFile writes the contents of path as a blob and returns its id.
func (s *Store) HashFile(path string) (ID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", wrapErr("hash-file", "", errors.Wrap(err, "read file"))
	}
	return s.Write(KindBlob, data)
}

// EncodeTree serializes tree entries in canonical (sorted) order. Directory
// entries sort as if suffixed with "/".
func EncodeTree(entries []TreeEntry) []byte {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return treeSortKey(sorted[i]) < treeSortKey(sorted[j])
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		fmt.Fprintf(&buf, "%s %s\x00", e.Mode, e.Name)
		raw, err := hexToRaw(e.ID)
		if err == nil {
			buf.Write(raw)
		}
	}
	return buf.Bytes()
}

func treeSortKey(e TreeEntry) string {
	if e.Mode == ModeDirectory {
		return e.Name + "/"
	}
	return e.Name
}

// HashTree writes a tree object built from entries and returns its id.
func (s *Store) HashTree(entries []TreeEntry) (ID, error) {
	return s.Write(KindTree, EncodeTree(entries))
}

// DecodeTree parses a tree object payload back into entries.
func DecodeTree(payload []byte) ([]TreeEntry, error) {
	var entries []TreeEntry
	for len(payload) > 0 {
		sp := bytes.IndexByte(payload, ' ')
		if sp < 0 {
			return nil, errors.New("corrupted tree entry: no mode separator")
		}
		mode := Mode(payload[:sp])
		rest := payload[sp+1:]
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, errors.New("corrupted tree entry: no name terminator")
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]
		if len(rest) < 20 {
			return nil, errors.New("corrupted tree entry: truncated id")
		}
		entries = append(entries, TreeEntry{Mode: mode, Name: name, ID: rawToHex(rest[:20])})
		payload = rest[20:]
	}
	return entries, nil
}

// EncodeCommit serializes a commit in canonical git form.
func EncodeCommit(c CommitData) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author)
	fmt.Fprintf(&buf, "committer %s\n", c.Committer)
	fmt.Fprintf(&buf, "\n%s", c.Message)
	return buf.Bytes()
}

// HashCommit writes a commit object and returns its id.
func (s *Store) HashCommit(c CommitData) (ID, error) {
	return s.Write(KindCommit, EncodeCommit(c))
}

// DecodeCommit parses a commit object payload back into its fields.
func DecodeCommit(payload []byte) (CommitData, error) {
	var c CommitData
	lines := strings.Split(string(payload), "\n")
	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			i++
			break
		}
		switch {
		case strings.HasPrefix(line, "tree "):
			c.Tree = ID(strings.TrimPrefix(line, "tree "))
		case strings.HasPrefix(line, "parent "):
			c.Parents = append(c.Parents, ID(strings.TrimPrefix(line, "parent ")))
		case strings.HasPrefix(line, "author "):
			c.Author = strings.TrimPrefix(line, "author ")
		case strings.HasPrefix(line, "committer "):
			c.Committer = strings.TrimPrefix(line, "committer ")
		}
	}
	c.Message = strings.Join(lines[i:], "\n")
	if c.Tree == "" {
		return c, errors.New("corrupted commit: missing tree")
	}
	return c, nil
}

// EncodeTag serializes a tag in canonical git form.
func EncodeTag(t TagData) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Object)
	fmt.Fprintf(&buf, "type %s\n", t.Type)
	fmt.Fprintf(&buf, "tag %s\n", t.Tag)
	fmt.Fprintf(&buf, "tagger %s\n", t.Tagger)
	fmt.Fprintf(&buf, "\n%s", t.Message)
	return buf.Bytes()
}

// HashTag writes a tag object and returns its id.
func (s *Store) HashTag(t TagData) (ID, error) {
	return s.Write(KindTag, EncodeTag(t))
}

// DecodeTag parses a tag object payload back into its fields.
func DecodeTag(payload []byte) (TagData, error) {
	var t TagData
	lines := strings.Split(string(payload), "\n")
	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			i++
			break
		}
		switch {
		case strings.HasPrefix(line, "object "):
			t.Object = ID(strings.TrimPrefix(line, "object "))
		case strings.HasPrefix(line, "type "):
			t.Type = Kind(strings.TrimPrefix(line, "type "))
		case strings.HasPrefix(line, "tag "):
			t.Tag = strings.TrimPrefix(line, "tag ")
		case strings.HasPrefix(line, "tagger "):
			t.Tagger = strings.TrimPrefix(line, "tagger ")
		}
	}
	t.Message = strings.Join(lines[i:], "\n")
	return t, nil
}

func hexToRaw(id ID) ([]byte, error) {
	if len(id) != 40 {
		return nil, errors.Errorf("invalid id length %d", len(id))
	}
	raw := make([]byte, 20)
	for i := 0; i < 20; i++ {
		v, err := strconv.ParseUint(string(id[i*2:i*2+2]), 16, 8)
		if err != nil {
			return nil, err
		}
		raw[i] = byte(v)
	}
	return raw, nil
}

func rawToHex(raw []byte) ID {
	return ID(fmt.Sprintf("%x", raw))
}
