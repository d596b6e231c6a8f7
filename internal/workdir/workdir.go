// Package workdir implements the minimal working-tree plumbing the
// testable end-to-end scenario needs: init, add, commit, and log. The
// working-tree walk proper (directory traversal for `add`/`status`) is
// an external collaborator per spec.md §1; this package only covers the
// explicit add-by-path / commit / log surface the scenario exercises.
package workdir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/girvc/gir/internal/objstore"
	"github.com/girvc/gir/internal/refstore"
)

const (
	dotDir        = ".gir"
	defaultBranch = "refs/heads/master"
)

// Repo bundles the object store, ref store, and staged-file index of one
// working tree rooted at Dir.
type Repo struct {
	Dir     string
	Objects *objstore.Store
	Refs    *refstore.Store
}

func girDir(dir string) string    { return filepath.Join(dir, dotDir) }
func indexPath(dir string) string { return filepath.Join(girDir(dir), "index") }

// Init creates a new repository under dir: .gir/objects, .gir/refs/heads,
// .gir/refs/tags, and HEAD pointing symbolically at refs/heads/master.
func Init(dir string) (*Repo, error) {
	if err := os.MkdirAll(filepath.Join(girDir(dir), "refs", "heads"), 0o755); err != nil {
		return nil, errors.Wrap(err, "create refs/heads")
	}
	if err := os.MkdirAll(filepath.Join(girDir(dir), "refs", "tags"), 0o755); err != nil {
		return nil, errors.Wrap(err, "create refs/tags")
	}
	objects, err := objstore.Open(filepath.Join(girDir(dir), "objects"))
	if err != nil {
		return nil, errors.Wrap(err, "open object store")
	}
	refs := refstore.Open(girDir(dir))
	if err := refs.SetSymbolic("HEAD", defaultBranch); err != nil {
		return nil, errors.Wrap(err, "set HEAD")
	}
	return &Repo{Dir: dir, Objects: objects, Refs: refs}, nil
}

// Open binds to an existing repository at dir.
func Open(dir string) (*Repo, error) {
	objects, err := objstore.Open(filepath.Join(girDir(dir), "objects"))
	if err != nil {
		return nil, errors.Wrap(err, "open object store")
	}
	return &Repo{Dir: dir, Objects: objects, Refs: refstore.Open(girDir(dir))}, nil
}

// index is the staged path -> blob id map, persisted as JSON between
// add and commit (a placeholder for the binary index format real git
// uses, sufficient for the narrow add/commit/log surface in scope here).
type index map[string]objstore.ID

func (r *Repo) readIndex() (index, error) {
	data, err := os.ReadFile(indexPath(r.Dir))
	if err != nil {
		if os.IsNotExist(err) {
			return index{}, nil
		}
		return nil, errors.Wrap(err, "read index")
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, errors.Wrap(err, "decode index")
	}
	return idx, nil
}

func (r *Repo) writeIndex(idx index) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return errors.Wrap(err, "encode index")
	}
	return errors.Wrap(os.WriteFile(indexPath(r.Dir), data, 0o644), "write index")
}

// Add hashes each path's content as a blob and stages path -> blob id.
func (r *Repo) Add(paths ...string) error {
	idx, err := r.readIndex()
	if err != nil {
		return err
	}
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Join(r.Dir, p))
		if err != nil {
			return errors.Wrapf(err, "read %s", p)
		}
		id, err := r.Objects.Write(objstore.KindBlob, data)
		if err != nil {
			return errors.Wrapf(err, "hash %s", p)
		}
		idx[filepath.ToSlash(p)] = id
	}
	return r.writeIndex(idx)
}

// Commit builds a flat tree from the staged index, writes a commit
// object parented on the current HEAD (if any), advances
// refs/heads/master, and clears the index.
func (r *Repo) Commit(message, author string) (objstore.ID, error) {
	idx, err := r.readIndex()
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(idx))
	for name := range idx {
		names = append(names, name)
	}
	sort.Strings(names)
	entries := make([]objstore.TreeEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, objstore.TreeEntry{Mode: objstore.ModeRegular, Name: name, ID: idx[name]})
	}
	tree, err := r.Objects.HashTree(entries)
	if err != nil {
		return "", errors.Wrap(err, "hash tree")
	}

	var parents []objstore.ID
	parent, err := r.Refs.ResolveHEAD()
	if err == nil {
		parents = []objstore.ID{parent}
	}

	now := time.Now()
	stamp := fmt.Sprintf("%s <%s@local> %d +0000", author, author, now.Unix())
	commit, err := r.Objects.HashCommit(objstore.CommitData{
		Tree: tree, Parents: parents, Author: stamp, Committer: stamp, Message: message,
	})
	if err != nil {
		return "", errors.Wrap(err, "hash commit")
	}

	var expectedOld *objstore.ID
	if parent != "" {
		expectedOld = &parent
	}
	if err := r.Refs.UpdateRef(defaultBranch, commit, expectedOld); err != nil {
		return "", errors.Wrap(err, "update branch ref")
	}
	if err := r.writeIndex(index{}); err != nil {
		return "", err
	}
	return commit, nil
}

// Log renders the commit ancestry from HEAD as a sequence of paragraphs:
// two header lines (commit id, author), a blank line, the message
// indented five spaces, and a trailing blank line — one block per
// commit, newest first.
func (r *Repo) Log() (string, error) {
	head, err := r.Refs.ResolveHEAD()
	if err != nil {
		return "", nil
	}

	commits, err := r.Objects.Ancestry(head)
	if err != nil {
		return "", errors.Wrap(err, "walk ancestry")
	}

	var b strings.Builder
	for _, id := range commits {
		_, payload, err := r.Objects.Read(id)
		if err != nil {
			return "", errors.Wrap(err, "read commit")
		}
		c, err := objstore.DecodeCommit(payload)
		if err != nil {
			return "", errors.Wrap(err, "decode commit")
		}
		fmt.Fprintf(&b, "commit %s\n", id)
		fmt.Fprintf(&b, "Author: %s\n", c.Author)
		b.WriteString("\n")
		fmt.Fprintf(&b, "     %s\n", c.Message)
		b.WriteString("\n")
	}
	return b.String(), nil
}
