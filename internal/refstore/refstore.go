// Package refstore reads and writes branch, tag, and remote-tracking
// references for a repository on the local filesystem, including the
// symbolic HEAD pointer and compare-and-swap ref updates.
package refstore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/girvc/gir/internal/objstore"
)

// RefError wraps a failure against a named ref.
type RefError struct {
	Name string
	Op   string
	Err  error
}

func (e *RefError) Error() string {
	return "refstore: " + e.Op + " " + e.Name + ": " + e.Err.Error()
}

func (e *RefError) Unwrap() error { return e.Err }

func wrapErr(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &RefError{Name: name, Op: op, Err: err}
}

// CASMismatchError indicates update_ref's compare-and-swap failed because
// the ref's current value did not match the caller's expected old id.
type CASMismatchError struct {
	Name     string
	Expected objstore.ID
	Actual   objstore.ID
}

func (e *CASMismatchError) Error() string {
	return "refstore: stale ref " + e.Name + " (expected " + string(e.Expected) + ", got " + string(e.Actual) + ")"
}

const symbolicPrefix = "ref: "

// Store manages the refs/ hierarchy (and HEAD) of one repository.
type Store struct {
	dir string // repository root, e.g. ".../srv/myrepo"
}

// Open wraps the repository root dir; refs live under dir/refs and
// dir/HEAD, matching the on-disk git layout.
func Open(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name))
}

// readRaw returns the trimmed file content at name, without following
// symbolic refs.
func (s *Store) readRaw(name string) (string, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Resolve walks HEAD (or any other ref) until it finds a non-symbolic ref,
// returning the object id it ultimately points at.
func (s *Store) Resolve(name string) (objstore.ID, error) {
	seen := map[string]bool{}
	for {
		if seen[name] {
			return "", wrapErr("resolve", name, errors.New("symbolic ref cycle"))
		}
		seen[name] = true

		raw, err := s.readRaw(name)
		if err != nil {
			return "", wrapErr("resolve", name, err)
		}
		if strings.HasPrefix(raw, symbolicPrefix) {
			name = strings.TrimSpace(strings.TrimPrefix(raw, symbolicPrefix))
			continue
		}
		if len(raw) != 40 {
			return "", wrapErr("resolve", name, errors.Errorf("malformed ref content %q", raw))
		}
		return objstore.ID(raw), nil
	}
}

// ResolveHEAD is a convenience wrapper around Resolve("HEAD").
func (s *Store) ResolveHEAD() (objstore.ID, error) {
	return s.Resolve("HEAD")
}

// SetSymbolic points name at target (another ref name), e.g. HEAD at
// refs/heads/main, without an intervening CAS — symbolic refs are not
// subject to update_ref's compare-and-swap discipline.
func (s *Store) SetSymbolic(name, target string) error {
	path := s.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return wrapErr("set-symbolic", name, err)
	}
	content := symbolicPrefix + target + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return wrapErr("set-symbolic", name, err)
	}
	return nil
}

// UpdateRef performs update_ref's atomic compare-and-swap: the ref's file
// content becomes id's 40-hex id plus newline. If expectedOld is nil, the
// ref must not already exist. If expectedOld is the zero id, the ref must
// also not already exist (per spec, the zero id is never a valid current
// value). Otherwise the current value must equal *expectedOld.
func (s *Store) UpdateRef(name string, id objstore.ID, expectedOld *objstore.ID) error {
	path := s.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return wrapErr("update", name, err)
	}

	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return wrapErr("update", name, errors.Wrap(err, "acquire ref lock"))
	}
	defer os.Remove(lockPath)

	current, exists, err := s.currentRaw(name)
	if err != nil {
		f.Close()
		return wrapErr("update", name, err)
	}

	mustNotExist := expectedOld == nil || *expectedOld == objstore.Zero
	if mustNotExist {
		if exists {
			f.Close()
			return wrapErr("update", name, &CASMismatchError{Name: name, Expected: objstore.Zero, Actual: current})
		}
	} else {
		if !exists || current != *expectedOld {
			f.Close()
			return wrapErr("update", name, &CASMismatchError{Name: name, Expected: *expectedOld, Actual: current})
		}
	}

	if _, err := f.WriteString(string(id) + "\n"); err != nil {
		f.Close()
		return wrapErr("update", name, err)
	}
	if err := f.Close(); err != nil {
		return wrapErr("update", name, err)
	}
	if err := os.Rename(lockPath, path); err != nil {
		return wrapErr("update", name, err)
	}
	return nil
}

// DeleteRef removes a ref file outright, bypassing CAS.
func (s *Store) DeleteRef(name string) error {
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return wrapErr("delete", name, err)
	}
	return nil
}

func (s *Store) currentRaw(name string) (objstore.ID, bool, error) {
	raw, err := s.readRaw(name)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if strings.HasPrefix(raw, symbolicPrefix) {
		id, err := s.Resolve(name)
		return id, true, err
	}
	return objstore.ID(raw), true, nil
}

// ListRefs enumerates every ref under prefix (e.g. "refs/heads/" for
// branches, "refs/tags/" for tags), keyed by full ref name.
func (s *Store) ListRefs(prefix string) (map[string]objstore.ID, error) {
	refs := make(map[string]objstore.ID)
	root := s.path(prefix)
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".lock") {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		id, err := s.Resolve(name)
		if err != nil {
			return nil
		}
		refs[name] = id
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, wrapErr("list", prefix, err)
	}
	return refs, nil
}

// ListBranches enumerates refs/heads/.
func (s *Store) ListBranches() (map[string]objstore.ID, error) {
	return s.ListRefs("refs/heads/")
}

// ListTags enumerates refs/tags/.
func (s *Store) ListTags() (map[string]objstore.ID, error) {
	return s.ListRefs("refs/tags/")
}

// ListRemoteTracking enumerates refs/remotes/<remote>/, the remote's
// last-known branch positions as recorded by the most recent fetch.
func (s *Store) ListRemoteTracking(remote string) (map[string]objstore.ID, error) {
	return s.ListRefs("refs/remotes/" + remote + "/")
}

// UpdateRemoteTracking records the remote's current position for branch
// after a fetch. Unlike UpdateRef, it is not compare-and-swapped: the
// local record of a remote's state is simply overwritten to match what
// was observed, since no local writer contends over it except the fetch
// that just ran under the repo mutex.
func (s *Store) UpdateRemoteTracking(remote, branch string, id objstore.ID) error {
	name := "refs/remotes/" + remote + "/" + branch
	path := s.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return wrapErr("update-remote-tracking", name, err)
	}
	if err := os.WriteFile(path, []byte(string(id)+"\n"), 0o644); err != nil {
		return wrapErr("update-remote-tracking", name, err)
	}
	return nil
}
