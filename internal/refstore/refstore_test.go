package refstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/girvc/gir/internal/objstore"
)

const idA = objstore.ID("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
const idB = objstore.ID("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
const idC = objstore.ID("cccccccccccccccccccccccccccccccccccccccc")

func TestUpdateRefCreateThenCAS(t *testing.T) {
	s := Open(t.TempDir())

	require.NoError(t, s.UpdateRef("refs/heads/main", idA, nil))
	got, err := s.Resolve("refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, idA, got)

	require.NoError(t, s.UpdateRef("refs/heads/main", idB, &idA))
	got, err = s.Resolve("refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, idB, got)
}

func TestUpdateRefCASMismatch(t *testing.T) {
	s := Open(t.TempDir())
	require.NoError(t, s.UpdateRef("refs/heads/main", idA, nil))

	err := s.UpdateRef("refs/heads/main", idB, &idC)
	require.Error(t, err)

	var mismatch *CASMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, idC, mismatch.Expected)
	require.Equal(t, idA, mismatch.Actual)

	got, err := s.Resolve("refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, idA, got)
}

func TestUpdateRefRejectsCreateOverExisting(t *testing.T) {
	s := Open(t.TempDir())
	require.NoError(t, s.UpdateRef("refs/heads/main", idA, nil))

	err := s.UpdateRef("refs/heads/main", idB, nil)
	require.Error(t, err)
}

func TestUpdateRefZeroExpectedMeansMustNotExist(t *testing.T) {
	s := Open(t.TempDir())
	require.NoError(t, s.UpdateRef("refs/heads/main", idA, nil))

	err := s.UpdateRef("refs/heads/main", idB, &objstore.Zero)
	require.Error(t, err)
}

func TestUpdateRefFailsWhenLockExists(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir)

	lockPath := filepath.Join(dir, "refs", "heads", "main.lock")
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0o755))
	require.NoError(t, os.WriteFile(lockPath, []byte("locked"), 0o644))

	err := s.UpdateRef("refs/heads/main", idA, nil)
	require.Error(t, err)
}

func TestSymbolicHEADResolution(t *testing.T) {
	s := Open(t.TempDir())
	require.NoError(t, s.UpdateRef("refs/heads/main", idA, nil))
	require.NoError(t, s.SetSymbolic("HEAD", "refs/heads/main"))

	got, err := s.ResolveHEAD()
	require.NoError(t, err)
	require.Equal(t, idA, got)
}

func TestResolveDetectsSymbolicCycle(t *testing.T) {
	s := Open(t.TempDir())
	require.NoError(t, s.SetSymbolic("HEAD", "refs/heads/loop"))
	require.NoError(t, s.SetSymbolic("refs/heads/loop", "HEAD"))

	_, err := s.Resolve("HEAD")
	require.Error(t, err)
}

func TestListBranchesAndTags(t *testing.T) {
	s := Open(t.TempDir())
	require.NoError(t, s.UpdateRef("refs/heads/main", idA, nil))
	require.NoError(t, s.UpdateRef("refs/heads/dev", idB, nil))
	require.NoError(t, s.UpdateRef("refs/tags/v1", idC, nil))

	branches, err := s.ListBranches()
	require.NoError(t, err)
	require.Len(t, branches, 2)
	require.Equal(t, idA, branches["refs/heads/main"])

	tags, err := s.ListTags()
	require.NoError(t, err)
	require.Len(t, tags, 1)
	require.Equal(t, idC, tags["refs/tags/v1"])
}

func TestRemoteTrackingRoundTrip(t *testing.T) {
	s := Open(t.TempDir())
	require.NoError(t, s.UpdateRemoteTracking("origin", "main", idA))

	tracked, err := s.ListRemoteTracking("origin")
	require.NoError(t, err)
	require.Equal(t, idA, tracked["refs/remotes/origin/main"])
}

func TestDeleteRef(t *testing.T) {
	s := Open(t.TempDir())
	require.NoError(t, s.UpdateRef("refs/heads/main", idA, nil))
	require.NoError(t, s.DeleteRef("refs/heads/main"))

	_, err := s.Resolve("refs/heads/main")
	require.Error(t, err)
}
