package objstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAncestryExcludingCommonBase(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "objects"))
	require.NoError(t, err)

	tree, err := store.HashTree(nil)
	require.NoError(t, err)

	base, err := store.HashCommit(CommitData{Tree: tree, Author: "a", Committer: "a", Message: "base"})
	require.NoError(t, err)

	baseBranch, err := store.HashCommit(CommitData{
		Tree: tree, Parents: []ID{base}, Author: "a", Committer: "a", Message: "en rama_base",
	})
	require.NoError(t, err)

	headOne, err := store.HashCommit(CommitData{
		Tree: tree, Parents: []ID{base}, Author: "a", Committer: "a", Message: "primero en rama_head",
	})
	require.NoError(t, err)
	headTwo, err := store.HashCommit(CommitData{
		Tree: tree, Parents: []ID{headOne}, Author: "a", Committer: "a", Message: "segundo en rama_head",
	})
	require.NoError(t, err)

	unique, err := store.AncestryExcluding(headTwo, []ID{baseBranch})
	require.NoError(t, err)
	require.ElementsMatch(t, []ID{headTwo, headOne}, unique)
}
