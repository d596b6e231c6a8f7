package pulls

import (
	"golang.org/x/sync/errgroup"

	"github.com/girvc/gir/internal/objstore"
	"github.com/girvc/gir/internal/refstore"
)

// ListCommits resolves pr.RamaHead and pr.RamaBase to commit ids
// concurrently (an errgroup.Group of two, mirroring gothub's
// runPathWorkers fan-out-then-join shape) and returns every commit
// reachable from the head branch but not the base branch, via C1's
// ancestry-exclusion walk.
func ListCommits(objects *objstore.Store, refs *refstore.Store, pr *PullRequest) ([]objstore.ID, error) {
	var headID, baseID objstore.ID

	g := new(errgroup.Group)
	g.Go(func() error {
		id, err := ResolveBranch(refs, pr.RamaHead)
		if err != nil {
			return err
		}
		headID = id
		return nil
	})
	g.Go(func() error {
		id, err := ResolveBranch(refs, pr.RamaBase)
		if err != nil {
			return err
		}
		baseID = id
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, wrapErr("list-commits", pr.RamaHead+".."+pr.RamaBase, err)
	}

	commits, err := objects.AncestryExcluding(headID, []objstore.ID{baseID})
	if err != nil {
		return nil, wrapErr("list-commits", pr.RamaHead+".."+pr.RamaBase, err)
	}
	return commits, nil
}
