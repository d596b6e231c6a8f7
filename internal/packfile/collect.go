package packfile

import (
	"github.com/pkg/errors"

	"github.com/girvc/gir/internal/objstore"
)

// ObjectReader is the subset of objstore.Store that Collect needs; tests
// can substitute an in-memory fake.
type ObjectReader interface {
	Read(id objstore.ID) (objstore.Kind, []byte, error)
}

// Collect walks commit ancestry from wants, descending into each commit's
// tree, and returns every object reached that is not also reachable from
// an id in haves: the haves' history is walked first and marked visited
// without being emitted. Entries have no intra-pack dependencies, since
// Collect never deltifies.
func Collect(store ObjectReader, wants []objstore.ID, haves map[objstore.ID]bool) ([]Entry, error) {
	visited := make(map[objstore.ID]bool)
	var order []Entry

	var walkTree func(id objstore.ID) error
	var walkCommit func(id objstore.ID) error

	walkTree = func(id objstore.ID) error {
		if id == objstore.Zero || id == "" || haves[id] || visited[id] {
			return nil
		}
		visited[id] = true
		kind, payload, err := store.Read(id)
		if err != nil {
			return errors.Wrapf(err, "collect: read tree %s", id)
		}
		order = append(order, Entry{Kind: kind, Payload: payload})

		entries, err := objstore.DecodeTree(payload)
		if err != nil {
			return errors.Wrapf(err, "collect: decode tree %s", id)
		}
		for _, e := range entries {
			if e.Mode == objstore.ModeDirectory {
				if err := walkTree(e.ID); err != nil {
					return err
				}
				continue
			}
			if haves[e.ID] || visited[e.ID] {
				continue
			}
			visited[e.ID] = true
			blobKind, blobPayload, err := store.Read(e.ID)
			if err != nil {
				return errors.Wrapf(err, "collect: read blob %s", e.ID)
			}
			order = append(order, Entry{Kind: blobKind, Payload: blobPayload})
		}
		return nil
	}

	walkCommit = func(id objstore.ID) error {
		if id == objstore.Zero || id == "" || haves[id] || visited[id] {
			return nil
		}
		visited[id] = true
		kind, payload, err := store.Read(id)
		if err != nil {
			return errors.Wrapf(err, "collect: read commit %s", id)
		}
		order = append(order, Entry{Kind: kind, Payload: payload})

		c, err := objstore.DecodeCommit(payload)
		if err != nil {
			return errors.Wrapf(err, "collect: decode commit %s", id)
		}
		if err := walkTree(c.Tree); err != nil {
			return err
		}
		for _, p := range c.Parents {
			if err := walkCommit(p); err != nil {
				return err
			}
		}
		return nil
	}

	// Mark everything reachable from haves as visited, then drop what that
	// walk emitted, so shared trees and blobs are not sent again.
	skip := haves
	haves = nil
	for h := range skip {
		if err := walkCommit(h); err != nil {
			return nil, err
		}
	}
	order = nil

	for _, w := range wants {
		if err := walkCommit(w); err != nil {
			return nil, err
		}
	}
	return order, nil
}
