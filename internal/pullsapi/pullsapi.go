// Package pullsapi wires the pull-request domain (C9) onto the HTTP
// router (C8), implementing the six /repos/{repo}/pulls... endpoints.
package pullsapi

import (
	"encoding/json"
	"path/filepath"
	"strconv"

	"github.com/girvc/gir/internal/httpapi"
	"github.com/girvc/gir/internal/objstore"
	"github.com/girvc/gir/internal/pulls"
	"github.com/girvc/gir/internal/refstore"
)

// Server resolves a repo name to its on-disk state under root/<repo> and
// serves the pull-request endpoints against it. Each request opens fresh
// Store handles — objstore.Open/refstore.Open/pulls.Open are cheap,
// path-bound wrappers, not long-lived connections.
type Server struct {
	Root string
}

func (s *Server) repoDir(repo string) string {
	return filepath.Join(s.Root, repo)
}

func (s *Server) objects(repo string) (*objstore.Store, error) {
	return objstore.Open(filepath.Join(s.repoDir(repo), "objects"))
}

func (s *Server) refs(repo string) *refstore.Store {
	return refstore.Open(s.repoDir(repo))
}

func (s *Server) pulls(repo string) *pulls.Store {
	return pulls.Open(s.repoDir(repo))
}

// Register adds the six pull-request endpoints to rt.
func (s *Server) Register(rt *httpapi.Router) {
	rt.Handle(httpapi.MethodGet, "/repos/{repo}/pulls", s.handleList)
	rt.Handle(httpapi.MethodPost, "/repos/{repo}/pulls", s.handleCreate)
	rt.Handle(httpapi.MethodGet, "/repos/{repo}/pulls/{pull_number}", s.handleGet)
	rt.Handle(httpapi.MethodPatch, "/repos/{repo}/pulls/{pull_number}", s.handleUpdate)
	rt.Handle(httpapi.MethodGet, "/repos/{repo}/pulls/{pull_number}/commits", s.handleCommits)
	rt.Handle(httpapi.MethodPut, "/repos/{repo}/pulls/{pull_number}/merge", s.handleMerge)
}

func pullNumber(params map[string]string) (int, error) {
	n, err := strconv.Atoi(params["pull_number"])
	if err != nil {
		return 0, httpapi.BadRequest("malformed pull number " + params["pull_number"])
	}
	return n, nil
}

type listFilterBody struct {
	Estado   pulls.Estado `json:"estado"`
	RamaHead string       `json:"rama_head"`
	RamaBase string       `json:"rama_base"`
}

func (s *Server) handleList(req *httpapi.Request, params map[string]string) (*httpapi.Response, error) {
	var body listFilterBody
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return nil, httpapi.BadRequest("malformed filter body: " + err.Error())
		}
	}
	store := s.pulls(params["repo"])
	list, err := store.List(pulls.Filter{Estado: body.Estado, RamaHead: body.RamaHead, RamaBase: body.RamaBase})
	if err != nil {
		return nil, httpapi.Internal(err.Error())
	}
	return httpapi.JSON(httpapi.StatusOK, list)
}

type createBody struct {
	Titulo      string `json:"titulo"`
	Descripcion string `json:"descripcion"`
	RamaHead    string `json:"rama_head"`
	RamaBase    string `json:"rama_base"`
}

func (s *Server) handleCreate(req *httpapi.Request, params map[string]string) (*httpapi.Response, error) {
	var body createBody
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return nil, httpapi.BadRequest("malformed create body: " + err.Error())
	}
	if body.Titulo == "" || body.RamaHead == "" || body.RamaBase == "" {
		return nil, httpapi.ValidationFailed("titulo, rama_head and rama_base are required")
	}

	store := s.pulls(params["repo"])
	pr, err := store.Create(body.Titulo, body.Descripcion, body.RamaHead, body.RamaBase)
	if err != nil {
		return nil, httpapi.Internal(err.Error())
	}
	return httpapi.JSON(httpapi.StatusCreated, pr)
}

func (s *Server) handleGet(req *httpapi.Request, params map[string]string) (*httpapi.Response, error) {
	numero, err := pullNumber(params)
	if err != nil {
		return nil, err
	}
	pr, err := s.pulls(params["repo"]).Load(numero)
	if err != nil {
		return nil, httpapi.NotFound("pull request " + params["pull_number"] + " not found")
	}
	return httpapi.JSON(httpapi.StatusOK, pr)
}

type updateBody struct {
	Titulo      *string       `json:"titulo"`
	Descripcion *string       `json:"descripcion"`
	RamaHead    *string       `json:"rama_head"`
	RamaBase    *string       `json:"rama_base"`
	Estado      *pulls.Estado `json:"estado"`
}

func (s *Server) handleUpdate(req *httpapi.Request, params map[string]string) (*httpapi.Response, error) {
	numero, err := pullNumber(params)
	if err != nil {
		return nil, err
	}
	var body updateBody
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return nil, httpapi.BadRequest("malformed update body: " + err.Error())
	}

	store := s.pulls(params["repo"])
	pr, err := store.Update(numero, pulls.Patch{
		Titulo:      body.Titulo,
		Descripcion: body.Descripcion,
		RamaHead:    body.RamaHead,
		RamaBase:    body.RamaBase,
		Estado:      body.Estado,
	})
	if err != nil {
		return nil, httpapi.NotFound("pull request " + params["pull_number"] + " not found")
	}
	return httpapi.JSON(httpapi.StatusOK, pr)
}

func (s *Server) handleCommits(req *httpapi.Request, params map[string]string) (*httpapi.Response, error) {
	numero, err := pullNumber(params)
	if err != nil {
		return nil, err
	}
	repo := params["repo"]
	pr, err := s.pulls(repo).Load(numero)
	if err != nil {
		return nil, httpapi.NotFound("pull request " + params["pull_number"] + " not found")
	}

	objects, err := s.objects(repo)
	if err != nil {
		return nil, httpapi.Internal(err.Error())
	}
	commits, err := pulls.ListCommits(objects, s.refs(repo), pr)
	if err != nil {
		return nil, httpapi.Internal(err.Error())
	}
	if len(commits) == 0 {
		return httpapi.Empty(httpapi.StatusNoContent), nil
	}
	return httpapi.JSON(httpapi.StatusOK, commits)
}

// handleMerge attempts a fast-forward-only merge of rama_head onto
// rama_base: if rama_base's commit is an ancestor of rama_head's, the
// base ref is advanced via a CAS update and the PR is marked mergeado.
// A concurrent move of rama_base surfaces as 409 Conflict; a non-fast-
// forward relationship surfaces as the domain's 205 Merge Not Allowed.
func (s *Server) handleMerge(req *httpapi.Request, params map[string]string) (*httpapi.Response, error) {
	numero, err := pullNumber(params)
	if err != nil {
		return nil, err
	}
	repo := params["repo"]
	store := s.pulls(repo)
	pr, err := store.Load(numero)
	if err != nil {
		return nil, httpapi.NotFound("pull request " + params["pull_number"] + " not found")
	}

	objects, err := s.objects(repo)
	if err != nil {
		return nil, httpapi.Internal(err.Error())
	}
	refs := s.refs(repo)

	headID, err := pulls.ResolveBranch(refs, pr.RamaHead)
	if err != nil {
		return nil, httpapi.NotFound("rama_head " + pr.RamaHead + " not found")
	}
	baseID, err := pulls.ResolveBranch(refs, pr.RamaBase)
	if err != nil {
		return nil, httpapi.NotFound("rama_base " + pr.RamaBase + " not found")
	}

	ancestry, err := objects.Ancestry(headID)
	if err != nil {
		return nil, httpapi.Internal(err.Error())
	}
	fastForward := false
	for _, id := range ancestry {
		if id == baseID {
			fastForward = true
			break
		}
	}
	if !fastForward {
		return nil, httpapi.MergeNotAllowed("rama_base is not an ancestor of rama_head; a fast-forward merge is not possible")
	}

	if err := refs.UpdateRef("refs/heads/"+pr.RamaBase, headID, &baseID); err != nil {
		return nil, httpapi.Conflict("rama_base moved before the merge could complete")
	}

	mergeado := pulls.EstadoMergeado
	updated, err := store.Update(numero, pulls.Patch{Estado: &mergeado})
	if err != nil {
		return nil, httpapi.Internal(err.Error())
	}
	return httpapi.JSON(httpapi.StatusOK, updated)
}
