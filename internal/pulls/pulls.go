// Package pulls implements the pull-request domain (C9): JSON-persisted
// records under srv/<repo>/pulls/<numero>, and the list-commits operation
// that resolves a PR's unique commits through the object store (C1).
package pulls

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/girvc/gir/internal/objstore"
	"github.com/girvc/gir/internal/refstore"
)

// Estado is the pull request's lifecycle state.
type Estado string

const (
	EstadoAbierto  Estado = "abierto"
	EstadoCerrado  Estado = "cerrado"
	EstadoMergeado Estado = "mergeado"
)

// PullRequest is one pull request record, field-named after the domain
// vocabulary spec.md uses throughout §4.9 and §8 scenario 5.
type PullRequest struct {
	Numero        int       `json:"numero"`
	Titulo        string    `json:"titulo"`
	Descripcion   string    `json:"descripcion"`
	RamaHead      string    `json:"rama_head"`
	RamaBase      string    `json:"rama_base"`
	Estado        Estado    `json:"estado"`
	CreadoEn      time.Time `json:"creado_en"`
	ActualizadoEn time.Time `json:"actualizado_en"`
}

// PullError tags a store-level failure with the operation and repo it
// occurred under.
type PullError struct {
	Op   string
	Repo string
	Err  error
}

func (e *PullError) Error() string {
	return "pulls: " + e.Op + " " + e.Repo + ": " + e.Err.Error()
}
func (e *PullError) Unwrap() error { return e.Err }

func wrapErr(op, repo string, err error) error {
	if err == nil {
		return nil
	}
	return &PullError{Op: op, Repo: repo, Err: err}
}

// Store persists pull requests for one repository under root/pulls/<numero>,
// guarding the create-time number assignment with an in-process mutex —
// the on-disk CAS discipline C4 uses for refs is unnecessary here because
// a single Store instance serializes every Create call.
type Store struct {
	root string
	mu   sync.Mutex
}

// Open binds a Store to repoRoot (srv/<repo>); the pulls/ subdirectory is
// created lazily on first write.
func Open(repoRoot string) *Store {
	return &Store{root: filepath.Join(repoRoot, "pulls")}
}

func (s *Store) path(numero int) string {
	return filepath.Join(s.root, strconv.Itoa(numero))
}

// Create assigns the next numero (max existing + 1, or 1 if none exist)
// and persists the new record.
func (s *Store) Create(titulo, descripcion, ramaHead, ramaBase string) (*PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.listLocked()
	if err != nil {
		return nil, wrapErr("create", s.root, err)
	}
	numero := 1
	for _, pr := range existing {
		if pr.Numero >= numero {
			numero = pr.Numero + 1
		}
	}

	now := time.Now()
	pr := &PullRequest{
		Numero:        numero,
		Titulo:        titulo,
		Descripcion:   descripcion,
		RamaHead:      ramaHead,
		RamaBase:      ramaBase,
		Estado:        EstadoAbierto,
		CreadoEn:      now,
		ActualizadoEn: now,
	}
	if err := s.writeLocked(pr); err != nil {
		return nil, wrapErr("create", s.root, err)
	}
	return pr, nil
}

// Load reads a single pull request by number.
func (s *Store) Load(numero int) (*PullRequest, error) {
	data, err := os.ReadFile(s.path(numero))
	if err != nil {
		return nil, wrapErr("load", s.root, err)
	}
	var pr PullRequest
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, wrapErr("load", s.root, errors.Wrap(err, "decode pull request"))
	}
	return &pr, nil
}

// Patch is a partial update: every non-nil field replaces the stored
// value, every nil field is left untouched. Numero is never settable —
// it is immutable once assigned at creation.
type Patch struct {
	Titulo      *string
	Descripcion *string
	RamaHead    *string
	RamaBase    *string
	Estado      *Estado
}

// Update applies patch to the stored record and persists the result.
func (s *Store) Update(numero int, patch Patch) (*PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, err := s.Load(numero)
	if err != nil {
		return nil, err
	}
	if patch.Titulo != nil {
		pr.Titulo = *patch.Titulo
	}
	if patch.Descripcion != nil {
		pr.Descripcion = *patch.Descripcion
	}
	if patch.RamaHead != nil {
		pr.RamaHead = *patch.RamaHead
	}
	if patch.RamaBase != nil {
		pr.RamaBase = *patch.RamaBase
	}
	if patch.Estado != nil {
		pr.Estado = *patch.Estado
	}
	pr.ActualizadoEn = time.Now()

	if err := s.writeLocked(pr); err != nil {
		return nil, wrapErr("update", s.root, err)
	}
	return pr, nil
}

// Filter narrows List to records matching every non-empty field.
type Filter struct {
	Estado   Estado
	RamaHead string
	RamaBase string
}

func (f Filter) matches(pr *PullRequest) bool {
	if f.Estado != "" && pr.Estado != f.Estado {
		return false
	}
	if f.RamaHead != "" && pr.RamaHead != f.RamaHead {
		return false
	}
	if f.RamaBase != "" && pr.RamaBase != f.RamaBase {
		return false
	}
	return true
}

// List returns every pull request matching filter, sorted by numero.
func (s *Store) List(filter Filter) ([]*PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.listLocked()
	if err != nil {
		return nil, wrapErr("list", s.root, err)
	}
	out := make([]*PullRequest, 0, len(all))
	for _, pr := range all {
		if filter.matches(pr) {
			out = append(out, pr)
		}
	}
	return out, nil
}

func (s *Store) listLocked() ([]*PullRequest, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read pulls directory")
	}
	var out []*PullRequest
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".tmp-") {
			continue
		}
		numero, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		pr, err := s.Load(numero)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Numero < out[j].Numero })
	return out, nil
}

// writeLocked persists pr atomically: write to a sibling temp file, then
// rename into place, matching the write-temp-then-rename discipline C1
// uses for loose objects.
func (s *Store) writeLocked(pr *PullRequest) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return errors.Wrap(err, "create pulls directory")
	}
	data, err := json.MarshalIndent(pr, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode pull request")
	}
	tmp, err := os.CreateTemp(s.root, ".tmp-pr-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write pull request")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpPath, s.path(pr.Numero)); err != nil {
		return errors.Wrap(err, "rename into place")
	}
	return nil
}

// ResolveBranch looks up the commit a short branch name ("rama", "master")
// currently points to, within refs/heads/.
func ResolveBranch(refs *refstore.Store, branch string) (objstore.ID, error) {
	return refs.Resolve("refs/heads/" + branch)
}
