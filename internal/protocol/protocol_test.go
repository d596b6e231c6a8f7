package protocol

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/girvc/gir/internal/objstore"
	"github.com/girvc/gir/internal/pktline"
	"github.com/girvc/gir/internal/refstore"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	dir := t.TempDir()
	objects, err := objstore.Open(filepath.Join(dir, "objects"))
	require.NoError(t, err)
	refs := refstore.Open(dir)
	return &Repository{Objects: objects, Refs: refs}
}

// fakeConn gives the client's pre-written request its own buffer (read
// side) separate from the server's response (write side), so discovery
// output the FSM writes never gets mistaken for more client input — a
// single shared bytes.Buffer can't model two independent directions.
type fakeConn struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (f *fakeConn) Read(p []byte) (int, error)  { return f.in.Read(p) }
func (f *fakeConn) Write(p []byte) (int, error) { return f.out.Write(p) }

func TestParseServiceRequest(t *testing.T) {
	req, err := ParseServiceRequest([]byte("git-upload-pack /demo.gir\x00host=localhost\x00"))
	require.NoError(t, err)
	require.Equal(t, ServiceUploadPack, req.Service)
	require.Equal(t, "/demo.gir", req.Repo)
	require.Equal(t, "localhost", req.Host)
}

func TestParseServiceRequestRejectsUnknownService(t *testing.T) {
	_, err := ParseServiceRequest([]byte("git-frobnicate /demo.gir\x00host=localhost\x00"))
	require.Error(t, err)
}

func TestWriteDiscoveryEmptyRepo(t *testing.T) {
	var buf bytes.Buffer
	w := pktline.NewWriter(&buf)
	require.NoError(t, WriteDiscovery(w, "", nil, uploadPackCaps))

	r := pktline.NewReader(&buf)
	lines, err := r.ReadUntilFlush()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, "version 1\n", string(lines[0]))
	require.Contains(t, string(lines[1]), "capabilities^{}")
	require.Contains(t, string(lines[1]), string(objstore.Zero))
}

func TestUploadPackEmptyRepoAdvertisesZeroID(t *testing.T) {
	repo := newTestRepo(t)
	var in, out bytes.Buffer
	conn := &fakeConn{in: &in, out: &out}

	cw := pktline.NewWriter(&in)
	require.NoError(t, cw.Flush()) // client sends no wants: immediate flush

	err := RunUploadPack(conn, repo)
	require.NoError(t, err)

	r := pktline.NewReader(&out)
	lines, err := r.ReadUntilFlush()
	require.NoError(t, err)
	require.Contains(t, string(lines[1]), "capabilities^{}")
	require.Contains(t, string(lines[1]), string(objstore.Zero))
}

func TestReceivePackCreatesRef(t *testing.T) {
	repo := newTestRepo(t)

	tree, err := repo.Objects.HashTree(nil)
	require.NoError(t, err)
	commit, err := repo.Objects.HashCommit(objstore.CommitData{Tree: tree, Author: "a", Committer: "a", Message: "m"})
	require.NoError(t, err)

	var in, out bytes.Buffer
	conn := &fakeConn{in: &in, out: &out}
	cw := pktline.NewWriter(&in)
	require.NoError(t, cw.SendString(string(objstore.Zero)+" "+string(commit)+" refs/heads/main\n"))
	require.NoError(t, cw.Flush())
	// No packfile body: the commit/tree already exist in this store.

	require.NoError(t, RunReceivePack(conn, repo))

	got, err := repo.Refs.Resolve("refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, commit, got)
}

func TestReceivePackReportsCASMismatch(t *testing.T) {
	repo := newTestRepo(t)
	tree, err := repo.Objects.HashTree(nil)
	require.NoError(t, err)
	c1, err := repo.Objects.HashCommit(objstore.CommitData{Tree: tree, Author: "a", Committer: "a", Message: "1"})
	require.NoError(t, err)
	c2, err := repo.Objects.HashCommit(objstore.CommitData{Tree: tree, Author: "a", Committer: "a", Message: "2"})
	require.NoError(t, err)

	require.NoError(t, repo.Refs.UpdateRef("refs/heads/main", c1, nil))

	var in, out bytes.Buffer
	conn := &fakeConn{in: &in, out: &out}
	cw := pktline.NewWriter(&in)
	staleOld := "cccccccccccccccccccccccccccccccccccccccc"
	require.NoError(t, cw.SendString(staleOld+" "+string(c2)+" refs/heads/main\n"))
	require.NoError(t, cw.Flush())

	require.NoError(t, RunReceivePack(conn, repo))

	r := pktline.NewReader(&out)
	_, err = r.ReadUntilFlush() // ref discovery
	require.NoError(t, err)
	lines, err := r.ReadUntilFlush() // status report
	require.NoError(t, err)
	found := false
	for _, l := range lines {
		if bytes.Contains(l, []byte("ng refs/heads/main fetch first")) {
			found = true
		}
	}
	require.True(t, found)
}
