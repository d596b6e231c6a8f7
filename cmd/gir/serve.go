package main

import (
	"bufio"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/girvc/gir/internal/config"
	"github.com/girvc/gir/internal/gitserver"
	"github.com/girvc/gir/internal/httpapi"
	"github.com/girvc/gir/internal/objstore"
	"github.com/girvc/gir/internal/pktline"
	"github.com/girvc/gir/internal/protocol"
	"github.com/girvc/gir/internal/pullsapi"
	"github.com/girvc/gir/internal/refstore"
	"github.com/girvc/gir/internal/reposync"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the git wire-protocol and pull-request HTTP listeners",
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe(configPath)
	}
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	logFile, err := os.OpenFile(cfg.Log.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := slog.New(slog.NewJSONHandler(logFile, nil))

	registry := reposync.NewRegistry()
	writeServices := map[string]bool{protocol.ServiceReceivePack: true}

	gitHandler := func(conn net.Conn, workerID string) {
		handleGitConn(conn, workerID, logger, cfg.Storage.Path, registry, writeServices)
	}

	router := httpapi.NewRouter()
	router.Handle(httpapi.MethodGet, "/metrics", httpapi.MetricsHandler)
	pulls := &pullsapi.Server{Root: cfg.Storage.Path}
	pulls.Register(router)
	httpServer := httpapi.NewServer(router, logger)

	sup := gitserver.NewSupervisor(logger, cfg.GitAddr(), cfg.HTTPAddr(), gitHandler, httpServer.Handle)
	logger.Info("starting gir server", "git_addr", cfg.GitAddr(), "http_addr", cfg.HTTPAddr())
	return sup.Run()
}

// handleGitConn reads the opening service-request line off conn, opens
// the named repository under root, and dispatches to the matching half
// of the protocol FSM — acquiring the repository's write lock first for
// receive-pack, since only it mutates refs and objects.
func handleGitConn(conn net.Conn, workerID string, logger *slog.Logger, root string, registry *reposync.Registry, writeServices map[string]bool) {
	br := bufio.NewReader(conn)
	pr := pktline.NewReader(br)

	line, err := pr.Next()
	if err != nil || line == nil {
		logger.Warn("malformed service request", "worker", workerID, "err", err)
		return
	}

	req, err := protocol.ParseServiceRequest(line)
	if err != nil {
		logger.Warn("bad service request", "worker", workerID, "err", err)
		return
	}

	repoDir := filepath.Join(root, req.Repo)
	objects, err := objstore.Open(filepath.Join(repoDir, "objects"))
	if err != nil {
		logger.Error("open object store", "worker", workerID, "repo", req.Repo, "err", err)
		return
	}
	repo := &protocol.Repository{Objects: objects, Refs: refstore.Open(repoDir)}

	if writeServices[req.Service] {
		guard := registry.Acquire(req.Repo)
		defer guard.Release()
	}

	logger.Info("serving git request", "worker", workerID, "service", req.Service, "repo", req.Repo)

	rw := &bufferedConn{r: br, w: conn}
	switch req.Service {
	case protocol.ServiceUploadPack:
		err = protocol.RunUploadPack(rw, repo)
	case protocol.ServiceReceivePack:
		err = protocol.RunReceivePack(rw, repo)
	}
	if err != nil {
		logger.Error("git service failed", "worker", workerID, "service", req.Service, "repo", req.Repo, "err", err)
	}
}

// bufferedConn carries the same *bufio.Reader used to parse the opening
// service-request line into the rest of the FSM, so pkt-line parsing
// there picks up exactly where this handler's read-ahead left off
// instead of starting a second buffered reader over the same socket.
type bufferedConn struct {
	r *bufio.Reader
	w net.Conn
}

func (c *bufferedConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *bufferedConn) Write(p []byte) (int, error) { return c.w.Write(p) }
