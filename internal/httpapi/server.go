package httpapi

import (
	"bufio"
	"log/slog"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Server wires a Router to one connection at a time: read a single
// request, dispatch it, write a single response, done. It is meant to be
// adapted into a gitserver.ConnHandler by the caller.
type Server struct {
	Router  *Router
	Logger  *slog.Logger
	metrics *requestMetrics
}

// NewServer builds a Server around router, logging through logger, and
// recording per-request counters/histograms against the process-wide
// Prometheus registry.
func NewServer(router *Router, logger *slog.Logger) *Server {
	return &Server{Router: router, Logger: logger, metrics: defaultMetrics()}
}

// Handle implements gitserver.ConnHandler: it reads exactly one request
// off conn, dispatches it, and writes exactly one response, logging the
// outcome tagged by workerID and recording it against s.metrics.
func (s *Server) Handle(conn net.Conn, workerID string) {
	start := time.Now()
	br := bufio.NewReader(conn)
	req, err := ReadRequest(br)
	if err != nil {
		s.Logger.Warn("malformed request", "worker", workerID, "err", err)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			apiErr = BadRequest(err.Error())
		}
		status := StatusFor(apiErr)
		s.metrics.observe("UNKNOWN", "unknown", status.Code, start)
		if werr := writeError(conn, apiErr); werr != nil {
			s.Logger.Error("failed to write error response", "worker", workerID, "err", werr)
		}
		return
	}

	resp, err := s.Router.Dispatch(req)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			apiErr = Internal(err.Error())
		}
		status := StatusFor(apiErr)
		s.Logger.Info("request failed", "worker", workerID, "method", req.Method, "path", req.Path, "status", status.Code)
		s.metrics.observe(string(req.Method), req.Path, status.Code, start)
		if werr := writeError(conn, apiErr); werr != nil {
			s.Logger.Error("failed to write error response", "worker", workerID, "err", werr)
		}
		return
	}

	s.Logger.Info("request handled", "worker", workerID, "method", req.Method, "path", req.Path, "status", resp.Status.Code)
	s.metrics.observe(string(req.Method), req.Path, resp.Status.Code, start)
	if err := resp.WriteTo(conn); err != nil {
		s.Logger.Error("failed to write response", "worker", workerID, "err", err)
	}
}
