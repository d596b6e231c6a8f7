// Package gitserver runs the two TCP accept loops (git wire protocol,
// HTTP API) and the supervisor that restarts either one on a fatal
// listener-level error, up to a bounded number of attempts.
package gitserver

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Message is sent on the fatal-error channel by a listener that can no
// longer accept connections.
type Message int

const (
	GitFatal Message = iota
	HTTPFatal
)

func (m Message) String() string {
	if m == GitFatal {
		return "GitFatal"
	}
	return "HttpFatal"
}

const (
	maxRestarts = 5
	minUptime   = 60 * time.Second
)

// ServerFatal is returned by Supervisor.Run when a listener has exhausted
// its restart budget; the process is expected to exit non-zero.
type ServerFatal struct {
	Message string
}

func (e *ServerFatal) Error() string { return "server fatal: " + e.Message }

// ConnHandler processes one accepted connection; it must close nothing
// itself (the accept loop closes the socket on every exit path).
type ConnHandler func(conn net.Conn, workerID string)

// Supervisor owns both accept loops and restarts either on fatal error,
// tracking a per-listener restart counter that only increments when
// restarts occur less than minUptime apart — and, per the behavior being
// preserved here, never decays once that window is exceeded.
type Supervisor struct {
	logger *slog.Logger

	gitAddr, httpAddr       string
	gitHandler, httpHandler ConnHandler

	fatal chan Message

	mu                              sync.Mutex
	gitLn, httpLn                   net.Listener
	gitAttempts, httpAttempts       int
	gitLastRestart, httpLastRestart time.Time
}

// NewSupervisor builds a supervisor bound to the given addresses. Handlers
// are invoked once per accepted connection, each in its own goroutine.
func NewSupervisor(logger *slog.Logger, gitAddr, httpAddr string, gitHandler, httpHandler ConnHandler) *Supervisor {
	return &Supervisor{
		logger:      logger,
		gitAddr:     gitAddr,
		httpAddr:    httpAddr,
		gitHandler:  gitHandler,
		httpHandler: httpHandler,
		// buffered so a shutdown-triggered Accept failure can still report
		// in after the supervisor has stopped reading.
		fatal: make(chan Message, 2),
	}
}

// Run starts both listeners and blocks until the supervisor exhausts a
// restart budget, returning ServerFatal. A healthy server never returns.
func (s *Supervisor) Run() error {
	now := time.Now()
	s.gitLastRestart = now
	s.httpLastRestart = now

	g := new(errgroup.Group)
	g.Go(s.runGitLoop)
	g.Go(s.runHTTPLoop)
	g.Go(func() error { return s.consumeFatal(g) })
	return g.Wait()
}

func (s *Supervisor) runGitLoop() error {
	return s.acceptLoop("git", s.gitAddr, s.gitHandler, GitFatal, func(ln net.Listener) {
		s.mu.Lock()
		s.gitLn = ln
		s.mu.Unlock()
	})
}

func (s *Supervisor) runHTTPLoop() error {
	return s.acceptLoop("http", s.httpAddr, s.httpHandler, HTTPFatal, func(ln net.Listener) {
		s.mu.Lock()
		s.httpLn = ln
		s.mu.Unlock()
	})
}

func (s *Supervisor) acceptLoop(name, addr string, handler ConnHandler, msg Message, record func(net.Listener)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error("listener bind failed", "listener", name, "addr", addr, "err", err)
		s.fatal <- msg
		return nil
	}
	record(ln)
	s.logger.Info("listener started", "listener", name, "addr", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.logger.Error("accept failed", "listener", name, "err", err)
			ln.Close()
			s.fatal <- msg
			return nil
		}
		workerID := uuid.NewString()
		go func(c net.Conn, id string) {
			defer c.Close()
			handler(c, id)
		}(conn, workerID)
	}
}

// consumeFatal is the supervisor's own select loop: the errgroup's third
// leg, which never returns an error unless the restart budget is spent.
func (s *Supervisor) consumeFatal(g *errgroup.Group) error {
	for msg := range s.fatal {
		switch msg {
		case GitFatal:
			s.noteRestart("git", &s.gitLastRestart, &s.gitAttempts)
			g.Go(s.runGitLoop)
		case HTTPFatal:
			s.noteRestart("http", &s.httpLastRestart, &s.httpAttempts)
			g.Go(s.runHTTPLoop)
		}
		s.logger.Warn("listener restarted", "cause", msg.String())

		s.mu.Lock()
		exhausted := s.gitAttempts >= maxRestarts || s.httpAttempts >= maxRestarts
		s.mu.Unlock()
		if exhausted {
			s.shutdownListeners()
			return &ServerFatal{Message: "listener exceeded restart budget"}
		}
	}
	return nil
}

// shutdownListeners closes whichever listeners are currently bound, so
// their accept loops unblock and the errgroup can finish waiting.
func (s *Supervisor) shutdownListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gitLn != nil {
		s.gitLn.Close()
	}
	if s.httpLn != nil {
		s.httpLn.Close()
	}
}

// noteRestart increments the attempt counter only if less than minUptime
// elapsed since the last restart, and only then advances the timestamp —
// matching the original's (possibly unintended) monotone counter: once a
// listener survives minUptime, the stale timestamp is left in place and
// the counter stops tracking further restarts against a moving baseline.
func (s *Supervisor) noteRestart(listener string, last *time.Time, attempts *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	getRestartsTotal().WithLabelValues(listener).Inc()
	if time.Since(*last) < minUptime {
		*last = time.Now()
		*attempts++
	}
}
