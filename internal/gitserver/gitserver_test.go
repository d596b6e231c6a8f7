package gitserver

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNoteRestartIncrementsWithinWindow(t *testing.T) {
	s := NewSupervisor(testLogger(), "", "", nil, nil)
	last := time.Now()
	attempts := 0

	s.noteRestart("git", &last, &attempts)
	require.Equal(t, 1, attempts)
}

func TestNoteRestartDoesNotIncrementAfterWindow(t *testing.T) {
	s := NewSupervisor(testLogger(), "", "", nil, nil)
	stale := time.Now().Add(-2 * minUptime)
	last := stale
	attempts := 0

	s.noteRestart("git", &last, &attempts)
	require.Equal(t, 0, attempts)
	require.Equal(t, stale, last) // quirk: timestamp is left untouched
}

func TestMessageString(t *testing.T) {
	require.Equal(t, "GitFatal", GitFatal.String())
	require.Equal(t, "HttpFatal", HTTPFatal.String())
}

func TestSupervisorExhaustsRestartBudgetOnRepeatedBindFailure(t *testing.T) {
	// An address that will never successfully bind causes every restart to
	// immediately refail, well within the 60s window each time.
	s := NewSupervisor(testLogger(), "256.256.256.256:0", "127.0.0.1:0", nil, func(c net.Conn, id string) {})

	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	select {
	case err := <-done:
		var fatal *ServerFatal
		require.ErrorAs(t, err, &fatal)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor should have exhausted its restart budget quickly")
	}
}
