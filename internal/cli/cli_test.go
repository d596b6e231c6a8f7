package cli

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestRunInitAddCommitLog(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	logger := discardLogger()

	if _, err := Run([]string{"init"}, logger); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("hola"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Run([]string{"add", "f.txt"}, logger); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := Run([]string{"commit", "-m", "primero"}, logger); err != nil {
		t.Fatalf("commit: %v", err)
	}

	out, err := Run([]string{"log"}, logger)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if !strings.Contains(out, "     primero") {
		t.Fatalf("log output = %q, want it to contain the indented message", out)
	}
}

func TestRunCommitWithoutMessageFails(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	logger := discardLogger()

	if _, err := Run([]string{"init"}, logger); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := Run([]string{"commit"}, logger); err == nil {
		t.Fatal("commit without -m: want error, got nil")
	}
}

func TestRunBranchAndShowRef(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	logger := discardLogger()

	if _, err := Run([]string{"init"}, logger); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("hola"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Run([]string{"add", "f.txt"}, logger); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := Run([]string{"commit", "-m", "primero"}, logger); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := Run([]string{"branch", "feature"}, logger); err != nil {
		t.Fatalf("branch: %v", err)
	}

	out, err := Run([]string{"show-ref"}, logger)
	if err != nil {
		t.Fatalf("show-ref: %v", err)
	}
	if !strings.Contains(out, "refs/heads/feature") || !strings.Contains(out, "refs/heads/master") {
		t.Fatalf("show-ref output = %q, want both branches listed", out)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if _, err := Run([]string{"frobnicate"}, discardLogger()); err == nil {
		t.Fatal("unknown command: want error, got nil")
	}
}

func TestRunStubCommandsReturnError(t *testing.T) {
	for _, name := range []string{"status", "checkout", "merge", "fetch", "push", "pull", "clone", "remote", "rebase", "gui"} {
		if _, err := Run([]string{name}, discardLogger()); err == nil {
			t.Fatalf("%s: want not-implemented error, got nil", name)
		}
	}
}
