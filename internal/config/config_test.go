package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Git.Host != "0.0.0.0" {
		t.Fatalf("Git.Host = %q, want %q", cfg.Git.Host, "0.0.0.0")
	}
	if cfg.Git.Port != 9418 {
		t.Fatalf("Git.Port = %d, want 9418", cfg.Git.Port)
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("HTTP.Port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.Storage.Path != "srv" {
		t.Fatalf("Storage.Path = %q, want %q", cfg.Storage.Path, "srv")
	}
	if cfg.GitAddr() != "0.0.0.0:9418" {
		t.Fatalf("GitAddr() = %q, want %q", cfg.GitAddr(), "0.0.0.0:9418")
	}
	if cfg.HTTPAddr() != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr() = %q, want %q", cfg.HTTPAddr(), "0.0.0.0:8080")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("GIR_GIT_HOST", "127.0.0.1")
	t.Setenv("GIR_GIT_PORT", "9000")
	t.Setenv("GIR_HTTP_HOST", "127.0.0.1")
	t.Setenv("GIR_HTTP_PORT", "9001")
	t.Setenv("GIR_STORAGE_PATH", "/tmp/srv")
	t.Setenv("GIR_LOG_PATH", "/tmp/gir.log")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Git.Host != "127.0.0.1" {
		t.Fatalf("Git.Host = %q, want %q", cfg.Git.Host, "127.0.0.1")
	}
	if cfg.Git.Port != 9000 {
		t.Fatalf("Git.Port = %d, want 9000", cfg.Git.Port)
	}
	if cfg.HTTP.Port != 9001 {
		t.Fatalf("HTTP.Port = %d, want 9001", cfg.HTTP.Port)
	}
	if cfg.Storage.Path != "/tmp/srv" {
		t.Fatalf("Storage.Path = %q, want %q", cfg.Storage.Path, "/tmp/srv")
	}
	if cfg.Log.Path != "/tmp/gir.log" {
		t.Fatalf("Log.Path = %q, want %q", cfg.Log.Path, "/tmp/gir.log")
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
git:
  host: 127.0.0.1
  port: 9420
http:
  host: 127.0.0.1
  port: 8081
storage:
  path: data/srv
log:
  path: data/gir.log
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(path): %v", err)
	}

	if cfg.Git.Port != 9420 {
		t.Fatalf("Git.Port = %d, want 9420", cfg.Git.Port)
	}
	if cfg.HTTP.Port != 8081 {
		t.Fatalf("HTTP.Port = %d, want 8081", cfg.HTTP.Port)
	}
	if cfg.Storage.Path != "data/srv" {
		t.Fatalf("Storage.Path = %q, want %q", cfg.Storage.Path, "data/srv")
	}
	if cfg.Log.Path != "data/gir.log" {
		t.Fatalf("Log.Path = %q, want %q", cfg.Log.Path, "data/gir.log")
	}
}

func TestValidateServeRequiresStoragePath(t *testing.T) {
	cfg := Default()
	cfg.Storage.Path = ""
	if err := cfg.ValidateServe(); err == nil {
		t.Fatal("ValidateServe() = nil, want error for empty storage path")
	}
}
