package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadErrorsOnMissingExplicitFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatalf("expected an explicit missing config file to error, got cfg=%+v", cfg)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "server:\n  listen_addr: \":15432\"\ndatabase:\n  data_dir: " + dir + "\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != ":15432" {
		t.Fatalf("got listen addr %q", cfg.Server.ListenAddr)
	}
	if cfg.Database.DataDir != dir {
		t.Fatalf("got data dir %q, want %q", cfg.Database.DataDir, dir)
	}
	if !cfg.Database.ForeignKeys {
		t.Fatal("expected foreign_keys default true to survive a partial config file")
	}
	if cfg.Cache.TranslationSize != 512 {
		t.Fatalf("expected default cache size to survive unmentioned, got %d", cfg.Cache.TranslationSize)
	}
}

func TestValidateRequiresListenAddrAndDataDir(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cfg.Server.ListenAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty listen_addr")
	}

	cfg = DefaultConfig()
	cfg.Database.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty data_dir")
	}
}
