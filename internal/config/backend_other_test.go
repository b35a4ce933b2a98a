//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if err := SetKey("retrieval.top_k", "7"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ticketkb", "config.json")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	cfg, err := loadWith(newPlatformBackend(), mockKeychain{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Retrieval.TopK != 7 {
		t.Errorf("Retrieval.TopK = %d, want 7", cfg.Retrieval.TopK)
	}
}

func TestFileBackend_HandEditedValues(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "ticketkb", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	raw := `{"server.port": 5100, "generation.temperature": 0.5, "log.level": "debug"}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(newPlatformBackend(), mockKeychain{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 5100 || cfg.Generation.Temperature != 0.5 || cfg.Log.Level != "debug" {
		t.Errorf("cfg = %+v %+v %+v", cfg.Server, cfg.Generation, cfg.Log)
	}
}

func TestKeychainFile_SetAndGet(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := keychainExec(secretService, "openai_api_key"); err == nil {
		t.Fatal("expected error before the secrets file exists")
	}
	if err := SetSecret("openai.api_key", "sk-test"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	v, err := keychainReader{}.Get(secretService, "openai_api_key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "sk-test" {
		t.Errorf("secret = %q", v)
	}
	if err := SetSecret("server.port", "1"); err == nil {
		t.Error("expected error for non-secret key")
	}
}
