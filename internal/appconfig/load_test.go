package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 3
store:
  path: /state/store
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRequiresConfigVersion(t *testing.T) {
	path := writeConfig(t, `
store:
  in_memory: true
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config_version is required") {
		t.Fatalf("expected missing config_version error, got %v", err)
	}
}

func TestLoadRejectsInvalidEnrichmentBaseURL(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
enrichment:
  base_url: api.openai.com
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "enrichment.base_url") {
		t.Fatalf("expected base_url error, got %v", err)
	}
}

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	t.Setenv("PLANTAO_TEST_ROOT", "/srv/plantao")
	path := writeConfig(t, `
config_version: 1
state_dir: $PLANTAO_TEST_ROOT/state
store:
  in_memory: true
catalog:
  verify_server_side: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StateDir != "/srv/plantao/state" {
		t.Fatalf("expected expanded state dir, got %q", cfg.StateDir)
	}
	if !cfg.Store.InMemory || cfg.Catalog.VerifyServerSide {
		t.Fatalf("expected file values, got %+v", cfg)
	}
	if cfg.Enrichment.Model != "gpt-4o-mini" || cfg.Enrichment.APIKeyEnv != "OPENAI_API_KEY" {
		t.Fatalf("expected enrichment defaults, got %+v", cfg.Enrichment)
	}
	if cfg.DraftDir() != filepath.Join("/srv/plantao/state", "drafts") {
		t.Fatalf("unexpected draft dir %q", cfg.DraftDir())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("expected default config version, got %d", cfg.ConfigVersion)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PLANTAO_ENRICHMENT_MODEL", "gpt-4.1-mini")
	path := writeConfig(t, `
config_version: 1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Enrichment.Model != "gpt-4.1-mini" {
		t.Fatalf("expected env override, got %q", cfg.Enrichment.Model)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	value := expandEnv("$FOO/$UID/$GID/$MISSING")
	if !strings.HasPrefix(value, "bar/") {
		t.Fatalf("expected env expansion, got %q", value)
	}
	if strings.Contains(value, "$UID") || strings.Contains(value, "$GID") {
		t.Fatalf("expected UID/GID expansion, got %q", value)
	}
	if !strings.HasSuffix(value, "/$MISSING") {
		t.Fatalf("expected missing vars to remain, got %q", value)
	}
}

func TestWriteDefaultRespectsOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("expected path %q, got %q", path, written)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config to exist: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("expected overwrite to succeed: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("expected written default to load: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
