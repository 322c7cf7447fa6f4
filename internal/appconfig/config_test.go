package appconfig

import "testing"

func TestDefaultConfigVerifiesDeletesServerSide(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if !cfg.Catalog.VerifyServerSide {
		t.Fatalf("expected server-side delete verification by default")
	}
	if cfg.Store.InMemory {
		t.Fatalf("expected persistent store by default")
	}
}
