package persist

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

func TestStoreLoadMissing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, ok, err := store.Load("alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected missing draft")
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	snapshot := DraftSnapshot{
		Rows: []schema.DemandRow{
			{
				ID:       "r1",
				FreeText: "impressora do 2o andar parou",
				Title:    "Impressora parada",
				Selection: schema.Selection{
					UnitID:   "u1",
					SectorID: "s1",
				},
			},
		},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := store.Save("alice", snapshot); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load("alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected draft to exist")
	}
	if !reflect.DeepEqual(snapshot, got) {
		t.Fatalf("draft mismatch:\nwant: %+v\ngot:  %+v", snapshot, got)
	}
}

func TestStoreLastWriteWins(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save("alice", DraftSnapshot{Rows: []schema.DemandRow{{ID: "r1"}, {ID: "r2"}}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save("alice", DraftSnapshot{Rows: []schema.DemandRow{{ID: "r3"}}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _, err := store.Load("alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Rows) != 1 || got.Rows[0].ID != "r3" {
		t.Fatalf("expected last write, got %+v", got.Rows)
	}
}

func TestStoreClear(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Clear("alice"); err != nil {
		t.Fatalf("clear missing: %v", err)
	}
	if err := store.Save("alice", DraftSnapshot{Rows: []schema.DemandRow{{ID: "r1"}}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Clear("alice"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Load("alice"); ok {
		t.Fatalf("expected draft cleared")
	}
}

func TestStoreLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	path := filepath.Join(dir, "alice.json")
	if err := os.WriteFile(path, []byte("{not-json"), 0o600); err != nil {
		t.Fatalf("write bad json: %v", err)
	}
	if _, _, err := store.Load("alice"); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}
