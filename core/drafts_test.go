package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/enrich"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/eventbus"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/persist"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

func newTestBoard(t *testing.T, h *harness, drafts *persist.Store, enricher enrich.Enricher) *DraftBoard {
	t.Helper()
	ids := 0
	board := NewDraftBoard(DraftDeps{
		Store:    h.store,
		Drafts:   drafts,
		Enricher: enricher,
		Bus:      h.bus,
		NewID: func() string {
			ids++
			return "id-" + string(rune('a'+ids))
		},
		Now: func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) },
	})
	if err := board.Load(testIdentity, "o1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	return board
}

func newDraftStore(t *testing.T) *persist.Store {
	t.Helper()
	drafts, err := persist.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("draft store: %v", err)
	}
	return drafts
}

func TestDraftBoardPersistsEveryChange(t *testing.T) {
	h := newHarness()
	drafts := newDraftStore(t)
	board := newTestBoard(t, h, drafts, nil)

	row, err := board.AddRow("printer jammed on floor 2")
	if err != nil {
		t.Fatalf("add row: %v", err)
	}
	if err := board.SetField(row.ID, FieldTitle, "Printer jam"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	if err := board.Select(row.ID, schema.KindUnit, "u-a"); err != nil {
		t.Fatalf("select: %v", err)
	}

	reloaded := newTestBoard(t, newHarness(), drafts, nil)
	rows := reloaded.Rows()
	if len(rows) != 1 || rows[0].Title != "Printer jam" || rows[0].Selection.UnitID != "u-a" {
		t.Fatalf("unexpected reloaded rows %+v", rows)
	}
}

func TestDraftBoardLoadIsPerIdentity(t *testing.T) {
	h := newHarness()
	drafts := newDraftStore(t)
	board := newTestBoard(t, h, drafts, nil)
	if _, err := board.AddRow("note"); err != nil {
		t.Fatalf("add row: %v", err)
	}
	if err := board.Load(&schema.Identity{ID: "u2"}, "o2"); err != nil {
		t.Fatalf("load u2: %v", err)
	}
	if rows := board.Rows(); len(rows) != 0 {
		t.Fatalf("expected empty draft for u2, got %+v", rows)
	}
	if err := board.Load(nil, ""); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if _, err := board.AddRow("x"); !errors.Is(err, schema.ErrNotSignedIn) {
		t.Fatalf("expected not signed in, got %v", err)
	}
}

func TestDraftBoardSelectCascades(t *testing.T) {
	h := newHarness()
	board := newTestBoard(t, h, nil, nil)
	row, _ := board.AddRow("")
	for _, step := range []struct {
		kind schema.EntityKind
		id   schema.EntityID
	}{
		{schema.KindCategory, "c-1"},
		{schema.KindSubcategory, "sc-1"},
		{schema.KindItem, "i-1"},
	} {
		if err := board.Select(row.ID, step.kind, step.id); err != nil {
			t.Fatalf("select %s: %v", step.kind, err)
		}
	}
	if err := board.Select(row.ID, schema.KindCategory, "c-2"); err != nil {
		t.Fatalf("reselect: %v", err)
	}
	got, _ := board.Row(row.ID)
	if got.Selection.CategoryID != "c-2" || got.Selection.SubcategoryID != "" || got.Selection.ItemID != "" {
		t.Fatalf("expected cascade reset, got %+v", got.Selection)
	}
	if err := board.Select("ghost", schema.KindUnit, "u"); !errors.Is(err, schema.ErrRowNotFound) {
		t.Fatalf("expected row not found, got %v", err)
	}
}

func TestDraftBoardReconcileWithCatalog(t *testing.T) {
	h := newHarness()
	catalog := newTestCatalog(h, false)
	board := newTestBoard(t, h, nil, nil)
	row, _ := board.AddRow("")
	_ = board.Select(row.ID, schema.KindUnit, "u-gone")
	_ = board.Select(row.ID, schema.KindSector, "s-1")

	pushEntities(t, h, schema.KindUnit, entityDoc("o1", schema.KindUnit, "u-a", "Alpha", ""))
	board.Reconcile(catalog)
	got, _ := board.Row(row.ID)
	if got.Selection.UnitID != "" || got.Selection.SectorID != "" {
		t.Fatalf("expected pruned selection, got %+v", got.Selection)
	}
}

func TestDraftBoardEnrichFills(t *testing.T) {
	h := newHarness()
	var seen enrich.Request
	enricher := enrich.Func(func(ctx context.Context, req enrich.Request) (enrich.Result, error) {
		seen = req
		return enrich.Result{Title: "VPN down", Description: "User cannot connect", Resolution: "Reset token"}, nil
	})
	board := newTestBoard(t, h, nil, enricher)
	row, _ := board.AddRow("  vpn caiu, resetei token  ")
	got, err := board.Enrich(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if seen.FreeText != "vpn caiu, resetei token" {
		t.Fatalf("unexpected request %+v", seen)
	}
	if got.Title != "VPN down" || got.Resolution != "Reset token" {
		t.Fatalf("unexpected row %+v", got)
	}
}

func TestDraftBoardEnrichFailureKeepsRow(t *testing.T) {
	h := newHarness()
	notices := recordBus(h.bus, eventbus.TopicNotice)
	failures := recordBus(h.bus, eventbus.TopicPermissionError)
	enricher := enrich.Func(func(ctx context.Context, req enrich.Request) (enrich.Result, error) {
		return enrich.Result{}, errors.New("503 from model")
	})
	board := newTestBoard(t, h, nil, enricher)
	row, _ := board.AddRow("disk full")
	_ = board.SetField(row.ID, FieldTitle, "typed by hand")

	_, err := board.Enrich(context.Background(), row.ID)
	if !errors.Is(err, schema.ErrEnrichmentUnavailable) {
		t.Fatalf("expected enrichment unavailable, got %v", err)
	}
	got, _ := board.Row(row.ID)
	if got.Title != "typed by hand" || got.FreeText != "disk full" {
		t.Fatalf("row changed on failure: %+v", got)
	}
	events := notices.all()
	if len(events) != 1 || events[0].Notice == nil || events[0].Notice.Kind != schema.NoticeEnrichmentUnavailable {
		t.Fatalf("expected one enrichment notice, got %+v", events)
	}
	if events[0].Notice.UserID != "u1" {
		t.Fatalf("unexpected notice user %+v", events[0].Notice)
	}
	if len(failures.all()) != 0 {
		t.Fatalf("enrichment failure published as sync error")
	}
}

func TestDraftBoardEnrichWithoutText(t *testing.T) {
	h := newHarness()
	board := newTestBoard(t, h, nil, nil)
	row, _ := board.AddRow("   ")
	if _, err := board.Enrich(context.Background(), row.ID); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestDraftBoardCommitWritesOneBatch(t *testing.T) {
	h := newHarness()
	drafts := newDraftStore(t)
	board := newTestBoard(t, h, drafts, nil)
	first, _ := board.AddRow("a")
	second, _ := board.AddRow("b")
	_ = board.SetField(first.ID, FieldTitle, "First")
	_ = board.Select(second.ID, schema.KindCategory, "c-1")

	demands, err := board.Commit(context.Background())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(demands) != 2 || h.store.batchCount() != 1 {
		t.Fatalf("expected two demands in one batch, got %d demands %d batches", len(demands), h.store.batchCount())
	}
	writes := h.store.writeLog()
	for i, w := range writes {
		if !strings.HasPrefix(w.Path, "organizations/o1/demands/") || w.Op != docstore.WriteSet {
			t.Fatalf("unexpected write %d %+v", i, w)
		}
		demand, err := schema.DecodeDemand(demands[i].ID, w.Data)
		if err != nil {
			t.Fatalf("decode demand: %v", err)
		}
		if demand.AuthorID != "u1" || demand.OrganizationID != "o1" {
			t.Fatalf("unexpected demand %+v", demand)
		}
	}
	if demands[0].Title != "First" || demands[1].Selection.CategoryID != "c-1" {
		t.Fatalf("unexpected demands %+v", demands)
	}
	if rows := board.Rows(); len(rows) != 0 {
		t.Fatalf("expected draft cleared, got %+v", rows)
	}
	if _, ok, _ := drafts.Load("u1"); ok {
		t.Fatalf("expected saved draft removed")
	}
}

func TestDraftBoardCommitFailureKeepsRows(t *testing.T) {
	h := newHarness()
	failures := recordBus(h.bus, eventbus.TopicPermissionError)
	board := newTestBoard(t, h, nil, nil)
	_, _ = board.AddRow("a")
	h.identity.set(testIdentity)
	h.store.writeErr = &docstore.Error{Code: docstore.CodeUnavailable, Message: "offline"}

	_, err := board.Commit(context.Background())
	var typed *schema.TypedError
	if !errors.As(err, &typed) || typed.Kind != schema.ErrorOther || typed.Operation != "create" {
		t.Fatalf("unexpected error %v", err)
	}
	if len(board.Rows()) != 1 {
		t.Fatalf("rows dropped on failed commit")
	}
	if len(failures.all()) != 1 {
		t.Fatalf("expected published failure")
	}
}

func TestDraftBoardCommitEmpty(t *testing.T) {
	h := newHarness()
	board := newTestBoard(t, h, nil, nil)
	if _, err := board.Commit(context.Background()); !errors.Is(err, schema.ErrEmptyDraft) {
		t.Fatalf("expected empty draft, got %v", err)
	}
}
