package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/logx"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/enrich"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/eventbus"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/persist"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
	"pkt.systems/pslog"
)

// DraftField names an editable text column of a draft row.
type DraftField string

const (
	FieldFreeText    DraftField = "freeText"
	FieldTitle       DraftField = "title"
	FieldDescription DraftField = "description"
	FieldResolution  DraftField = "resolution"
)

// DraftDeps captures dependencies for the draft board.
type DraftDeps struct {
	Store    docstore.Store
	Drafts   *persist.Store
	Enricher enrich.Enricher
	Bus      *eventbus.Bus
	Logger   pslog.Logger
	NewID    func() string
	Now      func() time.Time
}

// DraftBoard holds the in-progress demand rows of one identity. Every change
// is saved locally; Commit writes all rows in one batch.
type DraftBoard struct {
	store    docstore.Store
	drafts   *persist.Store
	enricher enrich.Enricher
	bus      *eventbus.Bus
	log      pslog.Logger
	newID    func() string
	now      func() time.Time

	mu       sync.Mutex
	identity *schema.Identity
	org      schema.OrgID
	rows     []schema.DemandRow
	notify   notifier[[]schema.DemandRow]
}

// NewDraftBoard constructs an empty board.
func NewDraftBoard(deps DraftDeps) *DraftBoard {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &DraftBoard{
		store:    deps.Store,
		drafts:   deps.Drafts,
		enricher: deps.Enricher,
		bus:      deps.Bus,
		log:      logger,
		newID:    newID,
		now:      now,
	}
}

// Load restores the identity's saved rows. Loading the same identity again
// only updates the organization scope.
func (d *DraftBoard) Load(identity *schema.Identity, org schema.OrgID) error {
	d.mu.Lock()
	if identity == nil {
		d.identity = nil
		d.org = ""
		d.rows = nil
		rows := d.rowsLocked()
		seq := d.notify.next()
		d.mu.Unlock()
		d.emit(seq, rows)
		return nil
	}
	if d.identity != nil && d.identity.ID == identity.ID {
		d.org = org
		d.mu.Unlock()
		return nil
	}
	d.identity = cloneIdentity(identity)
	d.org = org
	d.rows = nil
	var loadErr error
	if d.drafts != nil {
		snapshot, ok, err := d.drafts.Load(identity.ID)
		switch {
		case err != nil:
			loadErr = err
		case ok:
			d.rows = append([]schema.DemandRow(nil), snapshot.Rows...)
		}
	}
	rows := d.rowsLocked()
	seq := d.notify.next()
	d.mu.Unlock()
	d.emit(seq, rows)
	return loadErr
}

// Rows returns a copy of the current rows.
func (d *DraftBoard) Rows() []schema.DemandRow {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rowsLocked()
}

// Row returns one row by id.
func (d *DraftBoard) Row(id schema.RowID) (schema.DemandRow, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.indexLocked(id)
	if idx < 0 {
		return schema.DemandRow{}, false
	}
	return d.rows[idx], true
}

// OnChange registers fn for every row-set change.
func (d *DraftBoard) OnChange(fn func([]schema.DemandRow)) func() {
	return d.notify.add(fn)
}

// AddRow appends a row with the given free text.
func (d *DraftBoard) AddRow(freeText string) (schema.DemandRow, error) {
	d.mu.Lock()
	if d.identity == nil {
		d.mu.Unlock()
		return schema.DemandRow{}, schema.ErrNotSignedIn
	}
	row := schema.DemandRow{ID: schema.RowID(d.newID()), FreeText: freeText}
	d.rows = append(d.rows, row)
	rows := d.changedLocked()
	seq := d.notify.next()
	d.mu.Unlock()
	d.emit(seq, rows)
	return row, nil
}

// SetField updates one text column of a row.
func (d *DraftBoard) SetField(id schema.RowID, field DraftField, value string) error {
	return d.mutate(id, func(row *schema.DemandRow) error {
		switch field {
		case FieldFreeText:
			row.FreeText = value
		case FieldTitle:
			row.Title = value
		case FieldDescription:
			row.Description = value
		case FieldResolution:
			row.Resolution = value
		default:
			return fmt.Errorf("%w: unknown field %q", schema.ErrInvalidRequest, field)
		}
		return nil
	})
}

// Select sets the row's catalog selection for kind and clears every
// descendant selection.
func (d *DraftBoard) Select(id schema.RowID, kind schema.EntityKind, entityID schema.EntityID) error {
	if !kind.Valid() {
		return schema.ErrInvalidKind
	}
	return d.mutate(id, func(row *schema.DemandRow) error {
		row.Selection = row.Selection.With(kind, entityID)
		return nil
	})
}

// Reconcile prunes row selections the catalog no longer resolves.
func (d *DraftBoard) Reconcile(catalog *Catalog) {
	d.mu.Lock()
	changed := false
	for i := range d.rows {
		next := catalog.Reconcile(d.rows[i].Selection)
		if next != d.rows[i].Selection {
			d.rows[i].Selection = next
			changed = true
		}
	}
	if !changed {
		d.mu.Unlock()
		return
	}
	rows := d.changedLocked()
	seq := d.notify.next()
	d.mu.Unlock()
	d.emit(seq, rows)
}

// RemoveRow deletes a row.
func (d *DraftBoard) RemoveRow(id schema.RowID) error {
	d.mu.Lock()
	idx := d.indexLocked(id)
	if idx < 0 {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", schema.ErrRowNotFound, id)
	}
	d.rows = append(d.rows[:idx], d.rows[idx+1:]...)
	rows := d.changedLocked()
	seq := d.notify.next()
	d.mu.Unlock()
	d.emit(seq, rows)
	return nil
}

// Enrich fills title, description and resolution from the row's free text.
// On failure the row keeps its values, a notice is published and the error
// wraps schema.ErrEnrichmentUnavailable.
func (d *DraftBoard) Enrich(ctx context.Context, id schema.RowID) (schema.DemandRow, error) {
	d.mu.Lock()
	idx := d.indexLocked(id)
	if idx < 0 {
		d.mu.Unlock()
		return schema.DemandRow{}, fmt.Errorf("%w: %s", schema.ErrRowNotFound, id)
	}
	text := strings.TrimSpace(d.rows[idx].FreeText)
	var user schema.UserID
	if d.identity != nil {
		user = d.identity.ID
	}
	d.mu.Unlock()
	if text == "" {
		return schema.DemandRow{}, fmt.Errorf("%w: row has no text", schema.ErrInvalidRequest)
	}

	var result enrich.Result
	err := enrich.ErrEmptyResult
	if d.enricher != nil {
		result, err = d.enricher.Enrich(ctx, enrich.Request{FreeText: text})
	}
	if err != nil {
		if d.log != nil {
			logx.WithUser(d.log, user).Warn("draft enrich failed", "row", id, "err", err)
		}
		d.bus.PublishNotice(schema.Notice{
			Kind:    schema.NoticeEnrichmentUnavailable,
			Message: "text enrichment is unavailable; the row was kept, try again",
			UserID:  user,
		})
		return schema.DemandRow{}, fmt.Errorf("%w: %v", schema.ErrEnrichmentUnavailable, err)
	}

	var updated schema.DemandRow
	err = d.mutate(id, func(row *schema.DemandRow) error {
		row.Title = result.Title
		row.Description = result.Description
		row.Resolution = result.Resolution
		updated = *row
		return nil
	})
	if err != nil {
		return schema.DemandRow{}, err
	}
	return updated, nil
}

// Commit writes every row as a demand in one atomic batch and clears the
// draft. Nothing is cleared when the write fails.
func (d *DraftBoard) Commit(ctx context.Context) ([]schema.Demand, error) {
	d.mu.Lock()
	identity := cloneIdentity(d.identity)
	org := d.org
	rows := d.rowsLocked()
	d.mu.Unlock()
	if identity == nil {
		return nil, schema.ErrNotSignedIn
	}
	if org == "" {
		return nil, schema.ErrNoOrganization
	}
	if len(rows) == 0 {
		return nil, schema.ErrEmptyDraft
	}

	createdAt := d.now().UTC()
	demands := make([]schema.Demand, 0, len(rows))
	writes := make([]docstore.Write, 0, len(rows))
	for _, row := range rows {
		demand := schema.Demand{
			ID:             d.newID(),
			OrganizationID: org,
			AuthorID:       identity.ID,
			Title:          row.Title,
			Description:    row.Description,
			Resolution:     row.Resolution,
			Selection:      row.Selection,
			CreatedAt:      createdAt,
		}
		demands = append(demands, demand)
		writes = append(writes, docstore.Write{
			Op:   docstore.WriteSet,
			Path: docstore.Join("organizations", string(org), "demands", demand.ID),
			Data: schema.DemandFields(demand),
		})
	}
	if err := d.store.Batch(ctx, writes); err != nil {
		path := docstore.Join("organizations", string(org), "demands")
		storeErr := docstore.AsError(err)
		if storeErr == nil {
			return nil, fmt.Errorf("draft commit: %w", err)
		}
		typed := Classify(storeErr, identity, "create", path)
		if typed == nil {
			return nil, schema.ErrNotSignedIn
		}
		if d.log != nil {
			logx.WithUserOrg(d.log, identity.ID, org).Warn("draft commit failed", "path", path, "code", typed.Code)
		}
		d.bus.PublishError(typed)
		return nil, typed
	}

	d.mu.Lock()
	if d.identity != nil && d.identity.ID == identity.ID {
		d.rows = removeRows(d.rows, rows)
	}
	remaining := d.rowsLocked()
	if d.drafts != nil {
		var err error
		if len(remaining) == 0 {
			err = d.drafts.Clear(identity.ID)
		} else {
			err = d.drafts.Save(identity.ID, persist.DraftSnapshot{Rows: remaining, UpdatedAt: d.now().UTC()})
		}
		if err != nil && d.log != nil {
			logx.WithUser(d.log, identity.ID).Warn("draft clear failed", "err", err)
		}
	}
	seq := d.notify.next()
	d.mu.Unlock()
	if d.log != nil {
		logx.WithUserOrg(d.log, identity.ID, org).Info("draft commit ok", "demands", len(demands))
	}
	d.emit(seq, remaining)
	return demands, nil
}

func removeRows(rows, committed []schema.DemandRow) []schema.DemandRow {
	done := make(map[schema.RowID]struct{}, len(committed))
	for _, row := range committed {
		done[row.ID] = struct{}{}
	}
	out := rows[:0]
	for _, row := range rows {
		if _, ok := done[row.ID]; !ok {
			out = append(out, row)
		}
	}
	return out
}

func (d *DraftBoard) mutate(id schema.RowID, fn func(row *schema.DemandRow) error) error {
	d.mu.Lock()
	idx := d.indexLocked(id)
	if idx < 0 {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", schema.ErrRowNotFound, id)
	}
	row := d.rows[idx]
	if err := fn(&row); err != nil {
		d.mu.Unlock()
		return err
	}
	d.rows[idx] = row
	rows := d.changedLocked()
	seq := d.notify.next()
	d.mu.Unlock()
	d.emit(seq, rows)
	return nil
}

func (d *DraftBoard) indexLocked(id schema.RowID) int {
	for i, row := range d.rows {
		if row.ID == id {
			return i
		}
	}
	return -1
}

// changedLocked saves the current rows and returns a copy of them.
func (d *DraftBoard) changedLocked() []schema.DemandRow {
	rows := d.rowsLocked()
	if d.drafts == nil || d.identity == nil {
		return rows
	}
	snapshot := persist.DraftSnapshot{Rows: rows, UpdatedAt: d.now().UTC()}
	if err := d.drafts.Save(d.identity.ID, snapshot); err != nil && d.log != nil {
		logx.WithUser(d.log, d.identity.ID).Warn("draft save failed", "err", err)
	}
	return rows
}

func (d *DraftBoard) rowsLocked() []schema.DemandRow {
	return append([]schema.DemandRow(nil), d.rows...)
}

func (d *DraftBoard) emit(seq uint64, rows []schema.DemandRow) {
	d.notify.publish(seq, rows)
}
