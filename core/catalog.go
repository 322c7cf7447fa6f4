package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/logx"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
	"pkt.systems/pslog"
)

// CatalogDeps captures dependencies for the catalog engine.
type CatalogDeps struct {
	Manager *Manager
	Refs    *RefCache
	// VerifyServerSide re-checks child references against the store before
	// a delete, and lets deletes proceed when the child collection is not
	// observed yet.
	VerifyServerSide bool
	// AuditWrites logs every accepted write at info level.
	AuditWrites bool
	Logger      pslog.Logger
	NewID       func() string
}

// Catalog observes the five catalog collections of the active organization
// and enforces hierarchy invariants on writes.
type Catalog struct {
	m      *Manager
	refs   *RefCache
	verify bool
	audit  bool
	log    pslog.Logger
	newID  func() string
	slots  map[schema.EntityKind]*Slot[schema.CatalogEntity]

	mu       sync.Mutex
	identity *schema.Identity
	org      schema.OrgID
}

// NewCatalog constructs a catalog with one unbound slot per kind.
func NewCatalog(deps CatalogDeps) *Catalog {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	refs := deps.Refs
	if refs == nil {
		refs = NewRefCache()
	}
	c := &Catalog{
		m:      deps.Manager,
		refs:   refs,
		verify: deps.VerifyServerSide,
		audit:  deps.AuditWrites,
		log:    logger,
		newID:  newID,
		slots:  make(map[schema.EntityKind]*Slot[schema.CatalogEntity], len(schema.EntityKinds)),
	}
	for _, kind := range schema.EntityKinds {
		c.slots[kind] = Observe(deps.Manager, entityDecoder(kind))
	}
	return c
}

func entityDecoder(kind schema.EntityKind) Decoder[schema.CatalogEntity] {
	return func(doc docstore.Document) (schema.CatalogEntity, error) {
		return schema.DecodeEntity(kind, doc.ID, doc.Data)
	}
}

// SetScope binds every slot to org for identity. A nil identity or an empty
// org unbinds them.
func (c *Catalog) SetScope(identity *schema.Identity, org schema.OrgID) {
	c.mu.Lock()
	c.identity = cloneIdentity(identity)
	if identity == nil {
		org = ""
	}
	c.org = org
	c.mu.Unlock()

	var user schema.UserID
	if identity != nil {
		user = identity.ID
	}
	for _, kind := range schema.EntityKinds {
		c.slots[kind].Bind(c.refs.Catalog(user, org, kind))
	}
}

// BindSession keeps the scope on the tracker's active organization.
func (c *Catalog) BindSession(tracker *Tracker) func() {
	apply := func(state SessionState) {
		var org schema.OrgID
		if membership, ok := state.ActiveOrg(); ok {
			org = membership.ID
		}
		c.SetScope(state.Identity, org)
	}
	cancel := tracker.OnChange(apply)
	apply(tracker.State())
	return cancel
}

// Scope returns the active organization.
func (c *Catalog) Scope() schema.OrgID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.org
}

// Slot returns the slot observing kind.
func (c *Catalog) Slot(kind schema.EntityKind) *Slot[schema.CatalogEntity] {
	return c.slots[kind]
}

// State returns the observed state of kind.
func (c *Catalog) State(kind schema.EntityKind) State[schema.CatalogEntity] {
	slot, ok := c.slots[kind]
	if !ok {
		return State[schema.CatalogEntity]{}
	}
	return slot.State()
}

// Lookup finds id in the observed set of kind.
func (c *Catalog) Lookup(kind schema.EntityKind, id schema.EntityID) (schema.CatalogEntity, bool) {
	for _, entity := range c.State(kind).Data {
		if entity.ID == id {
			return entity, true
		}
	}
	return schema.CatalogEntity{}, false
}

// Options lists the entities of kind selectable under sel. Child kinds list
// nothing until their parent is selected.
func (c *Catalog) Options(kind schema.EntityKind, sel schema.Selection) []schema.CatalogEntity {
	data := c.State(kind).Data
	parent := kind.Parent()
	if parent == "" {
		return data
	}
	parentID := sel.Get(parent)
	if parentID == "" {
		return nil
	}
	out := make([]schema.CatalogEntity, 0, len(data))
	for _, entity := range data {
		if entity.ParentID == parentID {
			out = append(out, entity)
		}
	}
	return out
}

// Reconcile clears selections that no longer resolve. Only kinds whose
// collection is loaded are checked, so snapshots may arrive in any order.
func (c *Catalog) Reconcile(sel schema.Selection) schema.Selection {
	for _, kind := range schema.EntityKinds {
		id := sel.Get(kind)
		if id == "" {
			continue
		}
		state, loaded := c.loaded(kind)
		if !loaded {
			continue
		}
		if !reachable(state.Data, id, sel.Get(kind.Parent()), kind.Parent() != "") {
			sel = sel.With(kind, "")
		}
	}
	return sel
}

func reachable(data []schema.CatalogEntity, id, parentID schema.EntityID, hasParent bool) bool {
	for _, entity := range data {
		if entity.ID != id {
			continue
		}
		return !hasParent || entity.ParentID == parentID
	}
	return false
}

func (c *Catalog) loaded(kind schema.EntityKind) (State[schema.CatalogEntity], bool) {
	slot, ok := c.slots[kind]
	if !ok || slot.Ref() == nil {
		return State[schema.CatalogEntity]{}, false
	}
	state := slot.State()
	if state.Loading || state.Err != nil {
		return state, false
	}
	return state, true
}

func (c *Catalog) scope() (*schema.Identity, schema.OrgID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil, "", schema.ErrNotSignedIn
	}
	if c.org == "" {
		return nil, "", schema.ErrNoOrganization
	}
	return cloneIdentity(c.identity), c.org, nil
}

func entityPath(org schema.OrgID, kind schema.EntityKind, id schema.EntityID) string {
	return docstore.Join("organizations", string(org), kind.Collection(), string(id))
}

// Create validates and writes a new entity. Rejections wrap
// schema.ErrInvariantViolation and write nothing.
func (c *Catalog) Create(ctx context.Context, kind schema.EntityKind, name string, parentID schema.EntityID) (schema.CatalogEntity, error) {
	if !kind.Valid() {
		return schema.CatalogEntity{}, schema.ErrInvalidKind
	}
	identity, org, err := c.scope()
	if err != nil {
		return schema.CatalogEntity{}, err
	}
	name, err = schema.NormalizeName(name)
	if err != nil {
		return schema.CatalogEntity{}, err
	}
	entity := schema.CatalogEntity{Kind: kind, Name: name, Active: true}
	if parent := kind.Parent(); parent != "" {
		if parentID == "" {
			return schema.CatalogEntity{}, fmt.Errorf("%w: %s needs a %s", schema.ErrMissingParent, kind, parent)
		}
		if _, ok := c.Lookup(parent, parentID); !ok {
			return schema.CatalogEntity{}, fmt.Errorf("%w: %s %s is not in the catalog", schema.ErrMissingParent, parent, parentID)
		}
		entity.ParentID = parentID
	}
	entity.ID = schema.EntityID(c.newID())
	path := entityPath(org, kind, entity.ID)
	if err := c.m.store.Set(ctx, path, schema.EntityFields(entity), false); err != nil {
		return schema.CatalogEntity{}, c.writeFailed(identity, "create", path, err)
	}
	c.audited(identity, org, "create", path)
	return entity, nil
}

// Rename updates the name field of an entity.
func (c *Catalog) Rename(ctx context.Context, kind schema.EntityKind, id schema.EntityID, name string) error {
	if !kind.Valid() {
		return schema.ErrInvalidKind
	}
	identity, org, err := c.scope()
	if err != nil {
		return err
	}
	name, err = schema.NormalizeName(name)
	if err != nil {
		return err
	}
	path := entityPath(org, kind, id)
	if err := c.m.store.Update(ctx, path, map[string]any{"name": name}); err != nil {
		return c.writeFailed(identity, "update", path, err)
	}
	c.audited(identity, org, "update", path)
	return nil
}

// Delete removes an entity that has no children.
func (c *Catalog) Delete(ctx context.Context, kind schema.EntityKind, id schema.EntityID) error {
	if !kind.Valid() {
		return schema.ErrInvalidKind
	}
	identity, org, err := c.scope()
	if err != nil {
		return err
	}
	entity := schema.CatalogEntity{ID: id, Kind: kind, Name: string(id)}
	if state, ok := c.loaded(kind); ok {
		found := false
		for _, candidate := range state.Data {
			if candidate.ID == id {
				entity = candidate
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s %s", schema.ErrEntityNotFound, kind, id)
		}
	}
	if child := kind.Child(); child != "" {
		count, err := c.childCount(ctx, identity, org, child, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s %q has %d %s", schema.ErrHasChildren, kind, entity.Name, count, child.Collection())
		}
	}
	path := entityPath(org, kind, id)
	if err := c.m.store.Delete(ctx, path); err != nil {
		return c.writeFailed(identity, "delete", path, err)
	}
	c.audited(identity, org, "delete", path)
	return nil
}

func (c *Catalog) childCount(ctx context.Context, identity *schema.Identity, org schema.OrgID, child schema.EntityKind, id schema.EntityID) (int, error) {
	count := 0
	state, loaded := c.loaded(child)
	if loaded {
		for _, entity := range state.Data {
			if entity.ParentID == id {
				count++
			}
		}
		if count > 0 || !c.verify {
			return count, nil
		}
	}
	querier, ok := c.m.store.(docstore.Querier)
	if !c.verify || !ok {
		if loaded {
			return count, nil
		}
		return 0, fmt.Errorf("%w: %s", schema.ErrCatalogNotLoaded, child.Collection())
	}
	q := docstore.Query{
		Collection: docstore.Join("organizations", string(org), child.Collection()),
		Where:      []docstore.Filter{{Field: "parentId", Value: string(id)}},
	}
	docs, err := querier.Query(ctx, q)
	if err != nil {
		return 0, c.writeFailed(identity, "list", q.Path(), err)
	}
	return len(docs), nil
}

func (c *Catalog) writeFailed(identity *schema.Identity, operation, path string, err error) error {
	storeErr := docstore.AsError(err)
	if storeErr == nil {
		return fmt.Errorf("catalog %s %s: %w", operation, path, err)
	}
	typed := Classify(storeErr, identity, operation, path)
	if typed == nil {
		return schema.ErrNotSignedIn
	}
	logx.WithPath(c.log, path).Warn("catalog write failed", "op", operation, "kind", typed.Kind, "code", typed.Code)
	c.m.bus.PublishError(typed)
	return typed
}

func (c *Catalog) audited(identity *schema.Identity, org schema.OrgID, operation, path string) {
	if c.log == nil {
		return
	}
	log := logx.WithPath(c.log, path)
	if c.audit {
		logx.WithUserOrg(log, identity.ID, org).Info("catalog write ok", "op", operation)
		return
	}
	log.Debug("catalog write ok", "op", operation)
}

// Close tears down every slot.
func (c *Catalog) Close() {
	for _, slot := range c.slots {
		slot.Close()
	}
}
