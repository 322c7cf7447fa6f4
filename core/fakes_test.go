package core

import (
	"context"
	"sync"
	"testing"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/eventbus"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

type fakeSub struct {
	q          docstore.Query
	onSnapshot func([]docstore.Document)
	onError    func(*docstore.Error)

	mu       sync.Mutex
	canceled bool
}

func (s *fakeSub) isCanceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

// push delivers even after cancel, like a late callback from the store.
func (s *fakeSub) push(docs ...docstore.Document) {
	s.onSnapshot(docs)
}

func (s *fakeSub) fail(code docstore.Code) {
	s.onError(&docstore.Error{Code: code, Message: "raw transport detail"})
}

type fakeStore struct {
	mu       sync.Mutex
	subs     []*fakeSub
	writes   []docstore.Write
	batches  int
	writeErr error
	queried  []docstore.Query
	queryRes []docstore.Document
}

func (f *fakeStore) Subscribe(ctx context.Context, q docstore.Query, onSnapshot func([]docstore.Document), onError func(*docstore.Error)) func() {
	sub := &fakeSub{q: q, onSnapshot: onSnapshot, onError: onError}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return func() {
		sub.mu.Lock()
		sub.canceled = true
		sub.mu.Unlock()
	}
}

func (f *fakeStore) record(writes ...docstore.Write) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, writes...)
	return nil
}

func (f *fakeStore) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	return f.record(docstore.Write{Op: docstore.WriteSet, Path: path, Data: data, Merge: merge})
}

func (f *fakeStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return f.record(docstore.Write{Op: docstore.WriteUpdate, Path: path, Data: fields})
}

func (f *fakeStore) Delete(ctx context.Context, path string) error {
	return f.record(docstore.Write{Op: docstore.WriteDelete, Path: path})
}

func (f *fakeStore) Batch(ctx context.Context, writes []docstore.Write) error {
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	return f.record(writes...)
}

func (f *fakeStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, q)
	return f.queryRes, nil
}

func (f *fakeStore) subCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeStore) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

func (f *fakeStore) writeLog() []docstore.Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]docstore.Write(nil), f.writes...)
}

// active returns the live subscription observing path.
func (f *fakeStore) active(t *testing.T, path string) *fakeSub {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.subs) - 1; i >= 0; i-- {
		sub := f.subs[i]
		if sub.q.Path() == path && !sub.isCanceled() {
			return sub
		}
	}
	t.Fatalf("no active subscription for %s", path)
	return nil
}

func (f *fakeStore) last(t *testing.T, path string) *fakeSub {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.subs) - 1; i >= 0; i-- {
		if f.subs[i].q.Path() == path {
			return f.subs[i]
		}
	}
	t.Fatalf("no subscription for %s", path)
	return nil
}

type identityBox struct {
	mu       sync.Mutex
	identity *schema.Identity
}

func (b *identityBox) set(identity *schema.Identity) {
	b.mu.Lock()
	b.identity = identity
	b.mu.Unlock()
}

func (b *identityBox) get() *schema.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identity
}

type busRecorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func recordBus(bus *eventbus.Bus, topic eventbus.Topic) *busRecorder {
	rec := &busRecorder{}
	bus.Subscribe(topic, func(event eventbus.Event) {
		rec.mu.Lock()
		rec.events = append(rec.events, event)
		rec.mu.Unlock()
	})
	return rec
}

func (r *busRecorder) all() []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]eventbus.Event(nil), r.events...)
}

type harness struct {
	store    *fakeStore
	bus      *eventbus.Bus
	identity *identityBox
	manager  *Manager
	refs     *RefCache
}

func newHarness() *harness {
	store := &fakeStore{}
	bus := eventbus.New(nil)
	box := &identityBox{}
	return &harness{
		store:    store,
		bus:      bus,
		identity: box,
		manager:  NewManager(ManagerDeps{Store: store, Bus: bus, Identity: box.get}),
		refs:     NewRefCache(),
	}
}

func entityDoc(org string, kind schema.EntityKind, id, name, parent string) docstore.Document {
	data := map[string]any{"name": name, "active": true}
	if parent != "" {
		data["parentId"] = parent
	}
	return docstore.Document{
		ID:   id,
		Path: docstore.Join("organizations", org, kind.Collection(), id),
		Data: data,
	}
}

var testIdentity = &schema.Identity{ID: "u1", Email: "u1@example.com", DisplayName: "Ana"}
