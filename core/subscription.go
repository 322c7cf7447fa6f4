package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/logx"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/eventbus"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
	"pkt.systems/pslog"
)

// State is the observable state of one subscription slot.
type State[T any] struct {
	Data    []T
	Loading bool
	Err     *schema.TypedError
}

// Decoder maps a raw document into a typed record tagged with its id.
type Decoder[T any] func(doc docstore.Document) (T, error)

// ManagerDeps captures dependencies for the subscription manager.
type ManagerDeps struct {
	Store docstore.Store
	Bus   *eventbus.Bus
	// Identity returns the currently resolved identity, or nil.
	Identity func() *schema.Identity
	Logger   pslog.Logger
}

// Manager opens live observations for subscription slots.
type Manager struct {
	store    docstore.Store
	bus      *eventbus.Bus
	identity func() *schema.Identity
	log      pslog.Logger
}

// NewManager constructs a subscription manager.
func NewManager(deps ManagerDeps) *Manager {
	identity := deps.Identity
	if identity == nil {
		identity = func() *schema.Identity { return nil }
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Manager{
		store:    deps.Store,
		bus:      deps.Bus,
		identity: identity,
		log:      logger,
	}
}

// Slot owns at most one live observation at a time.
type Slot[T any] struct {
	m      *Manager
	decode Decoder[T]

	mu     sync.Mutex
	ref    *Ref
	cancel func()
	gen    uint64
	state  State[T]
	closed bool
	notify notifier[State[T]]
}

// Observe creates a new unbound slot on m.
func Observe[T any](m *Manager, decode Decoder[T]) *Slot[T] {
	return &Slot[T]{
		m:      m,
		decode: decode,
	}
}

// Bind points the slot at ref. A nil ref resets the slot to an idle empty
// state. A ref with a new key replaces the current observation; the same key
// is a no-op. Bind panics on refs not produced by a RefCache.
func (s *Slot[T]) Bind(ref *Ref) {
	if ref != nil && !ref.stable {
		panic(fmt.Sprintf("core: Slot.Bind called with unmarked reference for %q; build refs through RefCache", ref.query.Path()))
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if ref == nil && s.ref == nil && s.cancel == nil && !s.state.Loading && s.state.Data == nil && s.state.Err == nil {
		s.mu.Unlock()
		return
	}
	if ref != nil && s.ref != nil && s.ref.key == ref.key {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	prev := s.cancel
	s.cancel = nil
	s.ref = ref
	if ref == nil {
		s.state = State[T]{}
	} else {
		s.state = State[T]{Loading: true}
	}
	state := s.snapshotLocked()
	seq := s.notify.next()
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
	s.emit(seq, state)
	if ref == nil {
		return
	}

	q := ref.Query()
	cancel := s.m.store.Subscribe(context.Background(), q,
		func(docs []docstore.Document) { s.push(gen, q, docs) },
		func(err *docstore.Error) { s.fail(gen, q, err) },
	)
	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()
	logx.WithPath(s.m.log, q.Path()).Debug("subscription opened")
}

func (s *Slot[T]) push(gen uint64, q docstore.Query, docs []docstore.Document) {
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := s.decode(doc)
		if err != nil {
			logx.WithPath(s.m.log, doc.Path).Warn("subscription document quarantined", "err", err)
			continue
		}
		items = append(items, item)
	}
	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		logx.WithPath(s.m.log, q.Path()).Trace("subscription stale push ignored")
		return
	}
	s.state = State[T]{Data: items}
	state := s.snapshotLocked()
	seq := s.notify.next()
	s.mu.Unlock()
	s.emit(seq, state)
}

func (s *Slot[T]) fail(gen uint64, q docstore.Query, err *docstore.Error) {
	typed := Classify(err, s.m.identity(), queryOperation(q), q.Path())
	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.cancel = nil
	if typed == nil {
		s.state.Loading = false
	} else {
		s.state = State[T]{Err: typed}
	}
	state := s.snapshotLocked()
	seq := s.notify.next()
	s.mu.Unlock()

	log := logx.WithPath(s.m.log, q.Path())
	if typed == nil {
		log.Debug("subscription denied while signed out")
	} else {
		log.Warn("subscription failed", "kind", typed.Kind, "code", typed.Code)
		s.m.bus.PublishError(typed)
	}
	s.emit(seq, state)
}

// State returns a copy of the current state.
func (s *Slot[T]) State() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Ref returns the currently bound ref.
func (s *Slot[T]) Ref() *Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ref
}

// OnChange registers fn for every state change and returns its cancel func.
func (s *Slot[T]) OnChange(fn func(State[T])) func() {
	return s.notify.add(fn)
}

// WaitLoaded blocks until the slot is bound and no longer loading.
func (s *Slot[T]) WaitLoaded(ctx context.Context) (State[T], error) {
	ready := make(chan State[T], 1)
	offer := func(state State[T]) {
		if state.Loading {
			return
		}
		select {
		case ready <- state:
		default:
		}
	}
	cancel := s.OnChange(offer)
	defer cancel()
	s.mu.Lock()
	bound := s.ref != nil
	current := s.snapshotLocked()
	s.mu.Unlock()
	if bound {
		offer(current)
	}
	select {
	case state := <-ready:
		return state, nil
	case <-ctx.Done():
		return State[T]{}, ctx.Err()
	}
}

// Close cancels the observation permanently.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	prev := s.cancel
	s.cancel = nil
	s.notify.reset()
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func (s *Slot[T]) snapshotLocked() State[T] {
	state := s.state
	if state.Data != nil {
		state.Data = append(make([]T, 0, len(state.Data)), state.Data...)
	}
	return state
}

func (s *Slot[T]) emit(seq uint64, state State[T]) {
	s.notify.publish(seq, state)
}
