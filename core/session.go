package core

import (
	"context"
	"sync"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/logx"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
	"pkt.systems/pslog"
)

// SessionSource is the authentication collaborator.
type SessionSource interface {
	WatchSession(fn func(identity *schema.Identity, err error)) func()
	SignIn(ctx context.Context, login, password, totpCode string) (*schema.Identity, error)
	SignOut()
}

// SessionState is the resolved identity and its profile.
type SessionState struct {
	Identity *schema.Identity
	Profile  *schema.Profile
	Loading  bool
	// Err is set when the profile observation failed; Identity is kept.
	Err *schema.TypedError
	// UserError is set when the authentication transport failed.
	UserError error
}

// ActiveOrg returns the active organization id and membership, if any.
func (s SessionState) ActiveOrg() (schema.Membership, bool) {
	if s.Profile == nil || s.Profile.ActiveOrganizationID == "" {
		return schema.Membership{}, false
	}
	return s.Profile.ActiveMembership()
}

// TrackerDeps captures dependencies for the session tracker.
type TrackerDeps struct {
	Source       SessionSource
	Store        docstore.Store
	Bootstrapper *Bootstrapper
	Logger       pslog.Logger
}

// Tracker follows authentication transitions and keeps the identity's
// profile observed. The inner profile observation is owned by the tracker
// and always canceled before a new one is installed.
type Tracker struct {
	source SessionSource
	store  docstore.Store
	boot   *Bootstrapper
	log    pslog.Logger

	mu          sync.Mutex
	state       SessionState
	gen         uint64
	bootGen     uint64
	inner       func()
	outer       func()
	notify      notifier[SessionState]
	bootWG      sync.WaitGroup
	bootContext context.Context
	bootCancel  context.CancelFunc
}

// NewTracker constructs a tracker. Call Start to begin observing.
func NewTracker(deps TrackerDeps) *Tracker {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Tracker{
		source: deps.Source,
		store:  deps.Store,
		boot:   deps.Bootstrapper,
		log:    logger,
	}
}

// Start installs the outer observation of authentication state. A stopped
// tracker may be started again.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.outer != nil {
		t.mu.Unlock()
		return
	}
	if t.bootContext == nil || t.bootContext.Err() != nil {
		t.bootContext, t.bootCancel = context.WithCancel(context.Background())
	}
	t.mu.Unlock()
	cancel := t.source.WatchSession(t.handleSession)
	t.mu.Lock()
	t.outer = cancel
	t.mu.Unlock()
}

// Stop cancels both observations and waits for pending bootstraps.
func (t *Tracker) Stop() {
	t.mu.Lock()
	outer := t.outer
	inner := t.inner
	t.outer = nil
	t.inner = nil
	t.gen++
	bootCancel := t.bootCancel
	t.mu.Unlock()
	if outer != nil {
		outer()
	}
	if inner != nil {
		inner()
	}
	if bootCancel != nil {
		bootCancel()
	}
	t.bootWG.Wait()
}

// SignIn passes credentials to the authentication collaborator. A failure
// is surfaced as UserError.
func (t *Tracker) SignIn(ctx context.Context, login, password, totpCode string) (*schema.Identity, error) {
	identity, err := t.source.SignIn(ctx, login, password, totpCode)
	if err != nil {
		t.mu.Lock()
		if t.state.Identity == nil {
			t.state.UserError = err
		}
		state := t.snapshotLocked()
		seq := t.notify.next()
		t.mu.Unlock()
		t.emit(seq, state)
		return nil, err
	}
	return identity, nil
}

// SignOut ends the session.
func (t *Tracker) SignOut() {
	t.source.SignOut()
}

func (t *Tracker) handleSession(identity *schema.Identity, err error) {
	t.mu.Lock()
	if err == nil && identity != nil && t.state.Identity != nil && *t.state.Identity == *identity && t.inner != nil {
		t.mu.Unlock()
		return
	}
	t.gen++
	gen := t.gen
	prev := t.inner
	t.inner = nil
	switch {
	case err != nil:
		t.state = SessionState{UserError: err}
	case identity == nil:
		t.state = SessionState{}
	default:
		t.state = SessionState{Identity: identity, Loading: true}
	}
	state := t.snapshotLocked()
	seq := t.notify.next()
	t.mu.Unlock()

	if prev != nil {
		prev()
	}
	if err != nil && t.log != nil {
		t.log.Warn("session transport failed", "err", err)
	}
	t.emit(seq, state)
	if identity == nil || err != nil {
		return
	}

	log := logx.WithUser(t.log, identity.ID)
	q := docstore.Query{Collection: "profiles", DocID: string(identity.ID)}
	cancel := t.store.Subscribe(context.Background(), q,
		func(docs []docstore.Document) { t.onProfile(gen, identity, docs) },
		func(storeErr *docstore.Error) { t.onProfileError(gen, identity, q, storeErr) },
	)
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		cancel()
		return
	}
	t.inner = cancel
	t.mu.Unlock()
	log.Debug("session profile observed")
}

func (t *Tracker) onProfile(gen uint64, identity *schema.Identity, docs []docstore.Document) {
	var profile *schema.Profile
	var typed *schema.TypedError
	if len(docs) > 0 {
		decoded, err := schema.DecodeProfile(docs[0].ID, docs[0].Data)
		if err != nil {
			if t.log != nil {
				logx.WithPath(logx.WithUser(t.log, identity.ID), docs[0].Path).Warn("session profile quarantined", "err", err)
			}
			typed = &schema.TypedError{
				Kind:      schema.ErrorOther,
				Operation: "get",
				Path:      docs[0].Path,
				Code:      string(docstore.CodeInvalidArgument),
				Message:   err.Error(),
			}
		} else {
			profile = &decoded
		}
	}
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.state = SessionState{Identity: identity, Profile: profile, Err: typed}
	bootstrap := len(docs) == 0 && t.boot != nil && t.bootGen != gen
	if bootstrap {
		t.bootGen = gen
		t.bootWG.Add(1)
	}
	bootCtx := t.bootContext
	state := t.snapshotLocked()
	seq := t.notify.next()
	t.mu.Unlock()
	t.emit(seq, state)

	if bootstrap {
		go func() {
			defer t.bootWG.Done()
			if _, err := t.boot.Ensure(bootCtx, identity); err != nil && t.log != nil {
				logx.WithUser(t.log, identity.ID).Warn("session bootstrap failed; retrying on next sign-in", "err", err)
			}
		}()
	}
}

func (t *Tracker) onProfileError(gen uint64, identity *schema.Identity, q docstore.Query, storeErr *docstore.Error) {
	typed := Classify(storeErr, identity, queryOperation(q), q.Path())
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.inner = nil
	t.state.Loading = false
	t.state.Err = typed
	state := t.snapshotLocked()
	seq := t.notify.next()
	t.mu.Unlock()
	if t.log != nil {
		logx.WithPath(logx.WithUser(t.log, identity.ID), q.Path()).Warn("session profile observation failed", "code", storeErr.Code)
	}
	t.emit(seq, state)
}

// State returns a copy of the current session state.
func (t *Tracker) State() SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Identity returns the resolved identity or nil.
func (t *Tracker) Identity() *schema.Identity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneIdentity(t.state.Identity)
}

// OnChange registers fn for every session transition.
func (t *Tracker) OnChange(fn func(SessionState)) func() {
	return t.notify.add(fn)
}

// WaitProfile blocks until a profile is attached or the profile observation failed.
func (t *Tracker) WaitProfile(ctx context.Context) (SessionState, error) {
	ready := make(chan SessionState, 1)
	offer := func(state SessionState) {
		if state.Profile == nil && state.Err == nil && state.UserError == nil {
			return
		}
		select {
		case ready <- state:
		default:
		}
	}
	cancel := t.OnChange(offer)
	defer cancel()
	offer(t.State())
	select {
	case state := <-ready:
		return state, nil
	case <-ctx.Done():
		return SessionState{}, ctx.Err()
	}
}

func (t *Tracker) snapshotLocked() SessionState {
	state := t.state
	state.Identity = cloneIdentity(state.Identity)
	if state.Profile != nil {
		profile := *state.Profile
		profile.Organizations = append([]schema.Membership(nil), state.Profile.Organizations...)
		state.Profile = &profile
	}
	return state
}

func (t *Tracker) emit(seq uint64, state SessionState) {
	t.notify.publish(seq, state)
}

func cloneIdentity(identity *schema.Identity) *schema.Identity {
	if identity == nil {
		return nil
	}
	clone := *identity
	return &clone
}
