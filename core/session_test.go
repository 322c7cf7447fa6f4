package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

type fakeSource struct {
	mu        sync.Mutex
	fn        func(*schema.Identity, error)
	signInErr error
}

func (s *fakeSource) WatchSession(fn func(identity *schema.Identity, err error)) func() {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	fn(nil, nil)
	return func() {
		s.mu.Lock()
		s.fn = nil
		s.mu.Unlock()
	}
}

func (s *fakeSource) emit(identity *schema.Identity, err error) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(identity, err)
	}
}

func (s *fakeSource) SignIn(ctx context.Context, login, password, totpCode string) (*schema.Identity, error) {
	if s.signInErr != nil {
		return nil, s.signInErr
	}
	identity := &schema.Identity{ID: schema.UserID(login)}
	s.emit(identity, nil)
	return identity, nil
}

func (s *fakeSource) SignOut() {
	s.emit(nil, nil)
}

func profileDoc(user, org string, role schema.Role) docstore.Document {
	return docstore.Document{
		ID:   user,
		Path: "profiles/" + user,
		Data: schema.ProfileFields(schema.Profile{
			IdentityID:           schema.UserID(user),
			DisplayName:          "Ana",
			ActiveOrganizationID: schema.OrgID(org),
			Organizations:        []schema.Membership{{ID: schema.OrgID(org), Name: "Team", Role: role}},
		}),
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestTracker(h *harness, boot bool) (*Tracker, *fakeSource) {
	source := &fakeSource{}
	deps := TrackerDeps{Source: source, Store: h.store}
	if boot {
		deps.Bootstrapper = NewBootstrapper(h.store, nil)
	}
	tracker := NewTracker(deps)
	tracker.Start()
	return tracker, source
}

func TestTrackerStartsSignedOut(t *testing.T) {
	h := newHarness()
	tracker, _ := newTestTracker(h, false)
	defer tracker.Stop()
	state := tracker.State()
	if state.Identity != nil || state.Profile != nil || state.Loading || state.Err != nil {
		t.Fatalf("unexpected initial state %+v", state)
	}
	if h.store.subCount() != 0 {
		t.Fatalf("expected no profile observation")
	}
}

func TestTrackerObservesProfile(t *testing.T) {
	h := newHarness()
	tracker, source := newTestTracker(h, false)
	defer tracker.Stop()

	source.emit(testIdentity, nil)
	state := tracker.State()
	if state.Identity == nil || state.Identity.ID != "u1" || !state.Loading {
		t.Fatalf("expected loading identity, got %+v", state)
	}
	h.store.active(t, "profiles/u1").push(profileDoc("u1", "o1", schema.RoleMember))
	state = tracker.State()
	if state.Loading || state.Profile == nil || state.Profile.ActiveOrganizationID != "o1" {
		t.Fatalf("unexpected state %+v", state)
	}
	if membership, ok := state.ActiveOrg(); !ok || membership.Role != schema.RoleMember {
		t.Fatalf("unexpected membership %+v", membership)
	}
}

func TestTrackerSameIdentityIsNoop(t *testing.T) {
	h := newHarness()
	tracker, source := newTestTracker(h, false)
	defer tracker.Stop()
	source.emit(testIdentity, nil)
	source.emit(&schema.Identity{ID: "u1", Email: "u1@example.com", DisplayName: "Ana"}, nil)
	if h.store.subCount() != 1 {
		t.Fatalf("expected one observation, got %d", h.store.subCount())
	}
}

func TestTrackerIdentitySwitchCancelsInner(t *testing.T) {
	h := newHarness()
	tracker, source := newTestTracker(h, false)
	defer tracker.Stop()

	source.emit(testIdentity, nil)
	first := h.store.active(t, "profiles/u1")
	source.emit(&schema.Identity{ID: "u2"}, nil)
	if !first.isCanceled() {
		t.Fatalf("expected previous profile observation canceled")
	}
	first.push(profileDoc("u1", "o1", schema.RoleAdmin))
	state := tracker.State()
	if state.Identity.ID != "u2" || state.Profile != nil || !state.Loading {
		t.Fatalf("stale profile applied: %+v", state)
	}
	h.store.active(t, "profiles/u2").push(profileDoc("u2", "o2", schema.RoleMember))
	if state := tracker.State(); state.Profile == nil || state.Profile.IdentityID != "u2" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestTrackerSignOutClearsImmediately(t *testing.T) {
	h := newHarness()
	tracker, source := newTestTracker(h, false)
	defer tracker.Stop()
	source.emit(testIdentity, nil)
	sub := h.store.active(t, "profiles/u1")
	sub.push(profileDoc("u1", "o1", schema.RoleAdmin))

	tracker.SignOut()
	state := tracker.State()
	if state.Identity != nil || state.Profile != nil || state.Loading || state.Err != nil {
		t.Fatalf("expected cleared state, got %+v", state)
	}
	if !sub.isCanceled() {
		t.Fatalf("expected profile observation canceled")
	}
	sub.fail(docstore.CodePermissionDenied)
	if state := tracker.State(); state.Err != nil {
		t.Fatalf("late failure applied: %+v", state)
	}
}

func TestTrackerTransportErrorClearsIdentity(t *testing.T) {
	h := newHarness()
	tracker, source := newTestTracker(h, false)
	defer tracker.Stop()
	source.emit(testIdentity, nil)
	boom := errors.New("auth backend down")
	source.emit(nil, boom)
	state := tracker.State()
	if state.Identity != nil || !errors.Is(state.UserError, boom) {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestTrackerSignInFailureSetsUserError(t *testing.T) {
	h := newHarness()
	tracker, source := newTestTracker(h, false)
	defer tracker.Stop()
	source.signInErr = schema.ErrInvalidCredentials
	if _, err := tracker.SignIn(context.Background(), "u1", "bad", ""); !errors.Is(err, schema.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if state := tracker.State(); !errors.Is(state.UserError, schema.ErrInvalidCredentials) {
		t.Fatalf("expected user error, got %+v", state)
	}
}

func TestTrackerProfileErrorKeepsIdentity(t *testing.T) {
	h := newHarness()
	tracker, source := newTestTracker(h, false)
	defer tracker.Stop()
	source.emit(testIdentity, nil)
	h.store.active(t, "profiles/u1").fail(docstore.CodePermissionDenied)
	state := tracker.State()
	if state.Identity == nil || state.Loading {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.Err == nil || state.Err.Kind != schema.ErrorPermissionDenied || state.Err.Operation != "get" {
		t.Fatalf("unexpected error %+v", state.Err)
	}
}

func TestTrackerBootstrapsEmptyProfileOnce(t *testing.T) {
	h := newHarness()
	tracker, source := newTestTracker(h, true)
	defer tracker.Stop()
	source.emit(testIdentity, nil)
	sub := h.store.active(t, "profiles/u1")
	sub.push()
	sub.push()

	state := tracker.State()
	if state.Profile != nil || state.Loading || state.Err != nil {
		t.Fatalf("expected empty loaded profile, got %+v", state)
	}
	eventually(t, "bootstrap batch", func() bool { return len(h.store.writeLog()) == 2 })
	time.Sleep(20 * time.Millisecond)

	writes := h.store.writeLog()
	if h.store.batchCount() != 1 || len(writes) != 2 {
		t.Fatalf("expected one bootstrap batch, got %d batches %+v", h.store.batchCount(), writes)
	}
	orgPath := "organizations/" + string(DefaultOrgID("u1"))
	if writes[0].Path != orgPath || writes[1].Path != "profiles/u1" || !writes[0].Merge || !writes[1].Merge {
		t.Fatalf("unexpected bootstrap writes %+v", writes)
	}
	profile, err := schema.DecodeProfile("u1", writes[1].Data)
	if err != nil {
		t.Fatalf("decode bootstrap profile: %v", err)
	}
	membership, ok := profile.ActiveMembership()
	if !ok || membership.Role != schema.RoleAdmin || membership.ID != DefaultOrgID("u1") {
		t.Fatalf("unexpected bootstrap profile %+v", profile)
	}
}

func TestTrackerMalformedProfileIsNotBootstrapped(t *testing.T) {
	h := newHarness()
	tracker, source := newTestTracker(h, true)
	source.emit(testIdentity, nil)
	h.store.active(t, "profiles/u1").push(docstore.Document{
		ID:   "u1",
		Path: "profiles/u1",
		Data: map[string]any{"organizations": []any{map[string]any{"id": "o1", "role": "owner"}}},
	})
	tracker.Stop()
	state := tracker.State()
	if state.Profile != nil || state.Err == nil || state.Err.Code != string(docstore.CodeInvalidArgument) {
		t.Fatalf("unexpected state %+v", state)
	}
	if len(h.store.writeLog()) != 0 {
		t.Fatalf("malformed profile triggered bootstrap")
	}
}

func TestTrackerStopCancelsObservations(t *testing.T) {
	h := newHarness()
	tracker, source := newTestTracker(h, false)
	source.emit(testIdentity, nil)
	sub := h.store.active(t, "profiles/u1")
	tracker.Stop()
	if !sub.isCanceled() {
		t.Fatalf("expected profile observation canceled")
	}
	source.emit(&schema.Identity{ID: "u2"}, nil)
	if h.store.subCount() != 1 {
		t.Fatalf("stopped tracker opened an observation")
	}
}

func TestTrackerRestartBootstraps(t *testing.T) {
	store := openUnrestrictedStore(t)
	source := &fakeSource{}
	tracker := NewTracker(TrackerDeps{Source: source, Store: store, Bootstrapper: NewBootstrapper(store, nil)})
	tracker.Start()
	tracker.Stop()
	tracker.Start()
	defer tracker.Stop()

	source.emit(testIdentity, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	state, err := tracker.WaitProfile(ctx)
	if err != nil {
		t.Fatalf("wait profile: %v", err)
	}
	if membership, ok := state.ActiveOrg(); !ok || membership.ID != DefaultOrgID("u1") {
		t.Fatalf("expected bootstrapped profile after restart, got %+v", state)
	}
}
