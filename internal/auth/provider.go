package auth

import (
	"context"
	"sort"
	"sync"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
	"pkt.systems/pslog"
)

// PrincipalSink receives the authorized identity for store access.
type PrincipalSink interface {
	SetPrincipal(principal *docstore.Principal)
}

// SessionListener receives session transitions: an identity after sign-in,
// nil after sign-out, or nil with an error when the session transport failed.
type SessionListener = func(identity *schema.Identity, err error)

// Provider holds the current session and pushes its transitions to watchers.
type Provider struct {
	store *Store
	sink  PrincipalSink
	log   pslog.Logger

	mu       sync.Mutex
	current  *schema.Identity
	next     uint64
	watchers map[uint64]SessionListener
}

// NewProvider constructs a session provider over the user store.
func NewProvider(store *Store, sink PrincipalSink, logger pslog.Logger) *Provider {
	return &Provider{
		store:    store,
		sink:     sink,
		log:      logger,
		watchers: make(map[uint64]SessionListener),
	}
}

// SignIn authenticates and starts a session. The store principal is switched
// before watchers observe the new identity.
func (p *Provider) SignIn(ctx context.Context, login, password, totpCode string) (*schema.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	user, err := p.store.Authenticate(login, password, totpCode)
	if err != nil {
		if p.log != nil {
			p.log.Warn("auth sign-in rejected", "login", login, "err", err)
		}
		return nil, err
	}
	identity := user.Identity()
	p.mu.Lock()
	p.current = identity
	p.mu.Unlock()
	if p.sink != nil {
		p.sink.SetPrincipal(&docstore.Principal{UserID: identity.ID})
	}
	if p.log != nil {
		p.log.Info("auth sign-in ok", "user", identity.ID)
	}
	p.emit(cloneIdentity(identity), nil)
	return cloneIdentity(identity), nil
}

// SignOut ends the session. Watchers observe nil before the store principal
// is cleared.
func (p *Provider) SignOut() {
	p.mu.Lock()
	prev := p.current
	p.current = nil
	p.mu.Unlock()
	if prev == nil {
		return
	}
	p.emit(nil, nil)
	if p.sink != nil {
		p.sink.SetPrincipal(nil)
	}
	if p.log != nil {
		p.log.Info("auth sign-out", "user", prev.ID)
	}
}

// Fail reports a session transport failure. The identity is cleared.
func (p *Provider) Fail(err error) {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	p.emit(nil, err)
	if p.sink != nil {
		p.sink.SetPrincipal(nil)
	}
	if p.log != nil {
		p.log.Warn("auth session failed", "err", err)
	}
}

// Current returns the signed-in identity or nil.
func (p *Provider) Current() *schema.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneIdentity(p.current)
}

// WatchSession registers fn and immediately delivers the current session.
func (p *Provider) WatchSession(fn SessionListener) func() {
	if fn == nil {
		return func() {}
	}
	p.mu.Lock()
	p.next++
	id := p.next
	p.watchers[id] = fn
	current := cloneIdentity(p.current)
	p.mu.Unlock()
	fn(current, nil)
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) emit(identity *schema.Identity, err error) {
	p.mu.Lock()
	ids := make([]uint64, 0, len(p.watchers))
	for id := range p.watchers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]SessionListener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.watchers[id])
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(cloneIdentity(identity), err)
	}
}

func cloneIdentity(identity *schema.Identity) *schema.Identity {
	if identity == nil {
		return nil
	}
	clone := *identity
	return &clone
}
