package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

type orderLog struct {
	entries []string
}

func (o *orderLog) SetPrincipal(principal *docstore.Principal) {
	if principal == nil {
		o.entries = append(o.entries, "principal:nil")
		return
	}
	o.entries = append(o.entries, "principal:"+string(principal.UserID))
}

func newTestProvider(t *testing.T, sink PrincipalSink) *Provider {
	t.Helper()
	store, err := NewStoreWithLogger(filepath.Join(t.TempDir(), "users.json"), nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.AddUser(User{
		Username:     "u1",
		Email:        "u1@example.com",
		DisplayName:  "Ana",
		PasswordHash: mustHash(t, "pass"),
	}); err != nil {
		t.Fatalf("add user: %v", err)
	}
	return NewProvider(store, sink, nil)
}

func TestWatchSessionDeliversCurrentImmediately(t *testing.T) {
	provider := newTestProvider(t, nil)
	var seen []*schema.Identity
	cancel := provider.WatchSession(func(identity *schema.Identity, err error) {
		seen = append(seen, identity)
	})
	defer cancel()
	if len(seen) != 1 || seen[0] != nil {
		t.Fatalf("expected one nil delivery, got %+v", seen)
	}
}

func TestSignInOrdersPrincipalBeforeWatchers(t *testing.T) {
	order := &orderLog{}
	provider := newTestProvider(t, order)
	cancel := provider.WatchSession(func(identity *schema.Identity, err error) {
		if identity == nil {
			order.entries = append(order.entries, "watch:nil")
			return
		}
		order.entries = append(order.entries, "watch:"+string(identity.ID))
	})
	defer cancel()

	identity, err := provider.SignIn(context.Background(), "u1@example.com", "pass", "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if identity.ID != "u1" || identity.DisplayName != "Ana" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	provider.SignOut()

	want := []string{"watch:nil", "principal:u1", "watch:u1", "watch:nil", "principal:nil"}
	if len(order.entries) != len(want) {
		t.Fatalf("expected %v, got %v", want, order.entries)
	}
	for i := range want {
		if order.entries[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order.entries)
		}
	}
}

func TestSignInFailureKeepsSignedOut(t *testing.T) {
	provider := newTestProvider(t, nil)
	if _, err := provider.SignIn(context.Background(), "u1", "nope", ""); !errors.Is(err, schema.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if provider.Current() != nil {
		t.Fatalf("expected no identity")
	}
}

func TestFailClearsIdentityWithError(t *testing.T) {
	provider := newTestProvider(t, nil)
	if _, err := provider.SignIn(context.Background(), "u1", "pass", ""); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	var gotErr error
	var gotIdentity *schema.Identity
	cancel := provider.WatchSession(func(identity *schema.Identity, err error) {
		gotIdentity, gotErr = identity, err
	})
	defer cancel()

	boom := errors.New("token refresh failed")
	provider.Fail(boom)
	if gotIdentity != nil || !errors.Is(gotErr, boom) {
		t.Fatalf("expected nil identity with error, got %+v %v", gotIdentity, gotErr)
	}
	if provider.Current() != nil {
		t.Fatalf("expected identity cleared")
	}
}
