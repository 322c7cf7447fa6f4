package core

import (
	"encoding/hex"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

// Ref is a stable reference to a live query. Refs are only produced by a
// RefCache; two refs with the same dependencies share the same Key.
type Ref struct {
	key    string
	query  docstore.Query
	user   schema.UserID
	org    schema.OrgID
	stable bool
}

// Key is the content hash of the ref's dependencies.
func (r *Ref) Key() string {
	if r == nil {
		return ""
	}
	return r.key
}

// Query returns the store query the ref observes.
func (r *Ref) Query() docstore.Query {
	if r == nil {
		return docstore.Query{}
	}
	q := r.query
	q.Where = append([]docstore.Filter(nil), r.query.Where...)
	return q
}

// Equal compares refs by dependency key.
func (r *Ref) Equal(other *Ref) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.key == other.key
}

// refDeps is the dependency tuple hashed into a ref key.
type refDeps struct {
	User       string   `cbor:"1,keyasint"`
	Org        string   `cbor:"2,keyasint"`
	Collection string   `cbor:"3,keyasint"`
	DocID      string   `cbor:"4,keyasint,omitempty"`
	Where      [][2]any `cbor:"5,keyasint,omitempty"`
	OrderBy    string   `cbor:"6,keyasint,omitempty"`
}

var keyEncMode cbor.EncMode

func init() {
	var err error
	keyEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("core: CBOR key encoder initialization failed: " + err.Error())
	}
}

func refKey(user schema.UserID, org schema.OrgID, q docstore.Query) (string, error) {
	deps := refDeps{
		User:       string(user),
		Org:        string(org),
		Collection: q.Collection,
		DocID:      q.DocID,
		OrderBy:    q.OrderBy,
	}
	for _, f := range q.Where {
		deps.Where = append(deps.Where, [2]any{f.Field, f.Value})
	}
	raw, err := keyEncMode.Marshal(deps)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// RefCache memoizes refs by their dependencies.
type RefCache struct {
	mu   sync.Mutex
	refs map[string]*Ref
}

// NewRefCache constructs an empty cache.
func NewRefCache() *RefCache {
	return &RefCache{refs: make(map[string]*Ref)}
}

// Query returns the cached ref for q scoped to user and org. It returns nil
// when user is empty, so no observation opens before sign-in.
func (c *RefCache) Query(user schema.UserID, org schema.OrgID, q docstore.Query) *Ref {
	if user == "" || q.Collection == "" {
		return nil
	}
	key, err := refKey(user, org, q)
	if err != nil {
		panic("core: ref dependencies are not encodable: " + err.Error())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref, ok := c.refs[key]; ok {
		return ref
	}
	q.Where = append([]docstore.Filter(nil), q.Where...)
	ref := &Ref{key: key, query: q, user: user, org: org, stable: true}
	c.refs[key] = ref
	return ref
}

// Profile returns the ref observing the user's profile document.
func (c *RefCache) Profile(user schema.UserID) *Ref {
	return c.Query(user, "", docstore.Query{Collection: "profiles", DocID: string(user)})
}

// Catalog returns the ref observing one catalog collection of org. It returns
// nil until an organization is resolved.
func (c *RefCache) Catalog(user schema.UserID, org schema.OrgID, kind schema.EntityKind) *Ref {
	if org == "" || !kind.Valid() {
		return nil
	}
	return c.Query(user, org, docstore.Query{
		Collection: docstore.Join("organizations", string(org), kind.Collection()),
		OrderBy:    "name",
	})
}

// Demands returns the ref observing the committed demands of org.
func (c *RefCache) Demands(user schema.UserID, org schema.OrgID) *Ref {
	if org == "" {
		return nil
	}
	return c.Query(user, org, docstore.Query{
		Collection: docstore.Join("organizations", string(org), "demands"),
		OrderBy:    "createdAt",
	})
}

// Len reports the number of cached refs.
func (c *RefCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.refs)
}
