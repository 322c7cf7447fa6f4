package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/logx"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
	"pkt.systems/pslog"
)

// orgNamespace seeds the deterministic default organization ids.
var orgNamespace = uuid.MustParse("6f1c3a52-9a7e-4c1b-8f0e-2d5b7e4a9c10")

// DefaultOrgID returns the default organization id derived from the identity.
func DefaultOrgID(userID schema.UserID) schema.OrgID {
	return schema.OrgID(uuid.NewSHA1(orgNamespace, []byte(userID)).String())
}

// Bootstrapper materializes the default profile and organization of an identity.
type Bootstrapper struct {
	store docstore.Store
	log   pslog.Logger
	now   func() time.Time
	group singleflight.Group
}

// NewBootstrapper constructs a bootstrapper writing through store.
func NewBootstrapper(store docstore.Store, logger pslog.Logger) *Bootstrapper {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bootstrapper{store: store, log: logger, now: time.Now}
}

// Ensure writes the default organization and an admin profile pointing at
// it. Writes are merges in one batch, so repeated or concurrent calls
// converge on the same documents. The organization name and creation time
// are only written when missing. Concurrent calls for one identity share a
// single write.
func (b *Bootstrapper) Ensure(ctx context.Context, identity *schema.Identity) (schema.Profile, error) {
	if identity == nil || identity.ID == "" {
		return schema.Profile{}, schema.ErrNotSignedIn
	}
	v, err, shared := b.group.Do(string(identity.ID), func() (any, error) {
		return b.ensure(ctx, identity)
	})
	if err != nil {
		return schema.Profile{}, err
	}
	if shared {
		logx.WithUser(b.log, identity.ID).Debug("bootstrap shared")
	}
	return v.(schema.Profile), nil
}

func (b *Bootstrapper) ensure(ctx context.Context, identity *schema.Identity) (schema.Profile, error) {
	orgID := DefaultOrgID(identity.ID)
	name := strings.TrimSpace(identity.DisplayName)
	if name == "" {
		name = string(identity.ID)
	}
	org := schema.Organization{
		ID:        orgID,
		Name:      fmt.Sprintf("Plantao %s", name),
		Active:    true,
		CreatedAt: b.now().UTC(),
	}
	profile := schema.Profile{
		IdentityID:           identity.ID,
		DisplayName:          name,
		ActiveOrganizationID: orgID,
		Organizations: []schema.Membership{
			{ID: orgID, Name: org.Name, Role: schema.RoleAdmin},
		},
	}
	orgFields := schema.OrganizationFields(org)
	created := map[string]any{}
	for _, field := range []string{"name", "createdAt"} {
		created[field] = orgFields[field]
		delete(orgFields, field)
	}
	err := b.store.Batch(ctx, []docstore.Write{
		{Op: docstore.WriteSet, Path: docstore.Join("organizations", string(orgID)), Data: orgFields, Merge: true, Defaults: created},
		{Op: docstore.WriteSet, Path: docstore.Join("profiles", string(identity.ID)), Data: schema.ProfileFields(profile), Merge: true},
	})
	log := logx.WithUserOrg(b.log, identity.ID, orgID)
	if err != nil {
		log.Warn("bootstrap failed", "err", err)
		return schema.Profile{}, err
	}
	log.Info("bootstrap ok")
	return profile, nil
}
