package schema

import "time"

// UserID identifies an authenticated identity.
type UserID string

// OrgID identifies an organization.
type OrgID string

// EntityID identifies a catalog entity.
type EntityID string

// RowID identifies a draft demand row.
type RowID string

// Role is a membership role inside an organization.
type Role string

const (
	// RoleAdmin manages the organization catalog.
	RoleAdmin Role = "admin"
	// RoleMember records demands.
	RoleMember Role = "member"
)

// Identity is the authenticated principal. It is immutable while active.
type Identity struct {
	ID          UserID `json:"id" mapstructure:"id" validate:"required"`
	Email       string `json:"email" mapstructure:"email"`
	DisplayName string `json:"displayName" mapstructure:"displayName"`
}

// Membership links a profile to an organization.
type Membership struct {
	ID   OrgID  `json:"id" mapstructure:"id" validate:"required"`
	Name string `json:"name" mapstructure:"name"`
	Role Role   `json:"role" mapstructure:"role" validate:"required,oneof=admin member"`
}

// Profile is the per-identity settings record.
type Profile struct {
	IdentityID           UserID       `json:"identityId" mapstructure:"identityId" validate:"required"`
	DisplayName          string       `json:"displayName" mapstructure:"displayName"`
	ActiveOrganizationID OrgID        `json:"activeOrganizationId" mapstructure:"activeOrganizationId"`
	Organizations        []Membership `json:"organizations" mapstructure:"organizations" validate:"dive"`
}

// ActiveMembership returns the membership matching ActiveOrganizationID.
func (p Profile) ActiveMembership() (Membership, bool) {
	for _, m := range p.Organizations {
		if m.ID == p.ActiveOrganizationID {
			return m, true
		}
	}
	return Membership{}, false
}

// Organization groups the catalog and the demands of a team.
type Organization struct {
	ID        OrgID     `json:"id" mapstructure:"id" validate:"required"`
	Name      string    `json:"name" mapstructure:"name" validate:"required"`
	Active    bool      `json:"active" mapstructure:"active"`
	CreatedAt time.Time `json:"createdAt" mapstructure:"createdAt"`
}

// EntityKind names one of the five catalog collections.
type EntityKind string

const (
	// KindUnit is an organizational unit.
	KindUnit EntityKind = "unit"
	// KindSector belongs to a unit.
	KindSector EntityKind = "sector"
	// KindCategory is a top-level demand category.
	KindCategory EntityKind = "category"
	// KindSubcategory belongs to a category.
	KindSubcategory EntityKind = "subcategory"
	// KindItem belongs to a subcategory.
	KindItem EntityKind = "item"
)

// EntityKinds lists every catalog kind, parents before children.
var EntityKinds = []EntityKind{KindUnit, KindSector, KindCategory, KindSubcategory, KindItem}

// Parent returns the kind that owns k, or "" for root kinds.
func (k EntityKind) Parent() EntityKind {
	switch k {
	case KindSector:
		return KindUnit
	case KindSubcategory:
		return KindCategory
	case KindItem:
		return KindSubcategory
	default:
		return ""
	}
}

// Child returns the kind owned by k, or "" when k cannot have children.
func (k EntityKind) Child() EntityKind {
	switch k {
	case KindUnit:
		return KindSector
	case KindCategory:
		return KindSubcategory
	case KindSubcategory:
		return KindItem
	default:
		return ""
	}
}

// Collection returns the collection name holding entities of kind k.
func (k EntityKind) Collection() string {
	switch k {
	case KindUnit:
		return "units"
	case KindSector:
		return "sectors"
	case KindCategory:
		return "categories"
	case KindSubcategory:
		return "subcategories"
	case KindItem:
		return "items"
	default:
		return ""
	}
}

// Valid reports whether k is one of the five catalog kinds.
func (k EntityKind) Valid() bool {
	return k.Collection() != ""
}

// CatalogEntity is a unit, sector, category, subcategory or item.
type CatalogEntity struct {
	ID       EntityID   `json:"id" mapstructure:"id" validate:"required"`
	Kind     EntityKind `json:"kind" mapstructure:"-"`
	Name     string     `json:"name" mapstructure:"name" validate:"required"`
	ParentID EntityID   `json:"parentId,omitempty" mapstructure:"parentId"`
	Active   bool       `json:"active" mapstructure:"active"`
}

// Selection is the catalog classification chosen for a demand.
type Selection struct {
	UnitID        EntityID `json:"unitId,omitempty" mapstructure:"unitId"`
	SectorID      EntityID `json:"sectorId,omitempty" mapstructure:"sectorId"`
	CategoryID    EntityID `json:"categoryId,omitempty" mapstructure:"categoryId"`
	SubcategoryID EntityID `json:"subcategoryId,omitempty" mapstructure:"subcategoryId"`
	ItemID        EntityID `json:"itemId,omitempty" mapstructure:"itemId"`
}

// Get returns the selected id for kind.
func (s Selection) Get(kind EntityKind) EntityID {
	switch kind {
	case KindUnit:
		return s.UnitID
	case KindSector:
		return s.SectorID
	case KindCategory:
		return s.CategoryID
	case KindSubcategory:
		return s.SubcategoryID
	case KindItem:
		return s.ItemID
	default:
		return ""
	}
}

// With selects id for kind and clears every descendant selection of kind.
// Selecting the id that is already selected leaves descendants untouched.
func (s Selection) With(kind EntityKind, id EntityID) Selection {
	if s.Get(kind) == id {
		return s
	}
	next := s.set(kind, id)
	for child := kind.Child(); child != ""; child = child.Child() {
		next = next.set(child, "")
	}
	return next
}

func (s Selection) set(kind EntityKind, id EntityID) Selection {
	switch kind {
	case KindUnit:
		s.UnitID = id
	case KindSector:
		s.SectorID = id
	case KindCategory:
		s.CategoryID = id
	case KindSubcategory:
		s.SubcategoryID = id
	case KindItem:
		s.ItemID = id
	}
	return s
}

// DemandRow is one in-progress row of the demand entry table.
type DemandRow struct {
	ID          RowID     `json:"id"`
	FreeText    string    `json:"freeText"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Resolution  string    `json:"resolution"`
	Selection   Selection `json:"selection"`
}

// Demand is a committed demand document.
type Demand struct {
	ID             string    `json:"id" mapstructure:"id" validate:"required"`
	OrganizationID OrgID     `json:"organizationId" mapstructure:"organizationId" validate:"required"`
	AuthorID       UserID    `json:"authorId" mapstructure:"authorId" validate:"required"`
	Title          string    `json:"title" mapstructure:"title"`
	Description    string    `json:"description" mapstructure:"description"`
	Resolution     string    `json:"resolution" mapstructure:"resolution"`
	Selection      Selection `json:"selection" mapstructure:",squash"`
	CreatedAt      time.Time `json:"createdAt" mapstructure:"createdAt"`
}

// NoticeKind classifies a transient user notice.
type NoticeKind string

const (
	// NoticeEnrichmentUnavailable signals that text enrichment failed and may be retried.
	NoticeEnrichmentUnavailable NoticeKind = "enrichment-unavailable"
)

// Notice is a transient, retryable message for the user.
type Notice struct {
	Kind    NoticeKind
	Message string
	UserID  UserID
}
