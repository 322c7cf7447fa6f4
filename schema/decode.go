package schema

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// recordValidate checks decoded store records against their validate tags.
var recordValidate *validator.Validate

func init() {
	recordValidate = validator.New()
}

// DecodeRecord decodes a raw store document into out and validates it.
// Times are stored as RFC3339 strings.
func DecodeRecord(data map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := recordValidate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// DecodeEntity decodes a catalog document of the given kind. The document id
// wins over any id field stored in the body.
func DecodeEntity(kind EntityKind, id string, data map[string]any) (CatalogEntity, error) {
	if !kind.Valid() {
		return CatalogEntity{}, ErrInvalidKind
	}
	body := make(map[string]any, len(data)+1)
	for k, v := range data {
		body[k] = v
	}
	body["id"] = id
	var entity CatalogEntity
	if err := DecodeRecord(body, &entity); err != nil {
		return CatalogEntity{}, err
	}
	entity.Kind = kind
	if kind.Parent() != "" && entity.ParentID == "" {
		return CatalogEntity{}, fmt.Errorf("%w: %s %s has no parent", ErrInvalidRequest, kind, id)
	}
	return entity, nil
}

// DecodeProfile decodes a profile document keyed by identity id.
func DecodeProfile(id string, data map[string]any) (Profile, error) {
	body := make(map[string]any, len(data)+1)
	for k, v := range data {
		body[k] = v
	}
	if _, ok := body["identityId"]; !ok {
		body["identityId"] = id
	}
	var profile Profile
	if err := DecodeRecord(body, &profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// DecodeOrganization decodes an organization document.
func DecodeOrganization(id string, data map[string]any) (Organization, error) {
	body := make(map[string]any, len(data)+1)
	for k, v := range data {
		body[k] = v
	}
	body["id"] = id
	var org Organization
	if err := DecodeRecord(body, &org); err != nil {
		return Organization{}, err
	}
	return org, nil
}

// DecodeDemand decodes a committed demand document.
func DecodeDemand(id string, data map[string]any) (Demand, error) {
	body := make(map[string]any, len(data)+1)
	for k, v := range data {
		body[k] = v
	}
	body["id"] = id
	var demand Demand
	if err := DecodeRecord(body, &demand); err != nil {
		return Demand{}, err
	}
	return demand, nil
}

// EntityFields returns the store body for a catalog entity.
func EntityFields(entity CatalogEntity) map[string]any {
	fields := map[string]any{
		"name":   entity.Name,
		"active": entity.Active,
	}
	if entity.ParentID != "" {
		fields["parentId"] = string(entity.ParentID)
	}
	return fields
}

// ProfileFields returns the store body for a profile.
func ProfileFields(profile Profile) map[string]any {
	orgs := make([]any, 0, len(profile.Organizations))
	for _, m := range profile.Organizations {
		orgs = append(orgs, map[string]any{
			"id":   string(m.ID),
			"name": m.Name,
			"role": string(m.Role),
		})
	}
	return map[string]any{
		"identityId":           string(profile.IdentityID),
		"displayName":          profile.DisplayName,
		"activeOrganizationId": string(profile.ActiveOrganizationID),
		"organizations":        orgs,
	}
}

// OrganizationFields returns the store body for an organization.
func OrganizationFields(org Organization) map[string]any {
	return map[string]any{
		"id":        string(org.ID),
		"name":      org.Name,
		"active":    org.Active,
		"createdAt": org.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// DemandFields returns the store body for a committed demand.
func DemandFields(demand Demand) map[string]any {
	return map[string]any{
		"id":             demand.ID,
		"organizationId": string(demand.OrganizationID),
		"authorId":       string(demand.AuthorID),
		"title":          demand.Title,
		"description":    demand.Description,
		"resolution":     demand.Resolution,
		"unitId":         string(demand.Selection.UnitID),
		"sectorId":       string(demand.Selection.SectorID),
		"categoryId":     string(demand.Selection.CategoryID),
		"subcategoryId":  string(demand.Selection.SubcategoryID),
		"itemId":         string(demand.Selection.ItemID),
		"createdAt":      demand.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
