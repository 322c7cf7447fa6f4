package docstore

import (
	"fmt"
	"strings"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

// Principal is the identity the store authorizes operations for.
type Principal struct {
	UserID schema.UserID
}

// Access is the kind of operation being authorized.
type Access string

const (
	// AccessRead covers subscriptions and one-shot queries.
	AccessRead Access = "read"
	// AccessWrite covers set, update and delete.
	AccessWrite Access = "write"
)

// Reader reads documents inside the transaction being authorized.
type Reader interface {
	Get(path string) (map[string]any, bool, error)
}

// Policy decides whether principal may perform access on path. A nil error allows it.
type Policy interface {
	Check(r Reader, principal *Principal, access Access, path string) error
}

// PolicyFunc adapts a func to Policy.
type PolicyFunc func(r Reader, principal *Principal, access Access, path string) error

// Check implements Policy.
func (f PolicyFunc) Check(r Reader, principal *Principal, access Access, path string) error {
	return f(r, principal, access, path)
}

// AllowAll permits every operation.
var AllowAll Policy = PolicyFunc(func(Reader, *Principal, Access, string) error { return nil })

var catalogCollections = map[string]struct{}{
	"units":         {},
	"sectors":       {},
	"categories":    {},
	"subcategories": {},
	"items":         {},
}

// MemberPolicy authorizes by organization membership:
//   - profiles/{uid} is readable and writable only by uid;
//   - organizations/{org} may be created by any signed-in principal, and is
//     otherwise readable and writable by members;
//   - catalog collections are readable by members and writable by admins;
//   - demands are readable and writable by members.
type MemberPolicy struct{}

// Check implements Policy.
func (MemberPolicy) Check(r Reader, principal *Principal, access Access, path string) error {
	if principal == nil || principal.UserID == "" {
		return fmt.Errorf("not signed in")
	}
	segments, ok := splitPath(path)
	if !ok {
		return fmt.Errorf("invalid path %q", path)
	}
	switch segments[0] {
	case "profiles":
		if len(segments) == 2 && segments[1] == string(principal.UserID) {
			return nil
		}
		return fmt.Errorf("profile %q belongs to another user", strings.Join(segments[1:], "/"))
	case "organizations":
		if len(segments) < 2 {
			return fmt.Errorf("listing organizations is not allowed")
		}
		orgID := schema.OrgID(segments[1])
		if len(segments) == 2 && access == AccessWrite {
			_, exists, err := r.Get(path)
			if err != nil {
				return err
			}
			if !exists {
				return nil
			}
		}
		member, ok, err := membership(r, principal.UserID, orgID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %s is not a member of %s", principal.UserID, orgID)
		}
		if len(segments) >= 3 && access == AccessWrite {
			if _, catalog := catalogCollections[segments[2]]; catalog && member.Role != schema.RoleAdmin {
				return fmt.Errorf("user %s cannot edit the catalog of %s", principal.UserID, orgID)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown root collection %q", segments[0])
	}
}

func membership(r Reader, userID schema.UserID, orgID schema.OrgID) (schema.Membership, bool, error) {
	data, exists, err := r.Get(Join("profiles", string(userID)))
	if err != nil || !exists {
		return schema.Membership{}, false, err
	}
	profile, err := schema.DecodeProfile(string(userID), data)
	if err != nil {
		return schema.Membership{}, false, nil
	}
	for _, m := range profile.Organizations {
		if m.ID == orgID {
			return m, true, nil
		}
	}
	return schema.Membership{}, false, nil
}
