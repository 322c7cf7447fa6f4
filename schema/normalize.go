package schema

import (
	"strings"
)

// ValidateUserID ensures a user id matches [a-z0-9._-] with no normalization.
func ValidateUserID(userID UserID) error {
	raw := string(userID)
	if raw == "" {
		return ErrInvalidUser
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidUser
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidUser
	}
	return nil
}

// ParseEntityKind validates a kind name. Plural collection names are accepted.
func ParseEntityKind(value string) (EntityKind, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	for _, kind := range EntityKinds {
		if trimmed == string(kind) || trimmed == kind.Collection() {
			return kind, nil
		}
	}
	return "", ErrInvalidKind
}

// NormalizeName trims an entity name and rejects empty values.
func NormalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrMissingName
	}
	return trimmed, nil
}
