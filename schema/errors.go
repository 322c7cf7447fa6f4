package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidUser indicates an invalid user identifier.
	ErrInvalidUser = errors.New("invalid user")
	// ErrInvalidKind indicates an unknown catalog kind.
	ErrInvalidKind = errors.New("invalid catalog kind")
	// ErrInvariantViolation is wrapped by every local catalog validation failure.
	ErrInvariantViolation = errors.New("catalog invariant violation")
	// ErrMissingName indicates an empty entity name.
	ErrMissingName = fmt.Errorf("%w: name is required", ErrInvariantViolation)
	// ErrMissingParent indicates a child created without a resolved parent.
	ErrMissingParent = fmt.Errorf("%w: parent is required", ErrInvariantViolation)
	// ErrHasChildren indicates a parent deletion blocked by existing children.
	ErrHasChildren = fmt.Errorf("%w: entity has children", ErrInvariantViolation)
	// ErrCatalogNotLoaded indicates a check that needs a collection that is not loaded yet.
	ErrCatalogNotLoaded = errors.New("catalog not loaded")
	// ErrEntityNotFound indicates the entity is not in the observed set.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrNoOrganization indicates no active organization is resolved.
	ErrNoOrganization = errors.New("no active organization")
	// ErrNotSignedIn indicates an operation that requires an identity.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrRowNotFound indicates an unknown draft row.
	ErrRowNotFound = errors.New("row not found")
	// ErrEmptyDraft indicates a commit with no rows.
	ErrEmptyDraft = errors.New("draft has no rows")
	// ErrEnrichmentUnavailable indicates the text enrichment call failed; row values are kept.
	ErrEnrichmentUnavailable = errors.New("enrichment unavailable")
	// ErrInvalidCredentials indicates a failed sign-in.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ErrorKind classifies a synchronization failure.
type ErrorKind string

const (
	// ErrorPermissionDenied is a genuine authorization denial.
	ErrorPermissionDenied ErrorKind = "permission-denied"
	// ErrorOther is any other store failure.
	ErrorOther ErrorKind = "other"
)

// GenericSyncMessage is the user-facing text for every store failure.
const GenericSyncMessage = "no access or session expired"

// TypedError is a classified synchronization failure. It never carries the
// raw transport error, only its code and message.
type TypedError struct {
	Kind      ErrorKind
	Operation string
	Path      string
	Code      string
	Message   string
}

func (e *TypedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s %s (%s)", e.Kind, e.Operation, e.Path, e.Code)
}

// UserMessage returns the non-leaking text shown to users.
func (e *TypedError) UserMessage() string {
	return GenericSyncMessage
}
