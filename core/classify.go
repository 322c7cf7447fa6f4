package core

import (
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

// Classify turns a store failure into a TypedError. A permission-denied
// failure without a resolved identity is the expected sign-in/sign-out
// boundary and yields nil.
func Classify(err *docstore.Error, identity *schema.Identity, operation, path string) *schema.TypedError {
	if err == nil {
		return nil
	}
	if err.Code == docstore.CodePermissionDenied {
		if identity == nil {
			return nil
		}
		return &schema.TypedError{
			Kind:      schema.ErrorPermissionDenied,
			Operation: operation,
			Path:      path,
			Code:      string(err.Code),
			Message:   err.Message,
		}
	}
	return &schema.TypedError{
		Kind:      schema.ErrorOther,
		Operation: operation,
		Path:      path,
		Code:      string(err.Code),
		Message:   err.Message,
	}
}

func queryOperation(q docstore.Query) string {
	if q.DocID != "" {
		return "get"
	}
	return "list"
}
