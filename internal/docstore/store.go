package docstore

import (
	"context"
	"strings"
)

// Document is one stored record with its identifier and full path.
type Document struct {
	ID   string
	Path string
	Data map[string]any
}

// Filter is an equality predicate on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Query selects either every document of a collection or one document.
type Query struct {
	// Collection is a collection path, e.g. "organizations/o1/units".
	Collection string
	// DocID narrows the query to a single document of Collection.
	DocID   string
	Where   []Filter
	OrderBy string
}

// Path returns the document path for single-document queries, otherwise the collection path.
func (q Query) Path() string {
	if q.DocID != "" {
		return q.Collection + "/" + q.DocID
	}
	return q.Collection
}

// WriteOp identifies a batched write.
type WriteOp int

const (
	// WriteSet creates or replaces a document, or merges into it when Merge is set.
	WriteSet WriteOp = iota
	// WriteUpdate merges fields into an existing document.
	WriteUpdate
	// WriteDelete removes a document.
	WriteDelete
)

// Write is one operation inside an atomic batch.
type Write struct {
	Op    WriteOp
	Path  string
	Data  map[string]any
	Merge bool
	// Defaults are set only for fields the resulting document lacks.
	Defaults map[string]any
}

// Store is the remote document store seen by the synchronization layer.
type Store interface {
	// Subscribe opens a live observation. onSnapshot receives full result
	// sets; onError terminates the observation. The returned func cancels it.
	Subscribe(ctx context.Context, q Query, onSnapshot func([]Document), onError func(*Error)) func()
	Set(ctx context.Context, path string, data map[string]any, merge bool) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
	Batch(ctx context.Context, writes []Write) error
}

// Querier runs one-shot reads.
type Querier interface {
	Query(ctx context.Context, q Query) ([]Document, error)
}

// Join builds a slash-separated store path.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

func splitPath(path string) ([]string, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, "/")
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return nil, false
		}
	}
	return segments, true
}

func validCollectionPath(path string) bool {
	segments, ok := splitPath(path)
	return ok && len(segments)%2 == 1
}

func validDocPath(path string) bool {
	segments, ok := splitPath(path)
	return ok && len(segments)%2 == 0
}

// parentCollection returns the collection path and id of a document path.
func parentCollection(docPath string) (string, string) {
	idx := strings.LastIndexByte(docPath, '/')
	if idx < 0 {
		return "", docPath
	}
	return docPath[:idx], docPath[idx+1:]
}
