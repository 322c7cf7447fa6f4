package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"pkt.systems/pslog"
)

// Config configures a badger-backed store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps every document in memory. Useful for tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Policy authorizes reads and writes. Defaults to MemberPolicy.
	Policy Policy
	Logger pslog.Logger
}

// Badger is a Store persisted in badger with in-process live observations.
type Badger struct {
	db     *badger.DB
	policy Policy
	log    pslog.Logger

	// writeMu serializes read-modify-write commits.
	writeMu sync.Mutex

	mu        sync.Mutex
	principal *Principal
	watchers  map[uint64]*watcher
	nextID    uint64
	closed    bool
}

var _ Store = (*Badger)(nil)
var _ Querier = (*Badger)(nil)

// Open opens a badger-backed store.
func Open(cfg Config) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	opts = opts.WithLogger(&badgerLogger{log: logger})
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	policy := cfg.Policy
	if policy == nil {
		policy = MemberPolicy{}
	}
	return &Badger{
		db:       db,
		policy:   policy,
		log:      logger,
		watchers: make(map[uint64]*watcher),
	}, nil
}

// Close stops every observation and closes the database.
func (s *Badger) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	watchers := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.watchers = make(map[uint64]*watcher)
	s.mu.Unlock()
	for _, w := range watchers {
		w.stop()
	}
	return s.db.Close()
}

// SetPrincipal changes the authorized identity and re-evaluates every live
// observation. Observations the new principal cannot read receive
// permission-denied and terminate.
func (s *Badger) SetPrincipal(principal *Principal) {
	s.mu.Lock()
	if principal != nil {
		clone := *principal
		principal = &clone
	}
	s.principal = principal
	watchers := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()
	user := ""
	if principal != nil {
		user = string(principal.UserID)
	}
	if s.log != nil {
		s.log.Debug("docstore principal changed", "user", user, "watchers", len(watchers))
	}
	for _, w := range watchers {
		w.kick()
	}
}

func (s *Badger) currentPrincipal() *Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// Set creates or replaces the document at path, or merges top-level fields when merge is set.
func (s *Badger) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	return s.Batch(ctx, []Write{{Op: WriteSet, Path: path, Data: data, Merge: merge}})
}

// Update merges fields into an existing document.
func (s *Badger) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.Batch(ctx, []Write{{Op: WriteUpdate, Path: path, Data: fields}})
}

// Delete removes the document at path. Deleting a missing document succeeds.
func (s *Badger) Delete(ctx context.Context, path string) error {
	return s.Batch(ctx, []Write{{Op: WriteDelete, Path: path}})
}

// Batch applies writes atomically: either all commit or none do.
func (s *Badger) Batch(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return newError(CodeUnavailable, "%v", err)
	}
	if len(writes) == 0 {
		return nil
	}
	for _, w := range writes {
		if !validDocPath(w.Path) {
			return newError(CodeInvalidArgument, "invalid document path %q", w.Path)
		}
	}
	if s.isClosed() {
		return newError(CodeUnavailable, "store closed")
	}
	principal := s.currentPrincipal()

	s.writeMu.Lock()
	err := s.db.Update(func(txn *badger.Txn) error {
		reader := txnReader{txn: txn}
		for _, w := range writes {
			if err := s.policy.Check(reader, principal, AccessWrite, w.Path); err != nil {
				return newError(CodePermissionDenied, "%s %s: %v", AccessWrite, w.Path, err)
			}
			if err := applyWrite(txn, reader, w); err != nil {
				return err
			}
		}
		return nil
	})
	s.writeMu.Unlock()
	if err != nil {
		var storeErr *Error
		if errors.As(err, &storeErr) {
			return storeErr
		}
		if errors.Is(err, badger.ErrConflict) || errors.Is(err, badger.ErrDBClosed) {
			return newError(CodeUnavailable, "%v", err)
		}
		return newError(CodeInternal, "%v", err)
	}

	paths := make([]string, 0, len(writes))
	for _, w := range writes {
		paths = append(paths, w.Path)
	}
	if s.log != nil {
		s.log.Trace("docstore batch committed", "writes", len(writes))
	}
	s.notify(paths)
	return nil
}

func applyWrite(txn *badger.Txn, reader txnReader, w Write) error {
	key := []byte(w.Path)
	switch w.Op {
	case WriteDelete:
		return txn.Delete(key)
	case WriteSet, WriteUpdate:
		current, exists, err := reader.Get(w.Path)
		if err != nil {
			return err
		}
		if w.Op == WriteUpdate && !exists {
			return newError(CodeNotFound, "no document at %s", w.Path)
		}
		next := w.Data
		if (exists && (w.Merge || w.Op == WriteUpdate)) || len(w.Defaults) > 0 {
			next = make(map[string]any, len(current)+len(w.Data)+len(w.Defaults))
			if exists && (w.Merge || w.Op == WriteUpdate) {
				for k, v := range current {
					next[k] = v
				}
			}
			for k, v := range w.Data {
				next[k] = v
			}
			for k, v := range w.Defaults {
				if _, ok := next[k]; !ok {
					next[k] = v
				}
			}
		}
		raw, err := encodeDoc(next)
		if err != nil {
			return newError(CodeInvalidArgument, "encode %s: %v", w.Path, err)
		}
		return txn.Set(key, raw)
	default:
		return newError(CodeInvalidArgument, "unknown write op %d", w.Op)
	}
}

// Query runs q once and returns the matching documents.
func (s *Badger) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(CodeUnavailable, "%v", err)
	}
	docs, storeErr := s.run(q)
	if storeErr != nil {
		return nil, storeErr
	}
	return docs, nil
}

// Get reads one document. ok is false when it does not exist.
func (s *Badger) Get(ctx context.Context, path string) (Document, bool, error) {
	if !validDocPath(path) {
		return Document{}, false, newError(CodeInvalidArgument, "invalid document path %q", path)
	}
	collection, id := parentCollection(path)
	docs, err := s.Query(ctx, Query{Collection: collection, DocID: id})
	if err != nil {
		return Document{}, false, err
	}
	if len(docs) == 0 {
		return Document{}, false, nil
	}
	return docs[0], true, nil
}

// run evaluates q against the current database state under the current principal.
func (s *Badger) run(q Query) ([]Document, *Error) {
	if !validCollectionPath(q.Collection) {
		return nil, newError(CodeInvalidArgument, "invalid collection path %q", q.Collection)
	}
	if s.isClosed() {
		return nil, newError(CodeUnavailable, "store closed")
	}
	principal := s.currentPrincipal()
	var docs []Document
	err := s.db.View(func(txn *badger.Txn) error {
		reader := txnReader{txn: txn}
		if err := s.policy.Check(reader, principal, AccessRead, q.Path()); err != nil {
			return newError(CodePermissionDenied, "%s %s: %v", AccessRead, q.Path(), err)
		}
		if q.DocID != "" {
			data, exists, err := reader.Get(q.Path())
			if err != nil {
				return err
			}
			if exists {
				docs = append(docs, Document{ID: q.DocID, Path: q.Path(), Data: data})
			}
			return nil
		}
		prefix := q.Collection + "/"
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			id := key[len(prefix):]
			if !validDocID(id) {
				continue
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			data, err := decodeDoc(raw)
			if err != nil {
				if s.log != nil {
					s.log.Warn("docstore document undecodable", "path", key, "err", err)
				}
				continue
			}
			docs = append(docs, Document{ID: id, Path: key, Data: data})
		}
		return nil
	})
	if err != nil {
		return nil, AsError(err)
	}
	docs = filterDocs(docs, q.Where)
	sortDocs(docs, q.OrderBy)
	return docs, nil
}

func validDocID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			return false
		}
	}
	return true
}

func filterDocs(docs []Document, filters []Filter) []Document {
	if len(filters) == 0 {
		return docs
	}
	out := docs[:0]
	for _, doc := range docs {
		match := true
		for _, f := range filters {
			if !reflect.DeepEqual(doc.Data[f.Field], normalize(f.Value)) {
				match = false
				break
			}
		}
		if match {
			out = append(out, doc)
		}
	}
	return out
}

func sortDocs(docs []Document, field string) {
	sort.SliceStable(docs, func(i, j int) bool {
		if field != "" {
			a := fmt.Sprint(docs[i].Data[field])
			b := fmt.Sprint(docs[j].Data[field])
			if a != b {
				return a < b
			}
		}
		return docs[i].ID < docs[j].ID
	})
}

func (s *Badger) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type txnReader struct {
	txn *badger.Txn
}

func (r txnReader) Get(path string) (map[string]any, bool, error) {
	item, err := r.txn.Get([]byte(path))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	data, err := decodeDoc(raw)
	if err != nil {
		return nil, false, newError(CodeInternal, "decode %s: %v", path, err)
	}
	return data, true, nil
}

// badgerLogger adapts pslog to badger's logger interface.
type badgerLogger struct {
	log pslog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.Trace(fmt.Sprintf(format, args...))
}
