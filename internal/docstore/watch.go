package docstore

import (
	"context"
	"sync"
)

// watcher delivers snapshots for one live observation. Deliveries run on a
// dedicated goroutine so they are serial and in order; bursts of writes
// coalesce into one evaluation of the latest state.
type watcher struct {
	store      *Badger
	id         uint64
	query      Query
	onSnapshot func([]Document)
	onError    func(*Error)

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// Subscribe opens a live observation of q. The initial snapshot is delivered
// asynchronously. A failed evaluation is delivered once to onError and
// terminates the observation.
func (s *Badger) Subscribe(ctx context.Context, q Query, onSnapshot func([]Document), onError func(*Error)) func() {
	w := &watcher{
		store:      s,
		query:      q,
		onSnapshot: onSnapshot,
		onError:    onError,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		go w.fail(newError(CodeUnavailable, "store closed"))
		return func() {}
	}
	s.nextID++
	w.id = s.nextID
	s.watchers[w.id] = w
	count := len(s.watchers)
	s.mu.Unlock()
	if s.log != nil {
		s.log.Debug("docstore subscribe", "path", q.Path(), "watchers", count)
	}

	go w.run()
	w.kick()
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.unsubscribe(w)
			case <-w.done:
			}
		}()
	}
	return func() { s.unsubscribe(w) }
}

func (s *Badger) unsubscribe(w *watcher) {
	s.mu.Lock()
	_, ok := s.watchers[w.id]
	delete(s.watchers, w.id)
	s.mu.Unlock()
	w.stop()
	if ok && s.log != nil {
		s.log.Debug("docstore unsubscribe", "path", w.query.Path())
	}
}

// notify wakes every observation whose query covers one of paths.
func (s *Badger) notify(paths []string) {
	s.mu.Lock()
	matched := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		for _, path := range paths {
			if w.covers(path) {
				matched = append(matched, w)
				break
			}
		}
	}
	s.mu.Unlock()
	for _, w := range matched {
		w.kick()
	}
}

func (w *watcher) covers(docPath string) bool {
	if w.query.DocID != "" {
		return w.query.Path() == docPath
	}
	collection, _ := parentCollection(docPath)
	return collection == w.query.Collection
}

func (w *watcher) kick() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) stop() {
	w.once.Do(func() { close(w.done) })
}

func (w *watcher) stopped() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}
		if w.stopped() {
			return
		}
		docs, err := w.store.run(w.query)
		if w.stopped() {
			return
		}
		if err != nil {
			w.store.unsubscribe(w)
			w.fail(err)
			return
		}
		if w.onSnapshot != nil {
			w.onSnapshot(docs)
		}
	}
}

func (w *watcher) fail(err *Error) {
	if w.store.log != nil {
		w.store.log.Debug("docstore subscription failed", "path", w.query.Path(), "code", err.Code)
	}
	if w.onError != nil {
		w.onError(err)
	}
}
