package core

import (
	"sort"
	"sync"
)

// notifier delivers state snapshots to listeners one at a time, in the order
// the owner assigned sequence numbers. A snapshot is dropped as soon as a
// newer one has been sequenced, including between two listeners of the same
// delivery, so the last state any listener sees is the owner's latest.
//
// Owners call next while holding their own lock, right after mutating state,
// and publish after releasing it.
type notifier[S any] struct {
	deliver sync.Mutex

	mu        sync.Mutex
	seq       uint64
	nextID    uint64
	listeners map[uint64]func(S)
}

// next sequences a new state and returns its number.
func (n *notifier[S]) next() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	return n.seq
}

// publish delivers state unless a newer sequence exists.
func (n *notifier[S]) publish(seq uint64, state S) {
	n.deliver.Lock()
	defer n.deliver.Unlock()
	fns, ok := n.current(seq)
	if !ok {
		return
	}
	for i, fn := range fns {
		if i > 0 {
			if _, ok := n.current(seq); !ok {
				return
			}
		}
		fn(state)
	}
}

func (n *notifier[S]) current(seq uint64) ([]func(S), bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if seq != n.seq {
		return nil, false
	}
	ids := make([]uint64, 0, len(n.listeners))
	for id := range n.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(S), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, n.listeners[id])
	}
	return fns, true
}

// add registers fn and returns its cancel func.
func (n *notifier[S]) add(fn func(S)) func() {
	if fn == nil {
		return func() {}
	}
	n.mu.Lock()
	if n.listeners == nil {
		n.listeners = make(map[uint64]func(S))
	}
	n.nextID++
	id := n.nextID
	n.listeners[id] = fn
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

// reset drops every listener and invalidates pending deliveries.
func (n *notifier[S]) reset() {
	n.mu.Lock()
	n.seq++
	n.listeners = nil
	n.mu.Unlock()
}
