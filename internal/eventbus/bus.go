package eventbus

import (
	"context"
	"sort"
	"sync"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
	"pkt.systems/pslog"
)

// Topic names a channel on the bus.
type Topic string

const (
	// TopicPermissionError carries classified synchronization failures.
	TopicPermissionError Topic = "permission-error"
	// TopicNotice carries transient user notices.
	TopicNotice Topic = "notice"
)

// Event is a single publication on a topic.
type Event struct {
	Topic  Topic
	Error  *schema.TypedError
	Notice *schema.Notice
}

// Listener receives events for the topic it registered on.
type Listener func(Event)

// Bus is a topic-keyed listener registry. Publishing is fire-and-forget and
// listeners registered after a publish never receive it.
type Bus struct {
	mu        sync.Mutex
	next      uint64
	listeners map[Topic]map[uint64]Listener
	log       pslog.Logger
	depth     int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		listeners: make(map[Topic]map[uint64]Listener),
		log:       logger,
		depth:     64,
	}
}

// Subscribe registers fn on topic and returns its cancel func.
func (b *Bus) Subscribe(topic Topic, fn Listener) func() {
	if b == nil || fn == nil {
		return func() {}
	}
	b.mu.Lock()
	b.next++
	id := b.next
	topicListeners := b.listeners[topic]
	if topicListeners == nil {
		topicListeners = make(map[uint64]Listener)
		b.listeners[topic] = topicListeners
	}
	topicListeners[id] = fn
	count := len(topicListeners)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "topic", topic, "listeners", count)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if listeners := b.listeners[topic]; listeners != nil {
				delete(listeners, id)
				if len(listeners) == 0 {
					delete(b.listeners, topic)
				}
			}
			b.mu.Unlock()
			if b.log != nil {
				b.log.Debug("eventbus unsubscribe", "topic", topic)
			}
		})
	}
}

// SubscribeChan registers a buffered channel on topic. Events are dropped
// when the channel is full. Cancel closes the channel.
func (b *Bus) SubscribeChan(topic Topic) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	var (
		mu     sync.Mutex
		closed bool
	)
	cancel := b.Subscribe(topic, func(event Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- event:
		default:
			if b.log != nil {
				b.log.Trace("eventbus dropped", "topic", topic)
			}
		}
	})
	return ch, func() {
		cancel()
		mu.Lock()
		if !closed {
			closed = true
			close(ch)
		}
		mu.Unlock()
	}
}

// PublishError publishes a classified failure on TopicPermissionError.
func (b *Bus) PublishError(err *schema.TypedError) {
	if err == nil {
		return
	}
	b.publish(Event{Topic: TopicPermissionError, Error: err})
}

// PublishNotice publishes a transient notice on TopicNotice.
func (b *Bus) PublishNotice(notice schema.Notice) {
	b.publish(Event{Topic: TopicNotice, Notice: &notice})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	topicListeners := b.listeners[event.Topic]
	ids := make([]uint64, 0, len(topicListeners))
	for id := range topicListeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, topicListeners[id])
	}
	b.mu.Unlock()
	if b.log != nil {
		b.log.Trace("eventbus publish", "topic", event.Topic, "listeners", len(fns))
	}
	for _, fn := range fns {
		fn(event)
	}
}
