package eventbus

import (
	"testing"
	"time"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	var got []Event
	cancel := bus.Subscribe(TopicPermissionError, func(event Event) {
		got = append(got, event)
	})
	defer cancel()

	typed := &schema.TypedError{Kind: schema.ErrorPermissionDenied, Operation: "list", Path: "organizations/o1/units"}
	bus.PublishError(typed)

	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Topic != TopicPermissionError || got[0].Error != typed {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := New(nil)
	errorsSeen := 0
	noticesSeen := 0
	defer bus.Subscribe(TopicPermissionError, func(Event) { errorsSeen++ })()
	defer bus.Subscribe(TopicNotice, func(Event) { noticesSeen++ })()

	bus.PublishNotice(schema.Notice{Kind: schema.NoticeEnrichmentUnavailable})
	if errorsSeen != 0 || noticesSeen != 1 {
		t.Fatalf("expected notice only, got errors=%d notices=%d", errorsSeen, noticesSeen)
	}
}

func TestMultipleListenersAndUnsubscribe(t *testing.T) {
	bus := New(nil)
	first, second := 0, 0
	cancelFirst := bus.Subscribe(TopicNotice, func(Event) { first++ })
	cancelSecond := bus.Subscribe(TopicNotice, func(Event) { second++ })
	defer cancelSecond()

	bus.PublishNotice(schema.Notice{})
	cancelFirst()
	cancelFirst()
	bus.PublishNotice(schema.Notice{})

	if first != 1 || second != 2 {
		t.Fatalf("expected first=1 second=2, got first=%d second=%d", first, second)
	}
}

func TestNoReplayForLateListener(t *testing.T) {
	bus := New(nil)
	bus.PublishError(&schema.TypedError{Kind: schema.ErrorOther})
	seen := 0
	defer bus.Subscribe(TopicPermissionError, func(Event) { seen++ })()
	if seen != 0 {
		t.Fatalf("late listener received %d replayed events", seen)
	}
}

func TestPublishNilErrorIsIgnored(t *testing.T) {
	bus := New(nil)
	seen := 0
	defer bus.Subscribe(TopicPermissionError, func(Event) { seen++ })()
	bus.PublishError(nil)
	if seen != 0 {
		t.Fatalf("expected nil error to be ignored")
	}
}

func TestSubscribeChanReceivesAndCloses(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.SubscribeChan(TopicNotice)
	bus.PublishNotice(schema.Notice{Kind: schema.NoticeEnrichmentUnavailable, Message: "retry"})

	select {
	case got := <-ch:
		if got.Notice == nil || got.Notice.Message != "retry" {
			t.Fatalf("unexpected payload: %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
	bus.PublishNotice(schema.Notice{})
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.SubscribeChan(TopicNotice)
	defer cancel()

	done := make(chan struct{})
	go func() {
		bus.PublishNotice(schema.Notice{})
		bus.PublishNotice(schema.Notice{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
}
