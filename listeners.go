package plantao

import (
	"fmt"
	"io"
	"sync"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/eventbus"
	"pkt.systems/pslog"
)

type listenerFanout struct {
	listeners []eventbus.Listener
}

func (f listenerFanout) OnEvent(event eventbus.Event) {
	for _, listener := range f.listeners {
		if listener == nil {
			continue
		}
		listener(event)
	}
}

// toastWriter prints the user-facing text of bus events. Sync failures never
// show the underlying store message.
type toastWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newToastWriter(w io.Writer) *toastWriter {
	return &toastWriter{w: w}
}

func (t *toastWriter) OnEvent(event eventbus.Event) {
	var line string
	switch {
	case event.Error != nil:
		line = "! " + event.Error.UserMessage()
	case event.Notice != nil:
		line = "~ " + event.Notice.Message
	default:
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintln(t.w, line)
}

type logListener struct {
	log pslog.Logger
}

func (l logListener) OnEvent(event eventbus.Event) {
	if l.log == nil {
		return
	}
	switch {
	case event.Error != nil:
		l.log.Warn("sync error",
			"kind", event.Error.Kind,
			"op", event.Error.Operation,
			"path", event.Error.Path,
			"code", event.Error.Code,
		)
	case event.Notice != nil:
		l.log.Info("notice", "kind", event.Notice.Kind, "user", event.Notice.UserID)
	}
}
