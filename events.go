package dspclient

import (
	"encoding/json"
	"sync"
)

// Event names a client notification along with its payload type.
type Event[P any] struct {
	name string
}

func (e Event[P]) String() string {
	return e.name
}

// Frame is an inbound frame that decoded as JSON, whether or not it answered a request.
type Frame struct {
	Data  json.RawMessage
	Value any
}

var (
	EventConnected    = Event[struct{}]{name: "connected"}
	EventDisconnected = Event[CloseInfo]{name: "disconnected"}
	EventError        = Event[error]{name: "error"}
	EventStateChange  = Event[State]{name: "stateChange"}
	EventMessage      = Event[Frame]{name: "message"}
)

// Subscribe registers fn for the event and returns a function removing it.
//
// Listeners run on the client event loop in emission order. They must not block and
// must not call Connect, Send, Disconnect or Close synchronously.
func Subscribe[P any](c *Client, e Event[P], fn func(P)) (unsubscribe func()) {
	return c.listeners.add(e.name, fn)
}

type listener struct {
	id uint64
	fn any
}

type listeners struct {
	mu       sync.RWMutex
	seq      uint64
	handlers map[string][]listener
}

func newListeners() *listeners {
	return &listeners{handlers: make(map[string][]listener)}
}

func (l *listeners) add(name string, fn any) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	id := l.seq
	l.handlers[name] = append(l.handlers[name], listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			l.remove(name, id)
		})
	}
}

func (l *listeners) remove(name string, id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	list := l.handlers[name]
	for i, h := range list {
		if h.id == id {
			l.handlers[name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(l.handlers[name]) == 0 {
		delete(l.handlers, name)
	}
}

func (l *listeners) snapshot(name string) []listener {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.handlers[name]
}

func emit[P any](l *listeners, e Event[P], payload P) {
	for _, h := range l.snapshot(e.name) {
		if fn, ok := h.fn.(func(P)); ok {
			fn(payload)
		}
	}
}
