package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// StatusEvent is a single message of the status stream.
type StatusEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Pin   string `json:"pin,omitempty"`
	Op    string `json:"op,omitempty"`
	Msg   string `json:"msg"`
}

// StatusBroadcaster distributes status events to SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast events and a cleanup
// function the caller must call on client disconnect.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish sends evt, JSON encoded, to every subscriber. The timestamp is
// filled in when empty. Slow clients miss events rather than block the
// publisher.
func (b *StatusBroadcaster) Publish(evt StatusEvent) {
	if evt.Time == "" {
		evt.Time = time.Now().Format(time.RFC3339)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// Broadcast sends a free-form message.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.Publish(StatusEvent{Level: level, Msg: msg})
}

// BroadcastPin reports the outcome of an operation on a pin. A nil err is
// an "info" event, a warning is a "warn" event, anything else "error".
func (b *StatusBroadcaster) BroadcastPin(key, op string, err error, warning bool) {
	evt := StatusEvent{Level: "info", Pin: key, Op: op, Msg: "ok"}
	if err != nil {
		evt.Level = "error"
		if warning {
			evt.Level = "warn"
		}
		evt.Msg = err.Error()
	}
	b.Publish(evt)
}

// BroadcastWriter returns an io.Writer that broadcasts each write, so log
// output can be mirrored to the status stream.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.Broadcast("log", msg)
	}
	return len(p), nil
}
