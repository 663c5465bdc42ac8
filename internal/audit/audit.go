package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event is one controller transition: a session observation, a navigation or a
// fetch outcome. Credentials never appear in an Event.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Path      string            `json:"path,omitempty"`
	Status    int               `json:"status,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink consumes controller events. The dispatcher calls Emit from a single
// goroutine, so implementations only need locking if shared elsewhere.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink is used when auditing is enabled without a destination.
type NoOpSink struct{}

// Emit ignores event.
func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a reader, typically a test or a UI log pane.
// Emit blocks while the channel is full until ctx ends.
type ChannelSink struct {
	out chan Event
}

// NewChannelSink allocates the channel with room for size events (at least one).
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{out: make(chan Event, max(size, 1))}
}

// Emit delivers event unless ctx is done first.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.out <- event:
	case <-ctx.Done():
	}
}

// Events is the receiving side. It is never closed.
func (s *ChannelSink) Events() <-chan Event {
	return s.out
}

// JSONWriterSink appends newline-delimited JSON to an io.Writer. Marshal and
// write failures are ignored.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONWriterSink wraps w. A nil w discards events.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

// Emit writes event as a single line.
func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.w == nil {
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	_, _ = s.w.Write(append(line, '\n'))
	s.mu.Unlock()
}
