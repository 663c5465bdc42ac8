package authstatus

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/authstatus/internal/audit"
)

const (
	auditEventSessionPresent  = "session_present"
	auditEventSessionAbsent   = "session_absent"
	auditEventNavigate        = "navigate"
	auditEventFetchSuccess    = "fetch_success"
	auditEventFetchFailure    = "fetch_failure"
	auditEventFetchSuperseded = "fetch_superseded"
)

// AuditEvent is one controller transition delivered to an [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives audit events on the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers audit events on a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func (c *Controller) emitAudit(ctx context.Context, eventType string, session Session, success bool, err error, mutate func(*AuditEvent)) {
	if c == nil || c.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Success:   success,
	}
	if session != nil {
		event.UserID = session.UserID()
	}
	if err != nil {
		event.Error = err.Error()
	}
	if mutate != nil {
		mutate(&event)
	}

	c.audit.Emit(ctx, event)
}

// AuditDropped returns the number of audit events dropped by backpressure.
func (c *Controller) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}
