package tracing

import (
	"sync"
	"time"

	"github.com/tinyid/tracekit/internal/shared/id"
)

// Kind classifies the role a span plays in a trace.
type Kind int

const (
	KindInternal Kind = iota
	KindServer
	KindClient
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// StatusCode is the outcome classification of a span.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOk
	StatusError
)

// String returns the string representation of the status code
func (c StatusCode) String() string {
	switch c {
	case StatusOk:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unset"
	}
}

// Status combines an outcome code with an optional message.
type Status struct {
	Code    StatusCode
	Message string
}

// Event is a timestamped annotation within a span.
type Event struct {
	Name       string
	Timestamp  time.Time
	Attributes map[string]interface{}
}

// Span is one timed unit of work within a trace. It is mutable while open
// and frozen by End; the exporter only ever sees immutable snapshots.
type Span struct {
	mu         sync.Mutex
	sc         SpanContext
	name       string
	kind       Kind
	service    string
	startTime  time.Time
	endTime    time.Time
	attributes map[string]interface{}
	events     []Event
	status     Status
	ended      bool
	tracer     *Tracer
}

// SpanData is the immutable snapshot of a finished span, handed to the
// export pipeline. Export-format concerns are projections of this value,
// never a second span model.
type SpanData struct {
	TraceID      id.TraceID
	SpanID       id.SpanID
	ParentSpanID id.SpanID
	HasParent    bool
	Name         string
	Kind         Kind
	Service      string
	StartTime    time.Time
	EndTime      time.Time
	Attributes   map[string]interface{}
	Events       []Event
	Status       Status
}

// Duration returns the recorded wall time of the span.
func (d SpanData) Duration() time.Duration {
	return d.EndTime.Sub(d.StartTime)
}

// Context returns the span's immutable identifiers.
func (s *Span) Context() SpanContext { return s.sc }

// Name returns the operation name.
func (s *Span) Name() string { return s.name }

// Kind returns the span kind.
func (s *Span) Kind() Kind { return s.kind }

// StartTime returns when the span was opened.
func (s *Span) StartTime() time.Time { return s.startTime }

// IsSampled reports whether the span will be exported on End.
func (s *Span) IsSampled() bool { return s.sc.IsSampled() }

// Ended reports whether End has been called.
func (s *Span) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// SetAttribute records a key/value attribute. Last write wins.
// Unsampled spans skip the write; they only track nesting.
func (s *Span) SetAttribute(key string, value interface{}) {
	if !s.sc.IsSampled() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		s.tracer.usageError("SetAttribute called on ended span", s)
		return
	}
	s.attributes[key] = value
}

// AddEvent appends a timestamped annotation to the span.
func (s *Span) AddEvent(name string, attrs map[string]interface{}) {
	if !s.sc.IsSampled() {
		return
	}

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		s.tracer.usageError("AddEvent called on ended span", s)
		return
	}
	s.events = append(s.events, Event{
		Name:       name,
		Timestamp:  time.Now(),
		Attributes: attrs,
	})
	s.mu.Unlock()

	s.tracer.logEvent(s, name, attrs)
}

// RecordError captures err as an exception event on the span. It does not
// change the span status; callers decide that separately.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.AddEvent("exception", map[string]interface{}{
		"exception.message": err.Error(),
	})
}

// SetStatus sets the span outcome. Last call wins.
func (s *Span) SetStatus(code StatusCode, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		s.tracer.usageError("SetStatus called on ended span", s)
		return
	}
	s.status = Status{Code: code, Message: message}
}

// End closes the span, freezes it, and hands the snapshot to the tracer's
// processor. Calls after the first are usage errors and do nothing.
func (s *Span) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		s.tracer.usageError("End called twice on span", s)
		return
	}
	s.ended = true
	s.endTime = time.Now()
	data := s.snapshotLocked()
	s.mu.Unlock()

	s.tracer.onEnd(s, data)
}

// Snapshot returns an immutable copy of the span's current state.
func (s *Span) Snapshot() SpanData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// snapshotLocked copies mutable state; caller holds s.mu.
func (s *Span) snapshotLocked() SpanData {
	attrs := make(map[string]interface{}, len(s.attributes))
	for k, v := range s.attributes {
		attrs[k] = v
	}
	events := make([]Event, len(s.events))
	copy(events, s.events)

	parent, hasParent := s.sc.ParentSpanID()
	return SpanData{
		TraceID:      s.sc.TraceID(),
		SpanID:       s.sc.SpanID(),
		ParentSpanID: parent,
		HasParent:    hasParent,
		Name:         s.name,
		Kind:         s.kind,
		Service:      s.service,
		StartTime:    s.startTime,
		EndTime:      s.endTime,
		Attributes:   attrs,
		Events:       events,
		Status:       s.status,
	}
}
