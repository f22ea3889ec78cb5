// Package id provides centralized ID generation for the tracing core.
//
// Two families of identifiers live here:
//   - Trace and span IDs: fixed-width random hex (128-bit / 64-bit) as
//     required by the trace-context wire format
//   - Request and batch IDs: prefixed ULIDs for log correlation
//
// Design Principles:
//   - Type safety: separate types prevent ID misuse
//   - Debuggable: ULID prefixes make logs readable (req_*, batch_*)
//   - Performance: pooled crypto entropy, ~1μs per ID
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Trace Identifiers
// ============================================================================

// TraceID is a 128-bit identifier shared by every span in one trace.
type TraceID [16]byte

// SpanID is a 64-bit identifier unique to one span within its trace.
type SpanID [8]byte

// String returns the 32-character lowercase hex encoding.
func (t TraceID) String() string { return hex.EncodeToString(t[:]) }

// String returns the 16-character lowercase hex encoding.
func (s SpanID) String() string { return hex.EncodeToString(s[:]) }

// IsValid reports whether the trace ID is non-zero.
func (t TraceID) IsValid() bool { return t != TraceID{} }

// IsValid reports whether the span ID is non-zero.
func (s SpanID) IsValid() bool { return s != SpanID{} }

// ParseTraceID decodes a 32-character hex string into a TraceID.
func ParseTraceID(s string) (TraceID, error) {
	var t TraceID
	if len(s) != 32 {
		return t, fmt.Errorf("trace id must be 32 hex characters, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return t, fmt.Errorf("invalid trace id %q: %w", s, err)
	}
	copy(t[:], b)
	if !t.IsValid() {
		return TraceID{}, fmt.Errorf("trace id must not be all zeros")
	}
	return t, nil
}

// ParseSpanID decodes a 16-character hex string into a SpanID.
func ParseSpanID(s string) (SpanID, error) {
	var sp SpanID
	if len(s) != 16 {
		return sp, fmt.Errorf("span id must be 16 hex characters, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return sp, fmt.Errorf("invalid span id %q: %w", s, err)
	}
	copy(sp[:], b)
	if !sp.IsValid() {
		return SpanID{}, fmt.Errorf("span id must not be all zeros")
	}
	return sp, nil
}

// ============================================================================
// ULID Identifiers
// ============================================================================

// RequestID identifies one inbound request in logs.
type RequestID string

// BatchID identifies one export batch in logs.
type BatchID string

func (id RequestID) String() string { return string(id) }
func (id BatchID) String() string   { return string(id) }

const (
	RequestPrefix = "req"
	BatchPrefix   = "batch"
)

// ============================================================================
// Generator
// ============================================================================

// Generator produces trace, span, and ULID identifiers from one entropy source
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// TraceID generates a new non-zero 128-bit trace ID.
func (g *Generator) TraceID() TraceID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	var t TraceID
	for !t.IsValid() {
		if _, err := io.ReadFull(g.entropy, t[:]); err != nil {
			panic(fmt.Sprintf("id: entropy source failed: %v", err))
		}
	}
	return t
}

// SpanID generates a new non-zero 64-bit span ID.
func (g *Generator) SpanID() SpanID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	var s SpanID
	for !s.IsValid() {
		if _, err := io.ReadFull(g.entropy, s[:]); err != nil {
			panic(fmt.Sprintf("id: entropy source failed: %v", err))
		}
	}
	return s
}

// ULID generates a new ULID
func (g *Generator) ULID() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.ULID().String())
}

// ============================================================================
// Typed Generators
// ============================================================================

// NewTraceID generates a trace ID from the default generator.
func NewTraceID() TraceID {
	return Default().TraceID()
}

// NewSpanID generates a span ID from the default generator.
func NewSpanID() SpanID {
	return Default().SpanID()
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewBatchID generates a new export batch ID
func NewBatchID() BatchID {
	return BatchID(Default().GenerateWithPrefix(BatchPrefix))
}
