package tracing

import (
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/tinyid/tracekit/internal/shared/id"
)

// TraceparentHeader is the single canonical propagation header, in the W3C
// trace-context layout: version-traceid-spanid-flags.
const TraceparentHeader = "traceparent"

// flagSampled is bit 0 of the trace flags.
const flagSampled = 0x01

// supportedVersion is the version this implementation writes. Higher
// versions are accepted on extract for forward compatibility.
const supportedVersion = 0x00

// Carrier abstracts the transport-specific header map trace context travels
// in: http.Header inbound/outbound, gRPC metadata, or anything else with
// string keys and values.
type Carrier interface {
	Get(key string) string
	Set(key, value string)
}

// HeaderCarrier adapts http.Header to the Carrier interface.
type HeaderCarrier http.Header

func (c HeaderCarrier) Get(key string) string {
	return http.Header(c).Get(key)
}

func (c HeaderCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

// MetadataCarrier adapts gRPC metadata to the Carrier interface.
// gRPC metadata keys are always lowercase.
type MetadataCarrier metadata.MD

func (c MetadataCarrier) Get(key string) string {
	values := metadata.MD(c).Get(strings.ToLower(key))
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (c MetadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(strings.ToLower(key), value)
}

// MapCarrier adapts a plain string map to the Carrier interface.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string { return c[key] }
func (c MapCarrier) Set(key, value string) { c[key] = value }

// Inject writes sc into the carrier's traceparent header. Invalid contexts
// are not written.
func Inject(sc SpanContext, carrier Carrier) {
	if !sc.IsValid() {
		return
	}
	carrier.Set(TraceparentHeader, formatTraceparent(sc))
}

// Extract parses the carrier's traceparent header into a remote span
// context. It fails softly: malformed or absent headers return ok=false and
// the caller starts a new root trace instead of failing the request.
func Extract(carrier Carrier) (SpanContext, bool) {
	return parseTraceparent(carrier.Get(TraceparentHeader))
}

func formatTraceparent(sc SpanContext) string {
	flags := byte(0)
	if sc.IsSampled() {
		flags |= flagSampled
	}
	return fmt.Sprintf("%02x-%s-%s-%02x",
		supportedVersion, sc.TraceID(), sc.SpanID(), flags)
}

func parseTraceparent(header string) (SpanContext, bool) {
	if header == "" {
		return SpanContext{}, false
	}

	parts := strings.Split(header, "-")
	if len(parts) < 4 {
		return SpanContext{}, false
	}

	version, ok := parseHexByte(parts[0])
	if !ok || version == 0xff {
		return SpanContext{}, false
	}
	// Version 00 has exactly four fields; later versions may append more.
	if version == supportedVersion && len(parts) != 4 {
		return SpanContext{}, false
	}

	if !isLowerHex(parts[1]) || !isLowerHex(parts[2]) {
		return SpanContext{}, false
	}
	traceID, err := id.ParseTraceID(parts[1])
	if err != nil {
		return SpanContext{}, false
	}
	spanID, err := id.ParseSpanID(parts[2])
	if err != nil {
		return SpanContext{}, false
	}

	flags, ok := parseHexByte(parts[3])
	if !ok {
		return SpanContext{}, false
	}

	return NewSpanContext(traceID, spanID, flags&flagSampled != 0), true
}

// parseHexByte decodes exactly two lowercase hex digits.
func parseHexByte(s string) (byte, bool) {
	if len(s) != 2 || !isLowerHex(s) {
		return 0, false
	}
	var b byte
	for i := 0; i < 2; i++ {
		b <<= 4
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			b |= c - '0'
		case c >= 'a' && c <= 'f':
			b |= c - 'a' + 10
		}
	}
	return b, true
}

// isLowerHex reports whether s contains only lowercase hex digits.
// The wire format mandates lowercase; uppercase input is malformed.
func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return len(s) > 0
}
