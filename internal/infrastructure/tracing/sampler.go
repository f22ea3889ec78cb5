package tracing

import (
	"encoding/binary"
	"fmt"

	"github.com/tinyid/tracekit/internal/shared/id"
)

// Sampler decides, once per trace, whether its spans are recorded.
// Decisions must be deterministic in the trace id so that services
// re-evaluating the same trace always agree.
type Sampler interface {
	Decide(traceID id.TraceID) bool
	Description() string
}

type alwaysOnSampler struct{}

func (alwaysOnSampler) Decide(id.TraceID) bool { return true }
func (alwaysOnSampler) Description() string    { return "AlwaysOn" }

type alwaysOffSampler struct{}

func (alwaysOffSampler) Decide(id.TraceID) bool { return false }
func (alwaysOffSampler) Description() string    { return "AlwaysOff" }

// AlwaysOn returns a sampler that records every trace.
func AlwaysOn() Sampler { return alwaysOnSampler{} }

// AlwaysOff returns a sampler that records no traces.
func AlwaysOff() Sampler { return alwaysOffSampler{} }

type ratioSampler struct {
	ratio float64
	bound uint64
}

func (s ratioSampler) Decide(traceID id.TraceID) bool {
	// Interpret the low 8 bytes of the trace id as a uniform value.
	// Pure function of the id: no RNG, no state.
	x := binary.BigEndian.Uint64(traceID[8:16]) >> 1
	return x < s.bound
}

func (s ratioSampler) Description() string {
	return fmt.Sprintf("TraceIDRatioBased{%g}", s.ratio)
}

// TraceIDRatioBased returns a sampler that records approximately the given
// fraction of traces. Fractions at or below zero collapse to AlwaysOff,
// at or above one to AlwaysOn.
func TraceIDRatioBased(fraction float64) Sampler {
	if fraction >= 1 {
		return AlwaysOn()
	}
	if fraction <= 0 {
		return AlwaysOff()
	}
	return ratioSampler{
		ratio: fraction,
		bound: uint64(fraction * (1 << 63)),
	}
}

// SamplerForRate maps a configured sample rate to the matching sampler.
func SamplerForRate(rate float64) Sampler {
	return TraceIDRatioBased(rate)
}
