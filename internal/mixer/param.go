package mixer

import (
	"math"
	"sync/atomic"
)

// Gain limits
const (
	VocalGainMax        = 1.5
	InstrumentalGainMax = 1.0
)

// Param is a clamped scalar written by control code and read by the render
// loop. Writes are single atomic stores.
type Param struct {
	bits     atomic.Uint64
	min, max float64
}

func newParam(v, min, max float64) *Param {
	p := &Param{min: min, max: max}
	p.Set(v)
	return p
}

// Set clamps v into range, stores it and returns the stored value.
func (p *Param) Set(v float64) float64 {
	v = clamp(v, p.min, p.max)
	p.bits.Store(math.Float64bits(v))
	return v
}

// Value returns the current value.
func (p *Param) Value() float64 {
	return math.Float64frombits(p.bits.Load())
}

func clamp(v, min, max float64) float64 {
	if math.IsNaN(v) || v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ClampVocalGain clamps v to the vocal gain range.
func ClampVocalGain(v float64) float64 { return clamp(v, 0, VocalGainMax) }

// ClampInstrumentalGain clamps v to the instrumental gain range.
func ClampInstrumentalGain(v float64) float64 { return clamp(v, 0, InstrumentalGainMax) }
