package mixer

import (
	"math"
	"time"
)

// CompressorParams configures the shared dynamics stage.
type CompressorParams struct {
	ThresholdDB float64
	KneeDB      float64
	Ratio       float64
	Attack      time.Duration
	Release     time.Duration
}

// DefaultCompressor is gentle bus leveling for vocal over backing.
func DefaultCompressor() CompressorParams {
	return CompressorParams{
		ThresholdDB: -24,
		KneeDB:      30,
		Ratio:       12,
		Attack:      3 * time.Millisecond,
		Release:     250 * time.Millisecond,
	}
}

// compressor is a feed-forward, stereo-linked peak compressor with a soft
// knee. Gain reduction is smoothed in the dB domain.
type compressor struct {
	p           CompressorParams
	attackCoef  float64
	releaseCoef float64
	reductionDB float64 // current smoothed reduction, <= 0
}

func newCompressor(p CompressorParams, sampleRate int) *compressor {
	p.ThresholdDB = clamp(p.ThresholdDB, -100, 0)
	p.KneeDB = clamp(p.KneeDB, 0, 40)
	p.Ratio = clamp(p.Ratio, 1, 20)
	return &compressor{
		p:           p,
		attackCoef:  timeCoef(p.Attack, sampleRate),
		releaseCoef: timeCoef(p.Release, sampleRate),
	}
}

func timeCoef(d time.Duration, sampleRate int) float64 {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return math.Exp(-1 / (d.Seconds() * float64(sampleRate)))
}

// staticCurve returns the output level in dB for an input level in dB.
func (c *compressor) staticCurve(x float64) float64 {
	t, w, r := c.p.ThresholdDB, c.p.KneeDB, c.p.Ratio
	over := x - t
	switch {
	case 2*over < -w:
		return x
	case w > 0 && 2*math.Abs(over) <= w:
		k := over + w/2
		return x + (1/r-1)*k*k/(2*w)
	default:
		return t + over/r
	}
}

// process applies gain reduction in place to one interleaved frame.
func (c *compressor) process(frame []float32) {
	peak := 0.0
	for _, v := range frame {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}

	level := -200.0
	if peak > 1e-10 {
		level = 20 * math.Log10(peak)
	}
	target := c.staticCurve(level) - level

	coef := c.releaseCoef
	if target < c.reductionDB {
		coef = c.attackCoef
	}
	c.reductionDB = coef*c.reductionDB + (1-coef)*target

	if c.reductionDB >= 0 {
		return
	}
	g := float32(math.Pow(10, c.reductionDB/20))
	for i := range frame {
		frame[i] *= g
	}
}
