package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// Ramp returns the gain at step i of n when moving from -> to along a
// smoothstep curve. Step n-1 lands exactly on to.
func Ramp(from, to float64, i, n int) float64 {
	if n <= 1 || from == to {
		return to
	}
	g := Smoothstep(float64(i+1) / float64(n))
	return from + (to-from)*g
}
