package audio

// Conform returns b converted to the given sample rate and channel count.
// The input is returned unchanged when it already matches.
func Conform(b *Buffer, sampleRate, channels int) *Buffer {
	out := b
	if out.SampleRate != sampleRate {
		out = Resample(out, sampleRate)
	}
	if out.Channels() != channels {
		out = Remix(out, channels)
	}
	return out
}

// Resample converts b to a new sample rate using linear interpolation.
func Resample(b *Buffer, toRate int) *Buffer {
	if b.SampleRate == toRate || b.SampleRate <= 0 || toRate <= 0 {
		return b
	}

	ratio := float64(b.SampleRate) / float64(toRate)
	n := int(float64(b.Frames()) / ratio)
	out := NewBuffer(toRate, b.Channels(), n)

	for c, src := range b.Data {
		dst := out.Data[c]
		for i := range dst {
			pos := float64(i) * ratio
			idx := int(pos)
			frac := float32(pos - float64(idx))
			switch {
			case idx+1 < len(src):
				dst[i] = src[idx]*(1-frac) + src[idx+1]*frac
			case idx < len(src):
				dst[i] = src[idx]
			default:
				dst[i] = src[len(src)-1]
			}
		}
	}
	return out
}

// Remix maps b onto a different channel count. Mono is duplicated across
// outputs; wider inputs are averaged down to mono first.
func Remix(b *Buffer, channels int) *Buffer {
	if b.Channels() == channels || b.Channels() == 0 {
		return b
	}

	mono := b.Data[0]
	if b.Channels() > 1 {
		mono = make([]float32, b.Frames())
		for _, ch := range b.Data {
			for i, v := range ch {
				mono[i] += v
			}
		}
		inv := 1 / float32(b.Channels())
		for i := range mono {
			mono[i] *= inv
		}
	}

	out := &Buffer{SampleRate: b.SampleRate, Data: make([][]float32, channels)}
	for c := range out.Data {
		out.Data[c] = mono
	}
	return out
}
