package mixer

import "github.com/satindergrewal/melodai/internal/audio"

// sourceNode plays a decoded buffer, once or looped.
type sourceNode struct {
	buf      *audio.Buffer
	loop     bool
	pos      int
	passes   int // completed passes through the buffer
	playing  bool
	released bool
}

func newSourceNode(buf *audio.Buffer, loop bool) *sourceNode {
	return &sourceNode{buf: buf, loop: loop}
}

// read accumulates up to n frames into dst (one slice per channel) scaled
// by gain(i). It returns the frames produced; a non-looping node returns
// fewer than n once it runs out.
func (s *sourceNode) read(dst [][]float32, n int, gain func(i int) float32) int {
	if !s.playing {
		return 0
	}
	total := s.buf.Frames()
	if total == 0 {
		s.playing = false
		return 0
	}

	produced := 0
	for produced < n {
		if s.pos >= total {
			s.passes++
			if !s.loop {
				s.playing = false
				break
			}
			s.pos = 0
		}
		chunk := min(n-produced, total-s.pos)
		for c := range dst {
			src := s.buf.Data[c%s.buf.Channels()]
			out := dst[c]
			for i := 0; i < chunk; i++ {
				out[produced+i] += src[s.pos+i] * gain(produced+i)
			}
		}
		s.pos += chunk
		produced += chunk
	}

	// A pass that finished exactly on this quantum's boundary is counted now
	// so that the count is exact when the session ends.
	if s.pos >= total && s.playing {
		s.passes++
		if s.loop {
			s.pos = 0
		} else {
			s.playing = false
		}
	}
	return produced
}
