package audio

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/faiface/beep"
)

var ErrFormatMismatch = errors.New("segment sample rate differs from the mix")

// Join describes how a segment was attached to the mix.
type Join struct {
	Requested time.Duration
	Applied   time.Duration
	Clamped   bool
}

// Mix is the accumulated output: segments in order and the number of frames
// each one shares with its predecessor. The overlap regions of a segment
// never intersect, so every crossfade blends exactly two segments.
type Mix struct {
	format   beep.Format
	segments []Segment
	overlaps []int
}

// Append adds seg to the end of the mix. The first segment becomes the mix
// as-is; later ones overlap the tail by crossfade, clamped to what both sides
// can give.
func (m *Mix) Append(seg Segment, crossfade time.Duration) (Join, error) {
	if len(m.segments) == 0 {
		m.format = seg.Format()
		m.segments = append(m.segments, seg)
		m.overlaps = append(m.overlaps, 0)
		return Join{}, nil
	}

	if seg.Format().SampleRate != m.format.SampleRate {
		return Join{}, fmt.Errorf("%w: %d != %d", ErrFormatMismatch, seg.Format().SampleRate, m.format.SampleRate)
	}

	requested := DurationToFrames(m.format.SampleRate, crossfade)
	if requested < 0 {
		requested = 0
	}

	last := len(m.segments) - 1
	overlap := requested
	if avail := m.segments[last].Len() - m.overlaps[last]; overlap > avail {
		overlap = avail
	}
	if overlap > seg.Len() {
		overlap = seg.Len()
	}

	m.segments = append(m.segments, seg)
	m.overlaps = append(m.overlaps, overlap)

	return Join{
		Requested: crossfade,
		Applied:   FramesToDuration(m.format.SampleRate, overlap),
		Clamped:   overlap < requested,
	}, nil
}

// Len returns the number of frames the mix renders to.
func (m *Mix) Len() int {
	total := 0
	for i, seg := range m.segments {
		total += seg.Len() - m.overlaps[i]
	}
	return total
}

// Duration returns the true rendered length, crossfade overlaps removed.
func (m *Mix) Duration() time.Duration {
	if len(m.segments) == 0 {
		return 0
	}
	return FramesToDuration(m.format.SampleRate, m.Len())
}

// Count returns the number of appended segments.
func (m *Mix) Count() int {
	return len(m.segments)
}

func (m *Mix) Format() beep.Format {
	return m.format
}

// Streamer renders the mix as one stream.
func (m *Mix) Streamer() beep.Streamer {
	parts := make([]beep.Streamer, 0, 2*len(m.segments))
	for i, seg := range m.segments {
		head := m.overlaps[i]
		tail := 0
		if i+1 < len(m.segments) {
			tail = m.overlaps[i+1]
		}

		parts = append(parts, seg.Streamer(head, seg.Len()-tail))
		if tail > 0 {
			next := m.segments[i+1]
			parts = append(parts, &crossfader{
				out:    seg.Streamer(seg.Len()-tail, seg.Len()),
				in:     next.Streamer(0, tail),
				length: tail,
			})
		}
	}
	return beep.Seq(parts...)
}

// crossfader blends an outgoing and an incoming stream of equal length with
// equal-power gains.
type crossfader struct {
	out, in beep.Streamer
	pos     int
	length  int
	tmp     [][2]float64
}

func (c *crossfader) Stream(samples [][2]float64) (n int, ok bool) {
	if c.pos >= c.length {
		return 0, false
	}
	if rem := c.length - c.pos; len(samples) > rem {
		samples = samples[:rem]
	}
	if cap(c.tmp) < len(samples) {
		c.tmp = make([][2]float64, len(samples))
	}
	tmp := c.tmp[:len(samples)]

	fill(c.out, samples)
	fill(c.in, tmp)

	for i := range samples {
		x := (float64(c.pos+i) + 0.5) / float64(c.length) * math.Pi / 2
		outGain, inGain := math.Cos(x), math.Sin(x)
		samples[i][0] = samples[i][0]*outGain + tmp[i][0]*inGain
		samples[i][1] = samples[i][1]*outGain + tmp[i][1]*inGain
	}

	c.pos += len(samples)
	return len(samples), true
}

func (c *crossfader) Err() error {
	if err := c.out.Err(); err != nil {
		return err
	}
	return c.in.Err()
}

// fill streams into samples until it is full or s is drained, zeroing the rest.
func fill(s beep.Streamer, samples [][2]float64) {
	n := 0
	for n < len(samples) {
		sn, ok := s.Stream(samples[n:])
		n += sn
		if !ok || sn == 0 {
			break
		}
	}
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
}
