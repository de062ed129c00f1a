package audio

import (
	"math"
	"time"

	"github.com/faiface/beep"
)

// Segment is one decoded track held in memory. Its duration has millisecond
// precision; a truncated segment reports exactly the duration it was cut to.
type Segment struct {
	buffer   *beep.Buffer
	length   int
	duration time.Duration
}

// NewSegment wraps every frame of buffer.
func NewSegment(buffer *beep.Buffer) Segment {
	return Segment{
		buffer:   buffer,
		length:   buffer.Len(),
		duration: FramesToDuration(buffer.Format().SampleRate, buffer.Len()),
	}
}

func (s Segment) Duration() time.Duration {
	return s.duration
}

// Len returns the number of frames in the segment.
func (s Segment) Len() int {
	return s.length
}

func (s Segment) Format() beep.Format {
	return s.buffer.Format()
}

// Truncate keeps the first d of the segment and drops the rest. Durations at
// or beyond the segment's own return it unchanged.
func (s Segment) Truncate(d time.Duration) Segment {
	if d >= s.duration {
		return s
	}
	if d < 0 {
		d = 0
	}

	n := DurationToFrames(s.Format().SampleRate, d)
	if n > s.length {
		n = s.length
	}
	return Segment{buffer: s.buffer, length: n, duration: d}
}

// Streamer streams frames [from, to) of the segment.
func (s Segment) Streamer(from, to int) beep.StreamSeeker {
	return s.buffer.Streamer(from, to)
}

// FramesToDuration converts a frame count to a duration rounded to the
// nearest millisecond.
func FramesToDuration(rate beep.SampleRate, frames int) time.Duration {
	ms := math.Round(float64(frames) * 1000 / float64(rate))
	return time.Duration(ms) * time.Millisecond
}

// DurationToFrames converts a duration to the nearest whole frame count.
func DurationToFrames(rate beep.SampleRate, d time.Duration) int {
	return int(math.Round(d.Seconds() * float64(rate)))
}
