package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

const (
	DefaultSampleRate = 44100
	resampleQuality   = 4
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrEmptyAudio        = errors.New("decoded audio is empty")
)

// DecodeError reports a source file that could not be turned into a Segment.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder reads audio files into memory in a single stereo mix format,
// resampling sources that use another rate.
type Decoder struct {
	format beep.Format
}

// NewDecoder creates a decoder producing 16-bit stereo at sampleRate.
func NewDecoder(sampleRate int) *Decoder {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Decoder{
		format: beep.Format{
			SampleRate:  beep.SampleRate(sampleRate),
			NumChannels: 2,
			Precision:   2,
		},
	}
}

// Format returns the format every decoded Segment uses.
func (d *Decoder) Format() beep.Format {
	return d.format
}

// Decode reads the whole file at path.
func (d *Decoder) Decode(ctx context.Context, path string) (Segment, error) {
	if err := ctx.Err(); err != nil {
		return Segment{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Segment{}, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".ogg":
		streamer, format, err = vorbis.Decode(f)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return Segment{}, &DecodeError{Path: path, Err: err}
	}
	defer streamer.Close()

	var source beep.Streamer = streamer
	if format.SampleRate != d.format.SampleRate {
		source = beep.Resample(resampleQuality, format.SampleRate, d.format.SampleRate, streamer)
	}

	buffer := beep.NewBuffer(d.format)
	buffer.Append(source)
	if err := source.Err(); err != nil {
		return Segment{}, &DecodeError{Path: path, Err: err}
	}
	if buffer.Len() == 0 {
		return Segment{}, &DecodeError{Path: path, Err: ErrEmptyAudio}
	}

	seg := NewSegment(buffer)
	if seg.Duration() <= 0 {
		return Segment{}, &DecodeError{Path: path, Err: ErrEmptyAudio}
	}
	return seg, nil
}
