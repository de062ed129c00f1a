package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

// Container is an output file format.
type Container string

const (
	ContainerMP3  Container = "mp3"
	ContainerWAV  Container = "wav"
	ContainerFLAC Container = "flac"
	ContainerOGG  Container = "ogg"
)

const DefaultMP3Bitrate = "192k"

var (
	ErrFFmpegNotFound       = errors.New("ffmpeg not found")
	ErrUnsupportedContainer = errors.New("unsupported output format")
)

// EncodeError carries the ffmpeg exit status and output of a failed encode.
type EncodeError struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *EncodeError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("ffmpeg exited with code %d: %s", e.ExitCode, e.Output)
	}
	return e.Err.Error()
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// ContainerForPath picks the output format from the file extension. A path
// without an extension is encoded as mp3.
func ContainerForPath(path string) (Container, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case "", ".mp3":
		return ContainerMP3, nil
	case ".wav":
		return ContainerWAV, nil
	case ".flac":
		return ContainerFLAC, nil
	case ".ogg":
		return ContainerOGG, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContainer, ext)
	}
}

// Encoder writes streams to disk. WAV is written directly; compressed formats
// are piped as raw PCM through ffmpeg.
type Encoder struct {
	ffmpeg     string
	mp3Bitrate string
}

// NewEncoder creates an Encoder. Empty arguments select "ffmpeg" from PATH
// and DefaultMP3Bitrate.
func NewEncoder(ffmpegPath, mp3Bitrate string) *Encoder {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(mp3Bitrate) == "" {
		mp3Bitrate = DefaultMP3Bitrate
	}
	return &Encoder{ffmpeg: ffmpegPath, mp3Bitrate: mp3Bitrate}
}

// Encode writes s to path in container c, replacing any existing file.
func (e *Encoder) Encode(ctx context.Context, s beep.Streamer, format beep.Format, path string, c Container) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch c {
	case ContainerWAV:
		return e.encodeWAV(s, format, path)
	case ContainerMP3, ContainerFLAC, ContainerOGG:
		return e.encodeFFmpeg(ctx, s, format, path, c)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedContainer, c)
	}
}

func (e *Encoder) encodeWAV(s beep.Streamer, format beep.Format, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := wav.Encode(f, s, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (e *Encoder) encodeFFmpeg(ctx context.Context, s beep.Streamer, format beep.Format, path string, c Container) error {
	bin, err := exec.LookPath(e.ffmpeg)
	if err != nil {
		return ErrFFmpegNotFound
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(int(format.SampleRate)),
		"-ac", "2",
		"-i", "pipe:0",
		"-vn",
	}
	args = append(args, e.codecArgs(c)...)
	args = append(args, "-f", string(c), "-y", path)

	pr, pw := io.Pipe()
	writeErr := make(chan error, 1)
	go func() {
		err := writePCM(pw, s)
		pw.CloseWithError(err)
		writeErr <- err
	}()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = pr

	output, err := cmd.CombinedOutput()
	pr.CloseWithError(io.ErrClosedPipe)
	pcmErr := <-writeErr

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &EncodeError{
				ExitCode: exitErr.ExitCode(),
				Output:   truncateOutput(string(output), 500),
				Err:      errors.New("ffmpeg failed"),
			}
		}
		return &EncodeError{Err: fmt.Errorf("ffmpeg failed: %w", err)}
	}
	if pcmErr != nil && !errors.Is(pcmErr, io.ErrClosedPipe) {
		return &EncodeError{Err: fmt.Errorf("stream audio to ffmpeg: %w", pcmErr)}
	}
	return nil
}

func (e *Encoder) codecArgs(c Container) []string {
	switch c {
	case ContainerMP3:
		return []string{"-codec:a", "libmp3lame", "-b:a", e.mp3Bitrate}
	case ContainerFLAC:
		return []string{"-codec:a", "flac"}
	case ContainerOGG:
		return []string{"-codec:a", "libvorbis", "-q:a", "5"}
	}
	return nil
}

// writePCM writes s to w as interleaved signed 16-bit little-endian stereo.
func writePCM(w io.Writer, s beep.Streamer) error {
	var samples [512][2]float64
	buf := make([]byte, len(samples)*4)

	for {
		n, ok := s.Stream(samples[:])
		if !ok {
			break
		}
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(buf[i*4:], uint16(toInt16(samples[i][0])))
			binary.LittleEndian.PutUint16(buf[i*4+2:], uint16(toInt16(samples[i][1])))
		}
		if _, err := w.Write(buf[:n*4]); err != nil {
			return err
		}
	}
	return s.Err()
}

func toInt16(v float64) int16 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

func truncateOutput(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
