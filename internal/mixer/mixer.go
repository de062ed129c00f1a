package mixer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"album-mixer/internal/audio"
	"album-mixer/internal/models"
	"album-mixer/internal/pool"
)

var (
	ErrNoValidTracks    = errors.New("no more valid tracks available to process")
	ErrInvalidTarget    = errors.New("target duration must be positive")
	ErrInvalidCrossfade = errors.New("crossfade duration must not be negative")
)

// Decoder turns a source file into an in-memory segment.
type Decoder interface {
	Decode(ctx context.Context, path string) (audio.Segment, error)
}

// Evictor reports source files that vanished since the previous call.
type Evictor interface {
	Drain() []string
}

// Session is the mutable state of one assembly run.
type Session struct {
	Target    time.Duration
	Crossfade time.Duration
	Current   time.Duration // summed segment durations before crossfade overlap
	Cursor    int
	Used      []models.Track
	Failed    []models.Track
}

// Progress returns Current as a fraction of Target.
func (s *Session) Progress() float64 {
	if s.Target <= 0 {
		return 0
	}
	return float64(s.Current) / float64(s.Target)
}

// Result is the outcome of a successful Assemble.
type Result struct {
	Mix     *audio.Mix
	Session *Session
}

// Assembler builds a mix from a pool of tracks.
type Assembler struct {
	decoder Decoder
	evictor Evictor
	logger  *log.Logger
}

// NewAssembler creates an Assembler. evictor may be nil.
func NewAssembler(decoder Decoder, evictor Evictor, logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.Default()
	}
	return &Assembler{decoder: decoder, evictor: evictor, logger: logger}
}

// Assemble takes tracks from p in pool order until the summed segment
// durations reach target. The last segment is cut to fit exactly. Tracks that
// fail to decode are removed from p and never retried.
func (a *Assembler) Assemble(ctx context.Context, p *pool.Pool, target, crossfade time.Duration) (*Result, error) {
	if target <= 0 {
		return nil, ErrInvalidTarget
	}
	if crossfade < 0 {
		return nil, ErrInvalidCrossfade
	}
	if p.IsEmpty() {
		return nil, ErrNoValidTracks
	}

	session := &Session{Target: target, Crossfade: crossfade}
	mix := &audio.Mix{}

	a.logger.Printf("%s", strings.Repeat("=", 60))
	a.logger.Printf("Creating random mix from %d available tracks", p.Len())
	a.logger.Printf("Target length: %.2f minutes (%.1f seconds)", target.Minutes(), target.Seconds())
	a.logger.Printf("Crossfade duration: %.1f seconds", crossfade.Seconds())
	a.logger.Printf("%s", strings.Repeat("=", 60))

	for session.Current < target {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := a.evict(p, session); err != nil {
			return nil, err
		}

		track, err := p.Peek(session.Cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoValidTracks, err)
		}

		seg, err := a.decoder.Decode(ctx, track.Path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			a.logger.Printf("Error processing '%s': %v", track.DisplayName, err)
			a.logger.Printf("Skipping this track and continuing...")
			if _, err := p.Remove(session.Cursor); err != nil {
				return nil, err
			}
			session.Failed = append(session.Failed, track)
			if p.IsEmpty() {
				return nil, ErrNoValidTracks
			}
			continue
		}

		trimmed := false
		if remaining := target - session.Current; seg.Duration() > remaining {
			seg = seg.Truncate(remaining)
			trimmed = true
		}

		join, err := mix.Append(seg, crossfade)
		if err != nil {
			return nil, fmt.Errorf("append %s: %w", track.DisplayName, err)
		}

		session.Current += seg.Duration()
		session.Cursor++
		session.Used = append(session.Used, track)

		a.logger.Printf("Track %d: %s", len(session.Used), track.DisplayName)
		if trimmed {
			a.logger.Printf("  Duration: %.2fs (trimmed)", seg.Duration().Seconds())
		} else {
			a.logger.Printf("  Duration: %.2fs", seg.Duration().Seconds())
		}
		if join.Clamped {
			a.logger.Printf("  Crossfade shortened to %.2fs", join.Applied.Seconds())
		}
		a.logger.Printf("  Progress: %.2fs / %.1fs (%.1f%%)",
			session.Current.Seconds(), target.Seconds(), session.Progress()*100)
	}

	a.logger.Printf("%s", strings.Repeat("=", 60))
	a.logger.Printf("Mix complete! Total tracks used: %d", len(session.Used))
	a.logger.Printf("Target duration: %.2f minutes (%.2f seconds)", session.Current.Minutes(), session.Current.Seconds())
	a.logger.Printf("Actual duration (with crossfades): %.2f minutes (%.2f seconds)", mix.Duration().Minutes(), mix.Duration().Seconds())
	if len(session.Failed) > 0 {
		a.logger.Printf("Skipped %d unreadable tracks", len(session.Failed))
	}

	return &Result{Mix: mix, Session: session}, nil
}

// evict drops tracks whose files were removed from the source tree. Tracks
// already in the mix stay so the cursor keeps addressing the next track.
func (a *Assembler) evict(p *pool.Pool, session *Session) error {
	if a.evictor == nil {
		return nil
	}

	for _, path := range a.evictor.Drain() {
		idx, ok := p.IndexOfPath(path)
		if !ok || idx < session.Cursor {
			continue
		}
		track, err := p.Remove(idx)
		if err != nil {
			return err
		}
		session.Failed = append(session.Failed, track)
		a.logger.Printf("Source file removed, dropping '%s' from the pool", track.DisplayName)
	}

	if p.IsEmpty() {
		return ErrNoValidTracks
	}
	return nil
}
