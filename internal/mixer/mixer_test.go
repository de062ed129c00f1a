package mixer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/faiface/beep"

	"album-mixer/internal/audio"
	"album-mixer/internal/models"
	"album-mixer/internal/pool"
)

var testFormat = beep.Format{SampleRate: 1000, NumChannels: 2, Precision: 2}

type fakeDecoder struct {
	durations map[string]time.Duration
	failures  map[string]error
	calls     map[string]int
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{
		durations: make(map[string]time.Duration),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeDecoder) Decode(ctx context.Context, path string) (audio.Segment, error) {
	f.calls[path]++
	if err := f.failures[path]; err != nil {
		return audio.Segment{}, &audio.DecodeError{Path: path, Err: err}
	}
	d, ok := f.durations[path]
	if !ok {
		return audio.Segment{}, fmt.Errorf("unknown path %s", path)
	}
	buf := beep.NewBuffer(testFormat)
	buf.Append(beep.Silence(audio.DurationToFrames(testFormat.SampleRate, d)))
	return audio.NewSegment(buf), nil
}

func (f *fakeDecoder) add(id string, d time.Duration) models.Track {
	path := "/music/" + id
	f.durations[path] = d
	return models.Track{ID: id, Path: path, Filename: id, DisplayName: id}
}

func (f *fakeDecoder) addBroken(id string) models.Track {
	path := "/music/" + id
	f.failures[path] = errors.New("corrupt frame")
	return models.Track{ID: id, Path: path, Filename: id, DisplayName: id}
}

type fakeEvictor struct {
	batches [][]string
}

func (f *fakeEvictor) Drain() []string {
	if len(f.batches) == 0 {
		return nil
	}
	next := f.batches[0]
	f.batches = f.batches[1:]
	return next
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newPool(t *testing.T, tracks ...models.Track) *pool.Pool {
	t.Helper()
	p, err := pool.New(tracks, rand.New(rand.NewPCG(11, 13)))
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	return p
}

func TestAssembleSingleLongTrackIsTruncated(t *testing.T) {
	dec := newFakeDecoder()
	p := newPool(t, dec.add("long.mp3", 10*time.Minute))

	result, err := NewAssembler(dec, nil, quietLogger()).Assemble(context.Background(), p, 5*time.Minute, 0)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(result.Session.Used) != 1 {
		t.Fatalf("expected 1 track used, got %d", len(result.Session.Used))
	}
	if result.Session.Current != 5*time.Minute {
		t.Fatalf("expected raw duration 5m, got %s", result.Session.Current)
	}
	if result.Mix.Duration() != 5*time.Minute {
		t.Fatalf("expected mix of exactly 5m, got %s", result.Mix.Duration())
	}
	if result.Mix.Count() != 1 {
		t.Fatalf("expected a single segment, got %d", result.Mix.Count())
	}
}

func TestAssembleSingleTrackIgnoresCrossfade(t *testing.T) {
	dec := newFakeDecoder()
	p := newPool(t, dec.add("a.mp3", 90*time.Second), dec.add("b.mp3", 90*time.Second))

	result, err := NewAssembler(dec, nil, quietLogger()).Assemble(context.Background(), p, time.Minute, 6*time.Second)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(result.Session.Used) != 1 {
		t.Fatalf("expected 1 track used, got %d", len(result.Session.Used))
	}
	if result.Mix.Duration() != time.Minute {
		t.Fatalf("expected 1m with no crossfade applied, got %s", result.Mix.Duration())
	}
}

func TestAssembleCrossfadeAccountingDivergence(t *testing.T) {
	dec := newFakeDecoder()
	p := newPool(t,
		dec.add("one.mp3", 4*time.Minute),
		dec.add("two.mp3", 4*time.Minute),
		dec.add("three.mp3", 4*time.Minute),
	)

	crossfade := 5500 * time.Millisecond
	result, err := NewAssembler(dec, nil, quietLogger()).Assemble(context.Background(), p, 10*time.Minute, crossfade)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(result.Session.Used) != 3 {
		t.Fatalf("expected 3 tracks used, got %d", len(result.Session.Used))
	}
	if result.Session.Current != 10*time.Minute {
		t.Fatalf("expected raw accounting to stop at 10m, got %s", result.Session.Current)
	}
	want := 10*time.Minute - 2*crossfade
	if result.Mix.Duration() != want {
		t.Fatalf("expected exported length %s, got %s", want, result.Mix.Duration())
	}
}

func TestAssembleEvictsFailingTrackOnce(t *testing.T) {
	dec := newFakeDecoder()
	broken := dec.addBroken("broken.mp3")
	p := newPool(t,
		dec.add("a.mp3", time.Minute),
		broken,
		dec.add("b.mp3", time.Minute),
		dec.add("c.mp3", time.Minute),
	)

	result, err := NewAssembler(dec, nil, quietLogger()).Assemble(context.Background(), p, 3*time.Minute, time.Second)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if dec.calls[broken.Path] != 1 {
		t.Fatalf("expected broken track decoded once, got %d", dec.calls[broken.Path])
	}
	if len(result.Session.Failed) != 1 || result.Session.Failed[0].ID != broken.ID {
		t.Fatalf("expected broken track recorded as failed, got %+v", result.Session.Failed)
	}
	for _, tr := range result.Session.Used {
		if tr.ID == broken.ID {
			t.Fatalf("broken track must not be used")
		}
	}
	for _, tr := range p.Tracks() {
		if tr.ID == broken.ID {
			t.Fatalf("broken track must be removed from the pool")
		}
	}
	if len(result.Session.Used) != 3 || result.Session.Current != 3*time.Minute {
		t.Fatalf("expected the three good tracks to fill 3m, got %d tracks / %s", len(result.Session.Used), result.Session.Current)
	}
}

func TestAssembleAllTracksFail(t *testing.T) {
	dec := newFakeDecoder()
	p := newPool(t, dec.addBroken("x.mp3"), dec.addBroken("y.mp3"))

	_, err := NewAssembler(dec, nil, quietLogger()).Assemble(context.Background(), p, time.Minute, 0)
	if !errors.Is(err, ErrNoValidTracks) {
		t.Fatalf("expected ErrNoValidTracks, got %v", err)
	}
	if !p.IsEmpty() {
		t.Fatalf("expected every failing track evicted")
	}
}

func TestAssemblePoolExhaustedBeforeTarget(t *testing.T) {
	dec := newFakeDecoder()
	p := newPool(t, dec.add("a.mp3", time.Minute), dec.add("b.mp3", time.Minute))

	_, err := NewAssembler(dec, nil, quietLogger()).Assemble(context.Background(), p, 10*time.Minute, 0)
	if !errors.Is(err, ErrNoValidTracks) {
		t.Fatalf("expected ErrNoValidTracks, got %v", err)
	}
	if !errors.Is(err, pool.ErrIndexExhausted) {
		t.Fatalf("expected wrapped ErrIndexExhausted, got %v", err)
	}
	for path, n := range dec.calls {
		if n != 1 {
			t.Fatalf("expected %s decoded once, got %d", path, n)
		}
	}
}

func TestAssembleRawDurationNeverExceedsTarget(t *testing.T) {
	dec := newFakeDecoder()
	rng := rand.New(rand.NewPCG(5, 8))
	var tracks []models.Track
	for i := 0; i < 40; i++ {
		d := time.Duration(1+rng.IntN(90_000)) * time.Millisecond
		tracks = append(tracks, dec.add(fmt.Sprintf("t%02d.mp3", i), d))
	}
	p := newPool(t, tracks...)

	target := 7*time.Minute + 123*time.Millisecond
	result, err := NewAssembler(dec, nil, quietLogger()).Assemble(context.Background(), p, target, 2*time.Second)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if result.Session.Current != target {
		t.Fatalf("expected raw duration exactly %s, got %s", target, result.Session.Current)
	}
	var sum time.Duration
	for i, tr := range result.Session.Used {
		d := dec.durations[tr.Path]
		if i == len(result.Session.Used)-1 {
			if remaining := target - sum; d > remaining {
				d = remaining
			}
		}
		sum += d
		if sum > target {
			t.Fatalf("raw duration exceeded target after track %d", i)
		}
	}
	if sum != target {
		t.Fatalf("expected used tracks to sum to %s, got %s", target, sum)
	}
	if len(result.Session.Used) > 40 {
		t.Fatalf("used more tracks than the pool holds")
	}
}

func TestAssembleRejectsInvalidArguments(t *testing.T) {
	dec := newFakeDecoder()
	p := newPool(t, dec.add("a.mp3", time.Minute))
	a := NewAssembler(dec, nil, quietLogger())

	if _, err := a.Assemble(context.Background(), p, 0, 0); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if _, err := a.Assemble(context.Background(), p, time.Minute, -time.Second); !errors.Is(err, ErrInvalidCrossfade) {
		t.Fatalf("expected ErrInvalidCrossfade, got %v", err)
	}
}

func TestAssembleStopsOnCancelledContext(t *testing.T) {
	dec := newFakeDecoder()
	p := newPool(t, dec.add("a.mp3", time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAssembler(dec, nil, quietLogger()).Assemble(ctx, p, time.Minute, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(dec.calls) != 0 {
		t.Fatalf("expected no decode after cancellation")
	}
}

func TestAssembleDropsTracksRemovedFromDisk(t *testing.T) {
	dec := newFakeDecoder()
	tracks := []models.Track{
		dec.add("a.mp3", time.Minute),
		dec.add("b.mp3", time.Minute),
		dec.add("c.mp3", time.Minute),
	}
	p := newPool(t, tracks...)
	order := p.Tracks()

	// The second pool entry disappears from disk before the run starts.
	evictor := &fakeEvictor{batches: [][]string{{order[1].Path, "/music/unrelated.mp3"}}}

	result, err := NewAssembler(dec, evictor, quietLogger()).Assemble(context.Background(), p, 2*time.Minute, 0)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if dec.calls[order[1].Path] != 0 {
		t.Fatalf("expected removed track never decoded")
	}
	if len(result.Session.Used) != 2 {
		t.Fatalf("expected 2 tracks used, got %d", len(result.Session.Used))
	}
	if result.Session.Used[0].ID != order[0].ID || result.Session.Used[1].ID != order[2].ID {
		t.Fatalf("expected pool order preserved around the eviction, got %+v", result.Session.Used)
	}
}

func TestAssembleKeepsAlreadyUsedTrackOnRemoval(t *testing.T) {
	dec := newFakeDecoder()
	p := newPool(t,
		dec.add("a.mp3", time.Minute),
		dec.add("b.mp3", time.Minute),
		dec.add("c.mp3", time.Minute),
	)
	order := p.Tracks()

	// Nothing on the first pass; then the already mixed first track vanishes.
	evictor := &fakeEvictor{batches: [][]string{nil, {order[0].Path}}}

	result, err := NewAssembler(dec, evictor, quietLogger()).Assemble(context.Background(), p, 3*time.Minute, 0)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(result.Session.Used) != 3 {
		t.Fatalf("expected all three tracks used, got %d", len(result.Session.Used))
	}
	if len(result.Session.Failed) != 0 {
		t.Fatalf("expected no failed tracks, got %+v", result.Session.Failed)
	}
}

func TestSessionProgress(t *testing.T) {
	s := &Session{Target: 4 * time.Minute, Current: time.Minute}
	if s.Progress() != 0.25 {
		t.Fatalf("expected 0.25, got %f", s.Progress())
	}
	if (&Session{}).Progress() != 0 {
		t.Fatalf("expected zero progress without a target")
	}
}
