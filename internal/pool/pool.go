package pool

import (
	"errors"
	"math/rand/v2"

	"album-mixer/internal/models"
)

var (
	ErrEmptyPool      = errors.New("no tracks to build a pool from")
	ErrIndexExhausted = errors.New("pool cursor past the last track")
)

// Pool holds the candidate tracks of one run in a fixed, shuffled order.
// Tracks live in an arena; the live order is a list of arena indexes so that
// removal never depends on track identity.
type Pool struct {
	arena []models.Track
	order []int
}

// New shuffles tracks once into a new Pool. Tracks sharing an ID are kept
// only once. A nil rng uses the global source.
func New(tracks []models.Track, rng *rand.Rand) (*Pool, error) {
	if len(tracks) == 0 {
		return nil, ErrEmptyPool
	}

	seen := make(map[string]struct{}, len(tracks))
	arena := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		arena = append(arena, t)
	}

	order := make([]int, len(arena))
	for i := range order {
		order[i] = i
	}

	swap := func(i, j int) {
		order[i], order[j] = order[j], order[i]
	}
	if rng != nil {
		rng.Shuffle(len(order), swap)
	} else {
		rand.Shuffle(len(order), swap)
	}

	return &Pool{arena: arena, order: order}, nil
}

// Peek returns the track at the cursor position.
func (p *Pool) Peek(index int) (models.Track, error) {
	if index < 0 || index >= len(p.order) {
		return models.Track{}, ErrIndexExhausted
	}
	return p.arena[p.order[index]], nil
}

// Remove deletes the track at index, shifting later tracks forward.
func (p *Pool) Remove(index int) (models.Track, error) {
	if index < 0 || index >= len(p.order) {
		return models.Track{}, ErrIndexExhausted
	}
	track := p.arena[p.order[index]]
	p.order = append(p.order[:index], p.order[index+1:]...)
	return track, nil
}

// IndexOfPath returns the live position of the track stored at path.
func (p *Pool) IndexOfPath(path string) (int, bool) {
	for i, slot := range p.order {
		if p.arena[slot].Path == path {
			return i, true
		}
	}
	return -1, false
}

func (p *Pool) Len() int {
	return len(p.order)
}

func (p *Pool) IsEmpty() bool {
	return len(p.order) == 0
}

// Tracks returns the live tracks in pool order.
func (p *Pool) Tracks() []models.Track {
	result := make([]models.Track, len(p.order))
	for i, slot := range p.order {
		result[i] = p.arena[slot]
	}
	return result
}
