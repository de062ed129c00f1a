package metadata

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"

	"album-mixer/internal/models"
)

// BuildTrack constructs the track description for the given audio file path.
// Tag and duration failures are not errors: the file stem is used as the
// display name and the probed duration is left unset.
func BuildTrack(path string, root string) (models.Track, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.Track{}, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	relative, err := filepath.Rel(root, path)
	if err != nil {
		relative = filepath.Base(path)
	}
	relative = filepath.ToSlash(relative)

	title, artist, album := readTags(path)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	display := title
	if artist != nil {
		display = *artist + " - " + title
	}

	var durationPtr *time.Duration
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		dur, err := computeMP3Duration(path)
		if err == nil && dur > 0 {
			durationPtr = &dur
		}
	}

	return models.Track{
		ID:             relative,
		Path:           abs,
		Filename:       filepath.Base(path),
		DisplayName:    display,
		Artist:         artist,
		Album:          album,
		ProbedDuration: durationPtr,
		FilesizeBytes:  info.Size(),
	}, nil
}

// TotalProbedDuration sums the probed durations of the tracks. The second
// return value counts tracks whose duration is unknown.
func TotalProbedDuration(tracks []models.Track) (time.Duration, int) {
	var total time.Duration
	var unknown int
	for _, t := range tracks {
		if t.ProbedDuration == nil {
			unknown++
			continue
		}
		total += *t.ProbedDuration
	}
	return total, unknown
}

func readTags(path string) (string, *string, *string) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, nil
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", nil, nil
	}

	title := strings.TrimSpace(meta.Title())
	artist := optionalString(meta.Artist())
	album := optionalString(meta.Album())
	return title, artist, album
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func computeMP3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := mp3.NewDecoder(f)
	var frame mp3.Frame
	var skipped int
	var total time.Duration

	for {
		err := decoder.Decode(&frame, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration()
	}

	return total, nil
}
