package library

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"album-mixer/internal/metadata"
	"album-mixer/internal/models"
)

// ErrDirectoryNotFound is matched by errors.Is for a missing source directory.
var ErrDirectoryNotFound = errors.New("directory not found")

// DirectoryNotFoundError reports a source directory that does not exist or is
// not a directory.
type DirectoryNotFoundError struct {
	Path string
	Err  error
}

func (e *DirectoryNotFoundError) Error() string {
	return fmt.Sprintf("directory not found: %s", e.Path)
}

func (e *DirectoryNotFoundError) Unwrap() error {
	return e.Err
}

func (e *DirectoryNotFoundError) Is(target error) bool {
	return target == ErrDirectoryNotFound
}

// Scanner discovers audio files below a root directory.
type Scanner struct {
	root    string
	allowed map[string]struct{}
	logger  *log.Logger
}

// NewScanner creates a Scanner accepting files with the given extensions
// (matched case-insensitively).
func NewScanner(root string, allowed []string, logger *log.Logger) *Scanner {
	if logger == nil {
		logger = log.Default()
	}

	s := &Scanner{
		root:    root,
		allowed: make(map[string]struct{}, len(allowed)),
		logger:  logger,
	}
	for _, ext := range allowed {
		s.allowed[strings.ToLower(ext)] = struct{}{}
	}
	return s
}

// Root returns the directory being scanned.
func (s *Scanner) Root() string {
	return s.root
}

// Scan walks the root recursively and returns every matching track, ordered
// by relative path. Unreadable entries are logged and skipped.
func (s *Scanner) Scan() ([]models.Track, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &DirectoryNotFoundError{Path: s.root, Err: err}
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, &DirectoryNotFoundError{Path: s.root}
	}

	var tracks []models.Track

	err = filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			s.logger.Printf("walk error for %s: %v", path, err)
			return nil
		}

		if d.IsDir() {
			return nil
		}

		if !s.IsAllowed(path) {
			return nil
		}

		track, err := metadata.BuildTrack(path, s.root)
		if err != nil {
			s.logger.Printf("metadata error for %s: %v", path, err)
			return nil
		}

		tracks = append(tracks, track)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(tracks, func(i, j int) bool {
		return tracks[i].ID < tracks[j].ID
	})

	return tracks, nil
}

// IsAllowed reports whether path carries one of the accepted extensions.
func (s *Scanner) IsAllowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := s.allowed[ext]
	return ok
}
