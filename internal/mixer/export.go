package mixer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/faiface/beep"

	"album-mixer/internal/audio"
)

// Encoder persists a stream to a file.
type Encoder interface {
	Encode(ctx context.Context, s beep.Streamer, format beep.Format, path string, c audio.Container) error
}

// ExportError wraps any failure to write the final mix.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("failed to export final mix to %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// ExportResult describes a written mix.
type ExportResult struct {
	Path      string
	Container audio.Container
	Duration  time.Duration
	SizeBytes int64
}

// Exporter writes a finished mix to disk.
type Exporter struct {
	encoder Encoder
	logger  *log.Logger
}

func NewExporter(encoder Encoder, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.Default()
	}
	return &Exporter{encoder: encoder, logger: logger}
}

// Export encodes mix to outputPath in the format named by its extension. The
// mix is written to a temporary sibling first, so a failed export leaves no
// file at outputPath.
func (e *Exporter) Export(ctx context.Context, mix *audio.Mix, outputPath string) (*ExportResult, error) {
	container, err := audio.ContainerForPath(outputPath)
	if err != nil {
		return nil, &ExportError{Path: outputPath, Err: err}
	}

	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &ExportError{Path: outputPath, Err: fmt.Errorf("create output directory: %w", err)}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outputPath)+".*.tmp")
	if err != nil {
		return nil, &ExportError{Path: outputPath, Err: err}
	}
	tempPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return nil, &ExportError{Path: outputPath, Err: err}
	}

	e.logger.Printf("Exporting to: %s", outputPath)

	if err := e.encoder.Encode(ctx, mix.Streamer(), mix.Format(), tempPath, container); err != nil {
		os.Remove(tempPath)
		return nil, &ExportError{Path: outputPath, Err: err}
	}

	if err := os.Rename(tempPath, outputPath); err != nil {
		os.Remove(tempPath)
		return nil, &ExportError{Path: outputPath, Err: fmt.Errorf("rename temp file: %w", err)}
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, &ExportError{Path: outputPath, Err: err}
	}

	return &ExportResult{
		Path:      outputPath,
		Container: container,
		Duration:  mix.Duration(),
		SizeBytes: info.Size(),
	}, nil
}
