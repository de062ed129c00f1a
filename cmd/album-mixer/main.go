package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"album-mixer/internal/audio"
	"album-mixer/internal/config"
	"album-mixer/internal/library"
	"album-mixer/internal/metadata"
	"album-mixer/internal/mixer"
	"album-mixer/internal/pool"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "\n✗ Error: %v\n\n", err)
		return 1
	}

	logger := log.New(stdout, "album-mixer ", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := createMix(ctx, cfg, logger); err != nil {
		report(stderr, cfg, err)
		return 1
	}
	return 0
}

func createMix(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	logger.Printf("Searching for audio files in: %s", cfg.TracksDir)

	scanner := library.NewScanner(cfg.TracksDir, cfg.Extensions, logger)
	tracks, err := scanner.Scan()
	if err != nil {
		return err
	}

	total, unknown := metadata.TotalProbedDuration(tracks)
	if unknown == 0 && len(tracks) > 0 && total < cfg.Target() {
		logger.Printf("warning: the %d tracks add up to about %.1f minutes, less than the requested %.1f",
			len(tracks), total.Minutes(), cfg.Target().Minutes())
	}

	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	}
	p, err := pool.New(tracks, rng)
	if err != nil {
		return err
	}

	var evictor mixer.Evictor
	if cfg.Watch {
		watcher, err := library.NewWatcher(scanner, logger)
		if err != nil {
			logger.Printf("source watcher unavailable: %v", err)
		} else {
			defer func() {
				if err := watcher.Close(); err != nil {
					logger.Printf("error closing source watcher: %v", err)
				}
			}()
			evictor = watcher
		}
	}

	decoder := audio.NewDecoder(cfg.SampleRate)
	assembler := mixer.NewAssembler(decoder, evictor, logger)
	result, err := assembler.Assemble(ctx, p, cfg.Target(), cfg.Crossfade())
	if err != nil {
		return err
	}

	exporter := mixer.NewExporter(audio.NewEncoder(cfg.FFmpegPath, cfg.MP3Bitrate), logger)
	exported, err := exporter.Export(ctx, result.Mix, cfg.Output)
	if err != nil {
		return err
	}

	logger.Printf("✓ Successfully created: %s (%.2f minutes, %d bytes)",
		exported.Path, exported.Duration.Minutes(), exported.SizeBytes)
	return nil
}

func report(stderr io.Writer, cfg config.Config, err error) {
	var exportErr *mixer.ExportError

	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(stderr, "\n\n✗ Process interrupted by user\n\n")
	case errors.Is(err, pool.ErrEmptyPool):
		fmt.Fprintf(stderr, "\n✗ No audio files found in '%s'\n", cfg.TracksDir)
		fmt.Fprintf(stderr, "Please check the directory path and try again.\n\n")
	case errors.Is(err, library.ErrDirectoryNotFound),
		errors.Is(err, mixer.ErrNoValidTracks),
		errors.As(err, &exportErr):
		fmt.Fprintf(stderr, "\n✗ Error: %v\n\n", err)
	default:
		fmt.Fprintf(stderr, "\n✗ Unexpected error: %v\n\n", err)
	}
}
