package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// supportedExtensions are the source formats the decoder can read.
var supportedExtensions = []string{
	".mp3",
	".wav",
	".flac",
	".ogg",
}

// CrossfadeChoices are the crossfade lengths (ms) one of which is picked when
// none is configured.
var CrossfadeChoices = []int{5000, 6000}

const (
	defaultOutput     = "random_mix.mp3"
	defaultTracksDir  = "tracks"
	defaultSampleRate = 44100
	defaultMP3Bitrate = "192k"
	defaultFFmpeg     = "ffmpeg"
)

// Config holds the settings of one mixing run.
type Config struct {
	LengthMinutes float64
	Output        string
	TracksDir     string
	CrossfadeMS   int
	Extensions    []string
	SampleRate    int
	MP3Bitrate    string
	FFmpegPath    string
	Seed          uint64
	Watch         bool
}

type fileConfig struct {
	LengthMinutes *float64 `yaml:"length_minutes"`
	Output        string   `yaml:"output"`
	Tracks        string   `yaml:"tracks"`
	CrossfadeMS   *int     `yaml:"crossfade_ms"`
	Extensions    []string `yaml:"extensions"`
	SampleRate    int      `yaml:"sample_rate"`
	MP3Bitrate    string   `yaml:"mp3_bitrate"`
	FFmpegPath    string   `yaml:"ffmpeg_path"`
	Seed          uint64   `yaml:"seed"`
	Watch         *bool    `yaml:"watch"`
}

// SupportedExtensions returns the list of decodable audio file extensions (lowercase).
func SupportedExtensions() []string {
	result := make([]string, len(supportedExtensions))
	copy(result, supportedExtensions)
	return result
}

// Defaults returns the configuration used when nothing overrides it. The
// crossfade is drawn once from CrossfadeChoices.
func Defaults() Config {
	return Config{
		Output:      defaultOutput,
		TracksDir:   defaultTracksDir,
		CrossfadeMS: CrossfadeChoices[rand.IntN(len(CrossfadeChoices))],
		Extensions:  []string{".mp3"},
		SampleRate:  defaultSampleRate,
		MP3Bitrate:  defaultMP3Bitrate,
		FFmpegPath:  defaultFFmpeg,
		Watch:       true,
	}
}

// Load resolves the configuration from defaults, an optional YAML file
// (-config or MIXER_CONFIG), MIXER_* environment variables and finally the
// command-line flags in args. Usage goes to output.
func Load(args []string, output io.Writer) (Config, error) {
	fs := flag.NewFlagSet("album-mixer", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		length     = fs.Float64("length", 0, "Target length of the final mix in minutes (required)")
		out        = fs.String("output", defaultOutput, "Output filename; the extension selects mp3, wav, flac or ogg")
		tracks     = fs.String("tracks", defaultTracksDir, "Directory containing the source tracks")
		crossfade  = fs.Int("crossfade", 0, "Crossfade duration in milliseconds (default: 5000 or 6000)")
		configPath = fs.String("config", "", "Optional YAML configuration file")
		seed       = fs.Uint64("seed", 0, "Shuffle seed for a reproducible track order (0 = random)")
		watch      = fs.Bool("watch", true, "Drop source files deleted while the mix is assembled")
	)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Create a random mix of audio files from an album.\n\nUsage of %s:\n", fs.Name())
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\nExamples:\n"+
			"  album-mixer -length 60                        # Create a 60-minute mix\n"+
			"  album-mixer -length 30 -output my_mix.mp3     # Custom output filename\n"+
			"  album-mixer -length 45 -tracks ./music        # Custom tracks directory\n")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := Defaults()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("MIXER_CONFIG"))
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if set["length"] {
		cfg.LengthMinutes = *length
	}
	if set["output"] {
		cfg.Output = *out
	}
	if set["tracks"] {
		cfg.TracksDir = *tracks
	}
	if set["crossfade"] {
		cfg.CrossfadeMS = *crossfade
	}
	if set["seed"] {
		cfg.Seed = *seed
	}
	if set["watch"] {
		cfg.Watch = *watch
	}

	cfg.Output = expandHome(strings.TrimSpace(cfg.Output))
	cfg.TracksDir = expandHome(strings.TrimSpace(cfg.TracksDir))
	cfg.Extensions = normalizeExtensions(cfg.Extensions)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if !(c.LengthMinutes > 0) {
		return errors.New("length must be a positive number")
	}
	if c.CrossfadeMS < 0 {
		return errors.New("crossfade must not be negative")
	}
	if c.Output == "" {
		return errors.New("output path must not be empty")
	}
	if c.TracksDir == "" {
		return errors.New("tracks directory must not be empty")
	}
	if c.SampleRate <= 0 {
		return errors.New("sample rate must be positive")
	}
	if len(c.Extensions) == 0 {
		return errors.New("at least one track extension is required")
	}
	for _, ext := range c.Extensions {
		if !isSupported(ext) {
			return fmt.Errorf("unsupported track extension %q", ext)
		}
	}
	return nil
}

// Target returns the requested mix length, truncated to whole milliseconds.
func (c Config) Target() time.Duration {
	return time.Duration(int64(c.LengthMinutes*60*1000)) * time.Millisecond
}

func (c Config) Crossfade() time.Duration {
	return time.Duration(c.CrossfadeMS) * time.Millisecond
}

func applyFile(cfg *Config, path string) error {
	resolved, err := filepath.Abs(expandHome(path))
	if err != nil {
		return err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	if fc.LengthMinutes != nil {
		cfg.LengthMinutes = *fc.LengthMinutes
	}
	if value := strings.TrimSpace(fc.Output); value != "" {
		cfg.Output = value
	}
	if value := strings.TrimSpace(fc.Tracks); value != "" {
		cfg.TracksDir = value
	}
	if fc.CrossfadeMS != nil {
		cfg.CrossfadeMS = *fc.CrossfadeMS
	}
	if len(fc.Extensions) > 0 {
		cfg.Extensions = fc.Extensions
	}
	if fc.SampleRate > 0 {
		cfg.SampleRate = fc.SampleRate
	}
	if value := strings.TrimSpace(fc.MP3Bitrate); value != "" {
		cfg.MP3Bitrate = value
	}
	if value := strings.TrimSpace(fc.FFmpegPath); value != "" {
		cfg.FFmpegPath = value
	}
	if fc.Seed != 0 {
		cfg.Seed = fc.Seed
	}
	if fc.Watch != nil {
		cfg.Watch = *fc.Watch
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if value := strings.TrimSpace(os.Getenv("MIXER_LENGTH")); value != "" {
		minutes, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("MIXER_LENGTH: %w", err)
		}
		cfg.LengthMinutes = minutes
	}
	if value := strings.TrimSpace(os.Getenv("MIXER_OUTPUT")); value != "" {
		cfg.Output = value
	}
	if value := strings.TrimSpace(os.Getenv("MIXER_TRACKS")); value != "" {
		cfg.TracksDir = value
	}
	if value := strings.TrimSpace(os.Getenv("MIXER_CROSSFADE_MS")); value != "" {
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("MIXER_CROSSFADE_MS: %w", err)
		}
		cfg.CrossfadeMS = ms
	}
	if value := strings.TrimSpace(os.Getenv("MIXER_EXTENSIONS")); value != "" {
		cfg.Extensions = strings.Split(value, ",")
	}
	if value := strings.TrimSpace(os.Getenv("MIXER_SAMPLE_RATE")); value != "" {
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("MIXER_SAMPLE_RATE: %w", err)
		}
		cfg.SampleRate = rate
	}
	if value := strings.TrimSpace(os.Getenv("MIXER_MP3_BITRATE")); value != "" {
		cfg.MP3Bitrate = value
	}
	if value := strings.TrimSpace(os.Getenv("MIXER_FFMPEG")); value != "" {
		cfg.FFmpegPath = value
	}
	if value := strings.TrimSpace(os.Getenv("MIXER_SEED")); value != "" {
		seed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("MIXER_SEED: %w", err)
		}
		cfg.Seed = seed
	}
	if value := strings.TrimSpace(os.Getenv("MIXER_WATCH")); value != "" {
		watch, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("MIXER_WATCH: %w", err)
		}
		cfg.Watch = watch
	}
	return nil
}

func normalizeExtensions(exts []string) []string {
	seen := make(map[string]struct{}, len(exts))
	result := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, dup := seen[ext]; dup {
			continue
		}
		seen[ext] = struct{}{}
		result = append(result, ext)
	}
	return result
}

func isSupported(ext string) bool {
	for _, s := range supportedExtensions {
		if s == ext {
			return true
		}
	}
	return false
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}
