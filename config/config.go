// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for rendering and uploading shorts.
// It is loaded once at job start and treated as read-only afterwards.
type Config struct {
	// Subreddit is the subreddit the thread came from; results are grouped by it.
	Subreddit string `json:"subreddit" yaml:"subreddit"`
	// PostLang, when set, asks the name normalizer to translate titles into this language.
	PostLang string `json:"post_lang" yaml:"post_lang"`

	// AssetsDir holds per-job temporary assets (<assets>/<id>/mp3, png, background.mp4).
	AssetsDir string `json:"assets_dir" yaml:"assets_dir"`
	// ResultsDir receives final deliverables under <results>/<subreddit>/.
	ResultsDir string `json:"results_dir" yaml:"results_dir"`
	// CleanupTemp removes the job's asset directory after a successful render.
	CleanupTemp bool `json:"cleanup_temp" yaml:"cleanup_temp"`

	// FFmpegPath is the path to the ffmpeg executable (default: "ffmpeg")
	FFmpegPath string `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	// FFprobePath is the path to the ffprobe executable (default: "ffprobe")
	FFprobePath string `json:"ffprobe_path" yaml:"ffprobe_path"`
	// ProbeConcurrency bounds parallel ffprobe calls when loading narration.
	ProbeConcurrency int `json:"probe_concurrency" yaml:"probe_concurrency"`

	// Width and Height are the output resolution (portrait).
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
	// SlideMargin is subtracted from Width to size the title/comment cards.
	SlideMargin int `json:"slide_margin" yaml:"slide_margin"`
	// Opacity of the cards, 0..1. Nil means fully opaque.
	Opacity *float64 `json:"opacity" yaml:"opacity"`
	// Transition is the card fade length in seconds, clamped to 0..2.
	Transition float64 `json:"transition" yaml:"transition"`

	// FPS is the encoder frame rate.
	FPS int `json:"fps" yaml:"fps"`
	// VideoCodec is passed to ffmpeg -c:v.
	VideoCodec string `json:"video_codec" yaml:"video_codec"`
	// AudioCodec is passed to ffmpeg -c:a.
	AudioCodec string `json:"audio_codec" yaml:"audio_codec"`
	// AudioBitrate is passed to ffmpeg -b:a.
	AudioBitrate string `json:"audio_bitrate" yaml:"audio_bitrate"`
	// Threads for the encoder; 0 uses every available core.
	Threads int `json:"threads" yaml:"threads"`

	// Watermark enables the background credit overlay.
	Watermark bool `json:"watermark" yaml:"watermark"`
	// WatermarkOpacity is the alpha of the credit text.
	WatermarkOpacity float64 `json:"watermark_opacity" yaml:"watermark_opacity"`

	// UploadEnabled uploads the deliverable after rendering.
	UploadEnabled bool `json:"upload_enabled" yaml:"upload_enabled"`
	// ClientSecretsFile is the OAuth client secrets JSON downloaded from the API console.
	ClientSecretsFile string `json:"client_secrets_file" yaml:"client_secrets_file"`
	// TokenFile persists the OAuth token between runs.
	TokenFile string `json:"token_file" yaml:"token_file"`
	// Visibility is public, private or unlisted.
	Visibility string `json:"visibility" yaml:"visibility"`
	// TitleSuffix is appended to the normalized thread title.
	TitleSuffix string `json:"title_suffix" yaml:"title_suffix"`
	// Description of uploaded videos.
	Description string `json:"description" yaml:"description"`
	// Tags of uploaded videos.
	Tags []string `json:"tags" yaml:"tags"`
	// CategoryID is the YouTube category; empty leaves it unset.
	CategoryID string `json:"category_id" yaml:"category_id"`
	// ChunkSize in bytes; -1 selects the client library default.
	ChunkSize int64 `json:"chunk_size" yaml:"chunk_size"`
	// ChunksPerSecond paces chunk requests; 0 disables pacing.
	ChunksPerSecond float64 `json:"chunks_per_second" yaml:"chunks_per_second"`
	// MaxRetries is the maximum number of retries for a failed chunk.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// MaxBackoffSeconds caps a single backoff sleep; 0 means uncapped.
	MaxBackoffSeconds float64 `json:"max_backoff_seconds" yaml:"max_backoff_seconds"`
	// DeleteAfterUpload removes the deliverable once the upload succeeds.
	DeleteAfterUpload bool `json:"delete_after_upload" yaml:"delete_after_upload"`

	// StoreBackend is "json" or "sqlite".
	StoreBackend string `json:"store_backend" yaml:"store_backend"`
	// StorePath is the results ledger location.
	StorePath string `json:"store_path" yaml:"store_path"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		AssetsDir:         filepath.Join("assets", "temp"),
		ResultsDir:        "results",
		CleanupTemp:       true,
		FFmpegPath:        "ffmpeg",
		FFprobePath:       "ffprobe",
		ProbeConcurrency:  4,
		Width:             1080,
		Height:            1920,
		SlideMargin:       100,
		Transition:        0,
		FPS:               26,
		VideoCodec:        "libx264",
		AudioCodec:        "aac",
		AudioBitrate:      "119k",
		Threads:           0,
		Watermark:         true,
		WatermarkOpacity:  0.5,
		UploadEnabled:     false,
		ClientSecretsFile: "client_secrets.json",
		TokenFile:         "shortmaker-oauth2.json",
		Visibility:        "public",
		TitleSuffix:       "|Best of memes!#shorts",
		Description:       "#shorts \n Giving you the hottest memes of the day with funny comments!",
		Tags:              []string{"meme", "reddit"},
		ChunkSize:         -1,
		MaxRetries:        10,
		StoreBackend:      "json",
		StorePath:         filepath.Join("data", "videos.json"),
		LogLevel:          "info",
	}
}

// Load loads configuration from environment variables, config file, and applies defaults.
// Priority: env vars > config file > defaults
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations; a non-empty path must exist.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else if err := cfg.loadFromFile(); err != nil {
		// Config file is optional
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// searchPaths lists candidate config files in priority order.
func searchPaths() []string {
	names := []string{"shortmaker.json", "shortmaker.yaml", "shortmaker.yml"}
	home := filepath.Join(os.Getenv("HOME"), ".config", "shortmaker")

	paths := make([]string, 0, len(names)*2)
	paths = append(paths, names...)
	for _, n := range names {
		paths = append(paths, filepath.Join(home, n))
	}
	return paths
}

// loadFromFile loads the first config file found in the current or home directory.
func (c *Config) loadFromFile() error {
	for _, path := range searchPaths() {
		err := c.readFile(path)
		if err == nil {
			return nil
		}
		if os.IsNotExist(err) {
			continue
		}
		return err
	}
	return os.ErrNotExist
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}

// loadFromEnv overrides config with SHORTMAKER_* environment variables.
func (c *Config) loadFromEnv() error {
	str := map[string]*string{
		"SHORTMAKER_SUBREDDIT":      &c.Subreddit,
		"SHORTMAKER_POST_LANG":      &c.PostLang,
		"SHORTMAKER_ASSETS_DIR":     &c.AssetsDir,
		"SHORTMAKER_RESULTS_DIR":    &c.ResultsDir,
		"SHORTMAKER_FFMPEG_PATH":    &c.FFmpegPath,
		"SHORTMAKER_FFPROBE_PATH":   &c.FFprobePath,
		"SHORTMAKER_CLIENT_SECRETS": &c.ClientSecretsFile,
		"SHORTMAKER_TOKEN_FILE":     &c.TokenFile,
		"SHORTMAKER_VISIBILITY":     &c.Visibility,
		"SHORTMAKER_STORE_BACKEND":  &c.StoreBackend,
		"SHORTMAKER_STORE_PATH":     &c.StorePath,
		"SHORTMAKER_LOG_LEVEL":      &c.LogLevel,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("SHORTMAKER_TAGS"); v != "" {
		c.Tags = splitList(v)
	}
	if v := os.Getenv("SHORTMAKER_UPLOAD"); v != "" {
		c.UploadEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SHORTMAKER_DELETE_AFTER_UPLOAD"); v != "" {
		c.DeleteAfterUpload = v == "true" || v == "1"
	}
	if v := os.Getenv("SHORTMAKER_OPACITY"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SHORTMAKER_OPACITY: %w", err)
		}
		c.Opacity = &f
	}
	if v := os.Getenv("SHORTMAKER_TRANSITION"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SHORTMAKER_TRANSITION: %w", err)
		}
		c.Transition = f
	}
	if v := os.Getenv("SHORTMAKER_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Threads = n
		}
	}
	if v := os.Getenv("SHORTMAKER_CHUNK_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ChunkSize = n
		}
	}
	if v := os.Getenv("SHORTMAKER_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("width and height must be positive")
	}
	if c.SlideMargin < 0 || c.SlideMargin >= c.Width {
		return fmt.Errorf("slide_margin must be in [0, width)")
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive")
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must be non-negative")
	}
	if c.ProbeConcurrency <= 0 {
		return fmt.Errorf("probe_concurrency must be positive")
	}
	if c.WatermarkOpacity < 0 || c.WatermarkOpacity > 1 {
		return fmt.Errorf("watermark_opacity must be in [0, 1]")
	}
	switch c.Visibility {
	case "public", "private", "unlisted":
	default:
		return fmt.Errorf("visibility must be public, private or unlisted, got %q", c.Visibility)
	}
	if c.ChunkSize == 0 || c.ChunkSize < -1 {
		return fmt.Errorf("chunk_size must be -1 or positive")
	}
	if c.ChunksPerSecond < 0 {
		return fmt.Errorf("chunks_per_second must be non-negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.MaxBackoffSeconds < 0 {
		return fmt.Errorf("max_backoff_seconds must be non-negative")
	}
	switch c.StoreBackend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("store_backend must be json or sqlite, got %q", c.StoreBackend)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlideWidth is the rendered width of title and comment cards.
func (c *Config) SlideWidth() int {
	return c.Width - c.SlideMargin
}

// SlogLevel maps LogLevel onto a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}
