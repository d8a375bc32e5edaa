package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Encoder defaults.
const (
	DefaultFPS          = 26
	DefaultVideoCodec   = "libx264"
	DefaultAudioCodec   = "aac"
	DefaultAudioBitrate = "119k"
)

// RenderJob holds encoder settings and the target length of a render.
type RenderJob struct {
	FPS          int
	VideoCodec   string
	AudioCodec   string
	AudioBitrate string
	// Threads defaults to the number of CPUs.
	Threads int
	// Length is the target duration; 0 < Length <= composite duration.
	Length           float64
	IntermediatePath string
	OutputPath       string
}

func (j *RenderJob) applyDefaults() {
	if j.FPS <= 0 {
		j.FPS = DefaultFPS
	}
	if j.VideoCodec == "" {
		j.VideoCodec = DefaultVideoCodec
	}
	if j.AudioCodec == "" {
		j.AudioCodec = DefaultAudioCodec
	}
	if j.AudioBitrate == "" {
		j.AudioBitrate = DefaultAudioBitrate
	}
	if j.Threads <= 0 {
		j.Threads = runtime.NumCPU()
	}
}

// Deliverable is a rendered file ready for upload.
type Deliverable struct {
	Path     string
	Duration float64
}

// Renderer encodes composites with ffmpeg.
type Renderer struct {
	FFmpegPath string
	Runner     Runner
	logger     *slog.Logger
}

// NewRenderer creates a Renderer using the ffmpeg binary at path.
func NewRenderer(path string, logger *slog.Logger) *Renderer {
	if path == "" {
		path = defaultFFmpegPath
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Renderer{
		FFmpegPath: path,
		Runner:     ExecRunner{},
		logger:     logger.With("component", "renderer"),
	}
}

// Render encodes comp to the intermediate path and trims [0, Length) into
// the output path.
func (r *Renderer) Render(ctx context.Context, comp *Composite, job RenderJob) (*Deliverable, error) {
	if comp == nil {
		return nil, preconditionf("render", "nil composite")
	}
	if err := checkLength(job.Length, comp.Duration()); err != nil {
		return nil, err
	}
	job.applyDefaults()

	if err := r.Encode(ctx, comp, job); err != nil {
		return nil, err
	}
	if err := r.Trim(ctx, job.IntermediatePath, job.OutputPath, job.Length); err != nil {
		return nil, err
	}

	return &Deliverable{
		Path:     job.OutputPath,
		Duration: math.Min(job.Length, comp.Duration()),
	}, nil
}

func checkLength(length, total float64) error {
	if math.IsNaN(length) || length <= 0 {
		return preconditionf("render", "target length %v must be positive", length)
	}
	if length > total {
		return preconditionf("render", "target length %vs exceeds composite duration %vs", length, total)
	}
	return nil
}

// Encode writes the full composite to job.IntermediatePath in one blocking
// ffmpeg call.
func (r *Renderer) Encode(ctx context.Context, comp *Composite, job RenderJob) error {
	job.applyDefaults()
	graph, err := comp.FilterGraph()
	if err != nil {
		return &EncodingError{Stage: "encode", Path: job.IntermediatePath, Err: err}
	}
	if err := ensureDir(job.IntermediatePath); err != nil {
		return &EncodingError{Stage: "encode", Path: job.IntermediatePath, Err: err}
	}

	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	args = append(args, comp.InputArgs()...)
	args = append(args,
		"-filter_complex", graph,
		"-map", "[vout]",
		"-map", "[aout]",
		"-r", fmt.Sprint(job.FPS),
		"-c:v", job.VideoCodec,
		"-pix_fmt", "yuv420p",
		"-c:a", job.AudioCodec,
		"-b:a", job.AudioBitrate,
		"-threads", fmt.Sprint(job.Threads),
		"-t", formatSeconds(comp.Duration()),
		job.IntermediatePath,
	)

	r.logger.Info("encoding composite",
		"output", job.IntermediatePath,
		"slides", len(comp.Slides.Slides),
		"duration", comp.Duration(),
		"threads", job.Threads)
	start := time.Now()

	if _, err := r.Runner.Run(ctx, r.FFmpegPath, args...); err != nil {
		return &EncodingError{Stage: "encode", Path: job.IntermediatePath, Output: stderrOf(err), Err: err}
	}
	r.logger.Info("encoded composite", "output", job.IntermediatePath, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// Trim stream-copies [0, length) of src into dst.
func (r *Renderer) Trim(ctx context.Context, src, dst string, length float64) error {
	if err := ensureDir(dst); err != nil {
		return &EncodingError{Stage: "trim", Path: dst, Err: err}
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", "0",
		"-i", src,
		"-t", formatSeconds(length),
		"-map", "0",
		"-c", "copy",
		dst,
	}
	if _, err := r.Runner.Run(ctx, r.FFmpegPath, args...); err != nil {
		return &EncodingError{Stage: "trim", Path: dst, Output: stderrOf(err), Err: err}
	}
	r.logger.Debug("trimmed render", "output", dst, "length", length)
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}

func stderrOf(err error) string {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Stderr
	}
	return ""
}
