package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	defaultFFmpegPath  = "ffmpeg"
	defaultFFprobePath = "ffprobe"
)

// Runner executes an external media tool and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools as subprocesses.
type ExecRunner struct{}

// Run executes name with args. On failure the returned *CommandError carries
// the tool's stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s not installed or not in PATH: %w", name, err)
		}
		return stdout.Bytes(), &CommandError{Name: name, Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

// CommandError is a failed tool invocation.
type CommandError struct {
	Name   string
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Name, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Prober reads a media file's geometry and duration.
type Prober interface {
	Probe(ctx context.Context, path string) (Clip, error)
}

// FFprobe implements Prober with the ffprobe binary.
type FFprobe struct {
	// Path is the path to the ffprobe executable. Defaults to "ffprobe".
	Path   string
	Runner Runner
}

// NewFFprobe creates an ffprobe-backed Prober.
func NewFFprobe(path string) *FFprobe {
	if path == "" {
		path = defaultFFprobePath
	}
	return &FFprobe{Path: path, Runner: ExecRunner{}}
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe on path and returns its clip descriptor.
func (p *FFprobe) Probe(ctx context.Context, path string) (Clip, error) {
	out, err := p.Runner.Run(ctx, p.Path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)
	if err != nil {
		return Clip{}, fmt.Errorf("probe %s: %w", path, err)
	}
	return parseProbeOutput(path, out)
}

func parseProbeOutput(path string, data []byte) (Clip, error) {
	var po probeOutput
	if err := json.Unmarshal(data, &po); err != nil {
		return Clip{}, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}

	clip := Clip{Path: path}
	for _, s := range po.Streams {
		switch s.CodecType {
		case "video":
			if clip.Width == 0 {
				clip.Width, clip.Height = s.Width, s.Height
			}
		case "audio":
			clip.HasAudio = true
		}
		if clip.Duration == 0 && s.Duration != "" {
			clip.Duration, _ = strconv.ParseFloat(strings.TrimSpace(s.Duration), 64)
		}
	}

	if d := strings.TrimSpace(po.Format.Duration); d != "" {
		f, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return Clip{}, fmt.Errorf("parse duration %q for %s: %w", d, path, err)
		}
		clip.Duration = f
	}
	return clip, nil
}

// formatSeconds renders seconds for ffmpeg arguments and filter expressions.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
