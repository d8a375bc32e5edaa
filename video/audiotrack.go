package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"
)

// NarrationSegment is one narration clip bound to exactly one slide.
// Index 0 is the title; 1..N are the comments.
type NarrationSegment struct {
	Index    int
	Path     string
	Duration float64
}

// AudioTrack is the gapless concatenation of narration segments.
type AudioTrack struct {
	Segments []NarrationSegment
	// Duration is the in-order sum of segment durations.
	Duration float64
}

// Durations returns each segment's duration in track order.
func (t *AudioTrack) Durations() []float64 {
	out := make([]float64, len(t.Segments))
	for i, s := range t.Segments {
		out[i] = s.Duration
	}
	return out
}

// Offset returns the start time of segment i within the track.
func (t *AudioTrack) Offset(i int) float64 {
	var off float64
	for _, s := range t.Segments[:i] {
		off += s.Duration
	}
	return off
}

// AudioTrackBuilder loads narration segments and concatenates them.
type AudioTrackBuilder struct {
	prober      Prober
	concurrency int
	logger      *slog.Logger
}

// NewAudioTrackBuilder creates a builder probing at most concurrency files at once.
func NewAudioTrackBuilder(prober Prober, concurrency int, logger *slog.Logger) *AudioTrackBuilder {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &AudioTrackBuilder{
		prober:      prober,
		concurrency: concurrency,
		logger:      logger.With("component", "audio"),
	}
}

// Build loads the title segment followed by the comment segments in order.
// Every file is checked before any is probed.
func (b *AudioTrackBuilder) Build(ctx context.Context, title string, comments []string) (*AudioTrack, error) {
	paths := append([]string{title}, comments...)
	if err := CheckSources("audio", paths...); err != nil {
		return nil, err
	}

	segments := make([]NarrationSegment, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, path := range paths {
		g.Go(func() error {
			clip, err := b.prober.Probe(gctx, path)
			if err != nil {
				return fmt.Errorf("load narration segment %d: %w", i, err)
			}
			if clip.Duration <= 0 {
				return fmt.Errorf("load narration segment %d: %s has non-positive duration %v", i, path, clip.Duration)
			}
			segments[i] = NarrationSegment{Index: i, Path: path, Duration: clip.Duration}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	track := &AudioTrack{Segments: segments}
	for _, s := range segments {
		track.Duration += s.Duration
	}

	b.logger.Debug("narration loaded", "segments", len(segments), "duration", track.Duration)
	return track, nil
}

// CheckSources returns a *MissingSourceError for the first path that does not exist.
func CheckSources(kind string, paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return &MissingSourceError{Kind: kind, Path: p, Err: err}
			}
			return fmt.Errorf("stat %s source %s: %w", kind, p, err)
		}
	}
	return nil
}
