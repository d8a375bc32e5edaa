package video

import "math"

// MaxTransition is the upper bound on a card's fade length in seconds.
const MaxTransition = 2.0

// Style controls how cards are drawn.
type Style struct {
	// Opacity in [0,1]; nil means fully opaque.
	Opacity *float64
	// Transition is the requested fade length in seconds.
	Transition float64
	// Width the cards are scaled to.
	Width  int
	Anchor Anchor
}

// Slide is one timed card on the visual track.
type Slide struct {
	Index    int
	Image    string
	Start    float64
	Duration float64
	Opacity  float64
	// Fade is the effective fade-in and fade-out length, at most Duration/2.
	Fade   float64
	Width  int
	Anchor Anchor
}

// End is the slide's exclusive end time on the track.
func (s Slide) End() float64 { return s.Start + s.Duration }

// Visible is the time the card is fully shown, between its two fades.
func (s Slide) Visible() float64 { return s.Duration - 2*s.Fade }

// SlideTrack is the concatenation of slides.
type SlideTrack struct {
	Slides   []Slide
	Duration float64
	Anchor   Anchor
}

// SlideSequencer pins each card to its narration segment.
type SlideSequencer struct{}

// NewSlideSequencer creates a SlideSequencer.
func NewSlideSequencer() *SlideSequencer { return &SlideSequencer{} }

// Sequence creates one slide per image; slide i takes durations[i].
func (s *SlideSequencer) Sequence(images []string, durations []float64, style Style) (*SlideTrack, error) {
	const op = "sequence slides"
	if len(images) == 0 {
		return nil, preconditionf(op, "no images")
	}
	if len(images) != len(durations) {
		return nil, preconditionf(op, "%d images for %d narration segments", len(images), len(durations))
	}
	if style.Width <= 0 {
		return nil, preconditionf(op, "slide width %d", style.Width)
	}

	opacity := EffectiveOpacity(style.Opacity)
	anchor := style.Anchor
	if anchor == (Anchor{}) {
		anchor = CenterAnchor
	}

	track := &SlideTrack{Slides: make([]Slide, len(images)), Anchor: anchor}
	for i, img := range images {
		d := durations[i]
		if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, preconditionf(op, "slide %d has duration %v", i, d)
		}
		track.Slides[i] = Slide{
			Index:    i,
			Image:    img,
			Start:    track.Duration,
			Duration: d,
			Opacity:  opacity,
			Fade:     EffectiveTransition(style.Transition, d),
			Width:    style.Width,
			Anchor:   anchor,
		}
		track.Duration += d
	}
	return track, nil
}

// EffectiveOpacity defaults nil to 1 and clamps to [0,1].
func EffectiveOpacity(o *float64) float64 {
	if o == nil || math.IsNaN(*o) {
		return 1
	}
	return clamp(*o, 0, 1)
}

// EffectiveTransition clamps t to [0, MaxTransition] and then to half of the
// slide duration d, so the visible time d-2*fade is never negative.
func EffectiveTransition(t, d float64) float64 {
	if math.IsNaN(t) {
		return 0
	}
	return math.Min(clamp(t, 0, MaxTransition), d/2)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
