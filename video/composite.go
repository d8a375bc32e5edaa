package video

import (
	"fmt"
	"math"
	"strings"
)

const (
	defaultWatermarkOpacity  = 0.5
	defaultWatermarkFontSize = 48
)

// CropWindow is a horizontal crop of the scaled background in pixels.
type CropWindow struct {
	X1, Y1, X2, Y2 float64
}

// Width of the window.
func (w CropWindow) Width() float64 { return w.X2 - w.X1 }

// Watermark is a text layer drawn above every other layer for the whole
// composite.
type Watermark struct {
	Text     string
	Opacity  float64
	FontSize int
	FontFile string
}

// Composite is the layered description of a short, bottom to top:
// background, slides, watermark. Narration is the only audio.
type Composite struct {
	Width      int
	Height     int
	Background Clip
	Crop       CropWindow
	Slides     *SlideTrack
	Audio      *AudioTrack
	Watermark  *Watermark
}

// Duration is the length of the composite, equal to both the slide and
// narration durations.
func (c *Composite) Duration() float64 { return c.Slides.Duration }

// Compositor layers slides over a cropped background and binds narration.
type Compositor struct {
	Width            int
	Height           int
	WatermarkOpacity float64
	FontSize         int
	// FontFile is passed to drawtext when set.
	FontFile string
}

// NewCompositor creates a Compositor for a width x height frame.
func NewCompositor(width, height int) *Compositor {
	return &Compositor{
		Width:            width,
		Height:           height,
		WatermarkOpacity: defaultWatermarkOpacity,
		FontSize:         defaultWatermarkFontSize,
	}
}

// Compose validates the layers and builds the Composite. It performs no I/O.
func (c *Compositor) Compose(bg Clip, slides *SlideTrack, audio *AudioTrack, watermark string) (*Composite, error) {
	const op = "compose"
	if slides == nil || len(slides.Slides) == 0 {
		return nil, preconditionf(op, "no slides")
	}
	if audio == nil || len(audio.Segments) == 0 {
		return nil, preconditionf(op, "no narration")
	}
	if len(audio.Segments) != len(slides.Slides) {
		return nil, preconditionf(op, "%d narration segments for %d slides", len(audio.Segments), len(slides.Slides))
	}
	if audio.Duration != slides.Duration {
		return nil, preconditionf(op, "narration lasts %vs but slides last %vs", audio.Duration, slides.Duration)
	}
	if bg.Width <= 0 || bg.Height <= 0 {
		return nil, preconditionf(op, "background %s has no video geometry", bg.Path)
	}
	if bg.Duration < slides.Duration {
		return nil, preconditionf(op, "background %s lasts %vs, composite needs %vs", bg.Path, bg.Duration, slides.Duration)
	}

	scaled := WithoutAudio(ScaleToHeight(bg, c.Height))
	if scaled.Width < c.Width {
		return nil, preconditionf(op, "background %s is %dpx wide after scaling, need %d", bg.Path, scaled.Width, c.Width)
	}

	comp := &Composite{
		Width:      c.Width,
		Height:     c.Height,
		Background: scaled,
		Crop:       CenteredCrop(scaled, c.Width),
		Slides:     slides,
		Audio:      audio,
	}
	if strings.TrimSpace(watermark) != "" {
		comp.Watermark = &Watermark{
			Text:     watermark,
			Opacity:  clamp(c.WatermarkOpacity, 0, 1),
			FontSize: c.FontSize,
			FontFile: c.FontFile,
		}
	}
	return comp, nil
}

// CenteredCrop returns the full-height window of the given width centered
// on the scaled clip.
func CenteredCrop(scaled Clip, width int) CropWindow {
	x1 := float64(scaled.Width-width) / 2
	return CropWindow{X1: x1, Y1: 0, X2: x1 + float64(width), Y2: float64(scaled.Height)}
}

// InputArgs returns the ffmpeg input arguments in the order FilterGraph
// refers to them: background, one looped image per slide, one file per
// narration segment.
func (c *Composite) InputArgs() []string {
	args := []string{"-t", formatSeconds(c.Duration()), "-i", c.Background.Path}
	for _, s := range c.Slides.Slides {
		args = append(args, "-loop", "1", "-t", formatSeconds(s.Duration), "-i", s.Image)
	}
	for _, seg := range c.Audio.Segments {
		args = append(args, "-i", seg.Path)
	}
	return args
}

// FilterGraph returns the filter_complex expression producing [vout] and
// [aout].
func (c *Composite) FilterGraph() (string, error) {
	n := len(c.Slides.Slides)
	chains := make([]string, 0, 2*n+3)

	chains = append(chains, fmt.Sprintf("[0:v]scale=%d:%d,crop=%d:%d:%d:0,setsar=1[bg]",
		c.Background.Width, c.Background.Height,
		c.Width, c.Height, int(math.Floor(c.Crop.X1))))

	xe, err := c.Slides.Anchor.xExpr()
	if err != nil {
		return "", err
	}
	ye, err := c.Slides.Anchor.yExpr()
	if err != nil {
		return "", err
	}

	cur := "bg"
	for i, s := range c.Slides.Slides {
		in := 1 + i
		card := fmt.Sprintf("s%d", i)
		chains = append(chains, fmt.Sprintf("[%d:v]%s[%s]", in, slideFilters(s), card))

		out := fmt.Sprintf("v%d", i)
		if i == n-1 && c.Watermark == nil {
			out = "vout"
		}
		chains = append(chains, fmt.Sprintf(
			"[%s][%s]overlay=x=%s:y=%s:eof_action=pass:enable='gte(t,%s)*lt(t,%s)'[%s]",
			cur, card, xe, ye, formatSeconds(s.Start), formatSeconds(s.End()), out))
		cur = out
	}

	if w := c.Watermark; w != nil {
		draw := fmt.Sprintf("drawtext=text='%s':fontcolor=white@%s:fontsize=%d:x=(w-text_w)/2:y=h-text_h-%d",
			escapeDrawtext(w.Text), formatOpacity(w.Opacity), w.FontSize, w.FontSize)
		if w.FontFile != "" {
			draw += ":fontfile='" + escapeDrawtext(w.FontFile) + "'"
		}
		chains = append(chains, fmt.Sprintf("[%s]%s[vout]", cur, draw))
	}

	var audio strings.Builder
	for j := range c.Audio.Segments {
		fmt.Fprintf(&audio, "[%d:a]", 1+n+j)
	}
	fmt.Fprintf(&audio, "concat=n=%d:v=0:a=1[aout]", len(c.Audio.Segments))
	chains = append(chains, audio.String())

	return strings.Join(chains, ";"), nil
}

func slideFilters(s Slide) string {
	f := []string{
		fmt.Sprintf("scale=%d:-1", s.Width),
		"format=rgba",
	}
	if s.Opacity < 1 {
		f = append(f, "colorchannelmixer=aa="+formatOpacity(s.Opacity))
	}
	if s.Fade > 0 {
		fade := formatSeconds(s.Fade)
		f = append(f,
			fmt.Sprintf("fade=t=in:st=0:d=%s:alpha=1", fade),
			fmt.Sprintf("fade=t=out:st=%s:d=%s:alpha=1", formatSeconds(s.Duration-s.Fade), fade))
	}
	f = append(f, fmt.Sprintf("setpts=PTS-STARTPTS+%s/TB", formatSeconds(s.Start)))
	return strings.Join(f, ",")
}

func formatOpacity(o float64) string {
	return fmt.Sprintf("%.2f", o)
}

var drawtextEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`:`, `\:`,
	`%`, `\%`,
)

func escapeDrawtext(s string) string {
	return drawtextEscaper.Replace(s)
}
