// Package video assembles narrated shorts: it loads narration segments,
// sequences title and comment cards against them, layers the cards over a
// cropped background and renders the result with ffmpeg.
package video

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Clip is an immutable descriptor of a media source. Transform helpers return
// new values and never modify their argument.
type Clip struct {
	Path     string
	Width    int
	Height   int
	Duration float64
	HasAudio bool
}

// ScaleToWidth returns c resized to width w, preserving aspect ratio.
func ScaleToWidth(c Clip, w int) Clip {
	if c.Width > 0 {
		c.Height = int(math.Round(float64(c.Height) * float64(w) / float64(c.Width)))
	}
	c.Width = w
	return c
}

// ScaleToHeight returns c resized to height h, preserving aspect ratio.
func ScaleToHeight(c Clip, h int) Clip {
	if c.Height > 0 {
		c.Width = int(math.Round(float64(c.Width) * float64(h) / float64(c.Height)))
	}
	c.Height = h
	return c
}

// WithoutAudio returns c with its native audio dropped.
func WithoutAudio(c Clip) Clip {
	c.HasAudio = false
	return c
}

// Anchor positions a layer on the frame. Each axis is a keyword (center,
// left, right, top, bottom) or a pixel offset.
type Anchor struct {
	X string `json:"x" yaml:"x"`
	Y string `json:"y" yaml:"y"`
}

// CenterAnchor is the default slide position.
var CenterAnchor = Anchor{X: "center", Y: "center"}

// ParseAnchor accepts "center", "x,y" or "x y" forms, e.g. "center,200".
func ParseAnchor(s string) (Anchor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CenterAnchor, nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	switch len(parts) {
	case 1:
		a := Anchor{X: parts[0], Y: parts[0]}
		switch parts[0] {
		case "top", "bottom":
			a.X = "center"
		case "left", "right":
			a.Y = "center"
		}
		return a, a.validate()
	case 2:
		a := Anchor{X: parts[0], Y: parts[1]}
		return a, a.validate()
	default:
		return Anchor{}, fmt.Errorf("invalid anchor %q", s)
	}
}

// UnmarshalJSON accepts either {"x": ..., "y": ...} or a ParseAnchor string.
func (a *Anchor) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := ParseAnchor(s)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	type plain Anchor
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*a = Anchor(p)
	return a.validate()
}

// UnmarshalYAML accepts a mapping with x and y or a ParseAnchor scalar.
func (a *Anchor) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseAnchor(value.Value)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	type plain Anchor
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*a = Anchor(p)
	return a.validate()
}

func (a Anchor) validate() error {
	if _, err := a.xExpr(); err != nil {
		return err
	}
	_, err := a.yExpr()
	return err
}

// xExpr and yExpr translate the anchor into ffmpeg overlay expressions, where
// W/H are the base frame and w/h the overlaid layer.
func (a Anchor) xExpr() (string, error) {
	switch a.X {
	case "", "center":
		return "(W-w)/2", nil
	case "left":
		return "0", nil
	case "right":
		return "W-w", nil
	}
	if _, err := strconv.Atoi(a.X); err != nil {
		return "", fmt.Errorf("invalid horizontal anchor %q", a.X)
	}
	return a.X, nil
}

func (a Anchor) yExpr() (string, error) {
	switch a.Y {
	case "", "center":
		return "(H-h)/2", nil
	case "top":
		return "0", nil
	case "bottom":
		return "H-h", nil
	}
	if _, err := strconv.Atoi(a.Y); err != nil {
		return "", fmt.Errorf("invalid vertical anchor %q", a.Y)
	}
	return a.Y, nil
}

// Background is the background selection handed to the compositor.
type Background struct {
	VideoPath string `json:"video_path" yaml:"video_path"`
	StyleName string `json:"style_name" yaml:"style_name"`
	Credit    string `json:"credit" yaml:"credit"`
	Anchor    Anchor `json:"anchor" yaml:"anchor"`
}
