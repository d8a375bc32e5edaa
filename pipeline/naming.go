package pipeline

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxFilenameRunes bounds the filename stem before ".mp4" is appended.
const MaxFilenameRunes = 251

// MaxVideoTitleRunes is the longest title YouTube accepts.
const MaxVideoTitleRunes = 100

var (
	reUnsafe     = regexp.MustCompile(`[?\\"%*:|<>]`)
	reWithout    = regexp.MustCompile(` [wW]\s?/\s?[oO0]`)
	reWith       = regexp.MustCompile(` [wW]\s?/`)
	reFraction   = regexp.MustCompile(`(\d+)\s?/\s?(\d+)`)
	reAlternates = regexp.MustCompile(`([\p{L}\p{N}_]+)\s?/\s?([\p{L}\p{N}_]+)`)
	reNonWord    = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
)

// NormalizeName makes a thread title safe for use as a filename and a video
// title: it drops characters filesystems reject and spells out slashes.
func NormalizeName(name string) string {
	name = reUnsafe.ReplaceAllString(name, "")
	name = reWithout.ReplaceAllString(name, " without")
	name = reWith.ReplaceAllString(name, " with")
	name = reFraction.ReplaceAllString(name, "$1 of $2")
	name = reAlternates.ReplaceAllString(name, "$1 or $2")
	return strings.ReplaceAll(name, "/", "")
}

// SanitizeID strips everything but word characters, whitespace and dashes.
// Thread ids and titles pass through it before use.
func SanitizeID(s string) string {
	return reNonWord.ReplaceAllString(s, "")
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Translator translates text into lang.
type Translator interface {
	Translate(ctx context.Context, text, lang string) (string, error)
}

// Namer derives deliverable filenames and upload titles from thread titles.
type Namer struct {
	// Lang, when set, translates names through Translator.
	Lang       string
	Translator Translator
	Logger     *slog.Logger
}

// Name normalizes title and translates it when a language is configured.
// A failed translation falls back to the untranslated name.
func (n *Namer) Name(ctx context.Context, title string) string {
	name := NormalizeName(title)
	if n.Lang == "" || n.Translator == nil {
		return name
	}
	translated, err := n.Translator.Translate(ctx, name, n.Lang)
	if err != nil || strings.TrimSpace(translated) == "" {
		if n.Logger != nil {
			n.Logger.Warn("title translation failed, keeping untranslated name", "lang", n.Lang, "error", err)
		}
		return name
	}
	if clean := trimStem(NormalizeName(translated)); clean != "" {
		return clean
	}
	return name
}

// trimStem drops surrounding whitespace and leading dots so a name can
// never form a hidden file or a relative path component.
func trimStem(s string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), ". "))
}

// Filename returns the deliverable filename for a normalized name. A name
// that is empty once trimmed uses fallback instead.
func Filename(name, fallback string) string {
	stem := trimStem(name)
	if stem == "" {
		stem = trimStem(fallback)
	}
	return truncateRunes(stem, MaxFilenameRunes) + ".mp4"
}

// VideoTitle appends suffix to name, shortening name so the result fits
// YouTube's title limit.
func VideoTitle(name, suffix string) string {
	room := MaxVideoTitleRunes - utf8.RuneCountInString(suffix)
	if room < 0 {
		room = 0
	}
	return strings.TrimSpace(truncateRunes(name, room)) + suffix
}
