package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Workspace is the per-job asset directory <root>/<id>.
type Workspace struct {
	Root string
	ID   string
}

// Dir returns the job's directory.
func (w Workspace) Dir() string { return filepath.Join(w.Root, w.ID) }

// TitleAudio is the narration of the title card.
func (w Workspace) TitleAudio() string { return filepath.Join(w.Dir(), "mp3", "title.mp3") }

// CommentAudio is the narration of comment i.
func (w Workspace) CommentAudio(i int) string {
	return filepath.Join(w.Dir(), "mp3", strconv.Itoa(i)+".mp3")
}

// TitleImage is the title card screenshot.
func (w Workspace) TitleImage() string { return filepath.Join(w.Dir(), "png", "title.png") }

// CommentImage is the screenshot of comment i.
func (w Workspace) CommentImage(i int) string {
	return filepath.Join(w.Dir(), "png", fmt.Sprintf("comment_%d.png", i))
}

// Background is the downloaded background clip.
func (w Workspace) Background() string { return filepath.Join(w.Dir(), "background.mp4") }

// Intermediate is the untrimmed render.
func (w Workspace) Intermediate() string { return filepath.Join(w.Dir(), "temp.mp4") }

// Narration returns title then comment audio paths for n comments.
func (w Workspace) Narration(n int) (title string, comments []string) {
	comments = make([]string, n)
	for i := range comments {
		comments[i] = w.CommentAudio(i)
	}
	return w.TitleAudio(), comments
}

// Images returns title then comment card paths for n comments.
func (w Workspace) Images(n int) []string {
	images := make([]string, 0, n+1)
	images = append(images, w.TitleImage())
	for i := 0; i < n; i++ {
		images = append(images, w.CommentImage(i))
	}
	return images
}

// Cleanup removes the job directory and returns how many files it held.
// A missing directory removes nothing.
func (w Workspace) Cleanup() (int, error) {
	if w.ID == "" {
		return 0, errors.New("cleanup: empty job id")
	}
	dir := w.Dir()

	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cleanup %s: %w", dir, err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("cleanup %s: %w", dir, err)
	}
	return count, nil
}

// ResultPath is <results>/<subreddit>/<filename>.
func ResultPath(resultsDir, subreddit, filename string) string {
	return filepath.Join(resultsDir, subreddit, filename)
}
