package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"shortmaker/video"
)

func TestLoadJob(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "job.yaml")
	os.WriteFile(yamlPath, []byte(`
subreddit: AskReddit
length: 58
thread:
  id: abc123
  title: "What's your best memory?"
  comments: [one, two, three]
background:
  video_path: assets/backgrounds/minecraft.mp4
  style_name: minecraft
  credit: bbswitzer
  anchor: {x: center, y: "480"}
`), 0644)

	job, err := LoadJob(yamlPath)
	if err != nil {
		t.Fatalf("LoadJob(yaml) error = %v", err)
	}
	if job.Thread.ID != "abc123" || len(job.Thread.Comments) != 3 || job.Length != 58 {
		t.Errorf("job = %+v", job)
	}
	if job.Background.Credit != "bbswitzer" || job.Background.Anchor.Y != "480" {
		t.Errorf("background = %+v", job.Background)
	}

	jsonPath := filepath.Join(dir, "job.json")
	os.WriteFile(jsonPath, []byte(`{"thread": {"id": "x1", "title": "t", "comments": ["a"]},
		"background": {"anchor": "center,300"}}`), 0644)
	job, err = LoadJob(jsonPath)
	if err != nil || job.Thread.ID != "x1" {
		t.Fatalf("LoadJob(json) = %+v, %v", job, err)
	}
	if job.Background.Anchor != (video.Anchor{X: "center", Y: "300"}) {
		t.Errorf("string anchor = %+v, want center,300", job.Background.Anchor)
	}

	badAnchor := filepath.Join(dir, "anchor.yaml")
	os.WriteFile(badAnchor, []byte("thread: {id: a1}\nbackground: {anchor: middle}\n"), 0644)
	if _, err := LoadJob(badAnchor); err == nil {
		t.Error("LoadJob() with invalid anchor error = nil")
	}

	badPath := filepath.Join(dir, "bad.json")
	os.WriteFile(badPath, []byte(`{"thread": {"title": "no id"}}`), 0644)
	if _, err := LoadJob(badPath); err == nil {
		t.Error("LoadJob() without thread id error = nil")
	}
}
