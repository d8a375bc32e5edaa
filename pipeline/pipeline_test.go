package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shortmaker/config"
	"shortmaker/retry"
	"shortmaker/storage"
	"shortmaker/upload"
	"shortmaker/video"
)

type fakeProber map[string]video.Clip

func (f fakeProber) Probe(ctx context.Context, path string) (video.Clip, error) {
	c, ok := f[path]
	if !ok {
		return video.Clip{}, errors.New("unknown clip " + path)
	}
	return c, nil
}

// fakeRunner records ffmpeg invocations and creates each output file.
type fakeRunner struct {
	calls [][]string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, args)
	out := args[len(args)-1]
	if err := os.WriteFile(out, []byte("mp4"), 0644); err != nil {
		return nil, err
	}
	return nil, nil
}

type fakeUploader struct {
	id    string
	err   error
	tasks []*upload.UploadTask
}

func (u *fakeUploader) Upload(ctx context.Context, task *upload.UploadTask) (string, error) {
	u.tasks = append(u.tasks, task)
	return u.id, u.err
}

type recordingReporter struct{ lines []string }

func (r *recordingReporter) Step(msg string)    { r.lines = append(r.lines, msg) }
func (r *recordingReporter) Substep(msg string) { r.lines = append(r.lines, "  "+msg) }

type fixture struct {
	cfg      *config.Config
	store    storage.Store
	runner   *fakeRunner
	reporter *recordingReporter
	ws       Workspace
	job      *Job
	prober   fakeProber
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AssetsDir = filepath.Join(root, "assets", "temp")
	cfg.ResultsDir = filepath.Join(root, "results")
	cfg.StorePath = filepath.Join(root, "data", "videos.json")
	cfg.Subreddit = "AskReddit"

	store, err := storage.Open(cfg.StoreBackend, cfg.StorePath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	job := &Job{
		Thread: Thread{
			ID:       "t3_abc-1",
			Title:    "What's your best memory?",
			Comments: []string{"first", "second"},
		},
		Background: video.Background{Credit: "bbswitzer", Anchor: video.CenterAnchor},
		Length:     8,
	}
	ws := Workspace{Root: cfg.AssetsDir, ID: job.WorkspaceID()}

	title, comments := ws.Narration(2)
	files := append([]string{title, ws.Background()}, comments...)
	files = append(files, ws.Images(2)...)
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	prober := fakeProber{
		title:           {Path: title, Duration: 3.2},
		comments[0]:     {Path: comments[0], Duration: 4.0},
		comments[1]:     {Path: comments[1], Duration: 2.5},
		ws.Background(): {Path: ws.Background(), Width: 1920, Height: 1080, Duration: 60, HasAudio: true},
	}

	return &fixture{
		cfg:      cfg,
		store:    store,
		runner:   &fakeRunner{},
		reporter: &recordingReporter{},
		ws:       ws,
		job:      job,
		prober:   prober,
	}
}

func (f *fixture) pipeline(uploader Uploader) *Pipeline {
	return New(f.cfg, f.store, Options{
		Prober:   f.prober,
		Runner:   f.runner,
		Uploader: uploader,
		Reporter: f.reporter,
	})
}

func TestPipeline_Render(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline(nil).Render(context.Background(), f.job)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	wantName := "Whats your best memory"
	wantPath := filepath.Join(f.cfg.ResultsDir, "AskReddit", wantName+".mp4")
	if res.Deliverable.Path != wantPath {
		t.Errorf("Deliverable.Path = %q, want %q", res.Deliverable.Path, wantPath)
	}
	if res.Deliverable.Duration != 8 {
		t.Errorf("Deliverable.Duration = %v, want 8", res.Deliverable.Duration)
	}
	if _, err := os.Stat(wantPath); err != nil {
		t.Errorf("deliverable missing: %v", err)
	}

	if len(f.runner.calls) != 2 {
		t.Fatalf("ffmpeg calls = %d, want 2", len(f.runner.calls))
	}
	encode := strings.Join(f.runner.calls[0], " ")
	if !strings.Contains(encode, `text='Background credit\: bbswitzer'`) {
		t.Errorf("encode args lack the credit watermark: %s", encode)
	}

	rec, err := f.store.GetRecordByThreadID(context.Background(), "t3_abc-1")
	if err != nil {
		t.Fatalf("GetRecordByThreadID() error = %v", err)
	}
	if rec.Filename != wantName+".mp4" || rec.Credit != "bbswitzer" || rec.Subreddit != "AskReddit" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Status != storage.RecordStatusRendered {
		t.Errorf("record status = %q, want rendered", rec.Status)
	}

	// 3 mp3 + 3 png + background + temp.mp4
	if res.Removed != 8 {
		t.Errorf("Removed = %d, want 8", res.Removed)
	}
	if _, err := os.Stat(f.ws.Dir()); !os.IsNotExist(err) {
		t.Errorf("workspace still exists after cleanup: %v", err)
	}
}

func TestPipeline_BlankTitleUsesThreadID(t *testing.T) {
	f := newFixture(t)
	f.job.Thread.Title = "???"

	res, err := f.pipeline(nil).Render(context.Background(), f.job)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := filepath.Join(f.cfg.ResultsDir, "AskReddit", "t3_abc-1.mp4")
	if res.Deliverable.Path != want {
		t.Errorf("Deliverable.Path = %q, want %q", res.Deliverable.Path, want)
	}
	if res.Name != "t3_abc-1" {
		t.Errorf("Name = %q, want the thread id", res.Name)
	}
}

func TestPipeline_MissingImage(t *testing.T) {
	f := newFixture(t)
	missing := f.ws.CommentImage(1)
	os.Remove(missing)

	_, err := f.pipeline(nil).Render(context.Background(), f.job)
	var ms *video.MissingSourceError
	if !errors.As(err, &ms) || ms.Path != missing || ms.Kind != "image" {
		t.Fatalf("Render() error = %v, want missing image %s", err, missing)
	}
	if len(f.runner.calls) != 0 {
		t.Errorf("ffmpeg ran %d times, want 0", len(f.runner.calls))
	}
	if has, _ := f.store.HasThread(context.Background(), "t3_abc-1"); has {
		t.Error("record created for a failed job")
	}
}

func TestPipeline_LengthBeyondComposite(t *testing.T) {
	f := newFixture(t)
	f.job.Length = 30

	_, err := f.pipeline(nil).Render(context.Background(), f.job)
	if !errors.Is(err, video.ErrPrecondition) {
		t.Fatalf("Render() error = %v, want ErrPrecondition", err)
	}
	if len(f.runner.calls) != 0 {
		t.Errorf("ffmpeg ran %d times, want 0", len(f.runner.calls))
	}
}

func TestPipeline_RunUploads(t *testing.T) {
	f := newFixture(t)
	f.cfg.UploadEnabled = true
	f.cfg.DeleteAfterUpload = true
	f.cfg.Visibility = "unlisted"
	uploader := &fakeUploader{id: "dQw4w9WgXcQ"}

	res, err := f.pipeline(uploader).Run(context.Background(), f.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("VideoID = %q", res.VideoID)
	}

	if len(uploader.tasks) != 1 {
		t.Fatalf("uploads = %d, want 1", len(uploader.tasks))
	}
	task := uploader.tasks[0]
	if task.Title != "Whats your best memory|Best of memes!#shorts" {
		t.Errorf("upload title = %q", task.Title)
	}
	if task.Visibility != upload.Unlisted || len(task.Tags) != 2 {
		t.Errorf("upload task = %+v", task)
	}

	rec, _ := f.store.GetRecordByThreadID(context.Background(), "t3_abc-1")
	if rec.Status != storage.RecordStatusUploaded || rec.YouTubeID != "dQw4w9WgXcQ" {
		t.Errorf("record = %+v, want uploaded with id", rec)
	}
	if _, err := os.Stat(res.Deliverable.Path); !os.IsNotExist(err) {
		t.Errorf("deliverable kept after upload, stat error = %v", err)
	}
}

func TestPipeline_UploadFailureMarksRecord(t *testing.T) {
	f := newFixture(t)
	f.cfg.UploadEnabled = true
	uploadErr := &upload.FatalTransferError{Status: 403, Err: errors.New("forbidden")}
	uploader := &fakeUploader{err: uploadErr}

	res, err := f.pipeline(uploader).Run(context.Background(), f.job)
	if !errors.Is(err, uploadErr) {
		t.Fatalf("Run() error = %v, want the upload error", err)
	}
	if res == nil || res.Deliverable == nil {
		t.Fatal("Run() dropped the rendered result")
	}

	rec, _ := f.store.GetRecordByThreadID(context.Background(), "t3_abc-1")
	if rec.Status != storage.RecordStatusUploadFailed || rec.LastError == "" {
		t.Errorf("record = %+v, want upload_failed with error", rec)
	}
	if _, err := os.Stat(res.Deliverable.Path); err != nil {
		t.Errorf("deliverable removed after failed upload: %v", err)
	}
}

func TestPipeline_RerenderUpdatesRecord(t *testing.T) {
	f := newFixture(t)
	f.cfg.CleanupTemp = false
	p := f.pipeline(nil)

	first, err := p.Render(context.Background(), f.job)
	if err != nil {
		t.Fatalf("first Render() error = %v", err)
	}
	second, err := p.Render(context.Background(), f.job)
	if err != nil {
		t.Fatalf("second Render() error = %v", err)
	}
	if first.Record.ID != second.Record.ID {
		t.Errorf("record ids differ: %q vs %q", first.Record.ID, second.Record.ID)
	}
	all, _ := f.store.ListRecords(context.Background(), "")
	if len(all) != 1 {
		t.Errorf("records = %d, want 1", len(all))
	}
}

func TestUploadConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 4
	cfg.MaxBackoffSeconds = 30
	cfg.ChunkSize = 1 << 20
	cfg.ChunksPerSecond = 2

	uc := UploadConfig(cfg, nil)
	if uc.Retry.MaxRetries != 4 || uc.Retry.MaxBackoff.Seconds() != 30 {
		t.Errorf("retry = %+v", uc.Retry)
	}
	if uc.Session.ChunkSize != 1<<20 || uc.Session.Limiter.Limit() != 2 {
		t.Errorf("session = %+v", uc.Session)
	}
}

func TestOpenStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.StoreBackend = "sqlite"
	cfg.StorePath = filepath.Join(t.TempDir(), "videos.db")

	store, err := OpenStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	store.Close()

	cfg.StoreBackend = "redis"
	rc := retry.DefaultConfig()
	sleeps := 0
	rc.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}
	if _, err := openStore(context.Background(), cfg, rc); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("openStore(redis) error = %v, want ErrInvalidInput", err)
	}
	if sleeps != 0 {
		t.Errorf("openStore(redis) retried %d times, want no retries", sleeps)
	}
}
