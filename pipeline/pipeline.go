package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"shortmaker/config"
	"shortmaker/storage"
	"shortmaker/upload"
	"shortmaker/video"
)

// Reporter receives human-readable progress.
type Reporter interface {
	Step(msg string)
	Substep(msg string)
}

type nopReporter struct{}

func (nopReporter) Step(string)    {}
func (nopReporter) Substep(string) {}

// Uploader sends a deliverable to the video service. *upload.Client
// implements it.
type Uploader interface {
	Upload(ctx context.Context, task *upload.UploadTask) (string, error)
}

// Result is the outcome of a job.
type Result struct {
	Deliverable *video.Deliverable
	Record      *storage.Record
	// Name is the normalized, possibly translated title.
	Name string
	// VideoID is set when the upload succeeded.
	VideoID string
	// Removed counts temporary files deleted after rendering.
	Removed int
}

// Pipeline wires the media components, the ledger and the uploader.
type Pipeline struct {
	cfg        *config.Config
	prober     video.Prober
	audio      *video.AudioTrackBuilder
	sequencer  *video.SlideSequencer
	compositor *video.Compositor
	renderer   *video.Renderer
	store      storage.Store
	uploader   Uploader
	namer      *Namer
	reporter   Reporter
	logger     *slog.Logger
}

// Options carries optional collaborators. Zero values select the defaults
// derived from the configuration.
type Options struct {
	Prober   video.Prober
	Runner   video.Runner
	Uploader Uploader
	Reporter Reporter
	// Translator is used when cfg.PostLang is set.
	Translator Translator
	Logger     *slog.Logger
}

// New creates a Pipeline. store must be open; it is not closed by the
// pipeline.
func New(cfg *config.Config, store storage.Store, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	prober := opts.Prober
	if prober == nil {
		ff := video.NewFFprobe(cfg.FFprobePath)
		if opts.Runner != nil {
			ff.Runner = opts.Runner
		}
		prober = ff
	}
	renderer := video.NewRenderer(cfg.FFmpegPath, logger)
	if opts.Runner != nil {
		renderer.Runner = opts.Runner
	}
	compositor := video.NewCompositor(cfg.Width, cfg.Height)
	compositor.WatermarkOpacity = cfg.WatermarkOpacity

	translator := opts.Translator
	if translator == nil && cfg.PostLang != "" {
		translator = NewGoogleTranslator()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}

	return &Pipeline{
		cfg:        cfg,
		prober:     prober,
		audio:      video.NewAudioTrackBuilder(prober, cfg.ProbeConcurrency, logger),
		sequencer:  video.NewSlideSequencer(),
		compositor: compositor,
		renderer:   renderer,
		store:      store,
		uploader:   opts.Uploader,
		namer:      &Namer{Lang: cfg.PostLang, Translator: translator, Logger: logger},
		reporter:   reporter,
		logger:     logger.With("component", "pipeline"),
	}
}

// Render assembles the job's workspace into a deliverable and records it.
// Any failure aborts the job before anything is recorded.
func (p *Pipeline) Render(ctx context.Context, job *Job) (*Result, error) {
	job.ensureID()
	id := job.WorkspaceID()
	if id == "" {
		return nil, fmt.Errorf("job %s: thread id is empty", job.ID)
	}
	ws := Workspace{Root: p.cfg.AssetsDir, ID: id}
	n := len(job.Thread.Comments)
	log := p.logger.With("job", job.ID, "thread", id)

	p.reporter.Step("Creating the final video")
	start := time.Now()

	titleAudio, commentAudio := ws.Narration(n)
	images := ws.Images(n)
	bgPath := job.Background.VideoPath
	if bgPath == "" {
		bgPath = ws.Background()
	}
	if err := video.CheckSources("audio", append([]string{titleAudio}, commentAudio...)...); err != nil {
		return nil, err
	}
	if err := video.CheckSources("image", images...); err != nil {
		return nil, err
	}
	if err := video.CheckSources("background", bgPath); err != nil {
		return nil, err
	}

	audio, err := p.audio.Build(ctx, titleAudio, commentAudio)
	if err != nil {
		return nil, err
	}
	bg, err := p.prober.Probe(ctx, bgPath)
	if err != nil {
		return nil, fmt.Errorf("probe background: %w", err)
	}

	slides, err := p.sequencer.Sequence(images, audio.Durations(), video.Style{
		Opacity:    p.cfg.Opacity,
		Transition: p.cfg.Transition,
		Width:      p.cfg.SlideWidth(),
		Anchor:     job.Background.Anchor,
	})
	if err != nil {
		return nil, err
	}

	var watermark string
	if p.cfg.Watermark && job.Background.Credit != "" {
		watermark = "Background credit: " + job.Background.Credit
	}
	comp, err := p.compositor.Compose(bg, slides, audio, watermark)
	if err != nil {
		return nil, err
	}

	title := SanitizeID(job.Thread.Title)
	name := p.namer.Name(ctx, title)
	if trimStem(name) == "" {
		name = id
	}
	filename := Filename(name, id)
	subreddit := job.Subreddit
	if subreddit == "" {
		subreddit = p.cfg.Subreddit
	}
	output := ResultPath(p.cfg.ResultsDir, subreddit, filename)
	if _, err := os.Stat(ResultPath(p.cfg.ResultsDir, subreddit, "")); errors.Is(err, os.ErrNotExist) {
		p.reporter.Substep("The results folder didn't exist so I made it")
	}

	length := job.Length
	if length == 0 {
		length = comp.Duration()
	}
	deliverable, err := p.renderer.Render(ctx, comp, video.RenderJob{
		FPS:              p.cfg.FPS,
		VideoCodec:       p.cfg.VideoCodec,
		AudioCodec:       p.cfg.AudioCodec,
		AudioBitrate:     p.cfg.AudioBitrate,
		Threads:          p.cfg.Threads,
		Length:           length,
		IntermediatePath: ws.Intermediate(),
		OutputPath:       output,
	})
	if err != nil {
		return nil, err
	}
	log.Info("rendered short", "output", deliverable.Path, "duration", deliverable.Duration,
		"slides", len(slides.Slides), "elapsed", time.Since(start).Round(time.Millisecond))

	rec, err := p.record(ctx, &storage.Record{
		Subreddit: subreddit,
		Filename:  filename,
		Title:     title,
		ThreadID:  id,
		Credit:    job.Background.Credit,
		Status:    storage.RecordStatusRendered,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Deliverable: deliverable, Record: rec, Name: name}
	if p.cfg.CleanupTemp {
		p.reporter.Step("Removing temporary files")
		removed, err := ws.Cleanup()
		if err != nil {
			log.Warn("cleanup failed", "error", err)
		}
		res.Removed = removed
		p.reporter.Substep(fmt.Sprintf("Removed %d temporary files", removed))
	}
	p.reporter.Substep("See result in the results folder!")
	p.reporter.Step(fmt.Sprintf("Reddit title: %s \n Background Credit: %s", job.Thread.Title, job.Background.Credit))
	return res, nil
}

// record creates rec, or refreshes the existing record of a re-rendered thread.
func (p *Pipeline) record(ctx context.Context, rec *storage.Record) (*storage.Record, error) {
	err := p.store.CreateRecord(ctx, rec)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, storage.ErrAlreadyExists) {
		return nil, err
	}

	existing, err := p.store.GetRecordByThreadID(ctx, rec.ThreadID)
	if err != nil {
		return nil, err
	}
	existing.Subreddit = rec.Subreddit
	existing.Filename = rec.Filename
	existing.Title = rec.Title
	existing.Credit = rec.Credit
	existing.Status = storage.RecordStatusRendered
	existing.YouTubeID = ""
	existing.LastError = ""
	if err := p.store.UpdateRecord(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Run renders the job and, when uploads are enabled, uploads the result.
func (p *Pipeline) Run(ctx context.Context, job *Job) (*Result, error) {
	res, err := p.Render(ctx, job)
	if err != nil {
		return nil, err
	}
	if !p.cfg.UploadEnabled || p.uploader == nil {
		return res, nil
	}
	return res, p.Upload(ctx, res)
}

// Upload sends a rendered result and updates its record. An upload failure
// marks the record upload_failed.
func (p *Pipeline) Upload(ctx context.Context, res *Result) error {
	if p.uploader == nil {
		return errors.New("upload: no uploader configured")
	}
	vis, err := upload.ParseVisibility(p.cfg.Visibility)
	if err != nil {
		return err
	}

	rec := res.Record
	name := res.Name
	if name == "" {
		name = NormalizeName(rec.Title)
	}
	task := &upload.UploadTask{
		FilePath:    res.Deliverable.Path,
		Title:       VideoTitle(name, p.cfg.TitleSuffix),
		Description: p.cfg.Description,
		Tags:        p.cfg.Tags,
		Visibility:  vis,
		CategoryID:  p.cfg.CategoryID,
	}

	p.reporter.Step("Uploading file...")
	id, uerr := p.uploader.Upload(ctx, task)
	if uerr != nil {
		rec.Status = storage.RecordStatusUploadFailed
		rec.LastError = uerr.Error()
		if err := p.store.UpdateRecord(ctx, rec); err != nil {
			p.logger.Error("could not mark record failed", "record", rec.ID, "error", err)
		}
		return uerr
	}

	res.VideoID = id
	rec.YouTubeID = id
	rec.Status = storage.RecordStatusUploaded
	rec.LastError = ""
	if err := p.store.UpdateRecord(ctx, rec); err != nil {
		return err
	}
	p.reporter.Substep(fmt.Sprintf("Video id '%s' was successfully uploaded.", id))

	if p.cfg.DeleteAfterUpload {
		if err := os.Remove(res.Deliverable.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete uploaded file: %w", err)
		}
		p.reporter.Substep("Deleted local copy of " + res.Deliverable.Path)
	}
	return nil
}

// UploadConfig maps configuration onto the upload client's settings.
func UploadConfig(cfg *config.Config, logger *slog.Logger) upload.Config {
	uc := upload.DefaultConfig()
	uc.Retry.MaxRetries = cfg.MaxRetries
	if cfg.MaxBackoffSeconds > 0 {
		uc.Retry.MaxBackoff = time.Duration(cfg.MaxBackoffSeconds * float64(time.Second))
	}
	uc.Session = upload.SessionConfig{
		ChunkSize: cfg.ChunkSize,
		Limiter:   upload.NewChunkLimiter(cfg.ChunksPerSecond),
		Logger:    logger,
	}
	return uc
}
