// Package shortmaker turns a reddit thread into a narrated vertical short
// and uploads it to YouTube.
//
// Overview
//
// A job names a thread (title plus comments) whose narration and card
// images have already been produced under the assets directory:
//
//	assets/<thread-id>/mp3/title.mp3, 0.mp3, 1.mp3, ...
//	assets/<thread-id>/png/title.png, comment_0.png, ...
//	assets/<thread-id>/background.mp4
//
// The pipeline probes every narration segment, lays the cards out on a
// timeline that follows the narration, crops the background to portrait,
// renders through ffmpeg and trims the result to the requested length. The
// deliverable lands in results/<subreddit>/<title>.mp4 and is recorded in
// the results ledger.
//
// Quick Start
//
//	cfg, _ := config.Load()
//	store, err := pipeline.OpenStore(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	job, err := pipeline.LoadJob("job.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	res, err := pipeline.New(cfg, store, pipeline.Options{}).Run(ctx, job)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(res.Deliverable.Path)
//
// Uploading
//
// Uploads use the resumable protocol. Each chunk failure is classified as
// retriable (HTTP 500, 502, 503, 504 and transport errors) or fatal. A
// retriable failure sleeps a random fraction of 2^retries seconds and
// resumes from the last byte the server acknowledged; after 10 retries the
// upload fails.
//
//	auth := upload.NewAuthenticator(upload.AuthConfig{
//		ClientSecretsFile: cfg.ClientSecretsFile,
//		TokenFile:         cfg.TokenFile,
//	}, logger)
//	client := upload.NewClient(auth, pipeline.UploadConfig(cfg, logger), logger)
//
// Configuration
//
// Settings are read from shortmaker.json, shortmaker.yaml or
// ~/.config/shortmaker/, then overridden by SHORTMAKER_* environment
// variables. See the config package.
//
// Error Handling
//
//	if errors.Is(err, shortmaker.ErrMissingSource) {
//		// an asset file is absent; nothing was rendered
//	}
//	var encErr *shortmaker.EncodingError
//	if errors.As(err, &encErr) {
//		fmt.Println(encErr.Output)
//	}
//
// Dependencies
//
// shortmaker requires ffmpeg and ffprobe in PATH or configured through
// ffmpeg_path and ffprobe_path.
package shortmaker
