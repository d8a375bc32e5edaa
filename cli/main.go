package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"shortmaker/config"
	"shortmaker/internal/console"
	"shortmaker/pipeline"
	"shortmaker/storage"
	"shortmaker/upload"
	"shortmaker/video"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "make":
		cmdMake(args, true)
	case "render":
		cmdMake(args, false)
	case "upload":
		cmdUpload(args)
	case "auth":
		cmdAuth(args)
	case "history":
		cmdHistory(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `shortmaker - narrated vertical shorts from reddit threads

Usage:
  shortmaker make [flags] <job-file>       Render a job and upload it when enabled
  shortmaker render [flags] <job-file>     Render a job without uploading
  shortmaker upload [flags] <thread-id>    Upload an already rendered short
  shortmaker auth [flags]                  Authorize the uploader with YouTube
  shortmaker history [flags]               List rendered shorts
  shortmaker help                          Show this help message

Examples:
  shortmaker make job.yaml                                  # Render, upload if upload_enabled
  shortmaker make -upload job.yaml                          # Always upload
  shortmaker render -config shortmaker.yaml job.json        # Explicit config file
  shortmaker upload abc123                                  # Retry a failed upload
  shortmaker history -subreddit AskReddit                   # Filter the ledger

For help on specific command: shortmaker <command> -h
`)
}

// env is the state every command shares once flags are parsed.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	printer *console.Printer
}

func setup(configPath string) *env {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return &env{cfg: cfg, logger: logger, printer: console.New(os.Stdout)}
}

func (e *env) fatal(msg string, err error) {
	e.printer.Error(fmt.Sprintf("%s: %v", msg, err))

	var encErr *video.EncodingError
	if errors.As(err, &encErr) && encErr.Output != "" {
		fmt.Fprintln(os.Stderr, encErr.Output)
	}
	os.Exit(1)
}

func (e *env) openStore(ctx context.Context) storage.Store {
	store, err := pipeline.OpenStore(ctx, e.cfg)
	if err != nil {
		e.fatal("Error opening results ledger", err)
	}
	return store
}

func (e *env) uploader(prompt upload.CodePrompt) *upload.Client {
	auth := upload.NewAuthenticator(upload.AuthConfig{
		ClientSecretsFile: e.cfg.ClientSecretsFile,
		TokenFile:         e.cfg.TokenFile,
		Prompt:            prompt,
	}, e.logger)
	return upload.NewClient(auth, pipeline.UploadConfig(e.cfg, e.logger), e.logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func cmdMake(args []string, allowUpload bool) {
	name := "render"
	if allowUpload {
		name = "make"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a config file (JSON or YAML)")
	subreddit := fs.String("subreddit", "", "Override the subreddit used for the results folder")
	length := fs.Float64("length", -1, "Override the target length in seconds (0 = whole composite)")
	skipExisting := fs.Bool("skip-existing", false, "Do nothing when the thread was already rendered")
	var forceUpload *bool
	if allowUpload {
		forceUpload = fs.Bool("upload", false, "Upload even when upload_enabled is false")
	}
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: shortmaker %s [flags] <job-file>\n\nFlags:\n", name)
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing job-file\n")
		fs.Usage()
		os.Exit(1)
	}

	e := setup(*configPath)
	job, err := pipeline.LoadJob(argv[0])
	if err != nil {
		e.fatal("Error loading job", err)
	}
	if *subreddit != "" {
		job.Subreddit = *subreddit
	}
	if *length >= 0 {
		job.Length = *length
	}

	if !allowUpload {
		e.cfg.UploadEnabled = false
	} else if *forceUpload {
		e.cfg.UploadEnabled = true
	}

	ctx, cancel := signalContext()
	defer cancel()

	store := e.openStore(ctx)
	defer store.Close()

	if *skipExisting {
		done, err := store.HasThread(ctx, job.WorkspaceID())
		if err != nil {
			e.fatal("Error reading results ledger", err)
		}
		if done {
			e.printer.Step(fmt.Sprintf("Thread '%s' was already rendered, skipping", job.Thread.ID))
			return
		}
	}

	opts := pipeline.Options{Reporter: e.printer, Logger: e.logger}
	if e.cfg.UploadEnabled {
		opts.Uploader = e.uploader(stdinPrompt)
	}
	p := pipeline.New(e.cfg, store, opts)

	res, err := p.Run(ctx, job)
	if err != nil {
		e.fatal("Error making short", err)
	}

	e.printer.Field("File", res.Deliverable.Path)
	e.printer.Field("Duration", fmt.Sprintf("%.2fs", res.Deliverable.Duration))
	if res.VideoID != "" {
		e.printer.Field("Video", "https://youtu.be/"+res.VideoID)
	}
}

func cmdUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a config file (JSON or YAML)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: shortmaker upload [flags] <thread-id>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing thread-id\n")
		fs.Usage()
		os.Exit(1)
	}

	e := setup(*configPath)
	ctx, cancel := signalContext()
	defer cancel()

	store := e.openStore(ctx)
	defer store.Close()

	rec, err := store.GetRecordByThreadID(ctx, pipeline.SanitizeID(argv[0]))
	if err != nil {
		e.fatal("Error finding rendered short", err)
	}
	if rec.Status == storage.RecordStatusUploaded {
		e.printer.Step(fmt.Sprintf("Already uploaded as '%s'", rec.YouTubeID))
		return
	}

	path := pipeline.ResultPath(e.cfg.ResultsDir, rec.Subreddit, rec.Filename)
	if _, err := os.Stat(path); err != nil {
		e.fatal("Error reading deliverable", err)
	}

	p := pipeline.New(e.cfg, store, pipeline.Options{
		Uploader: e.uploader(stdinPrompt),
		Reporter: e.printer,
		Logger:   e.logger,
	})
	res := &pipeline.Result{
		Deliverable: &video.Deliverable{Path: path},
		Record:      rec,
		Name:        strings.TrimSuffix(rec.Filename, ".mp4"),
	}
	if err := p.Upload(ctx, res); err != nil {
		e.fatal("Error uploading short", err)
	}
	e.printer.Field("Video", "https://youtu.be/"+res.VideoID)
}

func cmdAuth(args []string) {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a config file (JSON or YAML)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: shortmaker auth [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	e := setup(*configPath)
	ctx, cancel := signalContext()
	defer cancel()

	auth := upload.NewAuthenticator(upload.AuthConfig{
		ClientSecretsFile: e.cfg.ClientSecretsFile,
		TokenFile:         e.cfg.TokenFile,
		Prompt:            stdinPrompt,
	}, e.logger)
	if err := auth.Authorize(ctx); err != nil {
		e.fatal("Error authorizing", err)
	}
	e.printer.Step("Authorized. Token saved to " + e.cfg.TokenFile)
}

func cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a config file (JSON or YAML)")
	subreddit := fs.String("subreddit", "", "Only list shorts from this subreddit")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: shortmaker history [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	e := setup(*configPath)
	ctx, cancel := signalContext()
	defer cancel()

	store := e.openStore(ctx)
	defer store.Close()

	records, err := store.ListRecords(ctx, *subreddit)
	if err != nil {
		e.fatal("Error listing records", err)
	}
	if len(records) == 0 {
		fmt.Println("No shorts rendered yet.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "THREAD\tSUBREDDIT\tTITLE\tSTATUS\tVIDEO ID\tCREATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ThreadID,
			r.Subreddit,
			truncate(r.Title, 50),
			r.Status,
			r.YouTubeID,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nTotal: %d shorts\n", len(records))
}

// stdinPrompt prints the consent URL and reads the pasted code.
func stdinPrompt(ctx context.Context, authURL string) (string, error) {
	fmt.Fprintf(os.Stderr, "Open this URL in your browser and authorize the app:\n\n  %s\n\nEnter the code: ", authURL)

	type result struct {
		code string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		ch <- result{strings.TrimSpace(line), err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.code == "" && r.err != nil {
			return "", fmt.Errorf("read authorization code: %w", r.err)
		}
		return r.code, nil
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
