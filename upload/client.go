// Package upload sends rendered videos to YouTube over the resumable upload
// protocol, retrying transient failures with jittered exponential backoff.
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"shortmaker/retry"
)

// HTTPClientSource supplies authorized HTTP clients. *Authenticator
// implements it.
type HTTPClientSource interface {
	Client(ctx context.Context) (*http.Client, error)
}

// SessionOpener starts a transfer of task over client.
type SessionOpener func(ctx context.Context, client *http.Client, task *UploadTask) (Session, error)

// Config configures a Client.
type Config struct {
	// Retry controls the retry cap and backoff; Rand and Sleep may be
	// replaced in tests.
	Retry   retry.Config
	Session SessionConfig
}

// DefaultConfig returns ten retries with uncapped 2^n second backoff and the
// library default chunk size.
func DefaultConfig() Config {
	return Config{
		Retry:   retry.DefaultConfig(),
		Session: SessionConfig{ChunkSize: -1},
	}
}

// Client drives an UploadTask through
// PENDING -> AUTHENTICATING -> TRANSFERRING -> SUCCEEDED | FAILED.
type Client struct {
	auth   HTTPClientSource
	cfg    Config
	logger *slog.Logger

	// OpenSession defaults to a ResumableSession over the task's file.
	OpenSession SessionOpener
}

// NewClient creates an upload client.
func NewClient(auth HTTPClientSource, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Client{
		auth:   auth,
		cfg:    cfg,
		logger: logger.With("component", "upload"),
	}
	if c.cfg.Session.Logger == nil {
		c.cfg.Session.Logger = logger
	}
	c.OpenSession = func(ctx context.Context, client *http.Client, task *UploadTask) (Session, error) {
		return OpenSession(client, task, c.cfg.Session)
	}
	return c
}

// Upload transfers task and returns the remote video id. On failure the
// returned error is a *FatalTransferError, a *RetryExhaustedError, a
// credentials error or the context's error.
func (c *Client) Upload(ctx context.Context, task *UploadTask) (string, error) {
	task.State = StateAuthenticating
	task.Retries = 0
	task.LastErr = nil

	httpClient, err := c.auth.Client(ctx)
	if err != nil {
		return "", c.fail(task, err)
	}

	task.State = StateTransferring
	session, err := c.OpenSession(ctx, httpClient, task)
	if err != nil {
		return "", c.fail(task, &FatalTransferError{Err: err})
	}
	defer session.Close()

	c.logger.Info("uploading file", "file", task.FilePath, "title", task.Title, "visibility", task.Visibility)

	for {
		progress, resp, err := session.NextChunk(ctx)
		if err == nil {
			if resp == nil {
				if progress != nil {
					c.logger.Debug("chunk acknowledged", "sent", progress.Sent, "total", progress.Total,
						"percent", int(progress.Fraction()*100))
				}
				continue
			}
			if resp.ID == "" {
				return "", c.fail(task, &FatalTransferError{Err: fmt.Errorf("%w: %+v", ErrUnexpectedResponse, resp.Video)})
			}
			task.State = StateSucceeded
			task.VideoID = resp.ID
			c.logger.Info("video uploaded", "id", resp.ID, "retries", task.Retries)
			return resp.ID, nil
		}

		if ctx.Err() != nil {
			return "", c.fail(task, ctx.Err())
		}
		if Classify(err) != Retriable {
			return "", c.fail(task, &FatalTransferError{Status: statusOf(err), Err: err})
		}

		task.LastErr = &RetriableTransferError{Status: statusOf(err), Err: err}
		if task.Retries >= c.cfg.Retry.MaxRetries {
			return "", c.fail(task, &RetryExhaustedError{Retries: task.Retries, Last: task.LastErr})
		}
		task.Retries++

		delay := c.cfg.Retry.Delay(task.Retries)
		c.logger.Warn("retriable upload error",
			"error", err,
			"retry", task.Retries,
			"sleep", delay.Round(time.Millisecond))
		if werr := c.cfg.Retry.Wait(ctx, delay); werr != nil {
			return "", c.fail(task, werr)
		}
	}
}

func (c *Client) fail(task *UploadTask, err error) error {
	task.State = StateFailed
	task.LastErr = err
	c.logger.Error("upload failed", "file", task.FilePath, "error", err)
	return err
}
