package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"
)

// DefaultEndpoint is the YouTube Data API media upload endpoint for videos.
const DefaultEndpoint = "https://www.googleapis.com/upload/youtube/v3/videos"

// statusResumeIncomplete is the "308 Resume Incomplete" answer to a chunk.
const statusResumeIncomplete = 308

// Session transfers one file chunk by chunk. NextChunk returns a nil
// Response while the upload is still in progress.
type Session interface {
	NextChunk(ctx context.Context) (*Progress, *Response, error)
	Close() error
}

// SessionConfig configures a ResumableSession.
type SessionConfig struct {
	// Endpoint defaults to DefaultEndpoint.
	Endpoint string
	// ChunkSize is -1 for the library default or a byte count, rounded up to
	// a multiple of googleapi.MinUploadChunkSize.
	ChunkSize int64
	Limiter   *ChunkLimiter
	Logger    *slog.Logger
}

// EffectiveChunkSize resolves a configured chunk size.
func EffectiveChunkSize(size int64) int64 {
	if size <= 0 {
		return googleapi.DefaultUploadChunkSize
	}
	unit := int64(googleapi.MinUploadChunkSize)
	if rem := size % unit; rem != 0 {
		size += unit - rem
	}
	return size
}

// ResumableSession implements the resumable upload protocol: one POST to
// open a session URI, then PUTs of byte ranges until the service returns the
// created video. At most one request is in flight.
type ResumableSession struct {
	client      *http.Client
	endpoint    string
	chunkSize   int64
	limiter     *ChunkLimiter
	logger      *slog.Logger
	meta        *youtube.Video
	media       *os.File
	size        int64
	contentType string

	uri    string
	offset int64
	resync bool
}

// OpenSession opens task.FilePath for a resumable upload. Nothing is sent
// until the first NextChunk.
func OpenSession(client *http.Client, task *UploadTask, cfg SessionConfig) (*ResumableSession, error) {
	f, err := os.Open(task.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat upload file: %w", err)
	}
	if info.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("upload file %s is empty", task.FilePath)
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctype := mime.TypeByExtension(filepath.Ext(task.FilePath))
	if ctype == "" {
		ctype = "video/*"
	}

	return &ResumableSession{
		client:      client,
		endpoint:    cfg.Endpoint,
		chunkSize:   EffectiveChunkSize(cfg.ChunkSize),
		limiter:     cfg.Limiter,
		logger:      cfg.Logger.With("component", "resumable"),
		meta:        task.Video(),
		media:       f,
		size:        info.Size(),
		contentType: ctype,
	}, nil
}

// Close releases the media file.
func (s *ResumableSession) Close() error {
	return s.media.Close()
}

// Offset returns the number of bytes the service has acknowledged.
func (s *ResumableSession) Offset() int64 { return s.offset }

// NextChunk sends the next byte range. After a failed request it first asks
// the service for the acknowledged offset so the retry resumes from there.
func (s *ResumableSession) NextChunk(ctx context.Context) (*Progress, *Response, error) {
	if s.uri == "" {
		if err := s.initiate(ctx); err != nil {
			return nil, nil, err
		}
	}
	if s.resync {
		progress, resp, err := s.query(ctx)
		if err != nil || resp != nil {
			return progress, resp, err
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	end := s.offset + s.chunkSize
	if end > s.size {
		end = s.size
	}
	body := io.NewSectionReader(s.media, s.offset, end-s.offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.uri, body)
	if err != nil {
		return nil, nil, err
	}
	req.ContentLength = end - s.offset
	req.Header.Set("Content-Type", s.contentType)
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", s.offset, end-1, s.size))

	s.logger.Debug("sending chunk", "from", s.offset, "to", end, "total", s.size)
	return s.handle(s.client.Do(req))
}

func (s *ResumableSession) initiate(ctx context.Context) error {
	meta, err := json.Marshal(s.meta)
	if err != nil {
		return fmt.Errorf("encode video metadata: %w", err)
	}

	u, err := url.Parse(s.endpoint)
	if err != nil {
		return fmt.Errorf("parse upload endpoint: %w", err)
	}
	q := u.Query()
	q.Set("uploadType", "resumable")
	q.Set("part", "snippet,status")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(meta))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(s.size, 10))
	req.Header.Set("X-Upload-Content-Type", s.contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	if err := googleapi.CheckResponse(resp); err != nil {
		return err
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return &FatalTransferError{Status: resp.StatusCode, Err: errors.New("upload session has no Location header")}
	}
	s.uri = loc
	s.logger.Debug("opened upload session", "size", s.size, "chunk_size", s.chunkSize)
	return nil
}

// query asks the service how many bytes it holds.
func (s *ResumableSession) query(ctx context.Context) (*Progress, *Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.uri, nil)
	if err != nil {
		return nil, nil, err
	}
	req.ContentLength = 0
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", s.size))

	progress, resp, err := s.handle(s.client.Do(req))
	if err == nil {
		s.logger.Debug("resumed upload", "offset", s.offset)
	}
	return progress, resp, err
}

// handle interprets the answer to a PUT against the session URI.
func (s *ResumableSession) handle(resp *http.Response, err error) (*Progress, *Response, error) {
	if err != nil {
		s.resync = true
		return nil, nil, err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == statusResumeIncomplete:
		s.offset = 0
		if r := resp.Header.Get("Range"); r != "" {
			n, perr := parseRangeEnd(r)
			if perr != nil {
				s.resync = true
				return nil, nil, &FatalTransferError{Status: resp.StatusCode, Err: perr}
			}
			s.offset = n + 1
		}
		s.resync = false
		return &Progress{Sent: s.offset, Total: s.size}, nil, nil

	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		s.resync = false
		s.offset = s.size
		var v youtube.Video
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("decode upload response: %w", err)
		}
		return &Progress{Sent: s.size, Total: s.size}, &Response{ID: v.Id, Video: &v}, nil
	}

	s.resync = true
	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, nil, err
	}
	return nil, nil, &FatalTransferError{Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
}

// parseRangeEnd reads n from a "bytes=0-n" Range header.
func parseRangeEnd(h string) (int64, error) {
	_, span, ok := strings.Cut(h, "=")
	if !ok {
		return 0, fmt.Errorf("malformed Range header %q", h)
	}
	_, end, ok := strings.Cut(span, "-")
	if !ok {
		return 0, fmt.Errorf("malformed Range header %q", h)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(end), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed Range header %q: %w", h, err)
	}
	return n, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
