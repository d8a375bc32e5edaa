package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"
)

// fakeUploadServer implements the resumable protocol in memory.
type fakeUploadServer struct {
	mu       sync.Mutex
	received []byte
	meta     youtube.Video
	query    string
	// failPut fails the PUT with this index (1-based) once with a 503.
	failPut int
	// dropPut keeps half of the PUT with this index, then closes the
	// connection without answering.
	dropPut int
	puts    int
	queries int
	starts  []int64
}

func (f *fakeUploadServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.query = r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&f.meta); err != nil {
			t.Errorf("decode metadata: %v", err)
		}
		w.Header().Set("Location", "http://"+r.Host+"/session/1")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("PUT /session/1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		cr := r.Header.Get("Content-Range")
		body, _ := io.ReadAll(r.Body)

		if strings.HasPrefix(cr, "bytes */") {
			f.queries++
			f.incomplete(w)
			return
		}

		f.puts++
		if f.puts == f.failPut {
			// Drop the bytes and fail.
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var from, to, total int64
		if _, err := fmt.Sscanf(cr, "bytes %d-%d/%d", &from, &to, &total); err != nil {
			t.Errorf("bad Content-Range %q", cr)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if from != int64(len(f.received)) {
			t.Errorf("chunk starts at %d, server holds %d bytes", from, len(f.received))
		}
		f.starts = append(f.starts, from)
		if f.puts == f.dropPut {
			f.received = append(f.received, body[:len(body)/2]...)
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("response writer cannot hijack")
				return
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Errorf("hijack: %v", err)
				return
			}
			conn.Close()
			return
		}
		f.received = append(f.received, body...)
		if int64(len(f.received)) == total {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"id":"abc123","kind":"youtube#video"}`)
			return
		}
		f.incomplete(w)
	})
	return mux
}

func (f *fakeUploadServer) incomplete(w http.ResponseWriter) {
	if len(f.received) > 0 {
		w.Header().Set("Range", "bytes=0-"+strconv.Itoa(len(f.received)-1))
	}
	w.WriteHeader(statusResumeIncomplete)
}

func writeMedia(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := bytes.Repeat([]byte("0123456789abcdef"), size/16+1)[:size]
	path := filepath.Join(t.TempDir(), "What is your best memory.mp4")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path, data
}

func TestResumableSession_ResumesAfterServerError(t *testing.T) {
	fake := &fakeUploadServer{failPut: 2}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	path, data := writeMedia(t, 2*googleapi.MinUploadChunkSize+1000)

	client, sleeps := newTestClient(nil, fakeAuth{})
	client.cfg.Session.Endpoint = srv.URL + "/upload/youtube/v3/videos"
	client.cfg.Session.ChunkSize = googleapi.MinUploadChunkSize
	client.OpenSession = func(ctx context.Context, hc *http.Client, task *UploadTask) (Session, error) {
		return OpenSession(hc, task, client.cfg.Session)
	}

	task := &UploadTask{
		FilePath:    path,
		Title:       "What is your best memory|Best of memes!#shorts",
		Description: "desc",
		Tags:        []string{"meme", "reddit"},
		Visibility:  Unlisted,
	}
	id, err := client.Upload(context.Background(), task)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if id != "abc123" {
		t.Errorf("id = %q, want abc123", id)
	}
	if !bytes.Equal(fake.received, data) {
		t.Errorf("server received %d bytes, want the %d byte file", len(fake.received), len(data))
	}
	if task.Retries != 1 || len(*sleeps) != 1 {
		t.Errorf("retries = %d, sleeps = %d, want 1 and 1", task.Retries, len(*sleeps))
	}
	if fake.queries != 1 {
		t.Errorf("offset queries = %d, want 1", fake.queries)
	}
	if fake.puts != 4 {
		t.Errorf("chunk PUTs = %d, want 4 (three chunks plus the failed one)", fake.puts)
	}

	if !strings.Contains(fake.query, "uploadType=resumable") {
		t.Errorf("session query = %q, want uploadType=resumable", fake.query)
	}
	if fake.meta.Snippet == nil || fake.meta.Snippet.Title != task.Title {
		t.Errorf("metadata snippet = %+v", fake.meta.Snippet)
	}
	if fake.meta.Status == nil || fake.meta.Status.PrivacyStatus != "unlisted" {
		t.Errorf("metadata status = %+v", fake.meta.Status)
	}
}

func TestResumableSession_ResumesAfterDroppedConnection(t *testing.T) {
	fake := &fakeUploadServer{dropPut: 2}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	chunk := int64(googleapi.MinUploadChunkSize)
	path, data := writeMedia(t, int(3*chunk))

	client, sleeps := newTestClient(nil, fakeAuth{})
	client.cfg.Session.Endpoint = srv.URL + "/upload/youtube/v3/videos"
	client.cfg.Session.ChunkSize = chunk
	client.OpenSession = func(ctx context.Context, hc *http.Client, task *UploadTask) (Session, error) {
		return OpenSession(hc, task, client.cfg.Session)
	}

	task := &UploadTask{FilePath: path, Title: "What is your best memory"}
	id, err := client.Upload(context.Background(), task)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if id != "abc123" {
		t.Errorf("id = %q, want abc123", id)
	}
	if !bytes.Equal(fake.received, data) {
		t.Errorf("server received %d bytes, want the %d byte file", len(fake.received), len(data))
	}
	if task.Retries != 1 || len(*sleeps) != 1 {
		t.Errorf("retries = %d, sleeps = %d, want 1 and 1", task.Retries, len(*sleeps))
	}
	if fake.queries != 1 {
		t.Errorf("offset queries = %d, want 1", fake.queries)
	}

	// The chunk after the drop starts where the server stopped, mid-chunk.
	want := []int64{0, chunk, chunk + chunk/2, 2*chunk + chunk/2}
	if fmt.Sprint(fake.starts) != fmt.Sprint(want) {
		t.Errorf("chunk offsets = %v, want %v", fake.starts, want)
	}
}

func TestResumableSession_FatalStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"quotaExceeded"}}`)
	}))
	defer srv.Close()

	path, _ := writeMedia(t, 100)
	session, err := OpenSession(srv.Client(), &UploadTask{FilePath: path}, SessionConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	defer session.Close()

	_, _, err = session.NextChunk(context.Background())
	if Classify(err) != Fatal || statusOf(err) != http.StatusForbidden {
		t.Errorf("NextChunk() error = %v, want fatal 403", err)
	}
}

func TestOpenSession_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mp4")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenSession(http.DefaultClient, &UploadTask{FilePath: path}, SessionConfig{}); err == nil {
		t.Error("OpenSession() error = nil, want error for empty file")
	}
	if _, err := OpenSession(http.DefaultClient, &UploadTask{FilePath: path + ".missing"}, SessionConfig{}); err == nil {
		t.Error("OpenSession() error = nil, want error for missing file")
	}
}

func TestEffectiveChunkSize(t *testing.T) {
	unit := int64(googleapi.MinUploadChunkSize)
	tests := []struct {
		in, want int64
	}{
		{-1, googleapi.DefaultUploadChunkSize},
		{0, googleapi.DefaultUploadChunkSize},
		{1, unit},
		{unit, unit},
		{unit + 1, 2 * unit},
	}
	for _, tt := range tests {
		if got := EffectiveChunkSize(tt.in); got != tt.want {
			t.Errorf("EffectiveChunkSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseRangeEnd(t *testing.T) {
	if n, err := parseRangeEnd("bytes=0-262143"); err != nil || n != 262143 {
		t.Errorf("parseRangeEnd() = %d, %v, want 262143", n, err)
	}
	for _, bad := range []string{"bytes 0-1", "bytes=0", "bytes=0-x"} {
		if _, err := parseRangeEnd(bad); err == nil {
			t.Errorf("parseRangeEnd(%q) error = nil", bad)
		}
	}
}
