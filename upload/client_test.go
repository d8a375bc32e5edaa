package upload

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"

	"shortmaker/retry"
)

type step struct {
	progress *Progress
	resp     *Response
	err      error
}

type fakeSession struct {
	steps  []step
	calls  int
	closed bool
}

func (s *fakeSession) NextChunk(ctx context.Context) (*Progress, *Response, error) {
	st := s.steps[len(s.steps)-1]
	if s.calls < len(s.steps) {
		st = s.steps[s.calls]
	}
	s.calls++
	return st.progress, st.resp, st.err
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeAuth struct{ err error }

func (a fakeAuth) Client(ctx context.Context) (*http.Client, error) {
	if a.err != nil {
		return nil, a.err
	}
	return http.DefaultClient, nil
}

func status(code int) error { return &googleapi.Error{Code: code, Message: http.StatusText(code)} }

func repeat(s step, n int) []step {
	out := make([]step, n)
	for i := range out {
		out[i] = s
	}
	return out
}

var done = step{resp: &Response{ID: "dQw4w9WgXcQ"}}

// newTestClient returns a client over session that records sleeps instead
// of sleeping.
func newTestClient(session Session, auth HTTPClientSource) (*Client, *[]time.Duration) {
	var sleeps []time.Duration
	cfg := DefaultConfig()
	cfg.Retry.Rand = func() float64 { return 0.5 }
	cfg.Retry.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	c := NewClient(auth, cfg, nil)
	c.OpenSession = func(context.Context, *http.Client, *UploadTask) (Session, error) { return session, nil }
	return c, &sleeps
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	session := &fakeSession{steps: append(repeat(step{err: status(503)}, 3), done)}
	client, sleeps := newTestClient(session, fakeAuth{})
	task := &UploadTask{FilePath: "out.mp4", Title: "t"}

	id, err := client.Upload(context.Background(), task)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if id != "dQw4w9WgXcQ" || task.VideoID != id {
		t.Errorf("id = %q, task.VideoID = %q", id, task.VideoID)
	}
	if task.State != StateSucceeded {
		t.Errorf("State = %v, want SUCCEEDED", task.State)
	}
	if task.Retries != 3 {
		t.Errorf("Retries = %d, want 3", task.Retries)
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("slept %v, want %v", *sleeps, want)
	}
	for i, d := range *sleeps {
		if d != want[i] {
			t.Errorf("sleep %d = %v, want %v", i+1, d, want[i])
		}
		if ceiling := time.Duration(1<<(i+1)) * time.Second; d < 0 || d > ceiling {
			t.Errorf("sleep %d = %v outside [0, %v]", i+1, d, ceiling)
		}
	}
	if !session.closed {
		t.Error("session not closed")
	}
}

func TestClient_FatalStatusNotRetried(t *testing.T) {
	session := &fakeSession{steps: []step{{err: status(403)}}}
	client, sleeps := newTestClient(session, fakeAuth{})
	task := &UploadTask{FilePath: "out.mp4"}

	_, err := client.Upload(context.Background(), task)
	var fatal *FatalTransferError
	if !errors.As(err, &fatal) || fatal.Status != 403 {
		t.Fatalf("Upload() error = %v, want *FatalTransferError with 403", err)
	}
	if task.Retries != 0 || len(*sleeps) != 0 || session.calls != 1 {
		t.Errorf("retries = %d, sleeps = %d, calls = %d, want 0/0/1", task.Retries, len(*sleeps), session.calls)
	}
	if task.State != StateFailed || task.LastErr != err {
		t.Errorf("task = %v / %v, want FAILED with the returned error", task.State, task.LastErr)
	}
}

func TestClient_RetryExhausted(t *testing.T) {
	session := &fakeSession{steps: []step{{err: status(500)}}}
	client, sleeps := newTestClient(session, fakeAuth{})
	task := &UploadTask{FilePath: "out.mp4"}

	_, err := client.Upload(context.Background(), task)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Upload() error = %v, want ErrRetryExhausted", err)
	}
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Retries != retry.DefaultMaxRetries {
		t.Errorf("RetryExhaustedError = %+v, want %d retries", exhausted, retry.DefaultMaxRetries)
	}
	if session.calls != 11 {
		t.Errorf("attempts = %d, want 11", session.calls)
	}
	if len(*sleeps) != 10 {
		t.Errorf("sleeps = %d, want 10", len(*sleeps))
	}
	if task.Retries != retry.DefaultMaxRetries {
		t.Errorf("task.Retries = %d, want %d", task.Retries, retry.DefaultMaxRetries)
	}
	var last *RetriableTransferError
	if !errors.As(err, &last) || last.Status != 500 {
		t.Errorf("last error = %v, want retriable 500", exhausted.Last)
	}
}

func TestClient_NilProgress(t *testing.T) {
	session := &fakeSession{steps: []step{{}, {}, done}}
	client, _ := newTestClient(session, fakeAuth{})

	id, err := client.Upload(context.Background(), &UploadTask{FilePath: "out.mp4"})
	if err != nil || id != "dQw4w9WgXcQ" {
		t.Errorf("Upload() = %q, %v, want dQw4w9WgXcQ", id, err)
	}
	if session.calls != 3 {
		t.Errorf("calls = %d, want 3", session.calls)
	}
}

func TestClient_ResponseWithoutID(t *testing.T) {
	session := &fakeSession{steps: []step{
		{progress: &Progress{Sent: 10, Total: 20}},
		{resp: &Response{Video: &youtube.Video{Kind: "youtube#video"}}},
	}}
	client, _ := newTestClient(session, fakeAuth{})
	task := &UploadTask{FilePath: "out.mp4"}

	_, err := client.Upload(context.Background(), task)
	if !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("Upload() error = %v, want ErrUnexpectedResponse", err)
	}
	if task.Retries != 0 {
		t.Errorf("Retries = %d, want 0", task.Retries)
	}
}

func TestClient_TransportErrorRetried(t *testing.T) {
	netErr := &url.Error{Op: "Put", URL: "https://upload", Err: errors.New("connection reset by peer")}
	session := &fakeSession{steps: []step{{err: netErr}, {progress: &Progress{Sent: 5, Total: 10}}, done}}
	client, sleeps := newTestClient(session, fakeAuth{})

	if _, err := client.Upload(context.Background(), &UploadTask{FilePath: "out.mp4"}); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(*sleeps) != 1 {
		t.Errorf("sleeps = %d, want 1", len(*sleeps))
	}
}

func TestClient_AuthFailure(t *testing.T) {
	session := &fakeSession{steps: []step{done}}
	client, _ := newTestClient(session, fakeAuth{err: ErrCredentials})
	task := &UploadTask{FilePath: "out.mp4"}

	_, err := client.Upload(context.Background(), task)
	if !errors.Is(err, ErrCredentials) {
		t.Fatalf("Upload() error = %v, want ErrCredentials", err)
	}
	if task.State != StateFailed || session.calls != 0 {
		t.Errorf("state = %v, calls = %d, want FAILED and no transfer", task.State, session.calls)
	}
}

func TestClient_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{steps: []step{{err: status(502)}}}
	client, _ := newTestClient(session, fakeAuth{})
	client.cfg.Retry.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := client.Upload(ctx, &UploadTask{FilePath: "out.mp4"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Upload() error = %v, want context.Canceled", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, Fatal},
		{"500", status(500), Retriable},
		{"502", status(502), Retriable},
		{"503", status(503), Retriable},
		{"504", status(504), Retriable},
		{"400", status(400), Fatal},
		{"401", status(401), Fatal},
		{"403", status(403), Fatal},
		{"404", status(404), Fatal},
		{"url error", &url.Error{Op: "Put", Err: errors.New("eof")}, Retriable},
		{"deadline", context.DeadlineExceeded, Retriable},
		{"canceled", context.Canceled, Fatal},
		{"plain", errors.New("boom"), Fatal},
		{"already fatal", &FatalTransferError{Err: status(503)}, Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseVisibility(t *testing.T) {
	for _, in := range []string{"public", "Private", " unlisted "} {
		if _, err := ParseVisibility(in); err != nil {
			t.Errorf("ParseVisibility(%q) error = %v", in, err)
		}
	}
	if _, err := ParseVisibility("friends"); err == nil {
		t.Error("ParseVisibility(friends) error = nil")
	}
}
