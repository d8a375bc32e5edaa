package storage

import "time"

// Record is one rendered short in the results ledger.
type Record struct {
	ID        string    `json:"id"`                   // Internal UUID
	Subreddit string    `json:"subreddit"`            // Subreddit the thread came from
	Filename  string    `json:"filename"`             // Deliverable file name under results/<subreddit>/
	Title     string    `json:"title"`                // Sanitized thread title
	ThreadID  string    `json:"thread_id"`            // Source thread id
	Credit    string    `json:"credit"`               // Background credit string
	YouTubeID string    `json:"youtube_id,omitempty"` // Remote id once uploaded
	Status    string    `json:"status"`               // See RecordStatus constants
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status constants for Record.Status.
const (
	RecordStatusRendered     = "rendered"
	RecordStatusUploaded     = "uploaded"
	RecordStatusUploadFailed = "upload_failed"
)
