// Package pipeline turns a prepared thread workspace into a rendered short,
// records it in the results ledger and optionally uploads it.
package pipeline

import (
	"github.com/google/uuid"

	"shortmaker/video"
)

// Thread is the reddit thread a short is made from. Comments holds one
// entry per narrated comment card.
type Thread struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"title" yaml:"title"`
	Comments []string `json:"comments" yaml:"comments"`
}

// Job is one render request.
type Job struct {
	// ID names the run in logs; generated when empty.
	ID         string           `json:"id" yaml:"id"`
	Subreddit  string           `json:"subreddit" yaml:"subreddit"`
	Thread     Thread           `json:"thread" yaml:"thread"`
	Background video.Background `json:"background" yaml:"background"`
	// Length is the target duration in seconds; 0 keeps the whole composite.
	Length float64 `json:"length" yaml:"length"`
}

// WorkspaceID is the sanitized thread id naming the asset directory.
func (j *Job) WorkspaceID() string {
	return SanitizeID(j.Thread.ID)
}

func (j *Job) ensureID() {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
}
