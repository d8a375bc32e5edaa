package upload

import (
	"fmt"
	"strings"

	"google.golang.org/api/youtube/v3"
)

// State is the lifecycle stage of an upload.
type State int

const (
	StatePending State = iota
	StateAuthenticating
	StateTransferring
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateTransferring:
		return "TRANSFERRING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Visibility is the privacy status of an uploaded video.
type Visibility string

const (
	Public   Visibility = "public"
	Private  Visibility = "private"
	Unlisted Visibility = "unlisted"
)

// ParseVisibility validates s as a Visibility.
func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(strings.ToLower(strings.TrimSpace(s))); v {
	case Public, Private, Unlisted:
		return v, nil
	default:
		return "", fmt.Errorf("invalid visibility %q: want public, private or unlisted", s)
	}
}

// UploadTask describes one upload. Only the Client mutates Retries,
// LastErr, State and VideoID.
type UploadTask struct {
	FilePath    string
	Title       string
	Description string
	Tags        []string
	Visibility  Visibility
	CategoryID  string

	Retries int
	LastErr error
	State   State
	VideoID string
}

// Video returns the metadata resource sent when the upload starts.
func (t *UploadTask) Video() *youtube.Video {
	v := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       t.Title,
			Description: t.Description,
			Tags:        t.Tags,
			CategoryId:  t.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: string(t.Visibility),
		},
	}
	if v.Status.PrivacyStatus == "" {
		v.Status.PrivacyStatus = string(Public)
	}
	return v
}

// Progress reports bytes acknowledged by the service.
type Progress struct {
	Sent  int64
	Total int64
}

// Fraction returns the acknowledged share of the file in [0,1].
func (p *Progress) Fraction() float64 {
	if p == nil || p.Total <= 0 {
		return 0
	}
	return float64(p.Sent) / float64(p.Total)
}

// Response is the service's final answer to an upload.
type Response struct {
	ID    string
	Video *youtube.Video
}
