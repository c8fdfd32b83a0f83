package music

import (
	"context"
	"strings"
)

// Status is the canonical state of a generation task.
type Status string

const (
	Queued     Status = "queued"
	Processing Status = "processing"
	Complete   Status = "complete"
	Failed     Status = "error"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == Complete || s == Failed
}

type Metadata struct {
	Title    string   `json:"title,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Duration float64  `json:"duration,omitempty"`
}

// Task is a generation request as seen by the provider. It is only ever
// updated by reading its status.
type Task struct {
	ID           string   `json:"id"`
	Status       Status   `json:"status"`
	AudioURL     string   `json:"audio_url,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	AudioID      string   `json:"audio_id,omitempty"`
	Metadata     Metadata `json:"metadata"`
	ErrorMessage string   `json:"error_message,omitempty"`
	RawStatus    string   `json:"raw_status,omitempty"`
}

// Word is a lyric word aligned to the generated audio.
type Word struct {
	Word    string  `json:"word"`
	Success bool    `json:"success"`
	StartS  float64 `json:"startS"`
	EndS    float64 `json:"endS"`
	Palign  float64 `json:"palign"`
}

type Lyrics struct {
	AlignedWords []Word    `json:"alignedWords"`
	WaveformData []float64 `json:"waveformData,omitempty"`
	HootCer      float64   `json:"hootCer,omitempty"`
	IsStreamed   bool      `json:"isStreamed,omitempty"`
}

// Text joins the aligned words.
func (l *Lyrics) Text() string {
	if l == nil {
		return ""
	}
	words := make([]string, 0, len(l.AlignedWords))
	for _, w := range l.AlignedWords {
		words = append(words, strings.TrimSpace(w.Word))
	}
	return strings.Join(words, " ")
}

// Request holds the parameters of a remix.
type Request struct {
	AudioURL string
	Style    string
	Title    string
	Tags     string
	Prompt   string
}

// Provider is an external music generation service.
type Provider interface {
	// Submit starts a generation and returns the provider task id.
	Submit(ctx context.Context, req *Request) (string, error)
	// Status returns the current state of a task. Incomplete tasks aren't
	// an error.
	Status(ctx context.Context, taskID string) (*Task, error)
	// Lyrics returns the timestamped lyrics of a generated track. An empty
	// audioID selects the first track.
	Lyrics(ctx context.Context, taskID, audioID string) (*Lyrics, error)
}
