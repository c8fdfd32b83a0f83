package suno

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/allinfinite/melodify/pkg/music"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

const (
	defaultModel       = "V4_5PLUS"
	defaultCallbackURL = "https://api.example.com/callback"
	negativeTags       = "harsh, aggressive, distorted"

	// Keep the vocals clearly audible over the generated instrumental
	audioWeight         = 0.9
	styleWeight         = 0.65
	weirdnessConstraint = 0.5
)

var _ music.Provider = (*Client)(nil)

type addInstrumentalRequest struct {
	UploadURL           string  `json:"uploadUrl"`
	Title               string  `json:"title"`
	Tags                string  `json:"tags"`
	NegativeTags        string  `json:"negativeTags"`
	CallBackURL         string  `json:"callBackUrl"`
	Model               string  `json:"model"`
	AudioWeight         float64 `json:"audioWeight"`
	StyleWeight         float64 `json:"styleWeight"`
	WeirdnessConstraint float64 `json:"weirdnessConstraint"`
}

// Submit starts an add-instrumental generation on top of the uploaded
// vocals. It is sent once, without retries.
func (c *Client) Submit(ctx context.Context, req *music.Request) (string, error) {
	tags := req.Tags
	if tags == "" {
		tags = fmt.Sprintf("%s, upbeat, modern", req.Style)
	}
	title := req.Title
	if title == "" {
		title = fmt.Sprintf("%s Remix", req.Style)
	}
	in := &addInstrumentalRequest{
		UploadURL:           req.AudioURL,
		Title:               title,
		Tags:                tags,
		NegativeTags:        negativeTags,
		CallBackURL:         c.callbackURL,
		Model:               c.model,
		AudioWeight:         audioWeight,
		StyleWeight:         styleWeight,
		WeirdnessConstraint: weirdnessConstraint,
	}
	b, err := c.doAttempt(ctx, http.MethodPost, "/api/v1/generate/add-instrumental", in)
	if err != nil {
		return "", err
	}
	taskID := gjson.GetBytes(b, "data.taskId").String()
	if taskID == "" {
		return "", fmt.Errorf("suno: missing task id in response (%s)", truncate(string(b)))
	}
	c.log.Debugw("suno: instrumental submitted", "task", taskID, "title", title)
	return taskID, nil
}

type statusRule struct {
	match  func(raw string) bool
	status music.Status
}

// statusRules map the provider vocabulary to canonical states. They are
// evaluated in order and unknown values fall through to queued.
var statusRules = []statusRule{
	{
		match:  func(s string) bool { return s == "SUCCESS" },
		status: music.Complete,
	},
	{
		match:  func(s string) bool { return strings.Contains(s, "FAILED") || strings.Contains(s, "ERROR") },
		status: music.Failed,
	},
	{
		match:  func(s string) bool { return s == "TEXT_SUCCESS" || s == "FIRST_SUCCESS" },
		status: music.Processing,
	},
	{
		match:  func(s string) bool { return s == "PENDING" },
		status: music.Queued,
	},
}

// ParseStatus maps a raw provider status to a canonical one.
func ParseStatus(raw string) music.Status {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, r := range statusRules {
		if r.match(s) {
			return r.status
		}
	}
	return music.Queued
}

// Status queries the record info of a task.
func (c *Client) Status(ctx context.Context, taskID string) (*music.Task, error) {
	path := "/api/v1/generate/record-info?taskId=" + url.QueryEscape(taskID)
	b, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return parseTask(taskID, b)
}

func parseTask(taskID string, b []byte) (*music.Task, error) {
	data := gjson.GetBytes(b, "data")
	if !data.IsObject() {
		return nil, fmt.Errorf("suno: missing data in record info (%s)", truncate(string(b)))
	}
	raw := data.Get("status").String()
	t := &music.Task{
		ID:        taskID,
		Status:    ParseStatus(raw),
		RawStatus: raw,
	}
	if id := data.Get("taskId").String(); id != "" {
		t.ID = id
	}

	// Only the first generated track is used
	track := data.Get("response.sunoData.0")
	if track.Exists() {
		t.AudioID = track.Get("id").String()
		t.AudioURL = track.Get("audioUrl").String()
		if t.AudioURL == "" {
			t.AudioURL = track.Get("streamAudioUrl").String()
		}
		t.ImageURL = track.Get("imageUrl").String()
		t.Metadata = music.Metadata{
			Title:    track.Get("title").String(),
			Tags:     splitTags(track.Get("tags").String()),
			Duration: track.Get("duration").Float(),
		}
	}

	if t.Status == music.Failed {
		t.ErrorMessage, _ = lo.Coalesce(
			data.Get("errorMessage").String(),
			data.Get("errorCode").String(),
			raw,
		)
	}
	return t, nil
}

func splitTags(s string) []string {
	tags := lo.Map(strings.Split(s, ","), func(t string, _ int) string {
		return strings.TrimSpace(t)
	})
	return lo.Compact(tags)
}

type lyricsRequest struct {
	TaskID     string `json:"taskId"`
	AudioID    string `json:"audioId,omitempty"`
	MusicIndex *int   `json:"musicIndex,omitempty"`
}

// Lyrics returns the timestamped lyrics of a generated track. An empty
// audioID selects the first track.
func (c *Client) Lyrics(ctx context.Context, taskID, audioID string) (*music.Lyrics, error) {
	in := &lyricsRequest{
		TaskID:  taskID,
		AudioID: audioID,
	}
	if audioID == "" {
		in.MusicIndex = lo.ToPtr(0)
	}
	b, err := c.do(ctx, http.MethodPost, "/api/v1/generate/get-timestamped-lyrics", in)
	if err != nil {
		return nil, err
	}
	data := gjson.GetBytes(b, "data")
	if !data.IsObject() {
		return nil, music.ErrLyricsUnavailable
	}
	var l music.Lyrics
	if err := json.Unmarshal([]byte(data.Raw), &l); err != nil {
		return nil, fmt.Errorf("suno: couldn't unmarshal lyrics: %w", err)
	}
	if len(l.AlignedWords) == 0 {
		return nil, music.ErrLyricsUnavailable
	}
	return &l, nil
}
