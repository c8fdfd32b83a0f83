package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/allinfinite/melodify/pkg/analysis"
	"github.com/allinfinite/melodify/pkg/logger"
	"github.com/allinfinite/melodify/pkg/music"
	"github.com/allinfinite/melodify/pkg/storage"
	"github.com/allinfinite/melodify/pkg/style"
)

// Client calls the remix service http api.
type Client struct {
	client   *http.Client
	log      *zap.SugaredLogger
	baseURL  string
	username string
	password string
}

type Config struct {
	BaseURL  string
	Username string
	Password string
	Client   *http.Client
	Logger   *zap.SugaredLogger
}

func New(cfg *Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 5 * time.Minute,
		}
	}
	return &Client{
		client:   client,
		log:      logger.Or(cfg.Logger),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
	}
}

// APIError is a failure reported by the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %d %s", e.StatusCode, e.Message)
}

type Upload struct {
	FileURL     string `json:"fileUrl"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

// Upload sends an audio file.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (*Upload, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", name)
	if err != nil {
		return nil, fmt.Errorf("client: couldn't create form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("client: couldn't copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("client: couldn't close form: %w", err)
	}
	var resp Upload
	if err := c.do(ctx, http.MethodPost, "upload", mw.FormDataContentType(), &body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Process analyses an uploaded file.
func (c *Client) Process(ctx context.Context, fileURL string) (*analysis.Result, error) {
	var resp analysis.Result
	if err := c.doJSON(ctx, http.MethodPost, "process", map[string]string{"fileUrl": fileURL}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type GenerateRequest struct {
	FileURL  string            `json:"fileUrl"`
	Style    string            `json:"style"`
	Prompt   string            `json:"prompt,omitempty"`
	Metadata *storage.Metadata `json:"metadata,omitempty"`
}

// Generation is either a task to poll or a terminal result.
type Generation struct {
	TaskID   string          `json:"taskId"`
	SongID   string          `json:"songId"`
	Status   music.Status    `json:"status"`
	AudioURL string          `json:"audioUrl"`
	ImageURL string          `json:"previewImage"`
	Metadata *music.Metadata `json:"metadata"`
	Lyrics   *music.Lyrics   `json:"lyrics"`
}

func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (*Generation, error) {
	var resp Generation
	if err := c.doJSON(ctx, http.MethodPost, "generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type Status struct {
	Status   music.Status    `json:"status"`
	AudioURL string          `json:"audioUrl"`
	ImageURL string          `json:"imageUrl"`
	Metadata *music.Metadata `json:"metadata"`
	Lyrics   *music.Lyrics   `json:"lyrics"`
	Error    string          `json:"error"`
}

// Status queries a task once.
func (c *Client) Status(ctx context.Context, taskID string) (*Status, error) {
	var resp Status
	if err := c.doJSON(ctx, http.MethodGet, "status/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type WaitOptions struct {
	MaxAttempts int
	Interval    time.Duration
	// Progress is called with every non-terminal status.
	Progress func(attempt int, s *Status)
}

// Wait polls the task until it is complete. Failed queries are retried
// until the attempt budget is spent.
func (c *Client) Wait(ctx context.Context, taskID string, opts *WaitOptions) (*Status, error) {
	maxAttempts := music.DefaultMaxAttempts
	interval := music.DefaultInterval
	var progress func(int, *Status)
	if opts != nil {
		if opts.MaxAttempts > 0 {
			maxAttempts = opts.MaxAttempts
		}
		if opts.Interval > 0 {
			interval = opts.Interval
		}
		progress = opts.Progress
	}
	for attempt := 1; ; attempt++ {
		s, err := c.Status(ctx, taskID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Debugw("client: status query failed", "task", taskID, "attempt", attempt, "error", err)
		case s.Status == music.Complete:
			return s, nil
		case s.Status == music.Failed:
			msg := s.Error
			if msg == "" {
				msg = "generation failed"
			}
			return nil, fmt.Errorf("%w: %s", music.ErrGeneration, msg)
		default:
			if progress != nil {
				progress(attempt, s)
			}
		}
		if attempt >= maxAttempts {
			return nil, fmt.Errorf("%w: task %s after %d attempts", music.ErrPollingTimeout, taskID, attempt)
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// Result is a playable remix.
type Result struct {
	SongID   string
	AudioURL string
	ImageURL string
	Metadata *music.Metadata
	Lyrics   *music.Lyrics
}

// Deliver turns a generation into a playable result, waiting for live
// tasks to complete.
func (c *Client) Deliver(ctx context.Context, g *Generation, opts *WaitOptions) (*Result, error) {
	switch {
	case g.TaskID != "":
		s, err := c.Wait(ctx, g.TaskID, opts)
		if err != nil {
			return nil, err
		}
		return &Result{
			SongID:   g.SongID,
			AudioURL: s.AudioURL,
			ImageURL: s.ImageURL,
			Metadata: s.Metadata,
			Lyrics:   s.Lyrics,
		}, nil
	case g.AudioURL != "":
		return &Result{
			SongID:   g.SongID,
			AudioURL: g.AudioURL,
			ImageURL: g.ImageURL,
			Metadata: g.Metadata,
			Lyrics:   g.Lyrics,
		}, nil
	}
	return nil, errors.New("client: no task id or audio url returned from generation")
}

type songsResponse struct {
	Songs []*storage.Song `json:"songs"`
	Count int             `json:"count"`
}

func (c *Client) Songs(ctx context.Context) ([]*storage.Song, error) {
	var resp songsResponse
	if err := c.doJSON(ctx, http.MethodGet, "songs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Songs, nil
}

// Clear deletes all songs.
func (c *Client) Clear(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "songs", nil, nil)
}

// Song returns a single song by id.
func (c *Client) Song(ctx context.Context, id string) (*storage.Song, error) {
	var resp storage.Song
	if err := c.doJSON(ctx, http.MethodGet, "result/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type stylesResponse struct {
	Styles []*style.Style `json:"styles"`
}

func (c *Client) Styles(ctx context.Context) ([]*style.Style, error) {
	var resp stylesResponse
	if err := c.doJSON(ctx, http.MethodGet, "styles", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Styles, nil
}

// Download writes the file at u to w. Relative urls are resolved against
// the service address.
func (c *Client) Download(ctx context.Context, u string, w io.Writer) error {
	if strings.HasPrefix(u, "/") {
		u = c.baseURL + u
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("client: couldn't create request: %w", err)
	}
	if strings.HasPrefix(u, c.baseURL) {
		c.auth(req)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("client: couldn't download %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "couldn't download " + u}
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("client: couldn't write %s: %w", u, err)
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	var contentType string
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: couldn't marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, body, out)
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	u := fmt.Sprintf("%s/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("client: couldn't create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	c.auth(req)

	c.log.Debugw("client: request", "method", method, "path", path)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("client: couldn't %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: couldn't read response body: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: truncate(string(data), 200)}
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("client: couldn't unmarshal response body (%s): %w", truncate(string(data), 200), err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
