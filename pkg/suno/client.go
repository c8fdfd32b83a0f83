package suno

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/allinfinite/melodify/pkg/logger"
	"github.com/allinfinite/melodify/pkg/ratelimit"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.sunoapi.org"

// Client talks to the sunoapi.org music generation API.
type Client struct {
	client      *http.Client
	log         *zap.SugaredLogger
	ratelimit   ratelimit.Lock
	baseURL     string
	key         string
	callbackURL string
	model       string
	backoff     []time.Duration
}

type Config struct {
	Key         string
	BaseURL     string
	CallbackURL string
	Model       string
	Wait        time.Duration
	Client      *http.Client
	Logger      *zap.SugaredLogger
	// Backoff sets the waits between retries of read requests.
	Backoff []time.Duration
}

func New(cfg *Config) *Client {
	wait := cfg.Wait
	if wait == 0 {
		wait = 100 * time.Millisecond
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 2 * time.Minute,
		}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	callbackURL := cfg.CallbackURL
	if callbackURL == "" {
		callbackURL = defaultCallbackURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	b := cfg.Backoff
	if b == nil {
		b = backoff
	}
	return &Client{
		client:      client,
		log:         logger.Or(cfg.Logger),
		ratelimit:   ratelimit.New(wait),
		baseURL:     baseURL,
		key:         cfg.Key,
		callbackURL: callbackURL,
		model:       model,
		backoff:     b,
	}
}

var backoff = []time.Duration{
	2 * time.Second,
	5 * time.Second,
}

// do retries idempotent requests on timeouts and on gateway errors.
func (c *Client) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	maxAttempts := len(c.backoff) + 1
	attempts := 0
	var err error
	for {
		if err != nil {
			c.log.Debugw("suno: retrying", "path", path, "error", err)
		}
		var b []byte
		b, err = c.doAttempt(ctx, method, path, in)
		if err == nil {
			return b, nil
		}
		// Increase attempts and check if we should stop
		attempts++
		if attempts >= maxAttempts {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}

		var errStatus errStatusCode
		if !errors.As(err, &errStatus) {
			return nil, err
		}
		switch int(errStatus) {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests, 520:
		default:
			return nil, err
		}

		idx := attempts - 1
		if idx >= len(c.backoff) {
			idx = len(c.backoff) - 1
		}
		wait := c.backoff[idx]
		c.log.Debugw("suno: server seems to be down, waiting before retrying", "wait", wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// errStatusCode is an HTTP status code, or an API code inside a 200
// response.
type errStatusCode int

func (e errStatusCode) Error() string {
	return fmt.Sprintf("%d", e)
}

func (c *Client) doAttempt(ctx context.Context, method, path string, in any) ([]byte, error) {
	var body []byte
	var reqBody io.Reader
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("suno: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}
	c.log.Debugw("suno: do", "method", method, "path", path, "body", string(body))

	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("suno: couldn't create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("authorization", fmt.Sprintf("Bearer %s", c.key))
	if reqBody != nil {
		req.Header.Set("content-type", "application/json")
	}

	unlock := c.ratelimit.Lock(ctx)
	defer unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("suno: couldn't %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("suno: couldn't read response body: %w", err)
	}
	c.log.Debugw("suno: response", "method", method, "path", path, "status", resp.StatusCode, "body", string(respBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("suno: %s %s returned (%s): %w", method, path, truncate(string(respBody)), errStatusCode(resp.StatusCode))
	}
	if !gjson.ValidBytes(respBody) {
		return nil, fmt.Errorf("suno: %s %s returned invalid json (%s)", method, path, truncate(string(respBody)))
	}
	// The API reports errors with a code field inside the envelope
	if code := gjson.GetBytes(respBody, "code"); code.Exists() && code.Int() != http.StatusOK {
		msg := gjson.GetBytes(respBody, "msg").String()
		return nil, fmt.Errorf("suno: %s %s returned (%s): %w", method, path, msg, errStatusCode(code.Int()))
	}
	return respBody, nil
}

func truncate(s string) string {
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}
