package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/allinfinite/melodify/pkg/logger"
)

type Client struct {
	client *openai.Client
	model  string
	log    *zap.SugaredLogger
}

type Config struct {
	Token   string
	Model   string
	BaseURL string
	Client  *http.Client
	Logger  *zap.SugaredLogger
}

// New creates a whisper transcription client.
func New(cfg *Config) *Client {
	c := openai.DefaultConfig(cfg.Token)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	c.HTTPClient = cfg.Client
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &Client{
		client: openai.NewClientWithConfig(c),
		model:  model,
		log:    logger.Or(cfg.Logger),
	}
}

// Transcribe returns the plain text transcription of an audio file.
func (c *Client) Transcribe(ctx context.Context, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("openai: empty audio")
	}
	if name == "" {
		name = "audio.mp3"
	}
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: name,
		Reader:   bytes.NewReader(data),
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", fmt.Errorf("openai: couldn't create transcription: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	c.log.Debugw("openai: transcription created", "name", name, "chars", len(text))
	return text, nil
}
