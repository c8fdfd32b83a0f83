package melodify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/allinfinite/melodify/pkg/client"
	"github.com/allinfinite/melodify/pkg/logger"
	"github.com/allinfinite/melodify/pkg/storage"
)

type Config struct {
	Server      string
	Username    string
	Password    string
	Timeout     time.Duration
	Interval    time.Duration
	MaxAttempts int
	Logger      *zap.SugaredLogger
}

// Remix uploads a vocal recording, analyses it, requests a remix in the
// given style and downloads the result to output.
func Remix(ctx context.Context, cfg *Config, file, style, prompt, output string) (*client.Result, error) {
	log := logger.Or(cfg.Logger)
	if file == "" {
		return nil, fmt.Errorf("melodify: input file not specified")
	}
	if style == "" {
		return nil, fmt.Errorf("melodify: style not specified")
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	c := client.New(&client.Config{
		BaseURL:  cfg.Server,
		Username: cfg.Username,
		Password: cfg.Password,
		Logger:   log,
	})

	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("melodify: couldn't open %s: %w", file, err)
	}
	up, err := c.Upload(ctx, filepath.Base(file), f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("melodify: couldn't upload: %w", err)
	}
	log.Infow("melodify: uploaded", "url", up.FileURL, "type", up.ContentType, "size", up.Size)

	an, err := c.Process(ctx, up.FileURL)
	if err != nil {
		return nil, fmt.Errorf("melodify: couldn't analyse: %w", err)
	}
	log.Infow("melodify: analysed", "mood", an.Mood, "key", an.Key, "bpm", an.BPM, "duration", an.Duration)

	g, err := c.Generate(ctx, &client.GenerateRequest{
		FileURL: up.FileURL,
		Style:   style,
		Prompt:  prompt,
		Metadata: &storage.Metadata{
			Transcription: an.Transcription,
			Mood:          an.Mood,
			Key:           an.Key,
			BPM:           an.BPM,
			Duration:      an.Duration,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("melodify: couldn't generate: %w", err)
	}
	if g.TaskID != "" {
		log.Infow("melodify: generation submitted", "task", g.TaskID, "song", g.SongID)
	}

	res, err := c.Deliver(ctx, g, &client.WaitOptions{
		MaxAttempts: cfg.MaxAttempts,
		Interval:    cfg.Interval,
		Progress: func(attempt int, s *client.Status) {
			log.Infow("melodify: waiting", "task", g.TaskID, "attempt", attempt, "status", s.Status)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("melodify: couldn't get remix: %w", err)
	}
	log.Infow("melodify: remix ready", "song", res.SongID, "url", res.AudioURL)

	if output == "" {
		return res, nil
	}
	output = outputPath(output, res)
	if err := download(ctx, c, res.AudioURL, output); err != nil {
		return nil, err
	}
	log.Infow("melodify: remix saved", "output", output)
	return res, nil
}

// outputPath returns a file name inside output when output is a folder.
func outputPath(output string, res *client.Result) string {
	info, err := os.Stat(output)
	if err != nil || !info.IsDir() {
		return output
	}
	name := res.SongID
	if res.Metadata != nil && res.Metadata.Title != "" {
		name = strings.ReplaceAll(res.Metadata.Title, " ", "_")
		if res.SongID != "" {
			name = fmt.Sprintf("%s_%s", name, res.SongID)
		}
	}
	if name == "" {
		name = "remix"
	}
	ext := filepath.Ext(strings.SplitN(res.AudioURL, "?", 2)[0])
	if ext == "" || len(ext) > 5 {
		ext = ".mp3"
	}
	return filepath.Join(output, filepath.Base(name)+ext)
}

func download(ctx context.Context, c *client.Client, u, output string) error {
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("melodify: couldn't create output file: %w", err)
	}
	if err := c.Download(ctx, u, f); err != nil {
		_ = f.Close()
		_ = os.Remove(output)
		return fmt.Errorf("melodify: couldn't download remix: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("melodify: couldn't close output file: %w", err)
	}
	return nil
}
