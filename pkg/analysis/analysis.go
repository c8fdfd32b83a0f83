package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/allinfinite/melodify/pkg/logger"
	"github.com/allinfinite/melodify/pkg/sound"
)

const (
	mockTranscription = "This is a sample transcription of the audio content."
	defaultKey        = "C major"
	defaultBPM        = 120
	mockDuration      = 180
	defaultMockDelay  = time.Second
)

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, name string, data []byte) (string, error)
}

// Fetcher reads an audio file by url.
type Fetcher interface {
	Fetch(ctx context.Context, base, raw string) ([]byte, error)
}

// Store saves a rendered waveform.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

type Result struct {
	Transcription string  `json:"transcription"`
	Key           string  `json:"key"`
	BPM           int     `json:"bpm"`
	Mood          string  `json:"mood"`
	Duration      float64 `json:"duration,omitempty"`
	WaveformURL   string  `json:"waveformUrl,omitempty"`
	Mock          bool    `json:"-"`
}

type Config struct {
	// Transcriber is nil when no credential is configured.
	Transcriber Transcriber
	Fetcher     Fetcher
	// Store is optional, waveforms aren't rendered without it.
	Store     Store
	BaseURL   string
	MockDelay time.Duration
	Logger    *zap.SugaredLogger
}

type Analyzer struct {
	transcriber Transcriber
	fetcher     Fetcher
	store       Store
	baseURL     string
	mockDelay   time.Duration
	log         *zap.SugaredLogger
}

func New(cfg *Config) *Analyzer {
	delay := cfg.MockDelay
	if delay == 0 {
		delay = defaultMockDelay
	}
	if delay < 0 {
		delay = 0
	}
	return &Analyzer{
		transcriber: cfg.Transcriber,
		fetcher:     cfg.Fetcher,
		store:       cfg.Store,
		baseURL:     cfg.BaseURL,
		mockDelay:   delay,
		log:         logger.Or(cfg.Logger),
	}
}

// Analyze extracts the transcription and musical features of an audio
// file. Any failure of the live path yields the mock analysis.
func (a *Analyzer) Analyze(ctx context.Context, fileURL string) (*Result, error) {
	if fileURL == "" {
		return nil, errors.New("analysis: missing file url")
	}
	if a.transcriber == nil || a.fetcher == nil {
		return a.mock(ctx)
	}
	r, err := a.analyze(ctx, fileURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.log.Warnw("analysis: falling back to mock analysis", "url", fileURL, "error", err)
		return a.mock(ctx)
	}
	return r, nil
}

func (a *Analyzer) analyze(ctx context.Context, fileURL string) (*Result, error) {
	data, err := a.fetcher.Fetch(ctx, a.baseURL, fileURL)
	if err != nil {
		return nil, fmt.Errorf("analysis: couldn't fetch audio: %w", err)
	}
	name := path.Base(fileURL)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	text, err := a.transcriber.Transcribe(ctx, name, data)
	if err != nil {
		return nil, fmt.Errorf("analysis: couldn't transcribe audio: %w", err)
	}
	r := &Result{
		Transcription: text,
		Key:           defaultKey,
		BPM:           defaultBPM,
		Mood:          InferMood(text),
	}

	decoded, err := sound.Decode(data)
	if err != nil {
		a.log.Debugw("analysis: couldn't decode audio", "url", fileURL, "error", err)
		return r, nil
	}
	r.Duration = math.Round(decoded.Duration().Seconds()*100) / 100
	if decoded.Silent(0.001) {
		a.log.Warnw("analysis: audio seems silent", "url", fileURL)
	}
	if a.store != nil {
		img, err := decoded.PlotWave("vocals")
		if err != nil {
			a.log.Debugw("analysis: couldn't plot waveform", "error", err)
			return r, nil
		}
		u, err := a.store.Put(ctx, waveformName(name), img, "image/jpeg")
		if err != nil {
			a.log.Warnw("analysis: couldn't store waveform", "error", err)
			return r, nil
		}
		r.WaveformURL = u
	}
	return r, nil
}

func (a *Analyzer) mock(ctx context.Context) (*Result, error) {
	if a.mockDelay > 0 {
		t := time.NewTimer(a.mockDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return &Result{
		Transcription: mockTranscription,
		Key:           defaultKey,
		BPM:           defaultBPM,
		Mood:          "happy",
		Duration:      mockDuration,
		Mock:          true,
	}, nil
}

func waveformName(name string) string {
	name = strings.TrimSuffix(name, path.Ext(name))
	if name == "" || name == "." || name == "/" {
		name = "audio"
	}
	return "waveform_" + name + ".jpg"
}

var moodRules = []struct {
	mood string
	re   *regexp.Regexp
}{
	{"happy", regexp.MustCompile(`happy|joy|excited|fun|celebrate`)},
	{"sad", regexp.MustCompile(`sad|lonely|cry|miss|lost`)},
	{"angry", regexp.MustCompile(`angry|mad|hate|fight`)},
	{"calm", regexp.MustCompile(`calm|peace|relax|quiet`)},
	{"romantic", regexp.MustCompile(`love|heart|romance`)},
}

// InferMood returns the mood of the first matching keyword rule.
func InferMood(text string) string {
	text = strings.ToLower(text)
	for _, r := range moodRules {
		if r.re.MatchString(text) {
			return r.mood
		}
	}
	return "neutral"
}
