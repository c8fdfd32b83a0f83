package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/allinfinite/melodify/pkg/cache"
	"github.com/allinfinite/melodify/pkg/filestore"
	"github.com/allinfinite/melodify/pkg/logger"
	"go.uber.org/zap"
)

// Mode selects how submissions are handled.
type Mode string

const (
	// ModeAuto uses the provider when configured and falls back to the mock
	// generator otherwise or when submission fails.
	ModeAuto Mode = "auto"
	// ModeLive always uses the provider.
	ModeLive Mode = "live"
	// ModeMock always uses the mock generator.
	ModeMock Mode = "mock"
)

// ParseMode parses a mode name, defaulting to auto.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeLive, ModeMock:
		return Mode(s), nil
	}
	return "", fmt.Errorf("music: invalid mode %q", s)
}

const (
	DefaultMaxAttempts   = 60
	DefaultInterval      = 5 * time.Second
	defaultProbeTimeout  = 10 * time.Second
	defaultSubmitTimeout = 30 * time.Second
	defaultCacheTTL      = 24 * time.Hour
)

type Config struct {
	// Provider is nil when no credential is configured.
	Provider Provider
	Mode     Mode
	// BaseURL is the public address used to resolve relative audio URLs.
	BaseURL string
	// Client is used for the input probe.
	Client        *http.Client
	ProbeTimeout  time.Duration
	SubmitTimeout time.Duration
	MockDelay     time.Duration
	Interval      time.Duration
	MaxAttempts   int
	Cache         cache.Cache
	CacheTTL      time.Duration
	Logger        *zap.SugaredLogger
}

// Orchestrator submits remixes to a provider and tracks them to
// completion.
type Orchestrator struct {
	provider      Provider
	mode          Mode
	baseURL       string
	client        *http.Client
	probeTimeout  time.Duration
	submitTimeout time.Duration
	mock          *Mock
	interval      time.Duration
	maxAttempts   int
	cache         cache.Cache
	cacheTTL      time.Duration
	log           *zap.SugaredLogger
	wg            sync.WaitGroup
}

func New(cfg *Config) *Orchestrator {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeAuto
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout == 0 {
		probeTimeout = defaultProbeTimeout
	}
	submitTimeout := cfg.SubmitTimeout
	if submitTimeout == 0 {
		submitTimeout = defaultSubmitTimeout
	}
	mockDelay := cfg.MockDelay
	if mockDelay == 0 {
		mockDelay = defaultMockDelay
	}
	if mockDelay < 0 {
		mockDelay = 0
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Orchestrator{
		provider:      cfg.Provider,
		mode:          mode,
		baseURL:       cfg.BaseURL,
		client:        client,
		probeTimeout:  probeTimeout,
		submitTimeout: submitTimeout,
		mock:          &Mock{Delay: mockDelay},
		interval:      interval,
		maxAttempts:   maxAttempts,
		cache:         cfg.Cache,
		cacheTTL:      cacheTTL,
		log:           logger.Or(cfg.Logger),
	}
}

// Live reports whether submissions may reach the provider.
func (o *Orchestrator) Live() bool {
	return o.provider != nil && o.mode != ModeMock
}

// Kind tells which strategy served a submission.
type Kind int

const (
	// Live submissions return a task id to poll.
	Live Kind = iota + 1
	// MockTerminal submissions return an already complete result.
	MockTerminal
)

func (k Kind) String() string {
	switch k {
	case Live:
		return "live"
	case MockTerminal:
		return "mock"
	}
	return "unknown"
}

// Submission is the outcome of Submit. Live submissions carry TaskID,
// terminal ones carry Result.
type Submission struct {
	Kind   Kind
	TaskID string
	Result *Task
	// Cause is the reason the mock generator was used instead of the
	// provider, if any.
	Cause error
}

// Submit sends a remix request. The strategy is chosen once: the provider
// when it is configured and accepts the request, otherwise the mock
// generator.
func (o *Orchestrator) Submit(ctx context.Context, req *Request) (*Submission, error) {
	if req.AudioURL == "" {
		return nil, errors.New("music: missing audio url")
	}
	switch {
	case o.mode == ModeMock:
		return o.submitMock(ctx, req, nil)
	case o.provider == nil:
		if o.mode == ModeLive {
			return nil, ErrConfiguration
		}
		return o.submitMock(ctx, req, ErrConfiguration)
	}

	u, err := filestore.Absolute(o.baseURL, req.AudioURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachableInput, err)
	}
	if err := o.probe(ctx, u); err != nil {
		return nil, err
	}

	live := *req
	live.AudioURL = u
	if live.Title == "" {
		live.Title = fmt.Sprintf("%s Remix", req.Style)
	}
	submitCtx, cancel := context.WithTimeout(ctx, o.submitTimeout)
	taskID, err := o.provider.Submit(submitCtx, &live)
	cancel()
	if err == nil && taskID == "" {
		err = errors.New("empty task id")
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		err = classify(ErrProviderSubmission, err)
		if o.mode == ModeLive {
			return nil, err
		}
		o.log.Warnw("music: falling back to mock generator", "error", err)
		return o.submitMock(ctx, req, err)
	}
	o.log.Infow("music: task submitted", "task", taskID, "style", req.Style)
	return &Submission{Kind: Live, TaskID: taskID}, nil
}

func (o *Orchestrator) submitMock(ctx context.Context, req *Request, cause error) (*Submission, error) {
	t, err := o.mock.Generate(ctx, req.AudioURL, req.Style, req.Prompt)
	if err != nil {
		return nil, err
	}
	o.log.Infow("music: mock result generated", "task", t.ID, "style", req.Style)
	return &Submission{Kind: MockTerminal, Result: t, Cause: cause}, nil
}

// probe checks that the input audio can be fetched.
func (o *Orchestrator) probe(ctx context.Context, u string) error {
	ctx, cancel := context.WithTimeout(ctx, o.probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachableInput, err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return classify(ErrUnreachableInput, err)
	}
	resp.Body.Close()
	// Some hosts don't implement HEAD
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusMethodNotAllowed {
		return fmt.Errorf("%w: HEAD %s returned %d", ErrUnreachableInput, u, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		o.log.Warnw("music: unexpected probe status", "url", u, "status", resp.StatusCode)
	}
	return nil
}

// PollStatus queries the provider once.
func (o *Orchestrator) PollStatus(ctx context.Context, taskID string) (*Task, error) {
	if taskID == "" {
		return nil, errors.New("music: missing task id")
	}
	if o.provider == nil {
		return nil, ErrConfiguration
	}
	if t, ok := o.cachedTask(ctx, taskID); ok {
		return t, nil
	}
	t, err := o.provider.Status(ctx, taskID)
	if err != nil {
		return nil, classify(ErrProviderStatus, err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: empty response for task %s", ErrProviderStatus, taskID)
	}
	if t.ID == "" {
		t.ID = taskID
	}
	if t.Status == Complete && t.AudioURL == "" {
		return nil, fmt.Errorf("%w: task %s is complete without audio", ErrProviderStatus, taskID)
	}
	if t.Status.Terminal() {
		o.cacheTask(ctx, t)
	}
	return t, nil
}

type pollOptions struct {
	maxAttempts int
	interval    time.Duration
	progress    func(*Task)
}

type PollOption func(*pollOptions)

// WithMaxAttempts sets the number of status queries before giving up.
func WithMaxAttempts(n int) PollOption {
	return func(o *pollOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithInterval sets the wait between status queries.
func WithInterval(d time.Duration) PollOption {
	return func(o *pollOptions) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithProgress registers a callback for non-terminal states.
func WithProgress(fn func(*Task)) PollOption {
	return func(o *pollOptions) {
		o.progress = fn
	}
}

// AwaitCompletion polls the task until it is complete or failed. Failed
// queries are retried until the attempt budget is spent.
func (o *Orchestrator) AwaitCompletion(ctx context.Context, taskID string, opts ...PollOption) (*Task, error) {
	if o.provider == nil {
		return nil, ErrConfiguration
	}
	p := &pollOptions{
		maxAttempts: o.maxAttempts,
		interval:    o.interval,
	}
	for _, opt := range opts {
		opt(p)
	}

	for attempt := 1; ; attempt++ {
		t, err := o.PollStatus(ctx, taskID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.log.Debugw("music: status query failed", "task", taskID, "attempt", attempt, "error", err)
		case t.Status == Complete:
			return t, nil
		case t.Status == Failed:
			msg := t.ErrorMessage
			if msg == "" {
				msg = t.RawStatus
			}
			return nil, fmt.Errorf("%w: task %s: %s", ErrGeneration, taskID, msg)
		default:
			o.log.Debugw("music: task in progress", "task", taskID, "status", t.Status, "attempt", attempt)
			if p.progress != nil {
				p.progress(t)
			}
		}
		if attempt >= p.maxAttempts {
			return nil, fmt.Errorf("%w: task %s after %d attempts", ErrPollingTimeout, taskID, attempt)
		}
		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Watch waits for the task in the background and calls done with the
// outcome. Cancelling ctx stops polling, the provider task keeps running.
func (o *Orchestrator) Watch(ctx context.Context, taskID string, done func(*Task, error)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		t, err := o.AwaitCompletion(ctx, taskID)
		done(t, err)
	}()
}

// Wait blocks until all watchers have returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// FetchLyrics returns the timestamped lyrics of a completed task, or nil if
// they can't be obtained.
func (o *Orchestrator) FetchLyrics(ctx context.Context, taskID, audioID string) *Lyrics {
	if o.provider == nil || taskID == "" {
		return nil
	}
	key := fmt.Sprintf("lyrics:%s:%s", taskID, audioID)
	if o.cache != nil {
		if b, err := o.cache.Get(ctx, key); err == nil {
			var l Lyrics
			if err := json.Unmarshal(b, &l); err == nil {
				return &l
			}
		}
	}
	l, err := o.lyrics(ctx, taskID, audioID)
	if err != nil {
		o.log.Debugw("music: lyrics unavailable", "task", taskID, "audio", audioID, "error", err)
		return nil
	}
	if o.cache != nil {
		if b, err := json.Marshal(l); err == nil {
			if err := o.cache.Set(ctx, key, b, o.cacheTTL); err != nil {
				o.log.Debugw("music: couldn't cache lyrics", "error", err)
			}
		}
	}
	return l
}

func (o *Orchestrator) lyrics(ctx context.Context, taskID, audioID string) (l *Lyrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			l, err = nil, fmt.Errorf("%w: %v", ErrLyricsUnavailable, r)
		}
	}()
	l, err = o.provider.Lyrics(ctx, taskID, audioID)
	if err != nil {
		return nil, err
	}
	if l == nil || len(l.AlignedWords) == 0 {
		return nil, ErrLyricsUnavailable
	}
	return l, nil
}

func (o *Orchestrator) cachedTask(ctx context.Context, taskID string) (*Task, bool) {
	if o.cache == nil {
		return nil, false
	}
	b, err := o.cache.Get(ctx, "task:"+taskID)
	if err != nil {
		return nil, false
	}
	var t Task
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, false
	}
	return &t, true
}

func (o *Orchestrator) cacheTask(ctx context.Context, t *Task) {
	if o.cache == nil {
		return
	}
	b, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := o.cache.Set(ctx, "task:"+t.ID, b, o.cacheTTL); err != nil {
		o.log.Debugw("music: couldn't cache task", "task", t.ID, "error", err)
	}
}
