package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/allinfinite/melodify/pkg/analysis"
	"github.com/allinfinite/melodify/pkg/cache"
	"github.com/allinfinite/melodify/pkg/filestore"
	"github.com/allinfinite/melodify/pkg/logger"
	"github.com/allinfinite/melodify/pkg/music"
	"github.com/allinfinite/melodify/pkg/ngrok"
	"github.com/allinfinite/melodify/pkg/openai"
	"github.com/allinfinite/melodify/pkg/storage"
	"github.com/allinfinite/melodify/pkg/style"
	"github.com/allinfinite/melodify/pkg/suno"
)

type Config struct {
	Debug       bool
	Addr        string
	Credentials map[string]string
	Log         logger.Config

	DBType    string
	DBConn    string
	FSType    string
	FSConn    string
	CacheType string
	CacheConn string
	Styles    string

	Mode    string
	BaseURL string
	Ngrok   bool
	Watch   bool

	SunoKey      string
	SunoBaseURL  string
	SunoCallback string
	SunoModel    string
	SunoWait     time.Duration
	Interval     time.Duration
	MaxAttempts  int

	OpenAIKey   string
	OpenAIModel string
}

// Serve starts the remix service and blocks until ctx is cancelled.
func Serve(ctx context.Context, cfg *Config) error {
	zl, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("web: couldn't create logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	log.Infow("web: server started")
	defer log.Infow("web: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	host, port, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return fmt.Errorf("web: invalid address %s: %w", cfg.Addr, err)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return fmt.Errorf("web: invalid port: %s", port)
	}

	mode, err := music.ParseMode(cfg.Mode)
	if err != nil {
		return fmt.Errorf("web: %w", err)
	}

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("web: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("web: couldn't start orm store: %w", err)
	}
	defer func() { _ = store.Stop() }()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("web: couldn't migrate orm store: %w", err)
	}

	files, err := filestore.New(ctx, cfg.FSType, cfg.FSConn, log)
	if err != nil {
		return fmt.Errorf("web: couldn't create file storage: %w", err)
	}

	c, err := cache.New(ctx, cfg.CacheType, cfg.CacheConn)
	if err != nil {
		return fmt.Errorf("web: couldn't create cache: %w", err)
	}
	defer func() { _ = c.Close() }()

	styles, err := style.Load(cfg.Styles)
	if err != nil {
		return fmt.Errorf("web: couldn't load styles: %w", err)
	}

	baseURL := cfg.BaseURL
	if cfg.Ngrok {
		u, stop, err := ngrok.Run(ctx, port, log)
		if err != nil {
			return fmt.Errorf("web: couldn't start ngrok: %w", err)
		}
		defer stop()
		log.Infow("web: ngrok tunnel ready", "url", u)
		baseURL = u
	}
	if baseURL == "" {
		baseURL = "http://localhost:" + port
	}

	var provider music.Provider
	if cfg.SunoKey != "" {
		provider = suno.New(&suno.Config{
			Key:         cfg.SunoKey,
			BaseURL:     cfg.SunoBaseURL,
			CallbackURL: cfg.SunoCallback,
			Model:       cfg.SunoModel,
			Wait:        cfg.SunoWait,
			Logger:      log,
		})
	} else {
		log.Warnw("web: no music provider key, using mock generator")
	}
	orchestrator := music.New(&music.Config{
		Provider:    provider,
		Mode:        mode,
		BaseURL:     baseURL,
		Interval:    cfg.Interval,
		MaxAttempts: cfg.MaxAttempts,
		Cache:       c,
		Logger:      log,
	})
	defer orchestrator.Wait()

	var transcriber analysis.Transcriber
	if cfg.OpenAIKey != "" {
		transcriber = openai.New(&openai.Config{
			Token:  cfg.OpenAIKey,
			Model:  cfg.OpenAIModel,
			Logger: log,
		})
	} else {
		log.Warnw("web: no transcription key, using mock analysis")
	}
	analyzer := analysis.New(&analysis.Config{
		Transcriber: transcriber,
		Fetcher:     files,
		Store:       files,
		BaseURL:     baseURL,
		Logger:      log,
	})

	srv := NewServer(ctx, &Options{
		Store:       store,
		Files:       files,
		Analyzer:    analyzer,
		Music:       orchestrator,
		Styles:      styles,
		Logger:      log,
		Watch:       cfg.Watch,
		Debug:       cfg.Debug,
		Credentials: cfg.Credentials,
	})

	server := &http.Server{
		Addr:              net.JoinHostPort(host, port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		note := fmt.Sprintf("http://%s", server.Addr)
		if host == "" {
			note = fmt.Sprintf("all interfaces http://localhost:%s", port)
		}
		log.Infow("web: starting server", "addr", note, "public", baseURL, "live", orchestrator.Live())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("web: failed to start server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("web: couldn't shutdown server", "error", err)
	}
	return nil
}
