package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	iofs "io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/allinfinite/melodify/pkg/analysis"
	"github.com/allinfinite/melodify/pkg/filestore"
	"github.com/allinfinite/melodify/pkg/intake"
	"github.com/allinfinite/melodify/pkg/logger"
	"github.com/allinfinite/melodify/pkg/music"
	"github.com/allinfinite/melodify/pkg/storage"
	"github.com/allinfinite/melodify/pkg/style"
)

//go:embed static/*
var staticContent embed.FS

type Options struct {
	Store    *storage.Store
	Files    *filestore.Store
	Analyzer *analysis.Analyzer
	Music    *music.Orchestrator
	Styles   *style.Catalog
	Logger   *zap.SugaredLogger
	// Watch tracks live tasks in the background until they finish.
	Watch       bool
	Debug       bool
	Credentials map[string]string
}

// Server exposes the remix flow over http.
type Server struct {
	ctx         context.Context
	store       *storage.Store
	files       *filestore.Store
	intake      *intake.Intake
	analyzer    *analysis.Analyzer
	music       *music.Orchestrator
	styles      *style.Catalog
	log         *zap.SugaredLogger
	watch       bool
	debug       bool
	credentials map[string]string
}

// NewServer creates a server. Background watchers stop when ctx is done.
func NewServer(ctx context.Context, opts *Options) *Server {
	styles := opts.Styles
	if styles == nil {
		styles = style.New()
	}
	return &Server{
		ctx:         ctx,
		store:       opts.Store,
		files:       opts.Files,
		intake:      intake.New(opts.Files),
		analyzer:    opts.Analyzer,
		music:       opts.Music,
		styles:      styles,
		log:         logger.Or(opts.Logger),
		watch:       opts.Watch,
		debug:       opts.Debug,
		credentials: opts.Credentials,
	}
}

func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	mux.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Minute))
		if len(s.credentials) > 0 {
			r.Use(middleware.BasicAuth("melodify", s.credentials))
		}
		if s.debug {
			r.Use(middleware.Logger)
		}

		r.Post("/upload", s.upload)
		r.Post("/process", s.process)
		r.Post("/generate", s.generate)
		r.Get("/status/{taskId}", s.status)
		r.Get("/songs", s.songs)
		r.Delete("/songs", s.clear)
		r.Get("/result/{id}", s.result)
		r.Get("/styles", s.listStyles)

		if dir := s.files.Dir(); dir != "" {
			r.Get(filestore.LocalPrefix+"*", http.StripPrefix(filestore.LocalPrefix, http.FileServer(http.Dir(dir))).ServeHTTP)
		}

		staticFS, err := iofs.Sub(staticContent, "static")
		if err != nil {
			panic(err)
		}
		r.Get("/*", http.FileServer(http.FS(staticFS)).ServeHTTP)
	})
	return mux
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type okResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, &errorResponse{Error: msg})
}

type uploadResponse struct {
	Success     bool   `json:"success"`
	FileURL     string `json:"fileUrl"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, intake.MaxSize+1<<20)
	file, header, err := r.FormFile("audio")
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		writeError(w, http.StatusBadRequest, "File too large. Maximum size is 25MB.")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer file.Close()

	f, err := s.intake.Accept(r.Context(), header.Filename, file)
	switch {
	case errors.Is(err, intake.ErrMissing):
		writeError(w, http.StatusBadRequest, "No audio file provided")
		return
	case errors.Is(err, intake.ErrTooLarge):
		writeError(w, http.StatusBadRequest, "File too large. Maximum size is 25MB.")
		return
	case errors.Is(err, intake.ErrUnsupported):
		writeError(w, http.StatusBadRequest, "Unsupported audio format. Please use WAV, MP3, OGG, FLAC or WebM.")
		return
	case errors.As(err, &maxErr):
		writeError(w, http.StatusBadRequest, "File too large. Maximum size is 25MB.")
		return
	case err != nil:
		s.log.Errorw("web: upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Infow("web: file uploaded", "url", f.URL, "type", f.ContentType, "size", f.Size)
	writeJSON(w, http.StatusOK, &uploadResponse{
		Success:     true,
		FileURL:     f.URL,
		FileName:    f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
	})
}

type processRequest struct {
	FileURL string `json:"fileUrl"`
}

type processResponse struct {
	Success bool `json:"success"`
	*analysis.Result
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FileURL == "" {
		writeError(w, http.StatusBadRequest, "No file URL provided")
		return
	}
	result, err := s.analyzer.Analyze(r.Context(), req.FileURL)
	if err != nil {
		s.log.Errorw("web: process failed", "url", req.FileURL, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process audio")
		return
	}
	writeJSON(w, http.StatusOK, &processResponse{Success: true, Result: result})
}

type generateRequest struct {
	FileURL  string            `json:"fileUrl"`
	Style    string            `json:"style"`
	Prompt   string            `json:"prompt"`
	Metadata *storage.Metadata `json:"metadata"`
}

type taskResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"taskId"`
	SongID  string `json:"songId"`
}

type generateResponse struct {
	Success  bool            `json:"success"`
	SongID   string          `json:"songId"`
	Status   music.Status    `json:"status,omitempty"`
	AudioURL string          `json:"audioUrl,omitempty"`
	ImageURL string          `json:"previewImage,omitempty"`
	Metadata *music.Metadata `json:"metadata,omitempty"`
	Lyrics   *music.Lyrics   `json:"lyrics"`
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FileURL == "" || req.Style == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}
	st, ok := s.styles.Get(req.Style)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid style. Valid styles: "+strings.Join(s.styles.IDs(), ", "))
		return
	}
	var md storage.Metadata
	if req.Metadata != nil {
		md = *req.Metadata
	}
	song, err := s.store.CreateSong(ctx, req.FileURL, st.ID, req.Prompt, md)
	if err != nil {
		s.log.Errorw("web: couldn't create song", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create song")
		return
	}

	sub, err := s.music.Submit(ctx, &music.Request{
		AudioURL: req.FileURL,
		Style:    st.ID,
		Title:    st.Name + " Remix",
		Tags:     st.TagString(req.Prompt),
		Prompt:   st.BuildPrompt(req.Prompt),
	})
	if err != nil {
		s.log.Errorw("web: generation failed", "song", song.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sub.Cause != nil {
		s.log.Warnw("web: generated mock result", "song", song.ID, "cause", sub.Cause)
	}

	switch sub.Kind {
	case music.Live:
		if err := s.store.SetTask(ctx, song.ID, sub.TaskID); err != nil {
			s.log.Errorw("web: couldn't link task", "song", song.ID, "task", sub.TaskID, "error", err)
		}
		if s.watch {
			s.music.Watch(s.ctx, sub.TaskID, s.watched(sub.TaskID))
		}
		writeJSON(w, http.StatusOK, &taskResponse{
			Success: true,
			TaskID:  sub.TaskID,
			SongID:  song.ID,
		})
	default:
		t := sub.Result
		s.record(ctx, song.ID, t)
		writeJSON(w, http.StatusOK, &generateResponse{
			Success:  true,
			SongID:   song.ID,
			Status:   t.Status,
			AudioURL: t.AudioURL,
			ImageURL: t.ImageURL,
			Metadata: &t.Metadata,
		})
	}
}

// watched returns the callback of a background watcher.
func (s *Server) watched(taskID string) func(*music.Task, error) {
	return func(t *music.Task, err error) {
		if err != nil {
			if s.ctx.Err() != nil {
				s.log.Debugw("web: watcher stopped", "task", taskID)
				return
			}
			s.log.Warnw("web: task didn't complete", "task", taskID, "error", err)
			return
		}
		s.recordTask(s.ctx, t)
	}
}

type statusResponse struct {
	Success  bool            `json:"success"`
	Status   music.Status    `json:"status"`
	AudioURL string          `json:"audioUrl,omitempty"`
	ImageURL string          `json:"imageUrl,omitempty"`
	Metadata *music.Metadata `json:"metadata,omitempty"`
	Lyrics   *music.Lyrics   `json:"lyrics"`
	Error    string          `json:"error,omitempty"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskId")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "Task ID required")
		return
	}
	t, err := s.music.PollStatus(ctx, taskID)
	if err != nil {
		s.log.Warnw("web: status check failed", "task", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := &statusResponse{
		Success:  true,
		Status:   t.Status,
		AudioURL: t.AudioURL,
		ImageURL: t.ImageURL,
		Metadata: &t.Metadata,
		Error:    t.ErrorMessage,
	}
	if t.Status == music.Complete {
		if t.AudioID != "" {
			resp.Lyrics = s.music.FetchLyrics(ctx, taskID, t.AudioID)
		}
		s.recordTask(ctx, t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// recordTask stores the output of a completed task on its song.
func (s *Server) recordTask(ctx context.Context, t *music.Task) {
	song, err := s.store.GetSongByTask(ctx, t.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Errorw("web: couldn't find song", "task", t.ID, "error", err)
		return
	}
	s.record(ctx, song.ID, t)
}

func (s *Server) record(ctx context.Context, songID string, t *music.Task) {
	if t.AudioURL == "" {
		return
	}
	if err := s.store.SetOutput(ctx, songID, t.AudioURL); err != nil {
		s.log.Errorw("web: couldn't set output", "song", songID, "error", err)
		return
	}
	err := s.store.UpdateMetadata(ctx, songID, func(md *storage.Metadata) {
		if t.Metadata.Title != "" {
			md.Title = t.Metadata.Title
		}
		if len(t.Metadata.Tags) > 0 {
			md.Tags = t.Metadata.Tags
		}
		if t.Metadata.Duration > 0 {
			md.Duration = t.Metadata.Duration
		}
		if t.ImageURL != "" {
			md.ImageURL = t.ImageURL
		}
	})
	if err != nil {
		s.log.Errorw("web: couldn't update metadata", "song", songID, "error", err)
		return
	}
	s.log.Infow("web: song ready", "song", songID, "task", t.ID, "url", t.AudioURL)
}

type songsResponse struct {
	Success bool            `json:"success"`
	Songs   []*storage.Song `json:"songs"`
	Count   int             `json:"count"`
}

func (s *Server) songs(w http.ResponseWriter, r *http.Request) {
	var filters []storage.Filter
	if v := r.URL.Query().Get("style"); v != "" {
		filters = append(filters, storage.Where("style = ?", v))
	}
	songs, err := s.store.ListSongs(r.Context(), filters...)
	if err != nil {
		s.log.Errorw("web: couldn't list songs", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch songs")
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="songs.csv"`)
		if err := storage.WriteCSV(w, songs); err != nil {
			s.log.Errorw("web: couldn't encode songs", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, &songsResponse{Success: true, Songs: songs, Count: len(songs)})
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.log.Errorw("web: couldn't clear songs", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to clear songs")
		return
	}
	writeJSON(w, http.StatusOK, &okResponse{Success: true})
}

type resultResponse struct {
	Success bool `json:"success"`
	*storage.Song
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) {
	song, err := s.store.GetSong(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Song not found")
		return
	case err != nil:
		s.log.Errorw("web: couldn't get song", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch song")
		return
	}
	writeJSON(w, http.StatusOK, &resultResponse{Success: true, Song: song})
}

type stylesResponse struct {
	Success bool           `json:"success"`
	Styles  []*style.Style `json:"styles"`
}

func (s *Server) listStyles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &stylesResponse{Success: true, Styles: s.styles.List()})
}
