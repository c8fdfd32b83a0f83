package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/allinfinite/melodify/pkg/music"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(&Config{BaseURL: srv.URL + "/"})
}

func statusServer(statuses ...string) (http.Handler, *int32) {
	var calls int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status/t1" {
			http.NotFound(w, r)
			return
		}
		n := int(atomic.AddInt32(&calls, 1))
		s := statuses[len(statuses)-1]
		if n <= len(statuses) {
			s = statuses[n-1]
		}
		switch s {
		case "fail":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"success":false,"error":"boom"}`))
		case "complete":
			_, _ = w.Write([]byte(`{"success":true,"status":"complete","audioUrl":"https://cdn.example.com/out.mp3","metadata":{"title":"Jazz Remix"},"lyrics":null}`))
		case "error":
			_, _ = w.Write([]byte(`{"success":true,"status":"error","error":"audio too long","lyrics":null}`))
		default:
			_, _ = fmt.Fprintf(w, `{"success":true,"status":%q,"lyrics":null}`, s)
		}
	}), &calls
}

func TestWait(t *testing.T) {
	h, calls := statusServer("queued", "processing", "fail", "complete")
	c := newTestClient(t, h)

	var progress []music.Status
	start := time.Now()
	s, err := c.Wait(context.Background(), "t1", &WaitOptions{
		Interval: 20 * time.Millisecond,
		Progress: func(_ int, s *Status) { progress = append(progress, s.Status) },
	})
	if err != nil {
		t.Fatalf("Wait() err = %v; want nil", err)
	}
	if s.AudioURL != "https://cdn.example.com/out.mp3" {
		t.Fatalf("Wait().AudioURL = %q; want generated audio", s.AudioURL)
	}
	if n := atomic.LoadInt32(calls); n != 4 {
		t.Fatalf("queries = %d; want 4", n)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("Wait() took %s; want at least %s", elapsed, 60*time.Millisecond)
	}
	if len(progress) != 2 || progress[0] != music.Queued || progress[1] != music.Processing {
		t.Fatalf("progress = %v; want [queued processing]", progress)
	}
}

func TestWaitTimeout(t *testing.T) {
	h, calls := statusServer("processing")
	c := newTestClient(t, h)
	_, err := c.Wait(context.Background(), "t1", &WaitOptions{MaxAttempts: 3, Interval: time.Millisecond})
	if !errors.Is(err, music.ErrPollingTimeout) {
		t.Fatalf("Wait() err = %v; want ErrPollingTimeout", err)
	}
	if n := atomic.LoadInt32(calls); n != 3 {
		t.Fatalf("queries = %d; want 3", n)
	}
}

func TestWaitFailed(t *testing.T) {
	h, calls := statusServer("processing", "error")
	c := newTestClient(t, h)
	_, err := c.Wait(context.Background(), "t1", &WaitOptions{Interval: time.Millisecond})
	if !errors.Is(err, music.ErrGeneration) {
		t.Fatalf("Wait() err = %v; want ErrGeneration", err)
	}
	if n := atomic.LoadInt32(calls); n != 2 {
		t.Fatalf("queries = %d; want 2", n)
	}
}

func TestDeliver(t *testing.T) {
	h, _ := statusServer("complete")
	c := newTestClient(t, h)

	r, err := c.Deliver(context.Background(), &Generation{TaskID: "t1", SongID: "s1"}, &WaitOptions{Interval: time.Millisecond})
	if err != nil {
		t.Fatalf("Deliver() err = %v; want nil", err)
	}
	if r.SongID != "s1" || r.AudioURL != "https://cdn.example.com/out.mp3" || r.Metadata == nil || r.Metadata.Title != "Jazz Remix" {
		t.Fatalf("Deliver() = %+v; want polled result", r)
	}

	r, err = c.Deliver(context.Background(), &Generation{SongID: "s2", Status: music.Complete, AudioURL: "/uploads/a.wav"}, nil)
	if err != nil {
		t.Fatalf("Deliver() err = %v; want nil", err)
	}
	if r.SongID != "s2" || r.AudioURL != "/uploads/a.wav" {
		t.Fatalf("Deliver() = %+v; want terminal result", r)
	}

	if _, err := c.Deliver(context.Background(), &Generation{SongID: "s3"}, nil); err == nil {
		t.Fatal("Deliver() err = nil; want error")
	}
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"Invalid style"}`))
	}))
	_, err := c.Generate(context.Background(), &GenerateRequest{FileURL: "/uploads/a.wav", Style: "polka"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Generate() err = %v; want APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "Invalid style" {
		t.Fatalf("Generate() err = %+v; want 400 Invalid style", apiErr)
	}
}

func TestSong(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/result/s1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"id":"s1","created_at":"2024-05-01T10:00:00Z","input_url":"/uploads/a.wav","output_url":null,"style":"jazz","prompt":null,"metadata":{"tags":["jazz"]}}`))
	})
	mux.HandleFunc("/result/s2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"Song not found"}`))
	})
	c := newTestClient(t, mux)

	s, err := c.Song(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Song() err = %v", err)
	}
	if s.ID != "s1" || s.Style != "jazz" || s.InputURL != "/uploads/a.wav" || s.OutputURL != nil {
		t.Fatalf("Song() = %+v; want pending jazz song s1", s)
	}
	if len(s.Metadata.Tags) != 1 || s.Metadata.Tags[0] != "jazz" {
		t.Fatalf("Song().Metadata.Tags = %v; want [jazz]", s.Metadata.Tags)
	}

	_, err = c.Song(context.Background(), "s2")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("Song(missing) err = %v; want 404 APIError", err)
	}
}

func TestUploadAndDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		f, h, err := r.FormFile("audio")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"error":"No audio file provided"}`))
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		_, _ = fmt.Fprintf(w, `{"success":true,"fileUrl":"/uploads/%s","fileName":%q,"size":%d}`, h.Filename, h.Filename, len(b))
	})
	mux.HandleFunc("/uploads/take.wav", func(w http.ResponseWriter, r *http.Request) {
		if u, p, ok := r.BasicAuth(); !ok || u != "admin" || p != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("RIFF"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := New(&Config{BaseURL: srv.URL, Username: "admin", Password: "secret"})

	up, err := c.Upload(context.Background(), "take.wav", bytes.NewReader([]byte("RIFF....")))
	if err != nil {
		t.Fatalf("Upload() err = %v; want nil", err)
	}
	if up.FileURL != "/uploads/take.wav" || up.Size != 8 {
		t.Fatalf("Upload() = %+v; want stored file", up)
	}

	var buf bytes.Buffer
	if err := c.Download(context.Background(), up.FileURL, &buf); err != nil {
		t.Fatalf("Download() err = %v; want nil", err)
	}
	if buf.String() != "RIFF" {
		t.Fatalf("Download() = %q; want %q", buf.String(), "RIFF")
	}
}
