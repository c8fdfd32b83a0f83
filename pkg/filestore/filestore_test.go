package filestore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAbsolute(t *testing.T) {
	tests := []struct {
		base string
		raw  string
		want string
		err  bool
	}{
		{"http://localhost:3000", "/uploads/a.wav", "http://localhost:3000/uploads/a.wav", false},
		{"https://melodify.app/", "/uploads/a.wav", "https://melodify.app/uploads/a.wav", false},
		{"", "https://cdn.example.com/a.wav", "https://cdn.example.com/a.wav", false},
		{"", "/uploads/a.wav", "", true},
		{"http://localhost:3000", "uploads/a.wav", "", true},
		{"localhost", "/uploads/a.wav", "", true},
	}
	for _, tt := range tests {
		got, err := Absolute(tt.base, tt.raw)
		if (err != nil) != tt.err {
			t.Fatalf("Absolute(%q, %q) err = %v; want error %v", tt.base, tt.raw, err, tt.err)
		}
		if got != tt.want {
			t.Fatalf("Absolute(%q, %q) = %q; want %q", tt.base, tt.raw, got, tt.want)
		}
	}
}

func TestLocal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(ctx, "local", dir, nil)
	if err != nil {
		t.Fatalf("New() err = %v; want nil", err)
	}
	if s.Dir() != dir {
		t.Fatalf("Dir() = %q; want %q", s.Dir(), dir)
	}
	u, err := s.Put(ctx, "audio_1_take one.wav", []byte("RIFF"), "audio/wav")
	if err != nil {
		t.Fatalf("Put() err = %v; want nil", err)
	}
	if want := "/uploads/audio_1_take%20one.wav"; u != want {
		t.Fatalf("Put() = %q; want %q", u, want)
	}
	b, err := s.Fetch(ctx, "", u)
	if err != nil {
		t.Fatalf("Fetch(%q) err = %v; want nil", u, err)
	}
	if string(b) != "RIFF" {
		t.Fatalf("Fetch(%q) = %q; want %q", u, b, "RIFF")
	}
	if _, err := s.Put(ctx, "../escape.wav", nil, "audio/wav"); err == nil {
		t.Fatal("Put(../escape.wav) err = nil; want error")
	}
}

func TestFetchRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/a.mp3" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ID3"))
	}))
	defer srv.Close()

	s, err := New(context.Background(), "local", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Fetch(context.Background(), srv.URL, "/files/a.mp3")
	if err != nil || string(b) != "ID3" {
		t.Fatalf("Fetch() = %q, %v; want ID3, nil", b, err)
	}
	if _, err := s.Fetch(context.Background(), srv.URL, "/files/missing.mp3"); err == nil {
		t.Fatal("Fetch(missing) err = nil; want error")
	}
}

func TestNewUnknown(t *testing.T) {
	if _, err := New(context.Background(), "telegram", "x", nil); err == nil {
		t.Fatal("New(telegram) err = nil; want error")
	}
}
