package suno

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/allinfinite/melodify/pkg/music"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want music.Status
	}{
		{"SUCCESS", music.Complete},
		{"success", music.Complete},
		{"FIRST_SUCCESS", music.Processing},
		{"TEXT_SUCCESS", music.Processing},
		{"PENDING", music.Queued},
		{"TASK_FAILED", music.Failed},
		{"CREATE_TASK_FAILED", music.Failed},
		{"GENERATE_AUDIO_FAILED", music.Failed},
		{"SENSITIVE_WORD_ERROR", music.Failed},
		{"FOO", music.Queued},
		{"", music.Queued},
	}
	for _, tt := range tests {
		if got := ParseStatus(tt.raw); got != tt.want {
			t.Fatalf("ParseStatus(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(&Config{
		Key:     "secret",
		BaseURL: srv.URL,
		Wait:    -1,
		Backoff: []time.Duration{time.Millisecond},
	})
}

func TestSubmit(t *testing.T) {
	var got addInstrumentalRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/generate/add-instrumental" {
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"5c79b3"}}`))
	})

	taskID, err := c.Submit(context.Background(), &music.Request{
		AudioURL: "https://melodify.app/uploads/a.wav",
		Style:    "jazz",
		Title:    "Jazz Remix",
		Tags:     "jazz, smooth, soulful, swing",
	})
	if err != nil {
		t.Fatalf("Submit() err = %v; want nil", err)
	}
	if taskID != "5c79b3" {
		t.Fatalf("Submit() = %q; want %q", taskID, "5c79b3")
	}
	want := addInstrumentalRequest{
		UploadURL:           "https://melodify.app/uploads/a.wav",
		Title:               "Jazz Remix",
		Tags:                "jazz, smooth, soulful, swing",
		NegativeTags:        "harsh, aggressive, distorted",
		CallBackURL:         "https://api.example.com/callback",
		Model:               "V4_5PLUS",
		AudioWeight:         0.9,
		StyleWeight:         0.65,
		WeirdnessConstraint: 0.5,
	}
	if got != want {
		t.Fatalf("request = %+v; want %+v", got, want)
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"api code", http.StatusOK, `{"code":429,"msg":"insufficient credits","data":null}`},
		{"missing task", http.StatusOK, `{"code":200,"msg":"success","data":{}}`},
		{"http status", http.StatusBadGateway, `bad gateway`},
		{"invalid json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			if _, err := c.Submit(context.Background(), &music.Request{AudioURL: "https://x/a.wav", Style: "pop"}); err == nil {
				t.Fatal("Submit() err = nil; want error")
			}
			if n := atomic.LoadInt32(&calls); n != 1 {
				t.Fatalf("requests = %d; want 1", n)
			}
		})
	}
}

const recordInfo = `{
  "code": 200,
  "msg": "success",
  "data": {
    "taskId": "5c79b3",
    "status": "%s",
    "errorCode": null,
    "errorMessage": null,
    "response": {
      "sunoData": [
        {
          "id": "e231a1",
          "audioUrl": "%s",
          "streamAudioUrl": "https://cdn.example.com/stream/e231a1",
          "imageUrl": "https://cdn.example.com/e231a1.jpeg",
          "title": "Jazz Remix",
          "tags": "jazz, smooth ,, swing",
          "duration": 198.44
        },
        {
          "id": "f992b0",
          "audioUrl": "https://cdn.example.com/f992b0.mp3"
        }
      ]
    }
  }
}`

func TestStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		audioURL  string
		wantState music.Status
		wantAudio string
	}{
		{"complete", "SUCCESS", "https://cdn.example.com/e231a1.mp3", music.Complete, "https://cdn.example.com/e231a1.mp3"},
		{"preview", "FIRST_SUCCESS", "", music.Processing, "https://cdn.example.com/stream/e231a1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v1/generate/record-info" || r.URL.Query().Get("taskId") != "5c79b3" {
					http.NotFound(w, r)
					return
				}
				_, _ = w.Write([]byte(fmt.Sprintf(recordInfo, tt.status, tt.audioURL)))
			})
			got, err := c.Status(context.Background(), "5c79b3")
			if err != nil {
				t.Fatalf("Status() err = %v; want nil", err)
			}
			if got.Status != tt.wantState {
				t.Fatalf("Status().Status = %q; want %q", got.Status, tt.wantState)
			}
			if got.AudioURL != tt.wantAudio {
				t.Fatalf("Status().AudioURL = %q; want %q", got.AudioURL, tt.wantAudio)
			}
			if got.AudioID != "e231a1" {
				t.Fatalf("Status().AudioID = %q; want %q", got.AudioID, "e231a1")
			}
			want := music.Metadata{Title: "Jazz Remix", Tags: []string{"jazz", "smooth", "swing"}, Duration: 198.44}
			if !reflect.DeepEqual(got.Metadata, want) {
				t.Fatalf("Status().Metadata = %+v; want %+v", got.Metadata, want)
			}
		})
	}
}

func TestStatusPending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"t1","status":"PENDING","response":null}}`))
	})
	got, err := c.Status(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Status() err = %v; want nil", err)
	}
	if got.Status != music.Queued || got.AudioURL != "" {
		t.Fatalf("Status() = %+v; want queued without audio", got)
	}
}

func TestStatusFailed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"t1","status":"GENERATE_AUDIO_FAILED","errorCode":413,"errorMessage":"audio too long"}}`))
	})
	got, err := c.Status(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Status() err = %v; want nil", err)
	}
	if got.Status != music.Failed || got.ErrorMessage != "audio too long" {
		t.Fatalf("Status() = %+v; want failed with message", got)
	}
}

func TestStatusRetries(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"t1","status":"PENDING"}}`))
	})
	if _, err := c.Status(context.Background(), "t1"); err != nil {
		t.Fatalf("Status() err = %v; want nil", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("requests = %d; want 2", n)
	}
}

func TestLyrics(t *testing.T) {
	var got lyricsRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{
			"alignedWords":[{"word":"[Verse]\nHello","success":true,"startS":1.2,"endS":1.6,"palign":0},{"word":"there","success":true,"startS":1.7,"endS":2.1,"palign":0}],
			"waveformData":[0,1,0.5],"hootCer":0.38,"isStreamed":false}}`))
	})

	l, err := c.Lyrics(context.Background(), "t1", "a1")
	if err != nil {
		t.Fatalf("Lyrics() err = %v; want nil", err)
	}
	if got.TaskID != "t1" || got.AudioID != "a1" || got.MusicIndex != nil {
		t.Fatalf("request = %+v; want task and audio id", got)
	}
	if len(l.AlignedWords) != 2 || l.AlignedWords[1].Word != "there" || l.AlignedWords[0].StartS != 1.2 {
		t.Fatalf("Lyrics() = %+v; want two aligned words", l)
	}
	if l.HootCer != 0.38 || len(l.WaveformData) != 3 {
		t.Fatalf("Lyrics() = %+v; want waveform and hootCer", l)
	}

	if _, err := c.Lyrics(context.Background(), "t1", ""); err != nil {
		t.Fatalf("Lyrics() err = %v; want nil", err)
	}
	if got.MusicIndex == nil || *got.MusicIndex != 0 {
		t.Fatalf("request = %+v; want musicIndex 0", got)
	}
}

func TestLyricsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":null}`))
	})
	if _, err := c.Lyrics(context.Background(), "t1", "a1"); !errors.Is(err, music.ErrLyricsUnavailable) {
		t.Fatalf("Lyrics() err = %v; want ErrLyricsUnavailable", err)
	}
}
