package ngrok

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const tunnels = `{"tunnels":[
	{"name":"other","public_url":"https://other.ngrok.app","proto":"https","config":{"addr":"http://localhost:9000"}},
	{"name":"web (http)","public_url":"http://abc.ngrok.app","proto":"http","config":{"addr":"http://localhost:1337"}},
	{"name":"web","public_url":"https://abc.ngrok.app","proto":"https","config":{"addr":"http://localhost:1337"}}
]}`

func TestDiscover(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tunnels" {
			http.NotFound(w, r)
			return
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = w.Write([]byte(`{"tunnels":[]}`))
			return
		}
		_, _ = w.Write([]byte(tunnels))
	}))
	defer srv.Close()

	got, err := Discover(context.Background(), srv.URL, "1337", 5*time.Second)
	if err != nil {
		t.Fatalf("Discover() err = %v; want nil", err)
	}
	if got != "https://abc.ngrok.app" {
		t.Fatalf("Discover() = %q; want %q", got, "https://abc.ngrok.app")
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("requests = %d; want 2", n)
	}
}

func TestDiscoverTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tunnels))
	}))
	defer srv.Close()

	if _, err := Discover(context.Background(), srv.URL, "8080", 600*time.Millisecond); err == nil {
		t.Fatal("Discover() err = nil; want error")
	}
}
