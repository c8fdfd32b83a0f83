package ngrok

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/allinfinite/melodify/pkg/logger"
)

// BinPath is the path to the ngrok binary
var BinPath = "ngrok"

// DefaultAPI is the address of the local ngrok agent API.
const DefaultAPI = "http://localhost:4040"

type tunnelsResponse struct {
	Tunnels []struct {
		Name      string `json:"name"`
		PublicURL string `json:"public_url"`
		Proto     string `json:"proto"`
		Config    struct {
			Addr string `json:"addr"`
		} `json:"config"`
	} `json:"tunnels"`
}

// Run launches an http tunnel to the local port and returns its public url.
// The tunnel is closed when ctx is cancelled or the returned function is
// called.
func Run(ctx context.Context, port string, log *zap.SugaredLogger) (string, context.CancelFunc, error) {
	log = logger.Or(log)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		cmd := exec.CommandContext(ctx, BinPath, "http", port)
		data, err := cmd.CombinedOutput()
		if err != nil && ctx.Err() == nil {
			log.Errorw("ngrok: process exited", "error", err, "output", string(data))
		}
	}()
	u, err := Discover(ctx, DefaultAPI, port, 30*time.Second)
	if err != nil {
		cancel()
		return "", nil, err
	}
	return u, cancel, nil
}

// Discover polls the agent API until a tunnel to the local port shows up.
// Empty port matches any tunnel. Https urls are preferred.
func Discover(ctx context.Context, api, port string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client := &http.Client{Timeout: 5 * time.Second}
	var last error
	for {
		u, err := tunnel(ctx, client, api, port)
		if err == nil && u != "" {
			return u, nil
		}
		if err != nil {
			last = err
		}
		t := time.NewTimer(250 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			if last != nil {
				return "", fmt.Errorf("ngrok: couldn't discover tunnel: %w", last)
			}
			return "", fmt.Errorf("ngrok: no tunnel found for port %q", port)
		case <-t.C:
		}
	}
}

func tunnel(ctx context.Context, client *http.Client, api, port string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(api, "/")+"/api/tunnels", nil)
	if err != nil {
		return "", fmt.Errorf("ngrok: couldn't create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ngrok: couldn't reach agent: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ngrok: couldn't read response: %w", err)
	}
	var tr tunnelsResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return "", fmt.Errorf("ngrok: couldn't unmarshal response (%s): %w", string(data), err)
	}
	var u string
	for _, t := range tr.Tunnels {
		if port != "" && !strings.HasSuffix(t.Config.Addr, ":"+port) && t.Config.Addr != port {
			continue
		}
		switch {
		case strings.HasPrefix(t.PublicURL, "https://"):
			return t.PublicURL, nil
		case u == "":
			u = strings.Replace(t.PublicURL, "tcp://", "http://", 1)
		}
	}
	return u, nil
}
