package music

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMockDelay    = 2 * time.Second
	defaultMockDuration = 180
)

// Mock simulates a provider by returning the input audio as the result.
type Mock struct {
	Delay time.Duration
}

// Generate waits for the mock delay and returns a complete task.
func (m *Mock) Generate(ctx context.Context, audioURL, style, prompt string) (*Task, error) {
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return &Task{
		ID:       "mock_" + uuid.NewString(),
		Status:   Complete,
		AudioURL: audioURL,
		Metadata: Metadata{
			Title:    fmt.Sprintf("%s Remix (Mock)", style),
			Tags:     []string{style, "ai-generated", "mock"},
			Duration: defaultMockDuration,
		},
	}, nil
}
