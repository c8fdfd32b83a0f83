package music

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrConfiguration means the live provider was required but no
	// credential is configured.
	ErrConfiguration = errors.New("music: provider not configured")
	// ErrUnreachableInput means the input audio couldn't be reached before
	// submitting it.
	ErrUnreachableInput = errors.New("music: input audio unreachable")
	// ErrProviderSubmission means the provider rejected or failed the
	// submission.
	ErrProviderSubmission = errors.New("music: provider submission failed")
	// ErrProviderStatus means a single status query failed.
	ErrProviderStatus = errors.New("music: provider status query failed")
	// ErrPollingTimeout means the task didn't finish within the polling
	// budget.
	ErrPollingTimeout = errors.New("music: polling attempts exhausted")
	// ErrGeneration means the provider reported the task as failed.
	ErrGeneration = errors.New("music: generation failed")
	// ErrLyricsUnavailable means there are no lyrics for a track.
	ErrLyricsUnavailable = errors.New("music: lyrics unavailable")
	// ErrTimeout is wrapped alongside other errors when a network timeout
	// was exceeded.
	ErrTimeout = errors.New("music: network timeout")
)

func isTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classify wraps err with the given category and with ErrTimeout when it
// was caused by a timeout.
func classify(category, err error) error {
	if errors.Is(err, category) {
		if isTimeout(err) && !errors.Is(err, ErrTimeout) {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return err
	}
	if isTimeout(err) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %w: %w", category, ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", category, err)
}
