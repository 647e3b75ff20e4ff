package eventsource

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/phuslu/log"
	"github.com/tinytelemetry/logdigest/internal/model"
)

type retryReader struct {
	Reader
	attempts int
	backoff  time.Duration
}

// WithRetry retries Open up to attempts times while it fails with
// ErrSourceUnavailable, doubling backoff between tries. A missing channel
// (fs.ErrNotExist) fails at once. Successful opens are returned unchanged.
func WithRetry(r Reader, attempts int, backoff time.Duration) Reader {
	if attempts <= 1 {
		return r
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &retryReader{Reader: r, attempts: attempts, backoff: backoff}
}

func (r *retryReader) Open(ctx context.Context, ch model.Channel) (Handle, error) {
	delay := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		h, err := r.Reader.Open(ctx, ch)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, ErrSourceUnavailable) || errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		lastErr = err
		if attempt == r.attempts {
			break
		}
		log.Warn().Str("component", "eventsource").Str("source", r.Name()).Str("channel", ch.String()).
			Int("attempt", attempt).Dur("backoff", delay).Err(err).Msg("open failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return nil, lastErr
}
