package eventsource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tinytelemetry/logdigest/internal/model"
)

// RawTimeLayout is the format sources use for RawRecord.TimeGenerated.
// It parses with time.ANSIC, which also accepts space-padded days.
const RawTimeLayout = "Mon Jan 02 15:04:05 2006"

// ErrSourceUnavailable reports that a channel could not be opened.
var ErrSourceUnavailable = errors.New("event source unavailable")

// RawRecord is one event exactly as a backend yields it.
type RawRecord struct {
	TimeGenerated string
	EventType     uint16
	SourceName    string
	EventID       uint32
	Message       string
	Inserts       []string
}

// Reader is a named log backend that yields records newest-first.
type Reader interface {
	Name() string
	Open(ctx context.Context, ch model.Channel) (Handle, error)
}

// Handle is an open backward read over one channel.
// ReadBatch returns an empty slice once the channel is exhausted.
type Handle interface {
	ReadBatch(ctx context.Context) ([]RawRecord, error)
	FormatMessage(rec RawRecord) string
	Close() error
}

// UnavailableError carries the channel and cause of a failed open.
type UnavailableError struct {
	Channel model.Channel
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("eventsource: %s log unavailable: %v", e.Channel, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrSourceUnavailable }

// Unavailable wraps err as a SourceUnavailable failure for ch.
func Unavailable(ch model.Channel, err error) error {
	if err == nil {
		err = errors.New("unknown error")
	}
	return &UnavailableError{Channel: ch, Err: err}
}

type nowKey struct{}

// WithNow attaches the run's reference time to ctx. Sources that query by
// time range use it instead of their own clock.
func WithNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, nowKey{}, now)
}

// NowFrom returns the reference time carried by ctx, or fallback() when none
// was attached.
func NowFrom(ctx context.Context, fallback func() time.Time) time.Time {
	if now, ok := ctx.Value(nowKey{}).(time.Time); ok {
		return now
	}
	return fallback()
}

// FormatTime renders t in RawTimeLayout.
func FormatTime(t time.Time) string {
	return t.Format(RawTimeLayout)
}
