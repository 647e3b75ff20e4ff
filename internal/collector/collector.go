package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"
	"github.com/tinytelemetry/logdigest/internal/eventsource"
	"github.com/tinytelemetry/logdigest/internal/model"
	"github.com/tinytelemetry/logdigest/internal/severity"
)

// ErrMalformedTimestamp marks a record whose raw time could not be parsed.
// Such records are skipped and counted in Batch.Skipped.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// Batch is the result of one backward scan over a channel.
type Batch struct {
	Channel      model.Channel
	HorizonHours int
	Events       []model.EventRecord // most-recent-first
	Skipped      int                 // records dropped for malformed timestamps
}

// Collector turns a backward read of an event source into a bounded batch.
type Collector struct {
	location *time.Location
}

// New creates a collector that parses raw times in the local zone.
func New() *Collector {
	return &Collector{location: time.Local}
}

// WithLocation sets the zone raw timestamps are interpreted in.
func (c *Collector) WithLocation(loc *time.Location) *Collector {
	if loc != nil {
		c.location = loc
	}
	return c
}

// ParseTime parses a raw record timestamp.
func (c *Collector) ParseTime(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(time.ANSIC, strings.TrimSpace(raw), c.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, raw)
	}
	return t, nil
}

// Collect reads ch newest-first until the source is exhausted or a record is
// strictly older than now minus the horizon. The scan stops at that record;
// sources that yield out of order will lose in-horizon records behind it.
func (c *Collector) Collect(ctx context.Context, src eventsource.Reader, ch model.Channel, horizonHours int, now time.Time) (Batch, error) {
	batch := Batch{Channel: ch, HorizonHours: horizonHours}
	if horizonHours <= 0 {
		return batch, fmt.Errorf("collector: invalid horizon %dh", horizonHours)
	}

	h, err := src.Open(eventsource.WithNow(ctx, now), ch)
	if err != nil {
		if errors.Is(err, eventsource.ErrSourceUnavailable) || ctx.Err() != nil {
			return batch, err
		}
		return batch, eventsource.Unavailable(ch, err)
	}
	defer h.Close()

	threshold := now.Add(-time.Duration(horizonHours) * time.Hour)

	for {
		recs, err := h.ReadBatch(ctx)
		if err != nil {
			return batch, fmt.Errorf("collector: read %s: %w", ch, err)
		}
		if len(recs) == 0 {
			break
		}
		for _, raw := range recs {
			ts, err := c.ParseTime(raw.TimeGenerated)
			if err != nil {
				batch.Skipped++
				log.Debug().Str("component", "collector").Str("channel", ch.String()).Err(err).Msg("skipping record")
				continue
			}
			if ts.Before(threshold) {
				return batch, nil
			}
			batch.Events = append(batch.Events, model.EventRecord{
				Severity:   severity.FromCode(raw.EventType),
				Source:     strings.ToValidUTF8(raw.SourceName, "\uFFFD"),
				Identifier: model.MaskIdentifier(raw.EventID),
				Timestamp:  ts,
				RawTime:    raw.TimeGenerated,
				Message:    model.TruncateMessage(strings.ToValidUTF8(h.FormatMessage(raw), "\uFFFD")),
			})
		}
	}
	return batch, nil
}
