package collector

import (
	"context"
	"time"

	"github.com/tinytelemetry/logdigest/internal/eventsource"
	"github.com/tinytelemetry/logdigest/internal/model"
	"golang.org/x/sync/errgroup"
)

// Windows holds one independently collected batch per horizon, in the
// order the horizons were requested.
type Windows struct {
	Channel model.Channel
	Batches []Batch
}

// Recent returns the shortest-horizon batch.
func (w Windows) Recent() Batch {
	if len(w.Batches) == 0 {
		return Batch{Channel: w.Channel}
	}
	best := 0
	for i, b := range w.Batches {
		if b.HorizonHours < w.Batches[best].HorizonHours {
			best = i
		}
	}
	return w.Batches[best]
}

// Skipped returns the largest skipped count across the windows. Every
// window rescans the same records, so the longest scan sees all of them.
func (w Windows) Skipped() int {
	n := 0
	for _, b := range w.Batches {
		if b.Skipped > n {
			n = b.Skipped
		}
	}
	return n
}

// Aggregator runs one collection per horizon against the same source.
type Aggregator struct {
	collector *Collector
	parallel  bool
}

// NewAggregator creates an aggregator. With parallel set, the horizons of a
// channel are scanned concurrently.
func NewAggregator(c *Collector, parallel bool) *Aggregator {
	if c == nil {
		c = New()
	}
	return &Aggregator{collector: c, parallel: parallel}
}

// Aggregate collects ch once per horizon. Any collection error is returned
// unchanged.
func (a *Aggregator) Aggregate(ctx context.Context, src eventsource.Reader, ch model.Channel, horizons []int, now time.Time) (Windows, error) {
	w := Windows{Channel: ch, Batches: make([]Batch, len(horizons))}

	if !a.parallel {
		for i, hours := range horizons {
			b, err := a.collector.Collect(ctx, src, ch, hours, now)
			if err != nil {
				return Windows{Channel: ch}, err
			}
			w.Batches[i] = b
		}
		return w, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, hours := range horizons {
		g.Go(func() error {
			b, err := a.collector.Collect(gctx, src, ch, hours, now)
			if err != nil {
				return err
			}
			w.Batches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Windows{Channel: ch}, err
	}
	return w, nil
}
