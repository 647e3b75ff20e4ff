package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"github.com/tinytelemetry/logdigest/internal/collector"
	"github.com/tinytelemetry/logdigest/internal/eventsource"
	"github.com/tinytelemetry/logdigest/internal/model"
	"github.com/tinytelemetry/logdigest/internal/report"
	"github.com/tinytelemetry/logdigest/internal/summary"
	"golang.org/x/sync/errgroup"
)

// Policy decides what an unavailable channel does to a run.
type Policy string

const (
	// PolicyBanner renders an error banner for the channel and continues.
	PolicyBanner Policy = "banner"
	// PolicyAbort fails the whole run.
	PolicyAbort Policy = "abort"
)

// ErrNoChannels is returned when a generator is configured without channels.
var ErrNoChannels = errors.New("digest: no channels configured")

// Config holds the report pipeline settings.
type Config struct {
	Host          string
	ReportsRoot   string
	Channels      []model.Channel
	Horizons      []int
	OnSourceError Policy
	Parallel      bool // scan a channel's windows concurrently
	Workers       int  // channels processed at once; <= 1 is sequential
	KeepReports   int  // newest reports kept per host; 0 keeps all
	Location      *time.Location
}

// Result describes one finished run.
type Result struct {
	RunID       string
	Path        string
	Report      report.Report
	Unavailable []model.Channel
}

// Generator produces reports from an event source.
type Generator struct {
	cfg        Config
	source     eventsource.Reader
	ranker     summary.Ranker
	aggregator *collector.Aggregator
	clock      func() time.Time

	runMu sync.Mutex
}

// NewGenerator validates cfg and creates a generator. A nil ranker ranks in
// process.
func NewGenerator(cfg Config, source eventsource.Reader, ranker summary.Ranker) (*Generator, error) {
	if source == nil {
		return nil, fmt.Errorf("digest: nil event source")
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("digest: host is required")
	}
	if strings.ContainsAny(cfg.Host, `/\`) {
		return nil, fmt.Errorf("digest: host %q contains a path separator", cfg.Host)
	}
	if strings.TrimSpace(cfg.ReportsRoot) == "" {
		return nil, fmt.Errorf("digest: reports root is required")
	}
	if len(cfg.Channels) == 0 {
		return nil, ErrNoChannels
	}
	for _, ch := range cfg.Channels {
		if ch == model.ChannelUnknown {
			return nil, fmt.Errorf("digest: unknown channel in configuration")
		}
	}
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = append([]int(nil), model.DefaultHorizons...)
	}
	if err := CheckHorizons(cfg.Horizons); err != nil {
		return nil, err
	}
	switch cfg.OnSourceError {
	case "":
		cfg.OnSourceError = PolicyBanner
	case PolicyBanner, PolicyAbort:
	default:
		return nil, fmt.Errorf("digest: unknown source error policy %q", cfg.OnSourceError)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if ranker == nil {
		ranker = summary.MemoryRanker{}
	}

	c := collector.New().WithLocation(cfg.Location)
	return &Generator{
		cfg:        cfg,
		source:     source,
		ranker:     ranker,
		aggregator: collector.NewAggregator(c, cfg.Parallel),
		clock:      time.Now,
	}, nil
}

// CheckHorizons requires one positive horizon per report window, strictly
// ascending so the summary blocks render shortest first.
func CheckHorizons(horizons []int) error {
	if len(horizons) != len(model.DefaultHorizons) {
		return fmt.Errorf("digest: want %d horizons, got %d", len(model.DefaultHorizons), len(horizons))
	}
	for i, h := range horizons {
		if h <= 0 {
			return fmt.Errorf("digest: invalid horizon %dh", h)
		}
		if i > 0 && h <= horizons[i-1] {
			return fmt.Errorf("digest: horizons must ascend, %dh follows %dh", h, horizons[i-1])
		}
	}
	return nil
}

// SetClock replaces the time source used for "now".
func (g *Generator) SetClock(clock func() time.Time) {
	if clock != nil {
		g.clock = clock
	}
}

// Config returns the effective configuration.
func (g *Generator) Config() Config { return g.cfg }

// Host returns the host identity reports are written for.
func (g *Generator) Host() string { return g.cfg.Host }

// ReportDir returns the directory reports for the configured host land in.
func (g *Generator) ReportDir() string {
	return report.Dir(g.cfg.ReportsRoot, g.cfg.Host)
}

// Build collects and summarizes every channel without writing anything.
func (g *Generator) Build(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	now := g.clock().In(g.cfg.Location).Truncate(time.Second)

	sections := make([]report.Section, len(g.cfg.Channels))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for i, ch := range g.cfg.Channels {
		eg.Go(func() error {
			s, err := g.buildSection(ectx, runID, ch, now)
			if err != nil {
				return err
			}
			sections[i] = s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Result{RunID: runID}, err
	}

	res := Result{
		RunID:  runID,
		Report: report.Report{Host: g.cfg.Host, Generated: now, Sections: sections},
	}
	for _, s := range sections {
		if s.Err != nil {
			res.Unavailable = append(res.Unavailable, s.Channel)
		}
	}
	return res, nil
}

func (g *Generator) buildSection(ctx context.Context, runID string, ch model.Channel, now time.Time) (report.Section, error) {
	w, err := g.aggregator.Aggregate(ctx, g.source, ch, g.cfg.Horizons, now)
	if err != nil {
		if errors.Is(err, eventsource.ErrSourceUnavailable) && g.cfg.OnSourceError == PolicyBanner {
			log.Warn().Str("component", "digest").Str("run_id", runID).Str("channel", ch.String()).Err(err).Msg("channel unavailable")
			return report.Section{Channel: ch, Err: err}, nil
		}
		return report.Section{}, fmt.Errorf("digest: collect %s: %w", ch, err)
	}

	s := report.Section{
		Channel: ch,
		Recent:  w.Recent().Events,
		Skipped: w.Skipped(),
	}
	for _, b := range w.Batches {
		sum, err := summary.SummarizeWith(ctx, g.ranker, b.Events, model.WindowLabel(b.HorizonHours))
		if err != nil {
			return report.Section{}, fmt.Errorf("digest: summarize %s: %w", ch, err)
		}
		s.Summaries = append(s.Summaries, sum)
	}
	if s.Skipped > 0 {
		log.Warn().Str("component", "digest").Str("run_id", runID).Str("channel", ch.String()).Int("skipped", s.Skipped).Msg("records with malformed timestamps skipped")
	}
	return s, nil
}

// Generate builds the report and atomically writes it to
// <root>/<host>/System_Report_<host>_<date>.txt, replacing a same-day file.
func (g *Generator) Generate(ctx context.Context) (Result, error) {
	g.runMu.Lock()
	defer g.runMu.Unlock()

	start := time.Now()
	res, err := g.Build(ctx)
	if err != nil {
		log.Error().Str("component", "digest").Str("run_id", res.RunID).Err(err).Msg("report generation failed")
		return res, err
	}

	res.Path = report.Path(g.cfg.ReportsRoot, g.cfg.Host, res.Report.Generated)
	if err := report.WriteFile(res.Path, []byte(report.Render(res.Report))); err != nil {
		log.Error().Str("component", "digest").Str("run_id", res.RunID).Str("path", res.Path).Err(err).Msg("report write failed")
		return res, err
	}

	if g.cfg.KeepReports > 0 {
		removed, err := report.Prune(g.ReportDir(), g.cfg.Host, g.cfg.KeepReports)
		if err != nil {
			log.Warn().Str("component", "digest").Str("run_id", res.RunID).Err(err).Msg("report retention failed")
		} else if len(removed) > 0 {
			log.Info().Str("component", "digest").Str("run_id", res.RunID).Int("removed", len(removed)).Msg("pruned old reports")
		}
	}

	log.Info().Str("component", "digest").
		Str("run_id", res.RunID).
		Str("path", res.Path).
		Int("channels", len(g.cfg.Channels)).
		Int("unavailable", len(res.Unavailable)).
		Dur("elapsed", time.Since(start)).
		Msg("report written")
	return res, nil
}
