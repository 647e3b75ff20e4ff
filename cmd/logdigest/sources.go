package main

import (
	"context"
	"fmt"

	"github.com/tinytelemetry/logdigest/internal/digest"
	"github.com/tinytelemetry/logdigest/internal/duckdb"
	"github.com/tinytelemetry/logdigest/internal/eventsource"
	"github.com/tinytelemetry/logdigest/internal/model"
	"github.com/tinytelemetry/logdigest/internal/summary"
)

// SourcePlugin is a small plugin primitive for wiring event log backends.
type SourcePlugin interface {
	Name() string
	Build(ctx context.Context) (eventsource.Reader, error)
}

func buildSourcePlugins(cfg appConfig) []SourcePlugin {
	return []SourcePlugin{
		fileSourcePlugin{dir: cfg.SourceDir, batch: cfg.BatchSize},
		journalSourcePlugin{command: cfg.JournalCommand, batch: cfg.BatchSize},
		cloudWatchSourcePlugin{cfg: cfg},
	}
}

// buildSource builds the configured backend and wraps it with open retries.
func buildSource(ctx context.Context, cfg appConfig) (eventsource.Reader, error) {
	for _, plugin := range buildSourcePlugins(cfg) {
		if plugin.Name() != cfg.Source {
			continue
		}
		reader, err := plugin.Build(ctx)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", plugin.Name(), err)
		}
		return eventsource.WithRetry(reader, cfg.OpenRetries+1, cfg.RetryBackoff), nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}

type fileSourcePlugin struct {
	dir   string
	batch int
}

func (p fileSourcePlugin) Name() string { return "file" }

func (p fileSourcePlugin) Build(_ context.Context) (eventsource.Reader, error) {
	if p.dir == "" {
		return nil, fmt.Errorf("source-dir is required")
	}
	return eventsource.NewFile(p.dir, p.batch), nil
}

type journalSourcePlugin struct {
	command string
	batch   int
}

func (p journalSourcePlugin) Name() string { return "journal" }

func (p journalSourcePlugin) Build(_ context.Context) (eventsource.Reader, error) {
	return eventsource.NewJournal(p.command, p.batch), nil
}

type cloudWatchSourcePlugin struct {
	cfg appConfig
}

func (p cloudWatchSourcePlugin) Name() string { return "cloudwatch" }

func (p cloudWatchSourcePlugin) Build(ctx context.Context) (eventsource.Reader, error) {
	groups, err := cloudWatchGroups(p.cfg.CloudWatchGroups)
	if err != nil {
		return nil, err
	}
	client, err := eventsource.NewCloudWatchClient(ctx, p.cfg.CloudWatchRegion, p.cfg.CloudWatchProfile)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return eventsource.NewCloudWatch(client, eventsource.CloudWatchConfig{
		Groups:       groups,
		Lookback:     p.cfg.longestHorizon(),
		Rate:         p.cfg.CloudWatchRate,
		Batch:        p.cfg.BatchSize,
		SeverityPath: p.cfg.CloudWatchSeverityPath,
		SourcePath:   p.cfg.CloudWatchSourcePath,
		EventIDPath:  p.cfg.CloudWatchEventIDPath,
		MessagePath:  p.cfg.CloudWatchMessagePath,
	})
}

func cloudWatchGroups(raw map[string]string) (map[model.Channel]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("cloudwatch-groups is required")
	}
	groups := make(map[model.Channel]string, len(raw))
	for name, group := range raw {
		ch, err := model.ParseChannel(name)
		if err != nil {
			return nil, err
		}
		groups[ch] = group
	}
	return groups, nil
}

// buildRanker returns the configured summary engine and its cleanup.
func buildRanker(cfg appConfig) (summary.Ranker, func(), error) {
	switch cfg.SummaryEngine {
	case "duckdb":
		store, err := duckdb.NewStore()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return summary.MemoryRanker{}, func() {}, nil
	}
}

// buildGenerator wires source, ranker and pipeline from cfg.
func buildGenerator(ctx context.Context, cfg appConfig) (*digest.Generator, func(), error) {
	channels, err := cfg.channels()
	if err != nil {
		return nil, nil, err
	}
	source, err := buildSource(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	ranker, closeRanker, err := buildRanker(cfg)
	if err != nil {
		return nil, nil, err
	}

	gen, err := digest.NewGenerator(digest.Config{
		Host:          cfg.Host,
		ReportsRoot:   cfg.ReportsRoot,
		Channels:      channels,
		Horizons:      cfg.Horizons,
		OnSourceError: digest.Policy(cfg.OnSourceError),
		Parallel:      cfg.Parallel,
		Workers:       cfg.Workers,
		KeepReports:   cfg.KeepReports,
	}, source, ranker)
	if err != nil {
		closeRanker()
		return nil, nil, err
	}
	return gen, closeRanker, nil
}
