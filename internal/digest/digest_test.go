package digest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/logdigest/internal/duckdb"
	"github.com/tinytelemetry/logdigest/internal/eventsource"
	"github.com/tinytelemetry/logdigest/internal/model"
	"github.com/tinytelemetry/logdigest/internal/report"
	"github.com/tinytelemetry/logdigest/internal/severity"
	"github.com/tinytelemetry/logdigest/internal/summary"
)

var testNow = time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC)

func raw(age time.Duration, code uint16, source string, id uint32, msg string) eventsource.RawRecord {
	return eventsource.RawRecord{
		TimeGenerated: eventsource.FormatTime(testNow.Add(-age)),
		EventType:     code,
		SourceName:    source,
		EventID:       id,
		Message:       msg,
	}
}

func seededSource() *eventsource.Memory {
	src := eventsource.NewMemory(3)
	src.Add(model.ChannelSystem,
		raw(time.Hour, severity.CodeError, "Disk", 17, "bad block"),
		raw(2*time.Hour, severity.CodeError, "Net", 5, "link down"),
		raw(3*time.Hour, severity.CodeError, "Disk", 0x80000011, "bad block"),
		raw(4*time.Hour, severity.CodeWarning, "Disk", 17, "slow"),
		raw(72*time.Hour, severity.CodeError, "Kernel", 41, "unexpected reboot"),
		raw(400*time.Hour, severity.CodeError, "Kernel", 41, "unexpected reboot"),
		raw(900*time.Hour, severity.CodeError, "Ancient", 1, "outside every window"),
	)
	src.Add(model.ChannelApplication,
		raw(30*time.Minute, severity.CodeInformation, "App", 1000, "started"),
	)
	return src
}

func newGenerator(t *testing.T, cfg Config, src eventsource.Reader, ranker summary.Ranker) *Generator {
	t.Helper()
	if cfg.Host == "" {
		cfg.Host = "web-1"
	}
	if cfg.ReportsRoot == "" {
		cfg.ReportsRoot = t.TempDir()
	}
	if cfg.Channels == nil {
		cfg.Channels = model.DefaultChannels
	}
	cfg.Location = time.UTC
	g, err := NewGenerator(cfg, src, ranker)
	require.NoError(t, err)
	g.SetClock(func() time.Time { return testNow })
	return g
}

func TestGenerateWritesReport(t *testing.T) {
	g := newGenerator(t, Config{}, seededSource(), nil)

	res, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, res.Unavailable)
	assert.Equal(t, filepath.Join(g.Config().ReportsRoot, "web-1", "System_Report_web-1_2026-10-18.txt"), res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasPrefix(text, "System Report for web-1 - Sunday, October 18, 2026\n"))
	assert.Contains(t, text, "[Sun Oct 18 06:00:00 2026] ERROR - Disk (ID 17)\n    bad block\n")
	assert.Contains(t, text, "Top 5 frequent ERRORs (last 24h):\n  Disk (ID 17): 2\n  Net (ID 5): 1\nTop 5 frequent ERRORs (last 7d):\n  Disk (ID 17): 2\n  Net (ID 5): 1\n  Kernel (ID 41): 1\nTop 5 frequent ERRORs (last 30d):\n  Disk (ID 17): 2\n  Kernel (ID 41): 2\n  Net (ID 5): 1\n")
	assert.NotContains(t, text, "Ancient")
	assert.NotContains(t, text, "unexpected reboot")

	appIdx := strings.Index(text, "-- Application Log --")
	require.Positive(t, appIdx)
	assert.Less(t, strings.Index(text, "-- System Log --"), appIdx)
	assert.Contains(t, text[appIdx:], "Top 5 frequent ERRORs (last 24h): no frequent ERRORs found")
}

func TestGenerateSameDayReplacesFile(t *testing.T) {
	src := seededSource()
	g := newGenerator(t, Config{}, src, nil)

	first, err := g.Generate(context.Background())
	require.NoError(t, err)

	src.Add(model.ChannelApplication, raw(45*time.Minute, severity.CodeError, "App", 1001, "crashed"))
	second, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Path, second.Path)
	assert.NotEqual(t, first.RunID, second.RunID)

	entries, err := os.ReadDir(g.ReportDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "System Report for"))
	assert.Contains(t, string(data), "App (ID 1001): 1")
}

func TestUnavailableChannelBanner(t *testing.T) {
	src := seededSource()
	src.FailOpen(model.ChannelApplication, errors.New("RPC server is unavailable"))
	g := newGenerator(t, Config{}, src, nil)

	res, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Channel{model.ChannelApplication}, res.Unavailable)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "-- Application Log --\n!! Application log unavailable: RPC server is unavailable\n")
	assert.Contains(t, text, "-- System Log --")
}

func TestUnavailableChannelAbort(t *testing.T) {
	src := seededSource()
	src.FailOpen(model.ChannelApplication, errors.New("RPC server is unavailable"))
	root := t.TempDir()
	g := newGenerator(t, Config{ReportsRoot: root, OnSourceError: PolicyAbort}, src, nil)

	_, err := g.Generate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, eventsource.ErrSourceUnavailable)

	_, statErr := os.Stat(filepath.Join(root, "web-1"))
	assert.True(t, os.IsNotExist(statErr), "no report directory expected after abort")
}

func TestSummaryBlocksFollowHorizonOrder(t *testing.T) {
	g := newGenerator(t, Config{Horizons: []int{1, 12, 48}}, seededSource(), nil)

	res, err := g.Build(context.Background())
	require.NoError(t, err)
	text := report.Render(res.Report)

	var labels []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, summary.Marker) {
			labels = append(labels, line[:strings.Index(line, ":")+1])
		}
	}
	require.GreaterOrEqual(t, len(labels), 3)
	assert.Equal(t, []string{
		"Top 5 frequent ERRORs (last 1h):",
		"Top 5 frequent ERRORs (last 12h):",
		"Top 5 frequent ERRORs (last 2d):",
	}, labels[:3])
}

func TestConcurrentModesMatchSequential(t *testing.T) {
	seq := newGenerator(t, Config{}, seededSource(), nil)
	par := newGenerator(t, Config{Parallel: true, Workers: 4}, seededSource(), nil)

	a, err := seq.Build(context.Background())
	require.NoError(t, err)
	b, err := par.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Render(a.Report), report.Render(b.Report))
}

func TestDuckDBRankerMatchesMemory(t *testing.T) {
	store, err := duckdb.NewStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mem := newGenerator(t, Config{}, seededSource(), nil)
	sql := newGenerator(t, Config{}, seededSource(), store)

	a, err := mem.Build(context.Background())
	require.NoError(t, err)
	b, err := sql.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Render(a.Report), report.Render(b.Report))
}

func TestKeepReportsPrunes(t *testing.T) {
	root := t.TempDir()
	dir := report.Dir(root, "web-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, day := range []string{"2026-10-15", "2026-10-16", "2026-10-17"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "System_Report_web-1_"+day+".txt"), []byte("old"), 0o644))
	}

	g := newGenerator(t, Config{ReportsRoot: root, KeepReports: 2}, seededSource(), nil)
	_, err := g.Generate(context.Background())
	require.NoError(t, err)

	files, err := report.List(dir, "web-1")
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.ElementsMatch(t, []string{"System_Report_web-1_2026-10-18.txt", "System_Report_web-1_2026-10-17.txt"}, names)
}

func TestNewGeneratorValidation(t *testing.T) {
	src := eventsource.NewMemory(0)
	base := Config{Host: "h", ReportsRoot: "/tmp/r", Channels: model.DefaultChannels}

	tests := []struct {
		name   string
		mutate func(*Config)
		is     error
	}{
		{name: "no channels", mutate: func(c *Config) { c.Channels = nil }, is: ErrNoChannels},
		{name: "no host", mutate: func(c *Config) { c.Host = " " }},
		{name: "host with separator", mutate: func(c *Config) { c.Host = "a/b" }},
		{name: "no root", mutate: func(c *Config) { c.ReportsRoot = "" }},
		{name: "unknown channel", mutate: func(c *Config) { c.Channels = []model.Channel{model.ChannelUnknown} }},
		{name: "bad horizon", mutate: func(c *Config) { c.Horizons = []int{24, -1, 720} }},
		{name: "single horizon", mutate: func(c *Config) { c.Horizons = []int{24} }},
		{name: "four horizons", mutate: func(c *Config) { c.Horizons = []int{24, 168, 720, 2160} }},
		{name: "descending horizons", mutate: func(c *Config) { c.Horizons = []int{720, 168, 24} }},
		{name: "duplicate horizons", mutate: func(c *Config) { c.Horizons = []int{24, 24, 720} }},
		{name: "bad policy", mutate: func(c *Config) { c.OnSourceError = "ignore" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := NewGenerator(cfg, src, nil)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}

	g, err := NewGenerator(base, src, nil)
	require.NoError(t, err)
	assert.Equal(t, PolicyBanner, g.Config().OnSourceError)
	assert.Equal(t, model.DefaultHorizons, g.Config().Horizons)

	_, err = NewGenerator(base, nil, nil)
	assert.Error(t, err)
}
