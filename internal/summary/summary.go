package summary

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tinytelemetry/logdigest/internal/model"
)

// Marker opens every frequency block. Downstream narration searches for it,
// so the text must not change.
const Marker = "Top 5 frequent ERRORs"

// NoneFound is rendered for a window without ERROR records.
const NoneFound = "no frequent ERRORs found"

// Ranker selects the n most frequent ERROR signatures of a window.
type Ranker interface {
	TopErrors(ctx context.Context, events []model.EventRecord, n int) ([]model.FrequencyEntry, error)
}

// MemoryRanker ranks in process.
type MemoryRanker struct{}

func (MemoryRanker) TopErrors(_ context.Context, events []model.EventRecord, n int) ([]model.FrequencyEntry, error) {
	return Rank(events, n), nil
}

// Rank counts ERROR records by (identifier, source) and returns the n most
// frequent, count descending. Ties keep first-seen order of events.
func Rank(events []model.EventRecord, n int) []model.FrequencyEntry {
	if n <= 0 {
		return nil
	}
	index := make(map[model.FrequencyKey]int)
	var entries []model.FrequencyEntry
	for _, e := range events {
		if e.Severity != model.SeverityError {
			continue
		}
		key := model.FrequencyKey{Identifier: e.Identifier, Source: e.Source}
		if i, ok := index[key]; ok {
			entries[i].Count++
			continue
		}
		index[key] = len(entries)
		entries = append(entries, model.FrequencyEntry{Key: key, Count: 1})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Count > entries[j].Count })
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Summary is the ranked block of one window.
type Summary struct {
	Label   string
	Entries []model.FrequencyEntry
}

// Header returns the marker line for the window.
func (s Summary) Header() string {
	if len(s.Entries) == 0 {
		return fmt.Sprintf("%s (last %s): %s", Marker, s.Label, NoneFound)
	}
	return fmt.Sprintf("%s (last %s):", Marker, s.Label)
}

// Lines renders the block, one line per entry after the header.
func (s Summary) Lines() []string {
	lines := make([]string, 0, len(s.Entries)+1)
	lines = append(lines, s.Header())
	for _, e := range s.Entries {
		lines = append(lines, fmt.Sprintf("  %s (ID %d): %d", e.Key.Source, e.Key.Identifier, e.Count))
	}
	return lines
}

// Render returns the block as text without a trailing newline.
func (s Summary) Render() string {
	return strings.Join(s.Lines(), "\n")
}

// Summarize ranks events in process under label.
func Summarize(events []model.EventRecord, label string) Summary {
	return Summary{Label: label, Entries: Rank(events, model.DefaultTopN)}
}

// SummarizeWith ranks events with r.
func SummarizeWith(ctx context.Context, r Ranker, events []model.EventRecord, label string) (Summary, error) {
	if r == nil {
		return Summarize(events, label), nil
	}
	entries, err := r.TopErrors(ctx, events, model.DefaultTopN)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: rank %s: %w", label, err)
	}
	return Summary{Label: label, Entries: entries}, nil
}
