package duckdb

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/logdigest/internal/model"
	"github.com/tinytelemetry/logdigest/internal/summary"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStoreAppliesSchema(t *testing.T) {
	store := newTestStore(t)
	assert.Equal(t, 2, store.SchemaVersion())
}

func TestTopErrorsScenario(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	events := []model.EventRecord{
		{Severity: model.SeverityError, Source: "Disk", Identifier: 17, Timestamp: now},
		{Severity: model.SeverityError, Source: "Net", Identifier: 5, Timestamp: now.Add(-time.Minute)},
		{Severity: model.SeverityWarning, Source: "Net", Identifier: 5, Timestamp: now.Add(-2 * time.Minute)},
		{Severity: model.SeverityError, Source: "Disk", Identifier: 17, Timestamp: now.Add(-3 * time.Minute)},
	}

	got, err := store.TopErrors(context.Background(), events, 5)
	require.NoError(t, err)
	assert.Equal(t, []model.FrequencyEntry{
		{Key: model.FrequencyKey{Identifier: 17, Source: "Disk"}, Count: 2},
		{Key: model.FrequencyKey{Identifier: 5, Source: "Net"}, Count: 1},
	}, got)
}

func TestTopErrorsLeavesNothingBehind(t *testing.T) {
	store := newTestStore(t)
	events := []model.EventRecord{{Severity: model.SeverityError, Source: "Disk", Identifier: 1}}

	_, err := store.TopErrors(context.Background(), events, 5)
	require.NoError(t, err)

	var n int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM window_events").Scan(&n))
	assert.Zero(t, n)
}

func TestTopErrorsEmpty(t *testing.T) {
	store := newTestStore(t)
	got, err := store.TopErrors(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = store.TopErrors(context.Background(), []model.EventRecord{{Severity: model.SeverityInfo, Source: "x"}}, 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTopErrorsMatchesMemoryRanker(t *testing.T) {
	store := newTestStore(t)
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 10; trial++ {
		var events []model.EventRecord
		for i := 0; i < 200; i++ {
			sev := model.SeverityError
			if rng.Intn(3) == 0 {
				sev = model.SeverityWarning
			}
			events = append(events, model.EventRecord{
				Severity:   sev,
				Source:     fmt.Sprintf("src%d", rng.Intn(5)),
				Identifier: uint16(rng.Intn(4)),
				Message:    fmt.Sprintf("m%d", i),
			})
		}
		want := summary.Rank(events, model.DefaultTopN)
		got, err := store.TopErrors(context.Background(), events, model.DefaultTopN)
		require.NoError(t, err)
		assert.Equal(t, want, got, "trial %d", trial)
	}
}
