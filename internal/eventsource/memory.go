package eventsource

import (
	"context"
	"sync"

	"github.com/tinytelemetry/logdigest/internal/model"
)

// Memory is an in-process Reader over fixed record sets. Records are served
// in the order they were added, which callers keep newest-first.
type Memory struct {
	mu      sync.Mutex
	batch   int
	records map[model.Channel][]RawRecord
	openErr map[model.Channel]error
	opens   map[model.Channel]int
}

// NewMemory creates an empty in-memory reader serving batch records per read.
func NewMemory(batch int) *Memory {
	if batch <= 0 {
		batch = model.DefaultBatchSize
	}
	return &Memory{
		batch:   batch,
		records: make(map[model.Channel][]RawRecord),
		openErr: make(map[model.Channel]error),
		opens:   make(map[model.Channel]int),
	}
}

// Add appends records to ch.
func (m *Memory) Add(ch model.Channel, recs ...RawRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[ch] = append(m.records[ch], recs...)
}

// FailOpen makes every Open of ch fail with err.
func (m *Memory) FailOpen(ch model.Channel, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr[ch] = err
}

// Opens returns how many times ch was opened.
func (m *Memory) Opens(ch model.Channel) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[ch]
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Open(ctx context.Context, ch model.Channel) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens[ch]++
	if err := m.openErr[ch]; err != nil {
		return nil, Unavailable(ch, err)
	}
	recs := make([]RawRecord, len(m.records[ch]))
	copy(recs, m.records[ch])
	return newSliceHandle(recs, m.batch), nil
}

// sliceHandle serves a preloaded newest-first slice in fixed-size batches.
type sliceHandle struct {
	records []RawRecord
	pos     int
	batch   int
}

func newSliceHandle(records []RawRecord, batch int) *sliceHandle {
	if batch <= 0 {
		batch = model.DefaultBatchSize
	}
	return &sliceHandle{records: records, batch: batch}
}

func (h *sliceHandle) ReadBatch(ctx context.Context) ([]RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.pos >= len(h.records) {
		return nil, nil
	}
	end := h.pos + h.batch
	if end > len(h.records) {
		end = len(h.records)
	}
	out := h.records[h.pos:end]
	h.pos = end
	return out, nil
}

func (h *sliceHandle) FormatMessage(rec RawRecord) string { return FormatMessage(rec) }

func (h *sliceHandle) Close() error {
	h.records = nil
	return nil
}

// reverse flips a chronological slice into newest-first order in place.
func reverse(recs []RawRecord) {
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
}
