package eventsource

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/phuslu/log"
	"github.com/tinytelemetry/logdigest/internal/model"
)

// DefaultMaxLineSize bounds a single exported event line.
const DefaultMaxLineSize = 1024 * 1024 // 1MB

// exportedEvent is one line of a channel export file.
type exportedEvent struct {
	TimeGenerated string   `json:"time_generated"`
	EventType     uint16   `json:"event_type"`
	SourceName    string   `json:"source_name"`
	EventID       uint32   `json:"event_id"`
	Message       string   `json:"message"`
	Inserts       []string `json:"inserts,omitempty"`
}

// File reads channel exports from <dir>/<Channel>.jsonl. Each file holds one
// JSON event per line, oldest first, as written by an event log export job.
// Lines are not re-sorted; an out-of-order export stops collection early.
type File struct {
	dir   string
	batch int
}

// NewFile creates a reader over export files in dir.
func NewFile(dir string, batch int) *File {
	if batch <= 0 {
		batch = model.DefaultBatchSize
	}
	return &File{dir: dir, batch: batch}
}

func (f *File) Name() string { return "file" }

// Path returns the export file backing ch.
func (f *File) Path(ch model.Channel) string {
	return filepath.Join(f.dir, ch.String()+".jsonl")
}

func (f *File) Open(ctx context.Context, ch model.Channel) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := f.Path(ch)
	fh, err := os.Open(path)
	if err != nil {
		return nil, Unavailable(ch, err)
	}
	defer fh.Close()

	recs, skipped, err := readExport(fh)
	if err != nil {
		return nil, Unavailable(ch, fmt.Errorf("read %s: %w", path, err))
	}
	if skipped > 0 {
		log.Warn().Str("component", "eventsource").Str("path", path).Int("skipped", skipped).Msg("skipped unparseable export lines")
	}
	reverse(recs)
	return newSliceHandle(recs, f.batch), nil
}

func readExport(r io.Reader) ([]RawRecord, int, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var recs []RawRecord
	skipped := 0
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, skipped, err
		}
		if len(line) > DefaultMaxLineSize {
			skipped++
		} else if trimmed := strings.TrimSpace(string(line)); trimmed != "" {
			var ev exportedEvent
			if uerr := json.Unmarshal([]byte(trimmed), &ev); uerr != nil {
				skipped++
			} else {
				recs = append(recs, RawRecord{
					TimeGenerated: ev.TimeGenerated,
					EventType:     ev.EventType,
					SourceName:    ev.SourceName,
					EventID:       ev.EventID,
					Message:       ev.Message,
					Inserts:       ev.Inserts,
				})
			}
		}
		if errors.Is(err, io.EOF) {
			return recs, skipped, nil
		}
	}
}

// WriteExport writes recs (oldest first) in the export file format.
func WriteExport(w io.Writer, recs []RawRecord) error {
	enc := json.NewEncoder(w)
	for _, rec := range recs {
		if err := enc.Encode(exportedEvent{
			TimeGenerated: rec.TimeGenerated,
			EventType:     rec.EventType,
			SourceName:    rec.SourceName,
			EventID:       rec.EventID,
			Message:       rec.Message,
			Inserts:       rec.Inserts,
		}); err != nil {
			return err
		}
	}
	return nil
}
