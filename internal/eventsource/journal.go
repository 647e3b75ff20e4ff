package eventsource

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/tinytelemetry/logdigest/internal/model"
	"github.com/tinytelemetry/logdigest/internal/severity"
)

// DefaultJournalCommand is the journal reader binary looked up in PATH.
const DefaultJournalCommand = "journalctl"

// Journal streams the systemd journal newest-first through journalctl.
// Reads are lazy: closing the handle stops the process, so an early stop
// in the collector also stops the underlying scan.
type Journal struct {
	command  string
	batch    int
	location *time.Location
}

// NewJournal creates a journal reader. An empty command uses journalctl.
func NewJournal(command string, batch int) *Journal {
	if strings.TrimSpace(command) == "" {
		command = DefaultJournalCommand
	}
	if batch <= 0 {
		batch = model.DefaultBatchSize
	}
	return &Journal{command: command, batch: batch, location: time.Local}
}

func (j *Journal) Name() string { return "journal" }

// SetLocation sets the clock used to render journal timestamps.
func (j *Journal) SetLocation(loc *time.Location) {
	if loc != nil {
		j.location = loc
	}
}

// JournalArgs returns the journalctl arguments used for ch.
func JournalArgs(ch model.Channel) ([]string, error) {
	args := []string{"--output=json", "--reverse", "--no-pager", "--quiet"}
	switch ch {
	case model.ChannelSystem:
		args = append(args, "--system")
	case model.ChannelApplication:
		args = append(args, "--user")
	case model.ChannelSecurity:
		args = append(args, "_TRANSPORT=audit")
	default:
		return nil, fmt.Errorf("journal: channel %s has no journal mapping", ch)
	}
	return args, nil
}

func (j *Journal) Open(ctx context.Context, ch model.Channel) (Handle, error) {
	args, err := JournalArgs(ch)
	if err != nil {
		return nil, Unavailable(ch, err)
	}

	cmd := exec.CommandContext(ctx, j.command, args...)
	stderr := &limitedBuffer{max: 4096}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, Unavailable(ch, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, Unavailable(ch, fmt.Errorf("start %s: %w", j.command, err))
	}

	return &journalHandle{
		channel:  ch,
		cmd:      cmd,
		stdout:   stdout,
		stderr:   stderr,
		reader:   bufio.NewReaderSize(stdout, 64*1024),
		batch:    j.batch,
		location: j.location,
	}, nil
}

type journalHandle struct {
	channel  model.Channel
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   *limitedBuffer
	reader   *bufio.Reader
	batch    int
	location *time.Location

	read      int
	exhausted bool
	closeOnce sync.Once
}

func (h *journalHandle) ReadBatch(ctx context.Context) ([]RawRecord, error) {
	if h.exhausted {
		return nil, nil
	}
	out := make([]RawRecord, 0, h.batch)
	for len(out) < h.batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := h.reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("journal: read: %w", err)
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			rec, ok := parseJournalEntry(trimmed, h.location)
			if ok {
				out = append(out, rec)
				h.read++
			} else {
				log.Debug().Str("component", "eventsource").Str("channel", h.channel.String()).Msg("skipped unparseable journal entry")
			}
		}
		if errors.Is(err, io.EOF) {
			h.exhausted = true
			if werr := h.cmd.Wait(); werr != nil && h.read == 0 {
				msg := strings.TrimSpace(h.stderr.String())
				if msg == "" {
					msg = werr.Error()
				}
				return nil, Unavailable(h.channel, errors.New(msg))
			}
			break
		}
	}
	return out, nil
}

func (h *journalHandle) FormatMessage(rec RawRecord) string { return FormatMessage(rec) }

func (h *journalHandle) Close() error {
	h.closeOnce.Do(func() {
		if h.exhausted {
			return
		}
		h.exhausted = true
		if h.cmd.Process != nil {
			_ = h.cmd.Process.Kill()
		}
		_ = h.stdout.Close()
		// The process was killed on purpose; its exit status is not an error.
		_ = h.cmd.Wait()
	})
	return nil
}

// parseJournalEntry maps one `journalctl -o json` object. A record with an
// unreadable __REALTIME_TIMESTAMP keeps the raw value so the collector can
// count it as malformed.
func parseJournalEntry(line []byte, loc *time.Location) (RawRecord, bool) {
	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		return RawRecord{}, false
	}

	rec := RawRecord{}
	ts := journalString(entry["__REALTIME_TIMESTAMP"])
	if usec, err := strconv.ParseInt(ts, 10, 64); err == nil {
		rec.TimeGenerated = FormatTime(time.UnixMicro(usec).In(loc))
	} else {
		rec.TimeGenerated = ts
	}

	priority := -1
	if p, err := strconv.Atoi(journalString(entry["PRIORITY"])); err == nil {
		priority = p
	}
	rec.EventType = severity.CodeFromPriority(priority)

	rec.SourceName = journalString(entry["SYSLOG_IDENTIFIER"])
	if rec.SourceName == "" {
		rec.SourceName = journalString(entry["_COMM"])
	}
	if rec.SourceName == "" {
		rec.SourceName = "journal"
	}

	if errno, err := strconv.ParseUint(journalString(entry["ERRNO"]), 10, 32); err == nil {
		rec.EventID = uint32(errno)
	}
	rec.Message = journalString(entry["MESSAGE"])
	return rec, true
}

// journalString decodes a journal field. Binary-safe fields arrive as
// arrays of byte values.
func journalString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		b := make([]byte, 0, len(t))
		for _, x := range t {
			if f, ok := x.(float64); ok {
				b = append(b, byte(f))
			}
		}
		return string(b)
	default:
		return ""
	}
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
