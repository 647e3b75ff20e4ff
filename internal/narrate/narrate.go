package narrate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/tinytelemetry/logdigest/internal/report"
	"github.com/tinytelemetry/logdigest/internal/summary"
)

// ErrNoSummary is returned for a report without a frequency block.
var ErrNoSummary = errors.New("narrate: report has no summary")

// Narrator turns report text into speech or any other rendition.
type Narrator interface {
	Narrate(ctx context.Context, text string) error
}

// NarratorFunc adapts a function to Narrator.
type NarratorFunc func(ctx context.Context, text string) error

func (f NarratorFunc) Narrate(ctx context.Context, text string) error { return f(ctx, text) }

// ExtractSummary returns the report text from the first frequency marker
// line to the end, one space between trimmed non-empty lines.
func ExtractSummary(r io.Reader) (string, error) {
	var parts []string
	include := false
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !include && strings.HasPrefix(line, summary.Marker) {
			include = true
		}
		if !include {
			continue
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("narrate: read report: %w", err)
	}
	if !include {
		return "", ErrNoSummary
	}
	return strings.Join(parts, " "), nil
}

// ExtractSummaryFile runs ExtractSummary over the file at path.
func ExtractSummaryFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("narrate: open report: %w", err)
	}
	defer f.Close()
	return ExtractSummary(f)
}

// DefaultArgs is the argument template used when a CommandNarrator has none.
var DefaultArgs = []string{"--text", "{text}", "--output", "{output}"}

// CommandNarrator hands text to an external speech program. The {text} and
// {output} placeholders in Args are substituted per call.
type CommandNarrator struct {
	Command string
	Args    []string
	Output  string
}

// BuildArgs returns the argument list for text.
func (n CommandNarrator) BuildArgs(text string) []string {
	tmpl := n.Args
	if len(tmpl) == 0 {
		tmpl = DefaultArgs
	}
	r := strings.NewReplacer("{text}", text, "{output}", n.Output)
	args := make([]string, len(tmpl))
	for i, a := range tmpl {
		args[i] = r.Replace(a)
	}
	return args
}

func (n CommandNarrator) Narrate(ctx context.Context, text string) error {
	if strings.TrimSpace(n.Command) == "" {
		return fmt.Errorf("narrate: no command configured")
	}
	cmd := exec.CommandContext(ctx, n.Command, n.BuildArgs(text)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		if msg != "" {
			return fmt.Errorf("narrate: %s: %w: %s", n.Command, err, msg)
		}
		return fmt.Errorf("narrate: %s: %w", n.Command, err)
	}
	return nil
}

// SpeakLatest narrates the summary of the most recently modified report for
// host in dir and returns that report's path.
func SpeakLatest(ctx context.Context, dir, host string, n Narrator) (string, error) {
	path, err := report.Latest(dir, host)
	if err != nil {
		return "", err
	}
	if err := SpeakFile(ctx, path, n); err != nil {
		return path, err
	}
	return path, nil
}

// SpeakFile narrates the summary of one report file.
func SpeakFile(ctx context.Context, path string, n Narrator) error {
	text, err := ExtractSummaryFile(path)
	if err != nil {
		return err
	}
	return n.Narrate(ctx, text)
}
