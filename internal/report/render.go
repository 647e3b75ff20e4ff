package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/logdigest/internal/eventsource"
	"github.com/tinytelemetry/logdigest/internal/model"
	"github.com/tinytelemetry/logdigest/internal/summary"
)

const (
	// TitleDateLayout renders the generation date in the title line.
	TitleDateLayout = "Monday, January 02, 2006"
	// NoRecentEvents replaces an empty recent-event listing.
	NoRecentEvents = "No recent critical events."

	ruleWidth = 60
)

// Section is one channel's part of the report. A section with Err set is
// rendered as an unavailable banner instead of its listing and summaries.
type Section struct {
	Channel   model.Channel
	Recent    []model.EventRecord
	Summaries []summary.Summary
	Skipped   int
	Err       error
}

// Report is a fully collected report ready to render.
type Report struct {
	Host      string
	Generated time.Time
	Sections  []Section
}

var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Render formats r. Output depends only on r.
func Render(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "System Report for %s - %s\n", r.Host, r.Generated.Format(TitleDateLayout))
	b.WriteString(strings.Repeat("=", ruleWidth))
	b.WriteByte('\n')

	for _, s := range r.Sections {
		fmt.Fprintf(&b, "\n-- %s Log --\n", s.Channel)
		if s.Err != nil {
			fmt.Fprintf(&b, "!! %s log unavailable: %s\n", s.Channel, unavailableReason(s.Err))
			continue
		}

		if len(s.Recent) == 0 {
			b.WriteString(NoRecentEvents)
			b.WriteByte('\n')
		}
		for _, e := range s.Recent {
			fmt.Fprintf(&b, "[%s] %s - %s (ID %d)\n", e.RawTime, e.Severity, e.Source, e.Identifier)
			fmt.Fprintf(&b, "    %s\n", flatten.Replace(e.Message))
		}
		if s.Skipped > 0 {
			fmt.Fprintf(&b, "(skipped %d records with malformed timestamps)\n", s.Skipped)
		}

		b.WriteByte('\n')
		for _, sum := range s.Summaries {
			b.WriteString(sum.Render())
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func unavailableReason(err error) string {
	var ue *eventsource.UnavailableError
	if errors.As(err, &ue) && ue.Err != nil {
		return flatten.Replace(ue.Err.Error())
	}
	return flatten.Replace(err.Error())
}
