package eventsource

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatMessage renders a record's description: %1..%n placeholders are
// replaced by insertion strings, and a record with no description gets the
// same fallback text Windows shows for a missing message resource.
func FormatMessage(rec RawRecord) string {
	if strings.TrimSpace(rec.Message) == "" {
		if len(rec.Inserts) > 0 {
			return strings.Join(rec.Inserts, " ")
		}
		return fmt.Sprintf("The description for Event ID %d in Source %q could not be found.", rec.EventID&0xFFFF, rec.SourceName)
	}
	return ExpandInserts(rec.Message, rec.Inserts)
}

// ExpandInserts substitutes %1..%n in template. Higher indexes are matched
// first so %10 is never read as %1 followed by "0".
func ExpandInserts(template string, inserts []string) string {
	if len(inserts) == 0 || !strings.Contains(template, "%") {
		return template
	}
	pairs := make([]string, 0, len(inserts)*2)
	for i := len(inserts); i >= 1; i-- {
		pairs = append(pairs, "%"+strconv.Itoa(i), inserts[i-1])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
