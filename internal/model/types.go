package model

import (
	"time"
	"unicode/utf8"
)

// MaxMessageLen is the hard cut applied to every collected message, in characters.
const MaxMessageLen = 200

// Severity is the normalised level of an event record.
type Severity uint8

const (
	SeverityOther Severity = iota
	SeverityError
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityInfo:
		return "INFO"
	default:
		return "OTHER"
	}
}

// EventRecord is one collected log entry.
type EventRecord struct {
	Severity   Severity
	Source     string
	Identifier uint16    // low 16 bits of the platform event code
	Timestamp  time.Time // source-local clock, second precision
	RawTime    string    // timestamp exactly as the source reported it
	Message    string    // at most MaxMessageLen characters
}

// FrequencyKey identifies an error signature within a window.
type FrequencyKey struct {
	Identifier uint16
	Source     string
}

// FrequencyEntry is one ranked error signature.
type FrequencyEntry struct {
	Key   FrequencyKey
	Count int
}

// MaskIdentifier keeps the low 16 bits of a raw platform event code.
func MaskIdentifier(raw uint32) uint16 {
	return uint16(raw & 0xFFFF)
}

// TruncateMessage cuts s to MaxMessageLen characters without an ellipsis.
func TruncateMessage(s string) string {
	if len(s) <= MaxMessageLen {
		return s
	}
	if utf8.RuneCountInString(s) <= MaxMessageLen {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxMessageLen {
			return s[:i]
		}
		n++
	}
	return s
}
