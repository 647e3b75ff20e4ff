package severity

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tinytelemetry/logdigest/internal/model"
)

// Raw event type codes as reported by event log APIs.
const (
	CodeSuccess      uint16 = 0x0000
	CodeError        uint16 = 0x0001
	CodeWarning      uint16 = 0x0002
	CodeInformation  uint16 = 0x0004
	CodeAuditSuccess uint16 = 0x0008
	CodeAuditFailure uint16 = 0x0010
)

var codeTable = map[uint16]model.Severity{
	CodeError:       model.SeverityError,
	CodeWarning:     model.SeverityWarning,
	CodeInformation: model.SeverityInfo,
}

// WordRegex matches common severity words in free text.
var WordRegex = regexp.MustCompile(`(?i)\b(TRACE|DEBUG|INFO|WARN|WARNING|ERROR|FATAL|CRITICAL)\b`)

// FromCode maps a raw event type to a severity; unknown codes are OTHER.
func FromCode(code uint16) model.Severity {
	if s, ok := codeTable[code]; ok {
		return s
	}
	return model.SeverityOther
}

// CodeFromName converts a textual level ("err", "Warning", "5", ...) into a raw
// event type code. Numeric names are treated as syslog priorities.
func CodeFromName(name string) uint16 {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	if normalized == "" {
		return CodeSuccess
	}
	if p, err := strconv.Atoi(normalized); err == nil {
		return CodeFromPriority(p)
	}

	switch normalized {
	case "ERROR", "ERR", "ERRO", "FATAL", "FATL", "FTL", "CRITICAL", "CRIT", "CRT", "PANIC", "PNC", "EMERG", "ALERT":
		return CodeError
	case "WARN", "WARNING", "WRNG", "WRN":
		return CodeWarning
	case "INFO", "INFORMATION", "INF", "NOTICE":
		return CodeInformation
	case "AUDIT_SUCCESS":
		return CodeAuditSuccess
	case "AUDIT_FAILURE":
		return CodeAuditFailure
	}

	if len(normalized) >= 4 {
		switch normalized[:4] {
		case "ERRO", "FATA", "CRIT":
			return CodeError
		case "WARN":
			return CodeWarning
		case "INFO":
			return CodeInformation
		}
	}
	return CodeSuccess
}

// CodeFromPriority maps a syslog/journald priority (0 emerg .. 7 debug).
func CodeFromPriority(priority int) uint16 {
	switch {
	case priority < 0:
		return CodeSuccess
	case priority <= 3:
		return CodeError
	case priority == 4:
		return CodeWarning
	case priority <= 6:
		return CodeInformation
	default:
		return CodeSuccess
	}
}

// ExtractCodeFromText finds the first severity word in a message.
func ExtractCodeFromText(message string) uint16 {
	matches := WordRegex.FindStringSubmatch(message)
	if len(matches) > 1 {
		return CodeFromName(matches[1])
	}
	return CodeSuccess
}
