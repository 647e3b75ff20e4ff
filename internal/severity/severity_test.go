package severity

import (
	"testing"

	"github.com/tinytelemetry/logdigest/internal/model"
)

func TestFromCode(t *testing.T) {
	tests := []struct {
		code uint16
		want model.Severity
	}{
		{CodeError, model.SeverityError},
		{CodeWarning, model.SeverityWarning},
		{CodeInformation, model.SeverityInfo},
		{CodeSuccess, model.SeverityOther},
		{CodeAuditSuccess, model.SeverityOther},
		{CodeAuditFailure, model.SeverityOther},
		{0x00FF, model.SeverityOther},
	}
	for _, tt := range tests {
		if got := FromCode(tt.code); got != tt.want {
			t.Errorf("FromCode(%#x) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestCodeFromName(t *testing.T) {
	tests := []struct {
		input string
		want  uint16
	}{
		{"ERROR", CodeError}, {"err", CodeError}, {"Critical", CodeError},
		{"FATAL", CodeError}, {"panic", CodeError},
		{"WARNING", CodeWarning}, {"warn", CodeWarning},
		{"Information", CodeInformation}, {"INFO", CodeInformation}, {"notice", CodeInformation},
		{"ERROR_CODE_42", CodeError}, {"WARNING_LEVEL", CodeWarning},
		{"3", CodeError}, {"4", CodeWarning}, {"6", CodeInformation}, {"7", CodeSuccess},
		{"DEBUG", CodeSuccess}, {"", CodeSuccess}, {"foo", CodeSuccess},
		{"  INFO  ", CodeInformation},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CodeFromName(tt.input); got != tt.want {
				t.Errorf("CodeFromName(%q) = %#x, want %#x", tt.input, got, tt.want)
			}
		})
	}
}

func TestCodeFromPriority(t *testing.T) {
	want := []uint16{CodeError, CodeError, CodeError, CodeError, CodeWarning, CodeInformation, CodeInformation, CodeSuccess}
	for p, w := range want {
		if got := CodeFromPriority(p); got != w {
			t.Errorf("CodeFromPriority(%d) = %#x, want %#x", p, got, w)
		}
	}
	if CodeFromPriority(-1) != CodeSuccess {
		t.Error("negative priority should map to success")
	}
}

func TestExtractCodeFromText(t *testing.T) {
	tests := []struct {
		input string
		want  uint16
	}{
		{"ERROR: connection refused", CodeError},
		{"[WARN] disk usage high", CodeWarning},
		{"CRITICAL system failure", CodeError},
		{"2024-01-01 INFO Starting server", CodeInformation},
		{"DEBUG checking cache", CodeSuccess},
		{"no severity here", CodeSuccess},
		{"", CodeSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ExtractCodeFromText(tt.input); got != tt.want {
				t.Errorf("ExtractCodeFromText(%q) = %#x, want %#x", tt.input, got, tt.want)
			}
		})
	}
}
