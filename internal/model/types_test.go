package model

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"short", "disk full", 9},
		{"exact", strings.Repeat("a", MaxMessageLen), MaxMessageLen},
		{"long ascii", strings.Repeat("b", 512), MaxMessageLen},
		{"long multibyte", strings.Repeat("é", 300), MaxMessageLen},
		{"mixed", strings.Repeat("x€", 150), MaxMessageLen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateMessage(tt.input)
			if n := utf8.RuneCountInString(got); n != tt.want {
				t.Fatalf("TruncateMessage length = %d, want %d", n, tt.want)
			}
			if !strings.HasPrefix(tt.input, got) {
				t.Fatalf("TruncateMessage result is not a prefix of the input")
			}
			if !utf8.ValidString(got) {
				t.Fatalf("TruncateMessage produced invalid UTF-8")
			}
		})
	}
}

func TestMaskIdentifier(t *testing.T) {
	codes := []uint32{0, 17, 0xFFFF, 0x10000, 0xC0000005, 0x80001B58, 0xFFFFFFFF}
	for _, raw := range codes {
		if got := MaskIdentifier(raw); uint32(got) != raw&0xFFFF {
			t.Errorf("MaskIdentifier(%#x) = %#x, want %#x", raw, got, raw&0xFFFF)
		}
	}
}

func TestParseChannels(t *testing.T) {
	got, err := ParseChannels([]string{"system", " Application ", "SYSTEM", "security"})
	if err != nil {
		t.Fatalf("ParseChannels: %v", err)
	}
	want := []Channel{ChannelSystem, ChannelApplication, ChannelSecurity}
	if len(got) != len(want) {
		t.Fatalf("ParseChannels = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("channel[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if _, err := ParseChannels([]string{"System", "Kernel"}); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestWindowLabel(t *testing.T) {
	tests := map[int]string{
		1:   "1h",
		24:  "24h",
		36:  "36h",
		48:  "2d",
		168: "7d",
		720: "30d",
	}
	for hours, want := range tests {
		if got := WindowLabel(hours); got != want {
			t.Errorf("WindowLabel(%d) = %q, want %q", hours, got, want)
		}
	}
}

func TestSeverityString(t *testing.T) {
	if SeverityError.String() != "ERROR" || SeverityWarning.String() != "WARNING" ||
		SeverityInfo.String() != "INFO" || SeverityOther.String() != "OTHER" {
		t.Fatal("unexpected severity names")
	}
}
