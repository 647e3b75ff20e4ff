package model

import (
	"fmt"
	"strings"
)

// Channel is one of the fixed, named log streams scanned for a report.
type Channel uint8

const (
	ChannelUnknown Channel = iota
	ChannelSystem
	ChannelApplication
	ChannelSecurity
	ChannelSetup
)

var channelNames = [...]string{
	ChannelUnknown:     "Unknown",
	ChannelSystem:      "System",
	ChannelApplication: "Application",
	ChannelSecurity:    "Security",
	ChannelSetup:       "Setup",
}

func (c Channel) String() string {
	if int(c) < len(channelNames) {
		return channelNames[c]
	}
	return fmt.Sprintf("Channel(%d)", uint8(c))
}

// ParseChannel resolves a channel name case-insensitively.
func ParseChannel(name string) (Channel, error) {
	n := strings.TrimSpace(name)
	for i := 1; i < len(channelNames); i++ {
		if strings.EqualFold(n, channelNames[i]) {
			return Channel(i), nil
		}
	}
	return ChannelUnknown, fmt.Errorf("unknown channel %q", name)
}

// ParseChannels resolves names in order, dropping duplicates.
func ParseChannels(names []string) ([]Channel, error) {
	out := make([]Channel, 0, len(names))
	seen := make(map[Channel]bool, len(names))
	for _, name := range names {
		ch, err := ParseChannel(name)
		if err != nil {
			return nil, err
		}
		if seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out, nil
}
