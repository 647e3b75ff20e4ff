package model

import "fmt"

// Shared defaults used by both binaries.
const (
	DefaultBatchSize = 256
	DefaultTopN      = 5
)

// DefaultHorizons are the short, medium and long windows in hours.
var DefaultHorizons = []int{24, 168, 720}

// DefaultChannels is the reference channel set, in report order.
var DefaultChannels = []Channel{ChannelSystem, ChannelApplication}

// WindowLabel renders a horizon for humans: whole multi-day horizons in days
// ("7d", "30d"), everything else in hours ("24h").
func WindowLabel(hours int) string {
	if hours >= 48 && hours%24 == 0 {
		return fmt.Sprintf("%dd", hours/24)
	}
	return fmt.Sprintf("%dh", hours)
}
