package main

import (
	"time"

	"github.com/fatih/color"
)

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func formatTs(unix int64) string {
	return time.Unix(unix, 0).Format(time.TimeOnly)
}

// capacityText colors a capacity by the same tiers the sensor icon uses.
func capacityText(c int) string {
	switch {
	case c >= 80:
		return color.New(color.Bold, color.FgGreen).Sprintf("%d%%", c)
	case c >= 20:
		return color.New(color.Bold, color.FgYellow).Sprintf("%d%%", c)
	default:
		return color.New(color.Bold, color.FgRed).Sprintf("%d%%", c)
	}
}

func timeText(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}
