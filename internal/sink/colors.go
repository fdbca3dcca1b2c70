package sink

import "counterdrone-sim/internal/threat"

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

func colorWhite() string { return "\x1b[37m" }

func threatColor(l threat.Level) string {
	switch l {
	case threat.Critical:
		return colorMagenta
	case threat.High:
		return colorRed
	case threat.Medium:
		return colorYellow
	case threat.Low:
		return colorCyan
	default:
		return colorGreen
	}
}
