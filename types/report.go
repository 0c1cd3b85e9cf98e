package types

import "time"

// JUnitCase is the per-sub-invocation entry of the JUnit projection
type JUnitCase struct {
	Name     string
	Suite    string
	Duration time.Duration
	Outcome  Outcome
	LogText  string
}

// JUnitSuite groups every case of one cycle
type JUnitSuite struct {
	Name      string
	Timestamp time.Time
	Cases     []JUnitCase
}

// StatusColor is the display color attached to a summary row
type StatusColor string

const (
	ColorGreen  StatusColor = "green"
	ColorRed    StatusColor = "red"
	ColorYellow StatusColor = "yellow"
)

// ColorFor maps an outcome to its display color
func ColorFor(o Outcome) StatusColor {
	switch o {
	case OutcomePass:
		return ColorGreen
	case OutcomeFail:
		return ColorRed
	default:
		return ColorYellow
	}
}

// SummaryRow is one line of the human-readable summary
type SummaryRow struct {
	Sequence int
	Name     string
	Summary  string
	Duration time.Duration
	Outcome  Outcome
	Color    StatusColor
	LogPath  string
}
