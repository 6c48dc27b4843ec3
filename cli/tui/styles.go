// Package tui provides Bubble Tea components for the gobackup CLI: a live
// progress view for run and read-only stats dashboards. Both are opt-in
// (--tui) and show the same payloads as the plain renderers.
package tui

import "github.com/charmbracelet/lipgloss"

// Palette. Each color has a light and a dark terminal variant.
var (
	accentColor = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
	okColor     = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"}
	pendColor   = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	badColor    = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	dimColor    = lipgloss.AdaptiveColor{Light: "#57534E", Dark: "#A8A29E"}
	textColor   = lipgloss.AdaptiveColor{Light: "#1C1917", Dark: "#FAFAF9"}
	sizeColor   = lipgloss.AdaptiveColor{Light: "#4338CA", Dark: "#A5B4FC"}
)

var (
	TitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(accentColor).Underline(true).MarginBottom(1)
	LabelStyle     = lipgloss.NewStyle().Foreground(dimColor).Width(14)
	ValueStyle     = lipgloss.NewStyle().Foreground(textColor)
	SuccessStyle   = lipgloss.NewStyle().Foreground(okColor)
	WarningStyle   = lipgloss.NewStyle().Foreground(pendColor)
	ErrorStyle     = lipgloss.NewStyle().Foreground(badColor).Bold(true)
	HelpStyle      = lipgloss.NewStyle().Foreground(dimColor).Italic(true).MarginTop(1)
	BarLabelStyle  = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	StatLabelStyle = lipgloss.NewStyle().Foreground(dimColor).Align(lipgloss.Center)
	StatValueStyle = lipgloss.NewStyle().Bold(true).Foreground(textColor).Align(lipgloss.Center)

	// StatBoxStyle frames one figure on the stats dashboard.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(accentColor).
			Padding(0, 1).
			Width(18).
			Align(lipgloss.Center)
)

// tone groups states by how they should read at a glance.
type tone int

const (
	toneNeutral tone = iota
	toneGood
	toneActive
	toneBad
)

// stateTones covers session statuses, event outcomes and server health.
var stateTones = map[string]tone{
	"done":          toneGood,
	"uploads_ready": toneGood,
	"up":            toneGood,
	"uploading":     toneActive,
	"triggering":    toneActive,
	"polling":       toneActive,
	"completed":     toneActive,
	"downloading":   toneActive,
	"timed_out":     toneBad,
	"failed":        toneBad,
	"down":          toneBad,
	"error":         toneBad,
}

// StateStyle returns the style for a session status, outcome or health
// string. Unknown states render as plain values.
func StateStyle(state string) lipgloss.Style {
	switch stateTones[state] {
	case toneGood:
		return SuccessStyle
	case toneActive:
		return WarningStyle
	case toneBad:
		return ErrorStyle
	default:
		return ValueStyle
	}
}
