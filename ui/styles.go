// Package ui renders units, playback status and bulk-transfer progress in
// the terminal.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const ellipsis = "…"

var (
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	red       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	yellow    = lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#ECFD65"}
	blue      = lipgloss.AdaptiveColor{Light: "#0087D7", Dark: "#00AAFF"}
	gray      = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	noteFg    = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}

	statusBarBg = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	titleStyle = lipgloss.NewStyle().
			Foreground(mintGreen).
			Background(darkGreen).
			Padding(0, 1).
			Render

	noteStyle = lipgloss.NewStyle().
			Foreground(noteFg).
			Render

	errorStyle = lipgloss.NewStyle().
			Foreground(red).
			Render

	okStyle = lipgloss.NewStyle().
		Foreground(mintGreen).
		Render

	currentStyle = lipgloss.NewStyle().
			Foreground(yellow).
			Bold(true).
			Render

	statusBarStyle = lipgloss.NewStyle().
			Foreground(noteFg).
			Background(statusBarBg)

	helpStyle = lipgloss.NewStyle().
			Foreground(gray).
			Render
)

// Setup applies process-wide terminal settings from cfg.
func Setup(cfg Config) {
	if cfg.NoColor || termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}
