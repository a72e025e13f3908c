package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
)

// Activity is what the status line reports.
type Activity int

// Activities.
const (
	ActivityIdle Activity = iota
	ActivityPlaying
	ActivityWaiting
	ActivityRecording
	ActivityUploading
	ActivityError
)

// Status is the one-line summary shown while a unit is played or recorded.
type Status struct {
	Activity Activity
	Index    int // zero-based; negative when no item is selected
	Total    int
	Text     string
	Elapsed  time.Duration
	Err      error
}

func (a Activity) icon() (string, lipgloss.AdaptiveColor) {
	switch a {
	case ActivityPlaying:
		return "▶", mintGreen
	case ActivityWaiting:
		return "…", gray
	case ActivityRecording:
		return "●", red
	case ActivityUploading:
		return "⇡", blue
	case ActivityError:
		return "✗", red
	default:
		return "■", gray
	}
}

// Render returns the status line, exactly width cells wide when width is
// positive.
func (s Status) Render(width int) string {
	icon, color := s.Activity.icon()
	left := lipgloss.NewStyle().Foreground(color).Render(icon)

	var b strings.Builder
	if s.Total > 0 && s.Index >= 0 {
		fmt.Fprintf(&b, " %d/%d", s.Index+1, s.Total)
	}
	if s.Text != "" {
		b.WriteString(" " + s.Text)
	}
	if s.Activity == ActivityRecording && s.Elapsed > 0 {
		b.WriteString(" " + formatDuration(s.Elapsed))
	}
	if s.Err != nil {
		b.WriteString(" " + s.Err.Error())
	}

	body := b.String()
	if width <= 0 {
		return left + body
	}

	room := width - lipgloss.Width(left)
	if room < 0 {
		room = 0
	}
	body = truncate.StringWithTail(body, uint(room), ellipsis) //nolint:gosec
	if pad := room - runewidth.StringWidth(body); pad > 0 {
		body += strings.Repeat(" ", pad)
	}
	if s.Err != nil {
		body = errorStyle(body)
	}
	return statusBarStyle.Render(left + body)
}

// ProgressBar draws done out of total in width cells.
func ProgressBar(done, total, width int) string {
	if total <= 0 || width < 4 {
		return ""
	}
	filled := done * width / total
	if filled > width {
		filled = width
	}
	return lipgloss.NewStyle().Foreground(mintGreen).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(gray).Render(strings.Repeat("░", width-filled))
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
