package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Report is called by a task after each finished item, possibly from
// several goroutines.
type Report func(done, total int)

// Task runs a bulk job and returns a one-line summary.
type Task func(ctx context.Context, report Report) (string, error)

type (
	progressMsg struct{ done, total int }
	finishedMsg struct {
		summary string
		err     error
	}
)

type progressModel struct {
	title   string
	bar     progress.Model
	spinner spinner.Model
	done    int
	total   int
	summary string
	err     error
	quit    bool
	cancel  context.CancelFunc
}

func newProgressModel(title string, cancel context.CancelFunc) progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return progressModel{
		title:   title,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner: sp,
		cancel:  cancel,
	}
}

func (m progressModel) Init() tea.Cmd { return m.spinner.Tick }

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.cancel()
			m.quit = true
			return m, nil
		}
	case tea.WindowSizeMsg:
		w := msg.Width - len(m.title) - 16
		if w > 60 {
			w = 60
		}
		if w > 10 {
			m.bar.Width = w
		}
	case progressMsg:
		m.done, m.total = msg.done, msg.total
		if m.total == 0 {
			return m, nil
		}
		return m, m.bar.SetPercent(float64(m.done) / float64(m.total))
	case finishedMsg:
		m.summary, m.err = msg.summary, msg.err
		return m, tea.Quit
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.summary != "" || m.err != nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.spinner.View() + " " + m.title + " ")
	b.WriteString(m.bar.View())
	if m.total > 0 {
		fmt.Fprintf(&b, " %d/%d", m.done, m.total)
	}
	if m.quit {
		b.WriteString(noteStyle(" stopping" + ellipsis))
	} else {
		b.WriteString(helpStyle("  q: stop"))
	}
	return b.String() + "\n"
}

// RunProgress runs task under a progress bar and prints its summary.
// Without an interactive terminal it prints a plain line per tenth of the
// work instead.
func RunProgress(ctx context.Context, cfg Config, out io.Writer, title string, task Task) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !cfg.Interactive {
		var (
			mu   sync.Mutex
			step int
		)
		summary, err := task(ctx, func(done, total int) {
			if total == 0 {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if tenth := done * 10 / total; tenth > step || done == total {
				step = tenth
				_, _ = fmt.Fprintf(out, "%s %d/%d\n", title, done, total)
			}
		})
		return printSummary(out, summary, err)
	}

	// Stopping cancels the task; the program keeps running until the task
	// reports back.
	p := tea.NewProgram(newProgressModel(title, cancel), tea.WithOutput(out))
	go func() {
		summary, err := task(ctx, func(done, total int) {
			p.Send(progressMsg{done: done, total: total})
		})
		p.Send(finishedMsg{summary: summary, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("unable to run progress: %w", err)
	}
	m := final.(progressModel)
	return printSummary(out, m.summary, m.err)
}

func printSummary(out io.Writer, summary string, err error) error {
	if err != nil {
		_, _ = fmt.Fprintln(out, errorStyle("✗ "+err.Error()))
		return err
	}
	_, _ = fmt.Fprintln(out, okStyle("✓ ")+summary)
	return nil
}
