package ui

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/batch"
	"github.com/shizi-app/shizi/internal/playback"
)

// RunningQueue is the part of a batch queue the view controls.
type RunningQueue interface {
	Cancel()
	Wait() batch.QueueState
}

type (
	queueItemMsg struct{ index int }
	queueSkipMsg struct {
		index   int
		outcome playback.Outcome
	}
	queueDoneMsg struct{ completed, total int }
)

type queueModel struct {
	title     string
	items     []assetpath.Item
	current   int
	played    map[int]bool
	skipped   map[int]playback.Outcome
	done      bool
	completed int
	width     int
	ctl       *queueControl
}

// queueControl is shared by every copy of the model.
type queueControl struct{ q RunningQueue }

func (m queueModel) Init() tea.Cmd { return nil }

func (m queueModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.ctl.q != nil {
				m.ctl.q.Cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case queueItemMsg:
		if m.current >= 0 {
			if _, skipped := m.skipped[m.current]; !skipped {
				m.played[m.current] = true
			}
		}
		m.current = msg.index
	case queueSkipMsg:
		m.skipped[msg.index] = msg.outcome
	case queueDoneMsg:
		m.done = true
		m.completed = msg.completed
		return m, tea.Quit
	}
	return m, nil
}

func (m queueModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle(m.title) + "\n\n")
	for i, it := range m.items {
		marker := "  "
		line := fmt.Sprintf("%s %s", it.Kind.Label(), it.Text)
		switch o, skipped := m.skipped[i]; {
		case skipped:
			marker = errorStyle("✗ ")
			line = noteStyle(line + " (" + o.String() + ")")
		case i == m.current && !m.done:
			marker = currentStyle("▸ ")
			line = currentStyle(line)
		case m.played[i] || (m.done && i == m.current):
			marker = okStyle("✓ ")
		}
		b.WriteString(marker + line + "\n")
	}
	b.WriteString("\n")

	st := Status{Activity: ActivityPlaying, Index: m.current, Total: len(m.items)}
	if m.done {
		st = Status{Activity: ActivityIdle, Index: -1, Text: fmt.Sprintf("done, %d of %d played", m.completed, len(m.items))}
	} else if m.current >= 0 && m.current < len(m.items) {
		st.Text = m.items[m.current].Text
	}
	b.WriteString(st.Render(m.width) + "\n")
	b.WriteString(helpStyle("q: stop") + "\n")
	return b.String()
}

// QueueView shows a running queue. Create it before the queue, pass
// Hooks to the queue, then Run.
type QueueView struct {
	cfg     Config
	out     io.Writer
	title   string
	items   []assetpath.Item
	ctl     *queueControl
	program *tea.Program
}

// NewQueueView prepares a view over items.
func NewQueueView(cfg Config, out io.Writer, title string, items []assetpath.Item) *QueueView {
	return &QueueView{cfg: cfg, out: out, title: title, items: items}
}

// Hooks returns queue hooks that feed the view.
func (v *QueueView) Hooks() batch.QueueHooks {
	if !v.cfg.Interactive {
		return batch.QueueHooks{
			OnItem: func(i int, it assetpath.Item) {
				_, _ = fmt.Fprintf(v.out, "▶ %d/%d %s %s\n", i+1, len(v.items), it.Kind.Label(), it.Text)
			},
			OnSkip: func(_ int, it assetpath.Item, o playback.Outcome) {
				_, _ = fmt.Fprintf(v.out, "  skipped %s (%s)\n", it.Text, o)
			},
			OnDone: func(completed, total int) {
				_, _ = fmt.Fprintf(v.out, "done, %d of %d played\n", completed, total)
			},
		}
	}

	v.ctl = &queueControl{}
	v.program = tea.NewProgram(queueModel{
		ctl:     v.ctl,
		title:   v.title,
		items:   v.items,
		current: -1,
		played:  make(map[int]bool),
		skipped: make(map[int]playback.Outcome),
	}, tea.WithOutput(v.out))
	return batch.QueueHooks{
		OnItem: func(i int, _ assetpath.Item) { v.program.Send(queueItemMsg{index: i}) },
		OnSkip: func(i int, _ assetpath.Item, o playback.Outcome) {
			v.program.Send(queueSkipMsg{index: i, outcome: o})
		},
		OnDone: func(completed, total int) {
			v.program.Send(queueDoneMsg{completed: completed, total: total})
		},
	}
}

// Run blocks until q stops or the user stops it.
func (v *QueueView) Run(q RunningQueue) (batch.QueueState, error) {
	if v.program == nil {
		return q.Wait(), nil
	}
	v.ctl.q = q
	if _, err := v.program.Run(); err != nil {
		q.Cancel()
		return q.Wait(), fmt.Errorf("unable to run queue view: %w", err)
	}
	return q.Wait(), nil
}
