package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/batch"
)

// Recording is the part of a record session the view drives.
type Recording interface {
	Items() []assetpath.Item
	Select(index int) error
	Current() int
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) (bool, error)
	Take(index int) ([]byte, bool)
	Completed(index int) bool
	Pending() int
	UploadCurrent(ctx context.Context) error
	UploadAll(ctx context.Context, progress func(done, total int)) batch.UploadResult
}

type (
	recStartedMsg struct{ err error }
	recStoppedMsg struct {
		kept bool
		err  error
	}
	uploadedMsg    struct{ err error }
	uploadedAllMsg struct{ res batch.UploadResult }
	recTickMsg     time.Time
)

type recordModel struct {
	ctx     context.Context
	title   string
	session Recording
	items   []assetpath.Item

	busy      bool
	recording bool
	started   time.Time
	status    Status
	width     int
}

func newRecordModel(ctx context.Context, title string, s Recording) recordModel {
	return recordModel{
		ctx:     ctx,
		title:   title,
		session: s,
		items:   s.Items(),
		status:  Status{Activity: ActivityIdle, Index: -1, Text: "enter: record"},
	}
}

func recTick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return recTickMsg(t) })
}

func (m recordModel) Init() tea.Cmd { return nil }

func (m recordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case recTickMsg:
		if !m.recording {
			return m, nil
		}
		m.status.Elapsed = time.Time(msg).Sub(m.started)
		return m, recTick()

	case recStartedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = Status{Activity: ActivityError, Index: -1, Err: msg.err}
			return m, nil
		}
		m.recording = true
		m.started = time.Now()
		m.status = Status{Activity: ActivityRecording, Index: m.session.Current(), Total: len(m.items), Text: m.currentText()}
		return m, recTick()

	case recStoppedMsg:
		m.busy = false
		m.recording = false
		switch {
		case msg.err != nil:
			m.status = Status{Activity: ActivityError, Index: -1, Err: msg.err}
		case !msg.kept:
			m.status = Status{Activity: ActivityIdle, Index: -1, Text: "empty take discarded"}
		default:
			m.status = Status{Activity: ActivityIdle, Index: m.session.Current(), Total: len(m.items), Text: "take kept, u: upload"}
		}
		return m, nil

	case uploadedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = Status{Activity: ActivityError, Index: -1, Err: msg.err}
		} else {
			m.status = Status{Activity: ActivityIdle, Index: m.session.Current(), Total: len(m.items), Text: "uploaded"}
		}
		return m, nil

	case uploadedAllMsg:
		m.busy = false
		text := fmt.Sprintf("uploaded %d", msg.res.Uploaded)
		if msg.res.Failed > 0 {
			text += fmt.Sprintf(", %d failed", msg.res.Failed)
			m.status = Status{Activity: ActivityError, Index: -1, Text: text}
		} else {
			m.status = Status{Activity: ActivityIdle, Index: -1, Text: text}
		}
		return m, nil
	}
	return m, nil
}

func (m recordModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}

	switch key {
	case "q", "esc":
		if m.recording {
			return m, nil
		}
		return m, tea.Quit

	case "enter", " ":
		m.busy = true
		if m.recording {
			return m, func() tea.Msg {
				kept, err := m.session.StopRecording(m.ctx)
				return recStoppedMsg{kept: kept, err: err}
			}
		}
		return m, func() tea.Msg { return recStartedMsg{err: m.session.StartRecording(m.ctx)} }

	case "down", "j", "n":
		m.move(1)
	case "up", "k", "p":
		m.move(-1)

	case "u":
		m.busy = true
		m.status = Status{Activity: ActivityUploading, Index: m.session.Current(), Total: len(m.items), Text: m.currentText()}
		return m, func() tea.Msg { return uploadedMsg{err: m.session.UploadCurrent(m.ctx)} }

	case "a":
		if m.session.Pending() == 0 {
			m.status = Status{Activity: ActivityIdle, Index: -1, Text: "nothing to upload"}
			return m, nil
		}
		m.busy = true
		m.status = Status{Activity: ActivityUploading, Index: -1, Text: fmt.Sprintf("uploading %d takes", m.session.Pending())}
		return m, func() tea.Msg { return uploadedAllMsg{res: m.session.UploadAll(m.ctx, nil)} }
	}
	return m, nil
}

func (m *recordModel) move(delta int) {
	if m.recording {
		return
	}
	next := m.session.Current() + delta
	if next < 0 || next >= len(m.items) {
		return
	}
	if err := m.session.Select(next); err != nil {
		m.status = Status{Activity: ActivityError, Index: -1, Err: err}
		return
	}
	m.status = Status{Activity: ActivityIdle, Index: next, Total: len(m.items), Text: m.currentText()}
}

func (m recordModel) currentText() string {
	if i := m.session.Current(); i >= 0 && i < len(m.items) {
		return m.items[i].Text
	}
	return ""
}

func (m recordModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle(m.title) + "\n\n")

	current := m.session.Current()
	for i, it := range m.items {
		marker := "  "
		switch _, hasTake := m.session.Take(i); {
		case i == current && m.recording:
			marker = errorStyle("● ")
		case hasTake:
			marker = currentStyle("◆ ")
		case m.session.Completed(i):
			marker = okStyle("✓ ")
		}
		line := fmt.Sprintf("%s %s", it.Kind.Label(), it.Text)
		if i == current {
			line = currentStyle("▸ " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(marker + line + "\n")
	}

	b.WriteString("\n" + m.status.Render(m.width) + "\n")
	b.WriteString(helpStyle("enter: record/stop • j/k: move • u: upload • a: upload all • q: quit") + "\n")
	return b.String()
}

// RunRecorder runs the interactive recording view over s. It returns the
// number of takes left unuploaded.
func RunRecorder(ctx context.Context, out io.Writer, title string, s Recording) (int, error) {
	p := tea.NewProgram(newRecordModel(ctx, title, s), tea.WithOutput(out), tea.WithContext(ctx))
	_, err := p.Run()
	// Quitting mid-take must still release the microphone.
	if _, stopErr := s.StopRecording(context.WithoutCancel(ctx)); stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	if err != nil && ctx.Err() == nil {
		return s.Pending(), fmt.Errorf("unable to run recorder: %w", err)
	}
	return s.Pending(), nil
}
