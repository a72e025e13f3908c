package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/mozillazg/go-pinyin"

	"github.com/shizi-app/shizi/internal/content"
)

var toneArgs = func() pinyin.Args {
	a := pinyin.NewArgs()
	a.Style = pinyin.Tone
	return a
}()

// TonePinyin returns s in pinyin with tone marks, syllables separated by
// spaces. Characters without a reading are dropped.
func TonePinyin(s string) string {
	var parts []string
	for _, readings := range pinyin.Pinyin(s, toneArgs) {
		if len(readings) > 0 {
			parts = append(parts, readings[0])
		}
	}
	return strings.Join(parts, " ")
}

// UnitMarkdown lays a unit out as a markdown table.
func UnitMarkdown(level string, unit content.Unit, showPinyin bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s · %s\n\n", level, unit.Name)
	if len(unit.Entries) == 0 {
		b.WriteString("_No characters._\n")
		return b.String()
	}

	if showPinyin {
		b.WriteString("| # | 字 | 拼音 | 词语 | 句子 |\n|---|---|---|---|---|\n")
	} else {
		b.WriteString("| # | 字 | 词语 | 句子 |\n|---|---|---|---|\n")
	}
	for i, e := range unit.Entries {
		words := strings.Join(e.Words, "、")
		if showPinyin {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", i+1, e.Char, TonePinyin(e.Char), cell(words), cell(e.Sentence))
		} else {
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", i+1, e.Char, cell(words), cell(e.Sentence))
		}
	}
	return b.String()
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

// RenderUnit renders a unit for the terminal with glamour.
func RenderUnit(cfg Config, level string, unit content.Unit) (string, error) {
	opts := []glamour.TermRendererOption{
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		glamour.WithWordWrap(int(cfg.Width)), //nolint:gosec
	}
	switch style := cfg.GlamourStyle; {
	case !cfg.Interactive:
		opts = append(opts, glamour.WithStandardStyle(styles.NoTTYStyle))
	case style == "" || style == styles.AutoStyle:
		opts = append(opts, glamour.WithAutoStyle())
	case styles.DefaultStyles[style] != nil:
		opts = append(opts, glamour.WithStandardStyle(style))
	default:
		opts = append(opts, glamour.WithStylesFromJSONFile(style))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(UnitMarkdown(level, unit, cfg.ShowPinyin))
	if err != nil {
		return "", fmt.Errorf("unable to render unit: %w", err)
	}
	return out, nil
}
