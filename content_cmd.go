package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/shizi-app/shizi/internal/app"
	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/content"
	"github.com/shizi-app/shizi/ui"
)

var (
	itemLevel    string
	itemUnit     string
	itemWord     int
	itemSentence bool
	copyPath     bool

	levelsCmd = &cobra.Command{
		Use:   "levels",
		Short: "List levels and their units",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withApp(app.Options{}, func(ctx context.Context, rt *runtimeEnv) error {
				return printLevels(ctx, rt)
			})
		},
	}

	showCmd = &cobra.Command{
		Use:     "show [LEVEL] [UNIT]",
		Short:   "Show the characters of a unit",
		Long:    paragraph(fmt.Sprintf("\n%s a unit with its words and sentences. Without arguments the last unit you worked on is shown.", keyword("Show"))),
		Example: paragraph("shizi show L1 1\nshizi show L2 第三单元"),
		Args:    cobra.MaximumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(app.Options{}, func(ctx context.Context, rt *runtimeEnv) error {
				level, unit, err := selectUnit(ctx, rt.app, args)
				if err != nil {
					return err
				}
				out, err := ui.RenderUnit(rt.ui, level, unit)
				if err != nil {
					return err
				}
				fmt.Print(out)
				rt.app.Remember(ctx, level, unit.Name, rt.app.Session.TeachingMode)
				return nil
			})
		},
	}

	searchCmd = &cobra.Command{
		Use:   "search CHAR",
		Short: "Find the unit that teaches a character",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(app.Options{}, func(ctx context.Context, rt *runtimeEnv) error {
				char := normalizeArg(args[0])
				m, ok := rt.app.Library.Search(ctx, char)
				if !ok {
					return apperr.NotFound("search", fmt.Errorf("%s is not in any level", char))
				}
				fmt.Printf("%s  %s %s\n", keyword(m.Entry.Char), m.Level, m.Unit)
				if len(m.Entry.Words) > 0 {
					fmt.Printf("    %s\n", faint(fmt.Sprint(m.Entry.Words)))
				}
				return nil
			})
		},
	}

	pathCmd = &cobra.Command{
		Use:     "path CHAR",
		Short:   "Print the storage path and URL of a recording",
		Example: paragraph("shizi path 口\nshizi path 口 --word 1\nshizi path 口 --sentence --copy"),
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(app.Options{}, func(ctx context.Context, rt *runtimeEnv) error {
				level, unit, item, err := selectItem(ctx, rt.app, normalizeArg(args[0]))
				if err != nil {
					return err
				}
				p := rt.app.Path(level, unit, item)
				url := rt.app.Repo.PublicURL(p)
				fmt.Println(p)
				fmt.Println(faint(url))
				if copyPath {
					if err := clipboard.WriteAll(url); err != nil {
						return fmt.Errorf("unable to copy to clipboard: %w", err)
					}
					fmt.Fprintln(os.Stderr, faint("copied"))
				}
				return nil
			})
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{pathCmd, playCmd} {
		c.Flags().StringVarP(&itemLevel, "level", "l", "", "level containing the character")
		c.Flags().StringVarP(&itemUnit, "unit", "u", "", "unit containing the character")
		c.Flags().IntVar(&itemWord, "word", 0, "use the n-th word of the character (1-based)")
		c.Flags().BoolVar(&itemSentence, "sentence", false, "use the example sentence of the character")
		c.MarkFlagsMutuallyExclusive("word", "sentence")
	}
	pathCmd.Flags().BoolVarP(&copyPath, "copy", "c", false, "copy the URL to the clipboard")
}

func printLevels(ctx context.Context, rt *runtimeEnv) error {
	levels := rt.app.Library.Levels(ctx)
	for _, name := range levels {
		lvl, err := rt.app.Library.Level(ctx, name)
		if err != nil {
			fmt.Printf("%s  %s\n", keyword(name), errorText("unavailable: "+err.Error()))
			continue
		}
		fmt.Printf("%s  %s\n", keyword(name), faint(fmt.Sprintf("%d units, %d characters", len(lvl.Units), lvl.CharCount())))

		nameWidth := 0
		for _, u := range lvl.Units {
			nameWidth = max(nameWidth, runewidth.StringWidth(u.Name))
		}
		for i, u := range lvl.Units {
			chars := make([]rune, 0, len(u.Entries))
			for _, e := range u.Entries {
				chars = append(chars, []rune(e.Char)...)
			}
			line := runewidth.Truncate(string(chars), max(int(rt.ui.Width)-nameWidth-10, 8), "…") //nolint:gosec
			fmt.Printf("  %2d %s  %s\n", i+1, runewidth.FillRight(u.Name, nameWidth), line)
		}
	}
	return nil
}

// selectUnit picks a unit from [LEVEL] [UNIT] arguments, falling back to the
// remembered position.
func selectUnit(ctx context.Context, a *app.App, args []string) (string, content.Unit, error) {
	switch len(args) {
	case 2:
		level := normalizeArg(args[0])
		unit, err := a.Unit(ctx, level, normalizeArg(args[1]))
		return level, unit, err
	case 1:
		level := normalizeArg(args[0])
		lvl, err := a.Library.Level(ctx, level)
		if err != nil {
			return "", content.Unit{}, err
		}
		if len(lvl.Units) == 0 {
			return "", content.Unit{}, apperr.NotFound("select", fmt.Errorf("%s has no units", level))
		}
		return level, lvl.Units[0], nil
	}

	a.Restore(ctx)
	if a.Session.Level == "" {
		return "", content.Unit{}, apperr.NotFound("select", errors.New("no levels found"))
	}
	name := a.Session.UnitName()
	if name == "" {
		return "", content.Unit{}, apperr.NotFound("select", fmt.Errorf("%s has no units", a.Session.Level))
	}
	unit, err := a.Unit(ctx, a.Session.Level, name)
	return a.Session.Level, unit, err
}

// selectItem finds char, in the unit named by the flags or by search, and
// picks the item the flags ask for.
func selectItem(ctx context.Context, a *app.App, char string) (string, string, assetpath.Item, error) {
	var (
		level, unitName string
		entry           content.Entry
	)
	if itemLevel != "" && itemUnit != "" {
		unit, err := a.Unit(ctx, normalizeArg(itemLevel), normalizeArg(itemUnit))
		if err != nil {
			return "", "", assetpath.Item{}, err
		}
		e, ok := unit.Entry(char)
		if !ok {
			return "", "", assetpath.Item{}, apperr.NotFound("select", fmt.Errorf("%s is not in %s", char, unit.Name))
		}
		level, unitName, entry = normalizeArg(itemLevel), unit.Name, e
	} else {
		m, ok := a.Library.Search(ctx, char)
		if !ok {
			return "", "", assetpath.Item{}, apperr.NotFound("select", fmt.Errorf("%s is not in any level", char))
		}
		level, unitName, entry = m.Level, m.Unit, m.Entry
	}

	item, err := pickItem(entry, itemWord, itemSentence)
	return level, unitName, item, err
}

func pickItem(e content.Entry, word int, sentence bool) (assetpath.Item, error) {
	switch {
	case word > 0:
		if word > len(e.Words) {
			return assetpath.Item{}, apperr.New(apperr.CodeInvalidInput, "select", fmt.Errorf("%s has %d words", e.Char, len(e.Words)))
		}
		return assetpath.WordItem(e.Char, e.Words[word-1], word-1), nil
	case sentence:
		if e.Sentence == "" {
			return assetpath.Item{}, apperr.New(apperr.CodeInvalidInput, "select", fmt.Errorf("%s has no sentence", e.Char))
		}
		return assetpath.SentenceItem(e.Char, e.Sentence), nil
	}
	return assetpath.CharItem(e.Char), nil
}
