package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shizi-app/shizi/internal/app"
	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/batch"
	"github.com/shizi-app/shizi/internal/playback"
	"github.com/shizi-app/shizi/ui"
)

var (
	loopPlay  bool
	queueFrom int

	playCmd = &cobra.Command{
		Use:     "play CHAR",
		Short:   "Play the recording of a character, word or sentence",
		Long:    paragraph(fmt.Sprintf("\n%s one recording. With --loop it repeats until interrupted.", keyword("Play"))),
		Example: paragraph("shizi play 口\nshizi play 口 --word 2 --loop\nshizi play 口 -l L1 -u 1 --sentence"),
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(app.Options{}, func(ctx context.Context, rt *runtimeEnv) error {
				level, unit, item, err := selectItem(ctx, rt.app, normalizeArg(args[0]))
				if err != nil {
					return err
				}
				rt.app.Remember(ctx, level, unit, false)
				p := rt.app.Path(level, unit, item)
				if loopPlay {
					return loopItem(ctx, rt, item, p)
				}
				return playItem(ctx, rt, item, p)
			})
		},
	}

	queueCmd = &cobra.Command{
		Use:     "queue [LEVEL] [UNIT]",
		Short:   "Play every recording of a unit in order",
		Long:    paragraph(fmt.Sprintf("\n%s a whole unit: each character, then its words and sentence. Missing recordings are skipped.", keyword("Play"))),
		Example: paragraph("shizi queue L1 1\nshizi queue --from 5"),
		Args:    cobra.MaximumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(app.Options{}, func(ctx context.Context, rt *runtimeEnv) error {
				level, unit, err := selectUnit(ctx, rt.app, args)
				if err != nil {
					return err
				}
				rt.app.Remember(ctx, level, unit.Name, false)

				items, _ := rt.app.Items(level, unit)
				if len(items) == 0 {
					return apperr.NotFound("queue", fmt.Errorf("%s has no items", unit.Name))
				}
				view := ui.NewQueueView(rt.ui, os.Stdout, level+" · "+unit.Name, items)
				q := rt.app.NewQueue(level, unit, withCompletion(ctx, rt, level, unit.Name, items, view.Hooks()))
				if err := q.Start(ctx, max(queueFrom-1, 0)); err != nil {
					return err
				}
				state, err := view.Run(q)
				if err != nil {
					return err
				}
				if state == batch.QueueCancelled {
					return context.Canceled
				}
				return nil
			})
		},
	}
)

func init() {
	playCmd.Flags().BoolVar(&loopPlay, "loop", false, "repeat until interrupted")
	queueCmd.Flags().IntVar(&queueFrom, "from", 1, "start at the n-th item (1-based)")
}

func playItem(ctx context.Context, rt *runtimeEnv, item assetpath.Item, p assetpath.Path) error {
	done := make(chan playback.Outcome, 1)
	fmt.Println(ui.Status{Activity: ui.ActivityPlaying, Index: -1, Text: item.Kind.Label() + " " + item.Text}.Render(0))
	rt.app.Playback.Play(ctx, p, func(o playback.Outcome) { done <- o })

	select {
	case o := <-done:
		return outcomeErr(o, item)
	case <-ctx.Done():
		rt.app.Playback.Stop()
		return ctx.Err()
	}
}

func loopItem(ctx context.Context, rt *runtimeEnv, item assetpath.Item, p assetpath.Path) error {
	fmt.Println(ui.Status{Activity: ui.ActivityPlaying, Index: -1, Text: item.Kind.Label() + " " + item.Text + faint("  (ctrl+c to stop)")}.Render(0))
	l := rt.app.Playback.Loop(ctx, p, rt.app.Config.Audio.LoopDelay)
	select {
	case <-l.Done():
	case <-ctx.Done():
		l.Cancel()
		rt.app.Playback.Stop()
		l.Wait()
		return ctx.Err()
	}
	o := l.Wait()
	fmt.Println(faint(fmt.Sprintf("played %d times", l.Plays())))
	return outcomeErr(o, item)
}

func outcomeErr(o playback.Outcome, item assetpath.Item) error {
	switch o {
	case playback.Ended, playback.Stopped:
		return nil
	case playback.NotFound:
		return apperr.NotFound("play", fmt.Errorf("no recording of %s yet", item.Text))
	}
	return fmt.Errorf("could not play %s", item.Text)
}

// withCompletion records a character as completed for the logged-in user
// once every one of its items played through.
func withCompletion(ctx context.Context, rt *runtimeEnv, level, unit string, items []assetpath.Item, hooks batch.QueueHooks) batch.QueueHooks {
	user := rt.app.Accounts.Current()
	if user == "" {
		return hooks
	}

	want := make(map[string]int)
	for _, it := range items {
		want[it.RootChar]++
	}
	var (
		played  = make(map[string]int)
		skipped = make(map[int]bool)
		prev    = -1
	)
	finish := func(i int) {
		if i < 0 || skipped[i] {
			return
		}
		root := items[i].RootChar
		played[root]++
		if played[root] != want[root] {
			return
		}
		if err := rt.app.Accounts.RecordCompletion(ctx, root, level, unit); err != nil {
			rt.app.Log.Warn("Could not record progress", "user", user, "char", root, "err", err)
		}
	}

	onItem, onSkip, onDone := hooks.OnItem, hooks.OnSkip, hooks.OnDone
	hooks.OnItem = func(i int, it assetpath.Item) {
		finish(prev)
		prev = i
		if onItem != nil {
			onItem(i, it)
		}
	}
	hooks.OnSkip = func(i int, it assetpath.Item, o playback.Outcome) {
		skipped[i] = true
		if onSkip != nil {
			onSkip(i, it, o)
		}
	}
	hooks.OnDone = func(completed, total int) {
		finish(prev)
		if onDone != nil {
			onDone(completed, total)
		}
	}
	return hooks
}
