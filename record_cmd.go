package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shizi-app/shizi/internal/app"
	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/batch"
	"github.com/shizi-app/shizi/ui"
)

var (
	recordFor time.Duration

	recordCmd = &cobra.Command{
		Use:   "record [LEVEL] [UNIT]",
		Short: "Record the characters, words and sentences of a unit",
		Long: paragraph(fmt.Sprintf("\n%s a unit item by item and upload the takes. In a terminal this opens an interactive recorder; "+
			"with --for every item is recorded for a fixed time, one after another.", keyword("Record"))),
		Example: paragraph("shizi record L1 1\nshizi record L1 1 --for 3s"),
		Args:    cobra.MaximumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(app.Options{}, func(ctx context.Context, rt *runtimeEnv) error {
				level, unit, err := selectUnit(ctx, rt.app, args)
				if err != nil {
					return err
				}
				rt.app.Remember(ctx, level, unit.Name, true)

				rs := rt.app.NewRecordSession(level, unit)
				if len(rs.Items()) == 0 {
					return apperr.NotFound("record", fmt.Errorf("%s has no items", unit.Name))
				}
				title := level + " · " + unit.Name

				if recordFor > 0 {
					return recordTimed(ctx, rt, title, rs)
				}
				if !rt.ui.Interactive {
					return errors.New("interactive recording needs a terminal, use --for")
				}
				pending, err := ui.RunRecorder(ctx, os.Stdout, title, rs)
				if err != nil {
					return err
				}
				if pending > 0 {
					fmt.Println(faint(fmt.Sprintf("%d takes were not uploaded", pending)))
				}
				return nil
			})
		},
	}
)

func init() {
	recordCmd.Flags().DurationVar(&recordFor, "for", 0, "record each item for this long without prompting")
}

// recordTimed records every item for recordFor, then uploads all takes.
func recordTimed(ctx context.Context, rt *runtimeEnv, title string, rs *batch.RecordSession) error {
	items := rs.Items()
	fmt.Println(title)
	for i, it := range items {
		if err := rs.Select(i); err != nil {
			return err
		}
		fmt.Printf("%s %s ", ui.Status{Activity: ui.ActivityRecording, Index: i, Total: len(items), Text: it.Kind.Label() + " " + it.Text}.Render(0), faint(recordFor.String()))
		if err := rs.StartRecording(ctx); err != nil {
			fmt.Println()
			return err
		}

		timer := time.NewTimer(recordFor)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
		kept, err := rs.StopRecording(context.WithoutCancel(ctx))
		switch {
		case err != nil:
			fmt.Println(errorText("✗"))
			return err
		case !kept:
			fmt.Println(faint("empty"))
		default:
			fmt.Println(keyword("✓"))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return ui.RunProgress(ctx, rt.ui, os.Stdout, "Uploading", func(ctx context.Context, report ui.Report) (string, error) {
		res := rs.UploadAll(ctx, report)
		if !res.Success() {
			return "", fmt.Errorf("%d uploaded, %d failed: %w", res.Uploaded, res.Failed, errors.Join(res.Errors...))
		}
		return fmt.Sprintf("%d recordings uploaded", res.Uploaded), nil
	})
}
