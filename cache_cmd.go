package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/shizi-app/shizi/internal/app"
	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/backend"
	"github.com/shizi-app/shizi/internal/gateway"
	"github.com/shizi-app/shizi/ui"
)

var (
	downloadCmd = &cobra.Command{
		Use:   "download [LEVEL] [UNIT]",
		Short: "Download recordings for offline use",
		Long: paragraph(fmt.Sprintf("\n%s every recording of a unit, or of a whole level when only LEVEL is given. "+
			"Recordings already stored are skipped unless --bust is set.", keyword("Download"))),
		Example: paragraph("shizi download L1\nshizi download L1 3\nshizi download L1 --bust now"),
		Args:    cobra.MaximumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(app.Options{}, func(ctx context.Context, rt *runtimeEnv) error {
				title, paths, err := downloadPaths(ctx, rt, args)
				if err != nil {
					return err
				}
				return ui.RunProgress(ctx, rt.ui, os.Stdout, "Downloading "+title, func(ctx context.Context, report ui.Report) (string, error) {
					res := rt.app.Gateway.Prefetch(ctx, paths, gateway.ProgressFunc(report))
					return prefetchSummary(res)
				})
			})
		},
	}

	clearCacheCmd = &cobra.Command{
		Use:   "clear-cache",
		Short: "Delete every downloaded recording",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withApp(app.Options{}, func(_ context.Context, rt *runtimeEnv) error {
				report, err := rt.app.Gateway.Clear()
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d recordings, %s\n", report.Entries, humanize.Bytes(uint64(report.Bytes))) //nolint:gosec
				return nil
			})
		},
	}

	refreshCmd = &cobra.Command{
		Use:   "refresh",
		Short: "Fetch fresh copies of recordings on the next run",
		Long:  paragraph(fmt.Sprintf("\n%s a refresh: the next run bypasses stored copies once, as if --bust were given.", keyword("Schedule"))),
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withApp(app.Options{}, func(_ context.Context, rt *runtimeEnv) error {
				if err := rt.app.State.MarkForceRefresh(); err != nil {
					return err
				}
				fmt.Println("Recordings will be refreshed on the next run.")
				return nil
			})
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show how much of the library is recorded",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withApp(app.Options{}, func(ctx context.Context, rt *runtimeEnv) error {
				return printStats(ctx, rt)
			})
		},
	}
)

// downloadPaths collects the paths to download for the arguments.
func downloadPaths(ctx context.Context, rt *runtimeEnv, args []string) (string, []assetpath.Path, error) {
	if len(args) == 1 {
		level := normalizeArg(args[0])
		lvl, err := rt.app.Library.Level(ctx, level)
		if err != nil {
			return "", nil, err
		}
		var paths []assetpath.Path
		for _, u := range lvl.Units {
			_, p := rt.app.Items(level, u)
			paths = append(paths, p...)
		}
		return level, paths, nil
	}

	level, unit, err := selectUnit(ctx, rt.app, args)
	if err != nil {
		return "", nil, err
	}
	_, paths := rt.app.Items(level, unit)
	return level + " · " + unit.Name, paths, nil
}

func prefetchSummary(res gateway.PrefetchResult) (string, error) {
	summary := fmt.Sprintf("%d downloaded, %d already stored", res.Fetched, res.Cached)
	if res.Missing > 0 {
		summary += fmt.Sprintf(", %d not recorded", res.Missing)
	}
	switch {
	case res.Canceled:
		return "", fmt.Errorf("cancelled after %s", summary)
	case res.Failed > 0:
		return "", fmt.Errorf("%d failed; %s", res.Failed, summary)
	}
	return summary, nil
}

func printStats(ctx context.Context, rt *runtimeEnv) error {
	total := rt.app.Library.TotalChars(ctx)
	entries, size := rt.app.Cache.Usage()

	fmt.Printf("%s  %d\n", keyword("characters"), total)
	stats, err := rt.app.Repo.Stats(ctx)
	switch {
	case errors.Is(err, backend.ErrNoDatabase):
		fmt.Printf("%s  %s\n", keyword("recorded  "), faint("no database configured"))
	case err != nil:
		return err
	default:
		pct := 0.0
		if total > 0 {
			pct = float64(stats.CharCount) / float64(total) * 100
		}
		fmt.Printf("%s  %d %s\n", keyword("recorded  "), stats.CharCount, faint(fmt.Sprintf("(%.0f%%)", pct)))
		if stats.Latest != nil {
			fmt.Printf("%s  %s %s\n", keyword("latest    "), stats.Latest.Path, faint(humanize.Time(stats.Latest.CreatedAt)))
		}
	}
	fmt.Printf("%s  %s\n", keyword("cached    "), fmt.Sprintf("%d recordings, %s", entries, humanize.Bytes(uint64(size)))) //nolint:gosec
	return nil
}
