package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/shizi-app/shizi/internal/app"
	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/backend"
)

var (
	loginCmd = &cobra.Command{
		Use:     "login NAME",
		Short:   "Practice as a named learner",
		Long:    paragraph(fmt.Sprintf("\n%s as a learner. Units played through with %s are saved to their progress.", keyword("Log in"), keyword("shizi queue"))),
		Example: paragraph("shizi login xiaoming"),
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(app.Options{}, func(ctx context.Context, rt *runtimeEnv) error {
				user, err := rt.app.Accounts.Login(ctx, normalizeArg(args[0]))
				if err != nil {
					return err
				}
				fmt.Printf("Logged in as %s\n", keyword(user.Username))
				return nil
			})
		},
	}

	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Stop saving progress",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withApp(app.Options{}, func(_ context.Context, rt *runtimeEnv) error {
				user := rt.app.Accounts.Current()
				if err := rt.app.Accounts.Logout(); err != nil {
					return err
				}
				if user != "" {
					fmt.Printf("Logged out %s\n", user)
				}
				return nil
			})
		},
	}

	progressCmd = &cobra.Command{
		Use:   "progress [NAME]",
		Short: "List the characters a learner has completed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(app.Options{}, func(ctx context.Context, rt *runtimeEnv) error {
				user := rt.app.Accounts.Current()
				if len(args) == 1 {
					user = normalizeArg(args[0])
				}
				if user == "" {
					return apperr.New(apperr.CodeInvalidInput, "progress", errors.New("not logged in, give a name or run shizi login"))
				}
				rows, err := rt.app.Repo.Progress(ctx, user)
				if errors.Is(err, backend.ErrNoDatabase) {
					return errors.New("progress needs a database")
				}
				if err != nil {
					return err
				}
				printProgress(user, rows)
				return nil
			})
		},
	}
)

func printProgress(user string, rows []backend.UserProgress) {
	fmt.Printf("%s  %s\n", keyword(user), faint(fmt.Sprintf("%d completed", len(rows))))
	unitWidth := 0
	for _, r := range rows {
		unitWidth = max(unitWidth, runewidth.StringWidth(r.Level+" "+r.Unit))
	}
	for _, r := range rows {
		fmt.Printf("  %s  %s  %s\n", r.Char, runewidth.FillRight(r.Level+" "+r.Unit, unitWidth), faint(humanize.Time(r.CompletedAt)))
	}
}
