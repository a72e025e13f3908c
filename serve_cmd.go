package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shizi-app/shizi/internal/app"
	"github.com/shizi-app/shizi/internal/server"
)

var (
	serveAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve lessons and recordings over HTTP",
		Long: paragraph(fmt.Sprintf("\n%s the JSON API used by the web client: levels, asset paths, recordings, uploads and progress. "+
			"Playback happens in the browser, so no audio device is opened.", keyword("Serve"))),
		Example: paragraph("shizi serve\nshizi serve --addr :8080"),
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			// The server never plays locally.
			mockAudio = true
			return withApp(app.Options{}, func(ctx context.Context, rt *runtimeEnv) error {
				cfg := rt.app.Config
				if cfg.Content.Watch && !cfg.IsRemoteContent() {
					if err := rt.app.Library.Watch(ctx, cfg.Content.Location, nil); err != nil {
						rt.app.Log.Warn("Could not watch content", "err", err)
					}
				}

				addr := cfg.Server.Addr
				if serveAddr != "" {
					addr = serveAddr
				}
				fmt.Printf("Serving on %s\n", keyword(addr))
				return server.New(rt.app, cfg.Server.AllowOrigins).Run(ctx, addr)
			})
		},
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on")
}
