// Package server exposes the library, the audio gateway and the backend
// over HTTP for a browser front-end.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/shizi-app/shizi/internal/app"
)

// Server serves the HTTP API.
type Server struct {
	Engine *gin.Engine

	app *app.App
	log *log.Logger
}

// New builds the router over a.
func New(a *app.App, allowOrigins []string) *Server {
	if !a.Config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{app: a, log: a.Log.With("component", "server")}
	s.Engine = s.router(allowOrigins)
	return s
}

func (s *Server) router(allowOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	r.Use(corsMiddleware(allowOrigins))

	r.GET("/healthcheck", s.health)
	r.GET("/blob/:id", s.blob)

	api := r.Group("/api")
	{
		api.GET("/levels", s.listLevels)
		api.GET("/levels/:level", s.getLevel)
		api.GET("/search", s.search)
		api.GET("/path", s.resolvePath)

		api.GET("/audio/*path", s.getAudio)
		api.POST("/audio/*path", s.uploadAudio)
		api.GET("/play/*path", s.play)

		api.POST("/login", s.login)
		api.POST("/progress", s.postProgress)
		api.GET("/progress/:username", s.getProgress)
		api.GET("/stats", s.stats)
	}
	return r
}

func corsMiddleware(allowOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "X-Requested-With", "X-Client-ID"},
		ExposeHeaders: []string{"X-Cache"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowOrigins) == 0 || (len(allowOrigins) == 1 && allowOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowOrigins
	}
	return cors.New(cfg)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Microsecond))
	}
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("Shutting down")
	return srv.Shutdown(shutdownCtx)
}
