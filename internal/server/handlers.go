package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shizi-app/shizi/internal/apperr"
	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/backend"
	"github.com/shizi-app/shizi/internal/cache"
	"github.com/shizi-app/shizi/internal/content"
)

// maxUploadBytes caps one recording upload.
const maxUploadBytes = 16 << 20

type entryDTO struct {
	Char     string   `json:"char"`
	Words    []string `json:"words"`
	Sentence string   `json:"sentence,omitempty"`
}

type unitDTO struct {
	Name    string     `json:"name"`
	Entries []entryDTO `json:"entries"`
}

func toUnitDTO(u content.Unit) unitDTO {
	out := unitDTO{Name: u.Name, Entries: make([]entryDTO, 0, len(u.Entries))}
	for _, e := range u.Entries {
		words := e.Words
		if words == nil {
			words = []string{}
		}
		out.Entries = append(out.Entries, entryDTO{Char: e.Char, Words: words, Sentence: e.Sentence})
	}
	return out
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) listLevels(c *gin.Context) {
	respondOK(c, gin.H{"levels": s.app.Library.Levels(c.Request.Context())})
}

func (s *Server) getLevel(c *gin.Context) {
	lvl, err := s.app.Library.Level(c.Request.Context(), c.Param("level"))
	if err != nil {
		fail(c, err)
		return
	}
	units := make([]unitDTO, 0, len(lvl.Units))
	for _, u := range lvl.Units {
		units = append(units, toUnitDTO(u))
	}
	respondOK(c, gin.H{"name": lvl.Name, "units": units})
}

func (s *Server) search(c *gin.Context) {
	char := strings.TrimSpace(c.Query("char"))
	if char == "" {
		badRequest(c, errors.New("char is required"))
		return
	}
	m, ok := s.app.Library.Search(c.Request.Context(), char)
	if !ok {
		fail(c, apperr.NotFound("server.search", fmt.Errorf("%s is not in any level", char)))
		return
	}
	respondOK(c, gin.H{"level": m.Level, "unit": m.Unit, "entry": entryDTO{Char: m.Entry.Char, Words: m.Entry.Words, Sentence: m.Entry.Sentence}})
}

// itemFromQuery reads level, unit, char, text, kind and index.
func itemFromQuery(c *gin.Context) (level, unit string, item assetpath.Item, err error) {
	level, unit = c.Query("level"), c.Query("unit")
	char := c.Query("char")
	if level == "" || unit == "" || char == "" {
		return "", "", item, errors.New("level, unit and char are required")
	}
	text := c.DefaultQuery("text", char)

	kind := assetpath.InferKind(char, text)
	if k := c.Query("kind"); k != "" {
		if kind, err = assetpath.ParseKind(k); err != nil {
			return "", "", item, err
		}
	}

	index := assetpath.NoIndex
	if raw := c.Query("index"); raw != "" {
		if index, err = strconv.Atoi(raw); err != nil {
			return "", "", item, fmt.Errorf("bad index %q", raw)
		}
	}
	return level, unit, assetpath.Item{RootChar: char, Text: text, Kind: kind, Index: index}, nil
}

func (s *Server) resolvePath(c *gin.Context) {
	level, unit, item, err := itemFromQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	p := s.app.Path(level, unit, item)
	respondOK(c, gin.H{"path": p.String(), "url": s.app.Repo.PublicURL(p), "kind": item.Kind})
}

// wildcardPath reads the asset path from the URL. Gin hands over decoded
// segments, so they are escaped again to match resolved paths.
func wildcardPath(c *gin.Context) (assetpath.Path, error) {
	p := strings.TrimPrefix(c.Param("path"), "/")
	if p == "" || strings.Contains(p, "..") {
		return "", fmt.Errorf("bad asset path %q", p)
	}
	segments := strings.Split(p, "/")
	for i, s := range segments {
		if raw, err := url.PathUnescape(s); err == nil {
			s = raw
		}
		if s == "" || s == "." || s == ".." || strings.ContainsAny(s, "/\\") {
			return "", fmt.Errorf("bad asset path %q", p)
		}
		segments[i] = assetpath.EscapeComponent(s)
	}
	return assetpath.Path(strings.Join(segments, "/")), nil
}

func (s *Server) getAudio(c *gin.Context) {
	p, err := wildcardPath(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	data, cached, err := s.app.Gateway.Load(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	if cached {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.Data(http.StatusOK, backend.ContentType, data)
}

func (s *Server) play(c *gin.Context) {
	p, err := wildcardPath(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	pl, err := s.app.Gateway.ResolveInSlot(c.Request.Context(), clientSlot(c), p)
	if err != nil {
		fail(c, err)
		return
	}
	id := strings.TrimPrefix(pl.ObjectURL, cache.ObjectURLScheme)
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		id = id[i+1:]
	}
	respondOK(c, gin.H{
		"objectUrl": pl.ObjectURL,
		"src":       "/blob/" + id,
		"baseUrl":   pl.BaseURL,
		"fromCache": pl.FromCache,
	})
}

// clientSlot names the playback slot of the calling client. Each client
// only revokes its own object URLs.
func clientSlot(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader("X-Client-ID")); id != "" {
		return "client:" + id
	}
	return "ip:" + c.ClientIP()
}

func (s *Server) blob(c *gin.Context) {
	data, contentType, err := s.app.Objects.Lookup(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusGone, "REVOKED", err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// readUpload returns the multipart "file" field, or the raw body.
func readUpload(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, err
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close() //nolint:errcheck
		return io.ReadAll(f)
	}
	return io.ReadAll(c.Request.Body)
}

func (s *Server) uploadAudio(c *gin.Context) {
	p, err := wildcardPath(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	data, err := readUpload(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	info := backend.RecordInfo{
		Level: c.Query("level"),
		Unit:  c.Query("unit"),
		Char:  c.Query("char"),
		Text:  c.DefaultQuery("text", c.Query("char")),
	}
	if k := c.Query("kind"); k != "" {
		if info.Kind, err = assetpath.ParseKind(k); err != nil {
			badRequest(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	if err := s.app.Repo.Upload(ctx, p, data, info); err != nil {
		fail(c, err)
		return
	}
	if err := s.app.Gateway.Invalidate(ctx, p); err != nil {
		s.log.Warn("Could not drop cached copy", "path", p, "err", err)
	}
	c.JSON(http.StatusCreated, gin.H{"path": p.String(), "url": s.app.Repo.PublicURL(p), "bytes": len(data)})
}

type progressRequest struct {
	Username string `json:"username" binding:"required"`
	Char     string `json:"char" binding:"required"`
	Level    string `json:"level"`
	Unit     string `json:"unit"`
}

func (s *Server) postProgress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := s.app.Repo.EnsureUser(ctx, req.Username); err != nil {
		fail(c, err)
		return
	}
	if err := s.app.Repo.InsertProgress(ctx, strings.TrimSpace(req.Username), req.Char, req.Level, req.Unit); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getProgress(c *gin.Context) {
	rows, err := s.app.Repo.Progress(c.Request.Context(), c.Param("username"))
	if err != nil {
		fail(c, err)
		return
	}
	respondOK(c, gin.H{"username": c.Param("username"), "progress": rows})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := s.app.Repo.EnsureUser(c.Request.Context(), req.Username)
	if err != nil {
		fail(c, err)
		return
	}
	respondOK(c, user)
}

func (s *Server) stats(c *gin.Context) {
	ctx := c.Request.Context()
	entries, bytes := s.app.Cache.Usage()
	out := gin.H{
		"totalChars": s.app.Library.TotalChars(ctx),
		"cache":      gin.H{"entries": entries, "bytes": bytes},
	}
	audioStats, err := s.app.Repo.Stats(ctx)
	switch {
	case err == nil:
		out["recordedChars"] = audioStats.CharCount
		out["latest"] = audioStats.Latest
	case !errors.Is(err, backend.ErrNoDatabase):
		fail(c, err)
		return
	}
	respondOK(c, out)
}
