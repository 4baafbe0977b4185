// Package web exposes a session over a small JSON API, so a phone or a
// stream deck can arm songs while the game window keeps focus.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/overdriver/internal/chart"
	"github.com/vovakirdan/overdriver/internal/engine"
	"github.com/vovakirdan/overdriver/internal/session"
)

// Server serves the control API for one session.
type Server struct {
	sess   *session.Session
	logger *log.Logger
	router *gin.Engine
	srv    *http.Server

	closing  chan struct{}
	shutdown sync.Once
}

// NewServer creates a server listening on addr. It does not start listening.
func NewServer(addr string, sess *session.Session, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	s := &Server{
		sess:    sess,
		logger:  logger,
		router:  r,
		closing: make(chan struct{}),
	}

	r.Use(gin.Recovery())
	r.Use(s.loggingMiddleware)

	// Allow browser clients on other origins
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	api := r.Group("/api")
	api.GET("/status", s.getStatus)
	api.GET("/songs", s.getSongs)
	api.POST("/arm", s.arm)
	api.POST("/start", s.start)
	api.POST("/cancel", s.cancel)
	api.GET("/history", s.getHistory)
	api.GET("/events", s.events)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// ListenAndServe blocks until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting HTTP server", "address", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web: %w", err)
	}
	return nil
}

// Shutdown ends event streams, stops accepting requests and waits for
// open ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() { close(s.closing) })
	return s.srv.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"took", time.Since(start),
	)
}

type statusResponse struct {
	State      string `json:"state"`
	Message    string `json:"message"`
	RunID      string `json:"run_id,omitempty"`
	Label      string `json:"label,omitempty"`
	Fired      int    `json:"fired"`
	Total      int    `json:"total"`
	ElapsedMs  int64  `json:"elapsed_ms"`
	Song       string `json:"song,omitempty"`
	Instrument string `json:"instrument,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

func (s *Server) status() statusResponse {
	st := s.sess.Status()
	resp := statusResponse{
		State:   st.State.String(),
		Message: session.StateMessage(st.State),
		RunID:   st.RunID,
		Label:   st.Label,
		Fired:   st.Fired,
		Total:   st.Total,
	}
	if st.State == engine.StateArmed {
		resp.Message = session.ReadyMessage(s.sess.Settings().LaneKeys)
	}
	if st.State.Active() && !st.Started.IsZero() {
		resp.ElapsedMs = time.Since(st.Started).Milliseconds()
	}
	if sel := s.sess.Selection(); sel.Song != nil {
		resp.Song = sel.Song.DisplayTitle
		resp.Instrument = string(sel.Instrument)
		resp.Difficulty = string(sel.Difficulty)
	}
	return resp
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status())
}

type songResponse struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Length string `json:"length"`
}

func (s *Server) getSongs(c *gin.Context) {
	catalog := s.sess.Catalog()

	titles := catalog.Titles()
	if q := c.Query("search"); q != "" {
		limit := chart.DefaultSearchLimit
		if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
			limit = l
		}
		titles = catalog.Search(q, limit)
	}

	songs := make([]songResponse, 0, len(titles))
	for _, t := range titles {
		song, err := catalog.Song(t)
		if err != nil {
			continue
		}
		songs = append(songs, songResponse{Title: t, Artist: song.ArtistName, Length: song.Length()})
	}

	c.JSON(http.StatusOK, gin.H{
		"songs": songs,
		"total": len(songs),
	})
}

type armRequest struct {
	Song       string `json:"song" binding:"required"`
	Instrument string `json:"instrument"`
	Difficulty string `json:"difficulty"`
}

func (s *Server) arm(c *gin.Context) {
	var req armRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	settings := s.sess.Settings()
	if req.Instrument == "" {
		req.Instrument = settings.DefaultInst
	}
	if req.Difficulty == "" {
		req.Difficulty = settings.DefaultDiff
	}
	inst, err := chart.ParseInstrument(req.Instrument)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	diff, err := chart.ParseDifficulty(req.Difficulty)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	song, err := s.sess.Catalog().Resolve(req.Song)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	sel, err := s.sess.Prepare(song.DisplayTitle, diff, inst)
	switch {
	case errors.Is(err, session.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": session.MsgRunning})
		return
	case errors.Is(err, chart.ErrNoChart):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"label":   sel.Label(),
		"timings": len(sel.Offsets),
		"message": session.ReadyMessage(settings.LaneKeys),
	})
}

func (s *Server) start(c *gin.Context) {
	if err := s.sess.StartNow(); err != nil {
		writeStateError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.status())
}

func (s *Server) cancel(c *gin.Context) {
	if err := s.sess.Cancel(); err != nil {
		writeStateError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.status())
}

func writeStateError(c *gin.Context, err error) {
	if errors.Is(err, engine.ErrStateConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

type runResponse struct {
	ID         string    `json:"id"`
	Song       string    `json:"song"`
	Instrument string    `json:"instrument"`
	Difficulty string    `json:"difficulty"`
	Outcome    string    `json:"outcome"`
	Fired      int       `json:"fired"`
	Total      int       `json:"total"`
	StartedAt  time.Time `json:"started_at"`
}

func (s *Server) getHistory(c *gin.Context) {
	store := s.sess.Store()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history is disabled"})
		return
	}

	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}
	song := c.Query("song")

	runs, err := store.RecentRuns(song, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]runResponse, len(runs))
	for i, r := range runs {
		out[i] = runResponse{
			ID:         r.ID,
			Song:       r.Song,
			Instrument: r.Instrument,
			Difficulty: r.Difficulty,
			Outcome:    r.Outcome,
			Fired:      r.Fired,
			Total:      len(r.Offsets),
			StartedAt:  r.StartedAt,
		}
	}

	resp := gin.H{"runs": out}
	if stats, err := store.GetDriftStats(song); err == nil {
		resp["mean_drift_ms"] = stats.MeanDrift
		resp["max_drift_ms"] = stats.MaxDrift
		resp["fires"] = stats.Fires
	}
	c.JSON(http.StatusOK, resp)
}

// eventResponse is one server-sent notification. Index, TargetMs and
// ElapsedMs are present on every fire event, including index 0 at 0 ms,
// and absent on the others.
type eventResponse struct {
	RunID     string `json:"run_id"`
	Label     string `json:"label"`
	Message   string `json:"message"`
	Index     *int   `json:"index,omitempty"`
	TargetMs  *int   `json:"target_ms,omitempty"`
	ElapsedMs *int64 `json:"elapsed_ms,omitempty"`
	Cue       string `json:"cue,omitempty"`
	Fired     int    `json:"fired"`
	Total     int    `json:"total"`
}

func newEventResponse(n engine.Notification) eventResponse {
	ev := eventResponse{
		RunID:   n.RunID,
		Label:   n.Label,
		Message: session.Message(n),
		Fired:   n.Fired,
		Total:   n.Total,
	}
	if n.Kind == engine.KindFired {
		index, target, elapsed := n.Index, n.Target, n.Elapsed
		ev.Index = &index
		ev.TargetMs = &target
		ev.ElapsedMs = &elapsed
		ev.Cue = n.Cue.String()
	}
	return ev
}

// events streams notifications as server-sent events until the client
// goes away.
func (s *Server) events(c *gin.Context) {
	notes, unsubscribe := s.sess.Subscribe(16)
	defer unsubscribe()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-s.closing:
			return false
		case n, ok := <-notes:
			if !ok {
				return false
			}
			c.SSEvent(n.Kind.String(), newEventResponse(n))
			return true
		}
	})
}
