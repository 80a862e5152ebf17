// Package api serves lingomorph over HTTP for browser extensions and other
// local clients.
package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"

	"github.com/japaniel/lingomorph/pkg/adapt"
	"github.com/japaniel/lingomorph/pkg/article"
	"github.com/japaniel/lingomorph/pkg/config"
	"github.com/japaniel/lingomorph/pkg/db"
	"github.com/japaniel/lingomorph/pkg/ingest"
	"github.com/japaniel/lingomorph/pkg/observe"
)

// Syncer runs a vocabulary sync. *ingest.Syncer satisfies it.
type Syncer interface {
	Sync(ctx context.Context) (ingest.Result, error)
}

// ArticleFetcher downloads web pages. *article.Fetcher satisfies it.
type ArticleFetcher interface {
	Fetch(ctx context.Context, url string) (article.Article, error)
}

// SettingsLoader reads the current settings. *config.Store satisfies it.
type SettingsLoader interface {
	Load() (config.Settings, error)
}

// Server holds the handler dependencies. DB, Syncer and Adapter are
// required; the rest are optional.
type Server struct {
	DB       *sql.DB
	Syncer   Syncer
	Adapter  *adapt.Service
	Articles ArticleFetcher
	// Settings is reloaded before each adaptation so a fingerprint saved by
	// a sync is picked up.
	Settings SettingsLoader

	Metrics *observe.Metrics
	Logger  *slog.Logger

	syncs singleflight.Group
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger(), s.Metrics), corsPolicy())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/sync", s.sync)
	r.POST("/adapt", s.adapt)
	r.GET("/history", s.listHistory)
	r.GET("/history/:id", s.getHistory)
	r.DELETE("/history/:id", s.deleteHistory)
	r.POST("/history/:id/chat", s.chat)
	r.POST("/history/:id/words", s.addWord)
	r.GET("/vocab/:lemma", s.lookup)
	r.GET("/fingerprint", s.fingerprint)
	r.GET("/stats", s.stats)
	return r
}

// Sync runs a vocabulary sync. Concurrent callers share one run and all
// receive its result.
func (s *Server) Sync(ctx context.Context) (ingest.Result, error) {
	v, err, shared := s.syncs.Do("sync", func() (any, error) {
		// A caller going away must not cancel a sync others are waiting on.
		return s.Syncer.Sync(context.WithoutCancel(ctx))
	})
	if shared {
		s.logger().Debug("joined running sync")
	}
	if err != nil {
		return ingest.Result{}, err
	}
	return v.(ingest.Result), nil
}

func (s *Server) sync(c *gin.Context) {
	res, err := s.Sync(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, res)
}

type adaptRequest struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

func (s *Server) adapt(c *gin.Context) {
	var req adaptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" && req.URL != "" {
		if s.Articles == nil {
			respondError(c, http.StatusBadRequest, "bad_request", errors.New("url adaptation is not enabled"))
			return
		}
		a, err := s.Articles.Fetch(c.Request.Context(), req.URL)
		if err != nil {
			respondError(c, http.StatusBadGateway, "fetch", err)
			return
		}
		text = a.Text
	}

	svc := *s.Adapter
	if s.Settings != nil {
		st, err := s.Settings.Load()
		if err != nil {
			respondErr(c, err)
			return
		}
		svc.Settings = st
	}
	res, err := svc.Adapt(c.Request.Context(), text)
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := db.SaveAdaptation(s.DB, *res); err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, res)
}

func (s *Server) listHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "bad_request", errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	items, err := db.ListAdaptations(s.DB, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	if items == nil {
		items = []db.AdaptedText{}
	}
	respondOK(c, items)
}

func (s *Server) getHistory(c *gin.Context) {
	item, err := db.GetAdaptation(s.DB, c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, item)
}

func (s *Server) deleteHistory(c *gin.Context) {
	if err := db.DeleteAdaptation(s.DB, c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type chatRequest struct {
	Question string `json:"question" binding:"required"`
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	reply, err := s.Adapter.Ask(c.Request.Context(), c.Param("id"), req.Question)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, reply)
}

type addWordRequest struct {
	Lemma      string `json:"lemma" binding:"required"`
	Definition string `json:"definition"`
}

func (s *Server) addWord(c *gin.Context) {
	var req addWordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	if _, err := db.GetAdaptation(s.DB, c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	added, err := s.Adapter.AddToVocabulary(c.Request.Context(), req.Lemma, req.Definition)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, added)
}

type vocabResponse struct {
	ID         int64     `json:"id"`
	Word       string    `json:"word"`
	Lemma      string    `json:"lemma"`
	Status     db.Status `json:"status"`
	Definition string    `json:"definition"`
	LastSynced int64     `json:"lastSynced"`
}

func (s *Server) lookup(c *gin.Context) {
	lemma := strings.ToLower(strings.TrimSpace(c.Param("lemma")))
	rec, err := db.GetVocabByLemma(s.DB, lemma)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, vocabResponse{
		ID:         rec.ID,
		Word:       rec.Word,
		Lemma:      rec.Lemma,
		Status:     rec.Status,
		Definition: rec.Definition,
		LastSynced: rec.LastSynced.UnixMilli(),
	})
}

func (s *Server) fingerprint(c *gin.Context) {
	fp := ""
	if s.Settings != nil {
		st, err := s.Settings.Load()
		if err != nil {
			respondErr(c, err)
			return
		}
		fp = st.Fingerprint
	} else if s.Adapter != nil {
		fp = s.Adapter.Settings.Fingerprint
	}
	respondOK(c, gin.H{"fingerprint": fp})
}

type statsResponse struct {
	Synced     bool          `json:"synced"`
	Last       *db.SyncStats `json:"last,omitempty"`
	Vocabulary int           `json:"vocabulary"`
}

func (s *Server) stats(c *gin.Context) {
	n, err := db.CountVocab(s.DB)
	if err != nil {
		respondErr(c, err)
		return
	}
	out := statsResponse{Vocabulary: n}
	st, err := db.GetSyncStats(s.DB)
	switch {
	case err == nil:
		out.Synced = true
		out.Last = &st
	case !errors.Is(err, db.ErrNotFound):
		respondErr(c, err)
		return
	}
	respondOK(c, out)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger().Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
