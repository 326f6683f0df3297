// Package server is the thin HTTP surface over the journal, the analysis
// runner and the aggregate queries.
package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Napageneral/journai/internal/aggregate"
	"github.com/Napageneral/journai/internal/analysis"
	"github.com/Napageneral/journai/internal/journal"
	"github.com/Napageneral/journai/internal/logger"
)

type Deps struct {
	DB          *sql.DB
	Journal     *journal.Journal
	Runner      *analysis.Runner
	Aggregator  *aggregate.Aggregator
	Log         *logger.Logger
	CORSOrigins []string
}

type handlers struct {
	db      *sql.DB
	journal *journal.Journal
	runner  *analysis.Runner
	agg     *aggregate.Aggregator
	log     *logger.Logger
}

func NewRouter(d Deps) *gin.Engine {
	h := &handlers{
		db:      d.DB,
		journal: d.Journal,
		runner:  d.Runner,
		agg:     d.Aggregator,
		log:     logger.OrNop(d.Log),
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(h.log), CORS(d.CORSOrigins))

	router.GET("/healthz", func(c *gin.Context) { respondOK(c, gin.H{"status": "ok"}) })

	// Journal
	router.POST("/start-journaling", h.startJournaling)
	router.POST("/chat", h.chat)
	router.GET("/history", h.history)
	router.POST("/end-entry", h.endEntry)
	router.GET("/entries", h.listEntries)
	router.DELETE("/entries/:id", h.deleteEntry)
	router.PUT("/entries/:id/rename", h.renameEntry)

	// Analysis
	router.POST("/analyze-all", h.analyzeAll)
	router.POST("/themeriver", h.analyzeThemeRiver)
	router.POST("/analyze/:name", h.analyzeOne)

	// Aggregates
	router.GET("/va-results", h.vaResults)
	router.GET("/metrics/spider-results", h.spiderResults)
	router.GET("/plutchik-results", h.plutchikResults)
	router.GET("/plutchik-dyads", h.plutchikDyads)
	router.GET("/themeriver", h.themeRiver)
	router.GET("/metrics/histogram", h.activityHistogram)
	router.GET("/metrics/mood-histogram", h.moodHistogram)

	// Manual submissions
	router.POST("/submit-metric", h.submitMetric)
	router.POST("/mood", h.submitMood)
	router.POST("/manual/plutchik", h.manualPlutchik)
	router.POST("/metrics/activities/merge", h.mergeActivities)

	router.GET("/events", h.events)

	return router
}

// Run serves handler on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, log *logger.Logger) error {
	log = logger.OrNop(log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", addr)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("http server stopped")
	return nil
}
