package main

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/Napageneral/journai/internal/aggregate"
	"github.com/Napageneral/journai/internal/analysis"
	"github.com/Napageneral/journai/internal/config"
	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/dyad"
	"github.com/Napageneral/journai/internal/journal"
	"github.com/Napageneral/journai/internal/live"
	"github.com/Napageneral/journai/internal/llm"
	"github.com/Napageneral/journai/internal/logger"
)

// app is everything a command needs, wired from the config.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *sql.DB
	journal *journal.Journal
	runner  *analysis.Runner
	agg     *aggregate.Aggregator
}

func openApp() (*app, error) {
	// A missing .env is fine; it only pre-seeds JOURNAI_* variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	path := cfg.Database.Path
	if path == "" {
		if path, err = db.GetPath(); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(cfg.Database.Driver, path)
	if err != nil {
		return nil, err
	}

	backend, err := llm.New(cfg.LLM, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	gen := llm.NewGuard(backend, cfg.LLM.Timeout, log)
	deriver := dyad.New(cfg.Analysis.DyadThreshold, log)
	runner := analysis.NewRunner(conn, gen, analysis.DefaultRegistry(deriver), analysis.RunnerConfig{
		MaxTextChars: cfg.Analysis.MaxTextChars,
		MaxTokens:    cfg.Analysis.MaxTokens,
	}, log)

	return &app{
		cfg:     cfg,
		log:     log,
		db:      conn,
		journal: journal.New(conn, gen, cfg.Chat, deriver, log),
		runner:  runner,
		agg:     aggregate.New(conn),
	}, nil
}

func (a *app) Close() {
	a.db.Close()
	a.log.Sync()
}

// inbox builds the inbox importer; an unset dir lives under the data dir.
func (a *app) inbox() (*live.Inbox, error) {
	dir := a.cfg.Inbox.Dir
	if dir == "" {
		dataDir, err := config.GetDataDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(dataDir, "inbox")
	}
	return live.NewInbox(dir, a.cfg.Inbox.Extensions, a.db, a.journal, a.runner, a.log), nil
}
