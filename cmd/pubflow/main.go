package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"pubflow/internal/api"
	"pubflow/internal/config"
	"pubflow/internal/events"
	"pubflow/internal/guard"
	"pubflow/internal/notify"
	"pubflow/internal/publisher"
	"pubflow/internal/scheduler"
	"pubflow/internal/store"
	"pubflow/internal/store/memory"
	storesqlite "pubflow/internal/store/sqlite"
)

func main() {
	var (
		addr    = flag.String("addr", ":8080", "HTTP bind address")
		cfgPath = flag.String("config", "pubflow.yaml", "config file path")
		driver  = flag.String("store", "sqlite", "task store backend: sqlite or memory")
		dbPath  = flag.String("db", "pubflow.db", "SQLite DB path (sqlite store only)")
		debug   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	if !*debug {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfgMgr := config.NewManager(*cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		log.Fatal().Err(err).Str("path", *cfgPath).Msg("load config")
	}

	var st store.Store
	switch *driver {
	case "memory":
		st = memory.New()
	case "sqlite":
		dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("open db")
		}
		defer db.Close()
		db.SetMaxOpenConns(1) // SQLite single writer
		if err := storesqlite.EnsureSchema(db); err != nil {
			log.Fatal().Err(err).Msg("ensure schema")
		}
		st = storesqlite.New(db)
	default:
		log.Fatal().Str("store", *driver).Msg("unknown store backend")
	}

	bus := events.NewBus()
	g := guard.New()
	pub := publisher.Exec{
		Command:  cfg.PublisherCommand,
		Args:     cfg.PublisherArgs,
		Headless: cfg.HeadlessMode,
	}

	sched := scheduler.New(st, g, pub, bus, cfgMgr)
	janitor := scheduler.NewJanitor(st, g, cfgMgr)

	// Attempts left running by a previous process would otherwise sit in
	// "running" until the first sweep.
	if n := janitor.RecoverOrphans(); n > 0 {
		log.Info().Int("recovered", n).Msg("recovered orphaned running tasks")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := cfgMgr.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("config watch unavailable")
		}
	}()

	if cfg.WebhookURL != "" {
		go notify.NewWebhook(cfg.WebhookURL).Run(ctx, bus)
	}

	if err := janitor.Start(); err != nil {
		log.Fatal().Err(err).Msg("start janitor")
	}
	sched.Start()

	srv := &http.Server{Addr: *addr, Handler: api.NewServer(sched, st, cfgMgr)}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")

	sched.Stop()
	janitor.Stop()
	cancel()

	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
