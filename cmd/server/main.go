package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/gatewatch/internal/actor"
	"github.com/gyaneshwarpardhi/gatewatch/internal/api"
	"github.com/gyaneshwarpardhi/gatewatch/internal/bus"
	"github.com/gyaneshwarpardhi/gatewatch/internal/config"
	"github.com/gyaneshwarpardhi/gatewatch/internal/incident"
	"github.com/gyaneshwarpardhi/gatewatch/internal/incident/actions"
	"github.com/gyaneshwarpardhi/gatewatch/internal/registry"
	"github.com/gyaneshwarpardhi/gatewatch/internal/router"
	"github.com/gyaneshwarpardhi/gatewatch/internal/store"
)

func main() {
	environ, err := config.ParseEnv()
	if err != nil {
		slog.Error("failed to parse environment", "err", err)
		os.Exit(1)
	}

	addr := flag.String("addr", environ.Addr, "HTTP listen address")
	cfgPath := flag.String("config", environ.ConfigPath, "Path to YAML config")
	dbPath := flag.String("db", environ.DBPath, "Path to SQLite database")
	flag.Parse()

	level := slog.LevelInfo
	if environ.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	// ── Store ─────────────────────────────────────────────────────────────────
	db, err := store.OpenSQLite(*dbPath)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// ── Broadcast bus ─────────────────────────────────────────────────────────
	broadcast := bus.NewMemory()

	// ── Incident manager ──────────────────────────────────────────────────────
	actionReg := incident.NewActionRegistry()
	actionReg.Register(actions.NewNotify(broadcast))

	manager := incident.NewManager(db, broadcast, actionReg, incident.Config{
		DedupWindow:     cfg.Incidents.DedupWindow(),
		EscalationAfter: cfg.Incidents.EscalationAfter(),
		SweepInterval:   cfg.Incidents.SweepInterval(),
	})

	// ── Registry + actors ─────────────────────────────────────────────────────
	reg := registry.New(func(key actor.Key) (actor.Behavior, time.Duration) {
		// Read through the loader so actors created after a hot-reload pick
		// up the latest thresholds. Running actors keep the timeouts they
		// were born with.
		actors := loader.Config().Actors
		switch key.Kind {
		case actor.KindGate:
			return actor.NewGate(key, manager, actors.UnusualOpen()), actors.GateIdle()
		case actor.KindAcc:
			return actor.NewAcc(key), actors.AccIdle()
		default:
			return actor.NewPerson(key, db), actors.PersonIdle()
		}
	})

	// ── Router ────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt := router.New(ctx, reg, db, broadcast, router.Config{
		PersistWorkers: cfg.Router.PersistWorkers,
		QueueDepth:     cfg.Router.QueueDepth,
	})

	go manager.Run(ctx)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		manager.SwapConfig(incident.Config{
			DedupWindow:     newCfg.Incidents.DedupWindow(),
			EscalationAfter: newCfg.Incidents.EscalationAfter(),
			SweepInterval:   newCfg.Incidents.SweepInterval(),
		})
		slog.Info("config hot-reloaded",
			"dedup_window_s", newCfg.Incidents.DedupWindowS,
			"escalation_after_s", newCfg.Incidents.EscalationAfterS,
			"unusual_open_s", newCfg.Actors.UnusualOpenS)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(rt, reg, db)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr, "db", *dbPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	reg.Shutdown(loader.Config().Actors.ShutdownTimeout())
	cancel() // stop sweep and persistence workers
	rt.Shutdown()
	slog.Info("goodbye")
}
