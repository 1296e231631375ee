// analyzerd runs the job-execution core: it accepts analyzer submissions
// over HTTP, admits them against the cache and rate limit, dispatches
// analyzer subprocesses, ingests their reports, and serves the
// organisation-scoped read API. Adapted from cmd/control-plane/main.go's
// signal-driven startup/shutdown shape.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/marcus-qen/analyzerd/internal/analyzer"
	"github.com/marcus-qen/analyzerd/internal/attachment"
	"github.com/marcus-qen/analyzerd/internal/config"
	"github.com/marcus-qen/analyzerd/internal/httpapi"
	"github.com/marcus-qen/analyzerd/internal/jobs"
	"github.com/marcus-qen/analyzerd/internal/migration"
	"github.com/marcus-qen/analyzerd/internal/runner"
	"github.com/marcus-qen/analyzerd/internal/store"
)

const backupRetention = 30 * 24 * time.Hour

var (
	version = "dev"
	commit  = "none"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON configuration file")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if lvl, lerr := zap.ParseAtomicLevel(cfg.LogLevel); lerr == nil {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = lvl
		if l, berr := zcfg.Build(); berr == nil {
			logger = l
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal("failed to create data directory", zap.String("path", cfg.DataDir), zap.Error(err))
	}

	dbPath := cfg.DataDir + "/analyzerd.db"
	if _, statErr := os.Stat(dbPath); statErr == nil {
		if backupPath, err := migration.BackupDatabase(dbPath); err != nil {
			logger.Error("pre-migration backup failed", zap.Error(err))
		} else {
			logger.Info("took pre-migration backup", zap.String("path", backupPath))
		}
		if err := migration.CleanOldBackups(dbPath, backupRetention); err != nil {
			logger.Warn("failed to clean old backups", zap.Error(err))
		}
	}

	st, err := store.Open(dbPath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	var registry analyzer.Registry
	if cfg.AnalyzerFixture != "" {
		reg, err := analyzer.LoadMemRegistry(cfg.AnalyzerFixture)
		if err != nil {
			logger.Fatal("failed to load analyzer fixture", zap.String("path", cfg.AnalyzerFixture), zap.Error(err))
		}
		registry = reg
	} else {
		registry = analyzer.NewMemRegistry(nil, nil)
	}

	attStore, err := attachment.NewFSStore(cfg.DataDir + "/attachments")
	if err != nil {
		logger.Fatal("failed to open attachment store", zap.Error(err))
	}

	admission := jobs.NewAdmission(st, cfg.JobCache)
	builder := jobs.NewInputBuilder(attStore)
	ingestor := jobs.NewIngestor(st)
	procRunner := runner.New(cfg.AnalyzerPoolSize, logger)
	lifecycle := jobs.NewLifecycle(st, registry, admission, builder, procRunner, ingestor, logger)
	query := jobs.NewQuery(st)
	recovery := jobs.NewRecovery(st, registry, lifecycle, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := recovery.Run(ctx); err != nil {
		logger.Error("recovery scan failed", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version":"` + version + `","commit":"` + commit + `"}` + "\n"))
	})

	httpapi.New(lifecycle, query, registry, attStore, logger).Routes(mux)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("starting analyzerd",
		zap.String("addr", cfg.ListenAddr),
		zap.String("version", version),
		zap.Int("analyzer_pool_size", cfg.AnalyzerPoolSize),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
