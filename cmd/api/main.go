package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/appwrite"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/config"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/metrics"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/router"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/store/repo"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/pkg/database"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/pkg/utilities"
)

func main() {
	// .env, environment, then CONFIG_FILE
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Infow("starting appwrite auth service", "addr", cfg.Addr, "env", cfg.Env)

	// missing provider settings surface on first use, not here
	if err := cfg.Validate(); err != nil {
		sugar.Warnw("configuration incomplete", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := prepareSnapshots(ctx, sugar); err != nil {
		sugar.Fatalf("prepare snapshot table: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := auth.NewService(cfg.Appwrite, sugar.Named("appwrite"),
		appwrite.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}))
	handler, err := router.RegisterRoutes(router.Deps{
		Config:   cfg,
		Logger:   sugar,
		Gatherer: reg,
		Metrics:  metrics.New(reg),
		Service:  svc,
	})
	if err != nil {
		sugar.Fatalf("build routes: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}

// connectSnapshots is a test seam for the snapshot database.
var connectSnapshots = func(ctx context.Context) (*sqlx.DB, error) {
	return database.Connect(ctx, database.ConfigFromEnv())
}

// prepareSnapshots makes sure the snapshot table exists for authctl clients
// when DATABASE_URL is set. The server itself never reads snapshots, so the
// pool is closed before serving.
func prepareSnapshots(ctx context.Context, sugar *zap.SugaredLogger) error {
	db, err := connectSnapshots(ctx)
	if errors.Is(err, database.ErrNoDSN) {
		sugar.Infow("snapshot persistence disabled")
		return nil
	}
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repo.NewSnapshotRepo(db).EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure snapshot table: %w", err)
	}
	sugar.Infow("snapshot table ready")
	return nil
}
