package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/queuehealth/internal/api"
	"github.com/odvcencio/queuehealth/internal/auth"
	"github.com/odvcencio/queuehealth/internal/config"
	"github.com/odvcencio/queuehealth/internal/database"
	"github.com/odvcencio/queuehealth/internal/jobs"
	"github.com/odvcencio/queuehealth/internal/service"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: queuehealth <command>\n\nCommands:\n  serve    Start the health server\n  migrate  Create the job queue table for local development\n  token    Mint a bearer token for scraping /metrics\n")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "migrate":
		cmdMigrate(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func cmdServe(args []string) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	traceShutdown, err := initTracing(context.Background(), cfg.Tracing)
	if err != nil {
		slog.Error("init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traceShutdown(ctx); err != nil {
			slog.Error("shutdown tracing", "error", err)
		}
	}()

	db, err := openDB(cfg)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	queue := jobs.NewQueue(db)
	healthSvc := service.NewHealthService(queue)

	var sampler *jobs.Sampler
	if cfg.Metrics.Enabled {
		interval, err := cfg.SampleInterval()
		if err != nil {
			slog.Error("queue sampler interval", "error", err)
			os.Exit(1)
		}
		sampler = jobs.NewSampler(queue, jobs.SamplerOptions{
			Interval:   interval,
			Logger:     slog.Default().With("component", "queue_sampler"),
			Registerer: prometheus.DefaultRegisterer,
		})
		if p, ok := db.(database.PoolStatsProvider); ok {
			prometheus.MustRegister(collectors.NewDBStatsCollector(p.SQLDB(), cfg.Database.Driver))
		}
	}

	authSvc, err := metricsAuth(cfg)
	if err != nil {
		slog.Error("metrics auth", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(healthSvc, api.ServerOptions{
		Logger:        slog.Default(),
		AuthSvc:       authSvc,
		EnableMetrics: cfg.Metrics.Enabled,
		Compress:      cfg.Server.Compress,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("queuehealth listening", "addr", cfg.Addr(), "driver", cfg.Database.Driver, "table", cfg.Database.Table)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	if sampler != nil {
		if err := sampler.Start(gctx); err != nil {
			slog.Error("start queue sampler", "error", err)
			os.Exit(1)
		}
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sampler.Stop(shutdownCtx); err != nil {
			slog.Warn("stop queue sampler", "error", err)
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("serve", "error", err)
		os.Exit(1)
	}
}

func cmdMigrate(args []string) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	db, err := openDB(cfg)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("migrate", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations complete", "table", cfg.Database.Table)
}

func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	subject := fs.String("subject", "prometheus", "token subject")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	authSvc, err := metricsAuth(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics auth: %v\n", err)
		os.Exit(1)
	}
	if authSvc == nil {
		fmt.Fprintln(os.Stderr, "metrics.bearer_secret (QUEUEHEALTH_METRICS_SECRET) is not set; /metrics is unauthenticated")
		os.Exit(1)
	}
	token, err := authSvc.GenerateToken(*subject, auth.ScopeMetricsRead)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func openDB(cfg *config.Config) (database.DB, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return database.OpenSQLite(cfg.Database.DSN, cfg.Database.Table)
	case "postgres":
		return database.OpenPostgres(cfg.Database.DSN, cfg.Database.Table)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

// metricsAuth returns nil when no bearer secret is configured.
func metricsAuth(cfg *config.Config) (*auth.Service, error) {
	if cfg.Metrics.BearerSecret == "" {
		return nil, nil
	}
	ttl, err := cfg.TokenDuration()
	if err != nil {
		return nil, err
	}
	return auth.NewService(cfg.Metrics.BearerSecret, ttl), nil
}
