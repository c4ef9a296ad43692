package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/voyagen/iptvdeck/internal/cache"
	"github.com/voyagen/iptvdeck/internal/config"
	"github.com/voyagen/iptvdeck/internal/fetcher"
	xlog "github.com/voyagen/iptvdeck/internal/log"
	"github.com/voyagen/iptvdeck/internal/server"
	"github.com/voyagen/iptvdeck/internal/service"
	"github.com/voyagen/iptvdeck/internal/store"
	"github.com/voyagen/iptvdeck/internal/streamproxy"
)

var useMemory bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the stream proxy and the refresh worker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := cfg.Validate(useMemory); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&useMemory, "memory", false, "keep playlists in memory instead of PostgreSQL")
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := xlog.WithComponent("main")

	var (
		appStore store.Store
		checks   []server.Check
	)
	if useMemory {
		appStore = store.NewMemory()
		logger.Warn().Msg("using in-memory store, playlists are lost on exit")
	} else {
		migrations := store.MigrationsURL(cfg.MigrationsPath)
		if err := store.RunMigrations(cfg.DatabaseURL, migrations); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if v, dirty, err := store.SchemaVersion(cfg.DatabaseURL); err == nil {
			logger.Info().Uint("version", v).Bool("dirty", dirty).Str("source", migrations).Msg("schema migrated")
		}
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		defer pg.Close()
		appStore = pg
		checks = append(checks, server.Check{Name: "postgres", Ping: pg.Ping})
	}

	var rds *cache.Redis
	if cfg.RedisURL != "" {
		var err error
		rds, err = cache.New(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rds.Close()
		if err := rds.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		appStore = store.NewCachedStore(appStore, rds)
		checks = append(checks, server.Check{Name: "redis", Ping: rds.Ping})
		logger.Info().Msg("redis connected (caching, locks and refresh queue enabled)")
	} else {
		logger.Info().Msg("redis disabled (REDIS_URL not set), refreshes run inline")
	}

	classifier, ok := fetcher.ClassifierByName(cfg.Classifier)
	if !ok {
		return fmt.Errorf("unknown classifier %q", cfg.Classifier)
	}
	svc := service.New(appStore, fetcher.NewResolver(nil, cfg.UserAgent, cfg.Timeout), rds, service.Options{
		Classifier: classifier,
		PageSize:   cfg.ChannelPageSize,
	})
	proxy := streamproxy.New(streamproxy.Config{
		Endpoint:  cfg.ProxyEndpoint,
		Timeout:   cfg.ProxyTimeout,
		UserAgent: cfg.ProxyUserAgent,
	})
	srv := server.New(svc, proxy, cfg, checks...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	g.Go(func() error { return svc.RunRefreshWorker(ctx) })
	return g.Wait()
}
