package cli

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/star/ascas/internal/api"
	"github.com/star/ascas/internal/cache"
	"github.com/star/ascas/internal/catalog"
	"github.com/star/ascas/internal/config"
	"github.com/star/ascas/internal/conjunction"
	"github.com/star/ascas/internal/logging"
	"github.com/star/ascas/internal/metrics"
	"github.com/star/ascas/internal/observability"
	"github.com/star/ascas/internal/propagation"
	"github.com/star/ascas/internal/resolver"
	"github.com/star/ascas/internal/tle"
	"github.com/star/ascas/web"
)

// serveFlags maps command-line flags onto config keys.
var serveFlags = map[string]string{
	"addr":         "http.addr",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"enable-fetch": "tle.enable_fetch",
	"snapshot-dir": "tle.snapshot_dir",
	"catalog-file": "catalog.file",
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP resolver service",
		Long: `Run the HTTP service and the embedded web page.

Settings come from defaults, the --config file, ASCAS_* environment
variables and the flags below, in increasing order of precedence.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := config.New()
			if err := config.ReadFile(v, rootOpts.ConfigFile); err != nil {
				return WrapExitError(ExitCommandError, "loading config", err)
			}
			if err := bindFlags(v, cmd.Flags(), serveFlags); err != nil {
				return WrapExitError(ExitCommandError, "binding flags", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, v, rootOpts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().String("log-level", "info", "log level (debug|info|warn|error)")
	cmd.Flags().String("log-format", "json", "log format (json|text)")
	cmd.Flags().Bool("enable-fetch", true, "fetch element sets from the configured sources")
	cmd.Flags().String("snapshot-dir", "/tmp/ascas/tle", "directory for dataset snapshots")
	cmd.Flags().String("catalog-file", "", "YAML catalog replacing the built-in list")

	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func runServe(ctx context.Context, v *viper.Viper, opts *RootOptions, out io.Writer) error {
	level := v.GetString("log.level")
	if opts.Verbose {
		level = "debug"
	}
	logger := logging.New(logging.Config{Level: level, Format: v.GetString("log.format"), Output: out})

	cfg, err := config.Load(v, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "initializing tracing", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	a, err := newApp(cfg, web.Content, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "starting service", err)
	}
	return a.run(ctx)
}

// app is the wired service.
type app struct {
	cfg       config.Config
	store     *tle.Store
	refresher *tle.Refresher
	elements  *cache.ElementCache
	server    *api.Server
	logger    *slog.Logger
}

func newApp(cfg config.Config, webFS fs.FS, logger *slog.Logger) (*app, error) {
	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}

	store := tle.NewStore()
	snapshots := tle.NewSnapshotCache(cfg.TLE.SnapshotDir, cfg.TLE.MaxFiles)
	if ds, err := snapshots.LoadLatestDataset(logger); err != nil {
		logger.Info("no TLE snapshot found, starting without a dataset", "component", "tle", "error", err)
	} else {
		store.Set(ds)
		metrics.SetTLEDatasetCount(ds.Len())
		logger.Info("loaded TLE dataset from snapshot",
			"component", "tle",
			"count", ds.Len(),
			"fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
		)
	}

	// A nil *tle.Fetcher must not reach the cache as a non-nil interface.
	var objects cache.ObjectFetcher
	var refresher *tle.Refresher
	if cfg.TLE.EnableFetch {
		fetcher := tle.NewFetcher(cfg.TLE.SourceURL, logger, cfg.TLE.ExtraSourceURLs...).WithObjectURL(cfg.TLE.ObjectURL)
		objects = fetcher
		refresher = tle.NewRefresher(fetcher, store, snapshots, logger)
	}

	elements := cache.NewElementCache(cfg.Cache, objects, store, logger)
	prop := propagation.NewPropagator(store, cfg.Propagation, logger)
	res := resolver.New(store, elements, prop, cat, cfg.Resolver, logger)

	srv := api.NewServer(api.Config{
		Addr:               cfg.HTTP.Addr,
		TrustProxy:         cfg.HTTP.TrustProxy,
		MaxConcurrentPerIP: cfg.HTTP.MaxConcurrentPerIP,
		MaxConcurrentTotal: cfg.HTTP.MaxConcurrentTotal,
		Auth:               cfg.Auth,
	}, api.Deps{
		Store:       store,
		Refresher:   refresher,
		Elements:    elements,
		Resolver:    res,
		Conjunction: conjunction.NewAnalyzer(res, prop, logger),
		Catalog:     cat,
		Web:         webFS,
	}, logger)

	return &app{
		cfg:       cfg,
		store:     store,
		refresher: refresher,
		elements:  elements,
		server:    srv,
		logger:    logger,
	}, nil
}

// run starts the background workers and serves until ctx is cancelled.
func (a *app) run(ctx context.Context) error {
	go a.elements.Start(ctx)
	if a.refresher != nil {
		go a.refresher.Run(ctx, a.cfg.TLE.RefreshInterval, a.cfg.TLE.MaxAge)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age, ok := a.store.Age(); ok {
					metrics.SetTLEDatasetAge(age.Seconds())
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server",
			"addr", a.cfg.HTTP.Addr,
			"auth_enabled", a.cfg.Auth.Enabled,
			"tle_fetch_enabled", a.cfg.TLE.EnableFetch,
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.logger.Error("server listen error", "error", err)
			return WrapExitError(ExitFailure, "server listen error", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.HTTPServer().Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", "error", err)
		return WrapExitError(ExitFailure, "server shutdown error", err)
	}
	a.logger.Info("server stopped")
	return nil
}

