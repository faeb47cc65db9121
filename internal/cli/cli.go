// ============================================================================
// where2go CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides the Cobra command tree for the event cache service.
//
// Command Structure:
//   where2go                         # Root command
//   ├── serve                        # Start API server + background worker
//   │   └── --no-worker             # API only, no batch loop
//   ├── worker                       # Run batch loops (headless worker node)
//   │   └── --once                  # Run one batch and exit
//   ├── status                       # Show effective configuration + backends
//   ├── cache                        # Cache diagnostics
//   │   ├── list                    # List cache keys
//   │   ├── inspect <key>           # Show entry metadata
//   │   └── clear <prefix>          # Delete entries by normalized prefix
//   ├── --config, -c                # Specify config file
//   ├── --version                   # Display version information
//   └── --help                      # Display help information
//
// Backend Selection:
//   When redis.addr (REDIS_ADDR) is set, the cache store, job store and
//   lock manager all run on Redis so multiple processes share state.
//   Otherwise everything runs in-process, which is enough for a single
//   node and for local development.
//
// serve Command:
//   1. Load configuration
//   2. Build stores (memory or Redis)
//   3. Start Metrics HTTP server (if enabled)
//   4. Start background batch loop (unless --no-worker)
//   5. Serve the HTTP API
//   6. Listen for system signals (SIGINT, SIGTERM) and shut down
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/cache"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/config"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/fetch"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/jobstore"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/lock"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/metrics"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/server"
	"github.com/alexandercfriedrich/where2go-clean-sub008/internal/worker"
)

var configFile string

// backends bundles the configured store implementations.
type backends struct {
	cache cache.Store
	jobs  jobstore.Store
	locks lock.Manager
	redis *redis.Client
}

func (b *backends) close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "where2go",
		Short: "where2go: event cache and refresh pipeline",
		Long: `where2go serves localized event listings from a TTL cache and
refreshes missing categories through an asynchronous job pipeline:
- per-category cache entries with activity-scaled TTLs
- FIFO refresh jobs with per-category partial results
- lease-based worker coordination across processes`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildWorkerCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildCacheCommand())

	return rootCmd
}

// ----------------------------------------------------------------------------
// serve
// ----------------------------------------------------------------------------

func buildServeCommand() *cobra.Command {
	var noWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  "Serve the events API and, unless --no-worker is given, run the batch worker loop in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(noWorker)
		},
	}

	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "serve the API without the background worker loop")

	return cmd
}

func runServe(noWorker bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	b, err := buildBackends(cfg)
	if err != nil {
		return err
	}
	defer b.close()

	collector := metrics.NewCollector(nil)

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !noWorker {
		runner := buildRunner(cfg, b, collector)
		go workerLoop(ctx, runner, cfg)
	}

	api := server.New(b.cache, b.jobs, collector, cfg.InternalSecret, cfg.Production())
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Listening on %s (env=%s)\n", cfg.ListenAddr, cfg.Env)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	fmt.Println("Server stopped. Goodbye!")
	return nil
}

// ----------------------------------------------------------------------------
// worker
// ----------------------------------------------------------------------------

func buildWorkerCommand() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the batch worker loop",
		Long:  "Drain queued refresh jobs in batch runs. With --once a single batch run is executed and the command exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single batch and exit")

	return cmd
}

func runWorker(once bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	b, err := buildBackends(cfg)
	if err != nil {
		return err
	}
	defer b.close()

	collector := metrics.NewCollector(nil)
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
	}

	runner := buildRunner(cfg, b, collector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		result, err := runner.RunBatch(ctx)
		if err != nil {
			return fmt.Errorf("batch run failed: %w", err)
		}
		fmt.Printf("Batch done: processed=%d skipped=%v lockLost=%v\n",
			result.Processed, result.Skipped, result.LockLost)
		return nil
	}

	workerLoop(ctx, runner, cfg)
	fmt.Println("Worker stopped. Goodbye!")
	return nil
}

// workerLoop runs batch after batch until the context is cancelled. A
// contended lock (result.Skipped) just means another worker is draining;
// the loop waits for the next tick either way.
func workerLoop(ctx context.Context, runner *worker.Runner, cfg config.Config) {
	interval := time.Duration(cfg.Worker.ExtendLockEveryMs) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := runner.RunBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "batch run error: %v\n", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ----------------------------------------------------------------------------
// status
// ----------------------------------------------------------------------------

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show effective configuration and backend health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	return cmd
}

func showStatus() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("\n╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║           where2go System Status                          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  ├─ Environment:       %s\n", cfg.Env)
	fmt.Printf("  ├─ Listen Address:    %s\n", cfg.ListenAddr)
	fmt.Printf("  ├─ Category Timeout:  %dms\n", cfg.Fetch.CategoryTimeoutMs)
	fmt.Printf("  ├─ Overall Timeout:   %dms\n", cfg.Fetch.OverallTimeoutMs)
	fmt.Printf("  └─ Max Jobs Per Run:  %d\n", cfg.Worker.MaxJobsPerRun)
	fmt.Println()

	fmt.Println("Backends:")
	if cfg.Redis.Addr != "" {
		fmt.Printf("  └─ Redis:             %s (db %d)\n", cfg.Redis.Addr, cfg.Redis.DB)

		client := newRedisClient(cfg)
		defer client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			fmt.Printf("     └─ Ping:           FAILED (%v)\n", err)
		} else {
			b := backends{cache: cache.NewRedisStore(client)}
			fmt.Println("     └─ Ping:           OK")
			fmt.Printf("     └─ Cache Entries:  %d\n", b.cache.Size(ctx))
		}
	} else {
		fmt.Println("  └─ In-process memory stores (single node)")
	}
	fmt.Println()

	fmt.Println("Query Service:")
	if cfg.QueryService.BaseURL == "" {
		fmt.Println("  └─ NOT CONFIGURED (jobs will fail with missing credentials)")
	} else {
		fmt.Printf("  ├─ URL:               %s\n", cfg.QueryService.BaseURL)
		client := fetch.NewClient(cfg.QueryService.BaseURL, cfg.QueryService.APIKey)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			fmt.Printf("  └─ Health:            FAILED (%v)\n", err)
		} else {
			fmt.Println("  └─ Health:            OK")
		}
	}
	fmt.Println()

	fmt.Println("Metrics:")
	if cfg.Metrics.Enabled {
		fmt.Printf("  └─ Enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Println("  └─ Disabled")
	}
	fmt.Println()

	fmt.Println("═══════════════════════════════════════════════════════════")
	return nil
}

// ----------------------------------------------------------------------------
// cache
// ----------------------------------------------------------------------------

func buildCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Cache diagnostics",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List cache keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackends(func(ctx context.Context, b *backends) error {
				keys := b.cache.ListKeys(ctx)
				fmt.Printf("%d entries\n", len(keys))
				for _, k := range keys {
					fmt.Println("  " + k)
				}
				return nil
			})
		},
	}

	inspect := &cobra.Command{
		Use:   "inspect <key>",
		Short: "Show metadata for a cache entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackends(func(ctx context.Context, b *backends) error {
				info, ok := b.cache.Inspect(ctx, args[0])
				if !ok {
					return fmt.Errorf("no such cache entry: %s", args[0])
				}
				fmt.Printf("Key:        %s\n", info.Key)
				fmt.Printf("Records:    %d\n", info.Records)
				fmt.Printf("Age:        %dms\n", info.AgeMs)
				fmt.Printf("TTL:        %ds\n", info.TTLSeconds)
				fmt.Printf("Stale:      %v\n", info.Stale)
				return nil
			})
		},
	}

	clear := &cobra.Command{
		Use:   "clear <prefix>",
		Short: "Delete cache entries by normalized prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackends(func(ctx context.Context, b *backends) error {
				removed, err := b.cache.Clear(ctx, cache.NormalizeSegment(args[0]))
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d entries\n", removed)
				return nil
			})
		},
	}

	cmd.AddCommand(list, inspect, clear)
	return cmd
}

// withBackends runs fn against the configured stores with a short timeout.
func withBackends(fn func(context.Context, *backends) error) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	b, err := buildBackends(cfg)
	if err != nil {
		return err
	}
	defer b.close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return fn(ctx, b)
}

// ----------------------------------------------------------------------------
// wiring
// ----------------------------------------------------------------------------

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func buildBackends(cfg config.Config) (*backends, error) {
	if cfg.Redis.Addr == "" {
		return &backends{
			cache: cache.NewMemoryStore(cfg.Cache.MaxEntries),
			jobs:  jobstore.NewMemoryStore(),
			locks: lock.NewMemoryManager(),
		}, nil
	}

	client := newRedisClient(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	return &backends{
		cache: cache.NewRedisStore(client),
		jobs:  jobstore.NewRedisStore(client),
		locks: lock.NewRedisManager(client),
		redis: client,
	}, nil
}

func buildRunner(cfg config.Config, b *backends, collector *metrics.Collector) *worker.Runner {
	var service fetch.Service
	if cfg.QueryService.BaseURL != "" && cfg.QueryService.APIKey != "" {
		service = fetch.NewClient(cfg.QueryService.BaseURL, cfg.QueryService.APIKey)
	} else {
		service = fetch.Unconfigured{}
	}
	return worker.NewRunner(b.jobs, b.cache, b.locks, service, cfg.RetryPolicy(), collector, cfg.WorkerOptions())
}
