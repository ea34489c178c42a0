// Command tracker is the single long-lived process that owns the durable
// state file: it watches each session's sideband for changes, folds
// mutations into the durable record, deletes the sideband, and serves
// Prometheus metrics for the pipeline as a whole. The enforcer process
// never runs this logic itself — per §5's "durable state file: owned by
// the tracker process."
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"goa.design/clue/log"

	"github.com/ozmaster/torus-enforcer/internal/config"
	"github.com/ozmaster/torus-enforcer/internal/state"
	"github.com/ozmaster/torus-enforcer/internal/telemetry"
)

func main() {
	var (
		rootF = flag.String("root", defaultRoot(), "pipeline root directory")
		addrF = flag.String("metrics-addr", ":9090", "address to serve /metrics on")
		dbgF  = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *rootF, *addrF); err != nil {
		log.Error(ctx, err)
		os.Exit(1)
	}
}

func defaultRoot() string {
	if dir := os.Getenv("CLAUDE_PROJECT_DIR"); dir != "" {
		return filepath.Join(dir, ".claude")
	}
	return filepath.Join(".", ".claude")
}

func run(ctx context.Context, root, metricsAddr string) error {
	logger := telemetry.NewClueLogger()

	shutdownProviders := telemetry.InitProviders(ctx, "torus-tracker")
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownProviders(shutdownCtx)
	}()

	store := state.New(root)
	trk := state.NewTracker(store)

	// Each enforcer invocation is a separate process and cannot itself serve
	// HTTP, so the counters it would update never reach this registry;
	// registering them here only makes /metrics a valid, scrapeable
	// endpoint with the pipeline's metric names (all zero) until a future
	// revision persists counter deltas the same way the breaker and
	// Q-table files already do.
	reg := prometheus.NewRegistry()
	telemetry.NewPromCollectors(reg)

	var wg sync.WaitGroup
	errc := make(chan error, 2)

	profilesPath := filepath.Join(root, "profiles.yaml")
	registryPath := filepath.Join(root, "registry.yaml")
	watchDir := root
	if err := os.MkdirAll(filepath.Join(root, "state"), 0o755); err != nil {
		return fmt.Errorf("mkdir state dir: %w", err)
	}

	cfgWatcher, err := config.NewWatcher(watchDir, filepath.Join(root, "state"))
	if err != nil {
		logger.Warn(ctx, "config watcher unavailable, hot reload disabled", "error", err.Error())
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cfgWatcher.Close()
			cfgWatcher.Run(ctx, func(path string) {
				onPathChanged(ctx, logger, trk, path, profilesPath, registryPath)
			}, func(err error) {
				logger.Warn(ctx, "config watcher error", "error", err.Error())
			})
		}()
	}

	srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info(ctx, "serving metrics", "addr", metricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	wg.Wait()

	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}

// onPathChanged reacts to one fsnotify event: a sideband file change merges
// that session into durable state; a profiles.yaml or registry.yaml change
// is just logged (each enforcer invocation reloads those fresh, so the
// tracker has nothing cached to invalidate — fsnotify watching them here is
// purely diagnostic, per §4.13's note that only the tracker's own in-memory
// cache would ever need it).
func onPathChanged(ctx context.Context, logger telemetry.Logger, trk *state.Tracker, path, profilesPath, registryPath string) {
	switch {
	case path == profilesPath, path == registryPath:
		logger.Info(ctx, "configuration file changed", "path", path)
	case strings.HasSuffix(path, ".sideband.json"):
		sessionID := strings.TrimSuffix(filepath.Base(path), ".sideband.json")
		if err := trk.MergeSidebandIntoState(sessionID, time.Now()); err != nil {
			logger.Warn(ctx, "sideband merge failed", "session_id", sessionID, "error", err.Error())
		}
	}
}
