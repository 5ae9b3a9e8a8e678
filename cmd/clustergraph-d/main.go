package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/clustergraph/pkg/api"
	"github.com/rmax-ai/clustergraph/pkg/blob"
	"github.com/rmax-ai/clustergraph/pkg/engine"
	"github.com/rmax-ai/clustergraph/pkg/graph"
	"github.com/rmax-ai/clustergraph/pkg/provider"
	"github.com/rmax-ai/clustergraph/pkg/provider/file"
	"github.com/rmax-ai/clustergraph/pkg/provider/remote"
	"github.com/rmax-ai/clustergraph/pkg/store"
	redisstore "github.com/rmax-ai/clustergraph/pkg/store/redis"
	"github.com/rmax-ai/clustergraph/pkg/topology"
)

const (
	leaseTTL        = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "clustergraph-d: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With("component", "clustergraph-d")
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("system_started", "cluster_id", cfg.ClusterID, "snapshot", cfg.SnapshotPath)

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed_to_close_store", "error", err)
		}
	}()
	logger.Info("store_initialized", "path", cfg.DBPath)

	holderID := holderName()
	proj := graph.NewProjection(cfg.ClusterID)
	reconciler := engine.NewReconciler(cfg.ClusterID, topology.NewRegistry(), proj,
		engine.WithPolicy(engine.StaticPolicy{HideOrphaned: cfg.HideOrphaned}),
		engine.WithLogger(logger),
	)

	// Standalone daemons elect themselves on the SQLite lease table.
	var leases store.LeaseStore = st
	var shared *redisstore.GraphStore
	opts := []engine.PollerOption{engine.WithHistory(st)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		leases = redisstore.NewLeaseStore(rdb)
		shared = redisstore.NewGraphStore(rdb)
		opts = append(opts, engine.WithPublisher(shared, proj))
		logger.Info("redis_connected", "addr", cfg.RedisAddr)
	}
	if cfg.ArchiveDir != "" {
		archive := blob.NewGraphArchive(blob.NewLocalBlobStore(cfg.ArchiveDir), cfg.ArchiveKeep)
		opts = append(opts, engine.WithPublisher(archive, proj))
		logger.Info("graph_archive_enabled", "dir", cfg.ArchiveDir, "keep", cfg.ArchiveKeep)
	}
	opts = append(opts, engine.WithLeaseGuard(leases, holderID, leaseTTL))

	poller := engine.NewPoller(newSource(cfg.SnapshotPath), reconciler, cfg.PollInterval, opts...)
	runner := &pollerRunner{poller: poller, parent: ctx}

	election := engine.NewElectionManager(leases, holderID, cfg.ClusterID, leaseTTL, runner.start, runner.stop)
	election.Start(ctx)

	pruner := engine.NewPruneWorker(st, engine.RetentionConfig{
		Retention:     cfg.PassRetention,
		CheckInterval: time.Hour,
	}, logger)
	go pruner.Run(ctx)

	srv := api.NewServer(cfg.ClusterID, st, proj, poller, cfg.Addr)
	srv.SetElectionManager(election)
	if shared != nil {
		srv.SetSharedGraph(shared)
	}
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			if !election.IsLeader() {
				logger.Info("refresh_skipped", "reason", "not_leader")
				continue
			}
			res, err := poller.Refresh(ctx)
			if err != nil {
				logger.Warn("refresh_failed", "trigger", "SIGHUP", "error", err)
				continue
			}
			logger.Info("refresh_completed", "trigger", "SIGHUP", "pass_id", res.PassID, "changed", res.Changed())
		case err := <-serverErr:
			if err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		case <-ctx.Done():
			logger.Info("shutdown_initiated")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.Error("failed_to_stop_server", "error", err)
			}
			runner.stop()
			election.Stop(shutdownCtx)
			return nil
		}
	}
}

func newSource(snapshot string) provider.Source {
	if isURL(snapshot) {
		return remote.NewSource(snapshot)
	}
	return file.NewSource(snapshot)
}

// pollerRunner keeps the poller running only while this daemon leads the cluster.
type pollerRunner struct {
	poller *engine.Poller
	parent context.Context

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *pollerRunner) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.parent)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	go func() {
		defer close(done)
		r.poller.Start(ctx)
	}()
}

func (r *pollerRunner) stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func holderName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "clustergraph-d"
	}
	return host + "-" + uuid.NewString()[:8]
}
