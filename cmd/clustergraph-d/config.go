package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAddr         = "127.0.0.1:8090"
	defaultPollInterval = 10 * time.Second
	defaultClusterID    = "default"
	defaultRetention    = 7 * 24 * time.Hour
	defaultArchiveKeep  = 20
)

type Config struct {
	DBPath        string
	SnapshotPath  string
	Addr          string
	PollInterval  time.Duration
	ClusterID     string
	RedisAddr     string
	HideOrphaned  bool
	LogLevel      slog.Level
	PassRetention time.Duration
	ArchiveDir    string
	ArchiveKeep   int
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	defaultDBPath := filepath.Join(cwd, "clustergraph.db")
	defaultSnapshotPath := filepath.Join(cwd, "cluster.yaml")

	dbPath := envOrDefault("CLUSTERGRAPH_DB_PATH", defaultDBPath)
	snapshotPath := envOrDefault("CLUSTERGRAPH_SNAPSHOT_PATH", defaultSnapshotPath)
	addr := addrFromEnv(defaultAddr)
	pollInterval, err := durationFromEnv("CLUSTERGRAPH_POLL_INTERVAL", defaultPollInterval)
	if err != nil {
		return Config{}, err
	}
	if pollInterval <= 0 {
		return Config{}, errors.New("CLUSTERGRAPH_POLL_INTERVAL must be positive")
	}
	retention, err := durationFromEnv("CLUSTERGRAPH_PASS_RETENTION", defaultRetention)
	if err != nil {
		return Config{}, err
	}
	hideOrphaned := false
	if v := os.Getenv("CLUSTERGRAPH_HIDE_ORPHANED"); v != "" {
		hideOrphaned, err = strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CLUSTERGRAPH_HIDE_ORPHANED: %w", err)
		}
	}

	archiveKeep := defaultArchiveKeep
	if v := os.Getenv("CLUSTERGRAPH_ARCHIVE_KEEP"); v != "" {
		archiveKeep, err = strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CLUSTERGRAPH_ARCHIVE_KEEP: %w", err)
		}
	}

	flagSet := flag.NewFlagSet("clustergraph-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagDB := flagSet.String("db", dbPath, "path to SQLite database")
	flagSnapshot := flagSet.String("snapshot", snapshotPath, "path or http(s) URL of the cluster snapshot (YAML or JSON)")
	flagAddr := flagSet.String("addr", addr, "HTTP listen address")
	flagPollInterval := flagSet.String("poll-interval", pollInterval.String(), "snapshot poll interval")
	flagCluster := flagSet.String("cluster-id", envOrDefault("CLUSTERGRAPH_CLUSTER_ID", defaultClusterID), "cluster id")
	flagRedis := flagSet.String("redis-addr", os.Getenv("CLUSTERGRAPH_REDIS_ADDR"), "redis address for leader election and the shared graph (empty: standalone)")
	flagHide := flagSet.Bool("hide-orphaned", hideOrphaned, "leave orphaned resources out of the graph")
	flagLogLevel := flagSet.String("log-level", envOrDefault("CLUSTERGRAPH_LOG_LEVEL", "info"), "log level: debug|info|warn|error")
	flagRetention := flagSet.String("pass-retention", retention.String(), "how long to keep pass history (0 disables pruning)")
	flagArchiveDir := flagSet.String("archive-dir", os.Getenv("CLUSTERGRAPH_ARCHIVE_DIR"), "directory to archive reconciled graphs in (empty: no archive)")
	flagArchiveKeep := flagSet.Int("archive-keep", archiveKeep, "archived graphs kept per cluster (0 keeps all)")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	pollIntervalParsed, err := time.ParseDuration(*flagPollInterval)
	if err != nil {
		return Config{}, fmt.Errorf("invalid poll interval: %w", err)
	}
	if pollIntervalParsed <= 0 {
		return Config{}, errors.New("poll interval must be positive")
	}
	retentionParsed, err := time.ParseDuration(*flagRetention)
	if err != nil {
		return Config{}, fmt.Errorf("invalid pass retention: %w", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(*flagLogLevel))); err != nil {
		return Config{}, fmt.Errorf("invalid log level: %w", err)
	}

	config := Config{
		DBPath:        resolvePath(*flagDB, cwd),
		SnapshotPath:  resolveSnapshot(*flagSnapshot, cwd),
		Addr:          strings.TrimSpace(*flagAddr),
		PollInterval:  pollIntervalParsed,
		ClusterID:     strings.TrimSpace(*flagCluster),
		RedisAddr:     strings.TrimSpace(*flagRedis),
		HideOrphaned:  *flagHide,
		LogLevel:      level,
		PassRetention: retentionParsed,
		ArchiveDir:    resolvePath(*flagArchiveDir, cwd),
		ArchiveKeep:   *flagArchiveKeep,
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	if config.ClusterID == "" {
		return Config{}, errors.New("cluster-id cannot be empty")
	}
	if config.SnapshotPath == "" {
		return Config{}, errors.New("snapshot cannot be empty")
	}
	if config.ArchiveKeep < 0 {
		return Config{}, errors.New("archive-keep cannot be negative")
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("CLUSTERGRAPH_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("CLUSTERGRAPH_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

// isURL reports whether the snapshot is fetched over HTTP rather than read from disk.
func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func resolveSnapshot(s string, cwd string) string {
	if isURL(strings.TrimSpace(s)) {
		return strings.TrimSpace(s)
	}
	return resolvePath(s, cwd)
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
