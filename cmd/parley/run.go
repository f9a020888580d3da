package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/adapters/directory"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/channel"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the directory service and log received envelopes",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		return runNode(cmd.Context(), path)
	},
}

func init() {
	runCmd.Flags().String("config", "parley.yaml", "Path to the configuration file")
	rootCmd.AddCommand(runCmd)
}

func runNode(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	var logger *slog.Logger
	if cfg.Log.Format == "json" {
		logger = logging.NewJSON(os.Stderr, level)
	} else {
		logger = logging.New(level)
	}

	printBanner()

	endpoint, err := directory.NewClient(cfg.Directory.URL,
		directory.WithLogger(logger),
		directory.WithChainIdentifier(orDefault(cfg.Directory.ChainID, "parley")),
	)
	if err != nil {
		return err
	}

	tokens, err := buildTokenStore(cfg.TokenStore, cfg.Address)
	if err != nil {
		return err
	}

	chCfg := channel.DefaultConfig(cfg.Address)
	chCfg.DeclaredName = orDefault(cfg.Directory.DeclaredName, chCfg.DeclaredName)
	chCfg.APIKey = cfg.Directory.APIKey
	if cfg.Channel.QueueSize > 0 {
		chCfg.QueueSize = cfg.Channel.QueueSize
	}
	if cfg.Channel.Workers > 0 {
		chCfg.Workers = cfg.Channel.Workers
	}
	if cfg.Channel.PingPeriod > 0 {
		chCfg.PingPeriod = cfg.Channel.PingPeriod.Std()
	}
	if cfg.Channel.ProbePeriod > 0 {
		chCfg.ProbePeriod = cfg.Channel.ProbePeriod.Std()
	}
	if cfg.Channel.SearchDelay > 0 {
		chCfg.SearchDelay = cfg.Channel.SearchDelay.Std()
	}
	if cfg.Channel.RetryAttempts > 0 {
		chCfg.Retry.Attempts = cfg.Channel.RetryAttempts
	}
	if cfg.Channel.RetryDelay > 0 {
		chCfg.Retry.Delay = cfg.Channel.RetryDelay.Std()
	}

	registry := prometheus.NewRegistry()
	opts := []parley.NodeOption{
		parley.WithLogger(logger),
		parley.WithChannelConfig(chCfg),
		parley.WithRegisterer(registry),
	}
	if tokens != nil {
		opts = append(opts, parley.WithTokenStore(tokens))
	}

	node, err := parley.NewNode(cfg.Address, endpoint, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsListen != "" {
		go serveMetrics(ctx, logger, cfg.MetricsListen, registry)
	}

	if err := node.Connect(ctx); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	logger.Info("node running", "address", cfg.Address, "directory", cfg.Directory.URL)

	for {
		env, err := node.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrQueueClosed) {
				break
			}
			logger.Error("receive failed", "err", err)
			break
		}
		fmt.Println(env.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := node.Disconnect(shutdownCtx); err != nil {
		logger.Warn("disconnect failed", "err", err)
	}
	logger.Info("node stopped")
	return nil
}

func buildTokenStore(cfg config.TokenStore, address string) (ports.TokenStore, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "file":
		return file.NewStore(cfg.Path)
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		return redis.NewStore(client, address)
	default:
		return nil, fmt.Errorf("unknown token store kind %q", cfg.Kind)
	}
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics server stopped", "err", err)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
