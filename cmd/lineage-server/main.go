package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/we-lineage/internal/archive"
	"github.com/danielpatrickdp/we-lineage/internal/config"
	"github.com/danielpatrickdp/we-lineage/internal/logging"
	"github.com/danielpatrickdp/we-lineage/internal/rpc"
	"github.com/danielpatrickdp/we-lineage/internal/runner"
)

// #region main
func main() {
	configPath := flag.String("config", "", "path to lineage.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if err := serve(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region serve
// serve builds the genealogy once at startup and answers queries against it
// until SIGINT or SIGTERM.
func serve(cfg config.Config) error {
	logger, err := logging.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := archive.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	r, err := runner.New(store, logger)
	if err != nil {
		return err
	}
	res, err := r.Run(runner.Options{IterationCount: cfg.IterationCount, Lags: cfg.Lags})
	if err != nil {
		return fmt.Errorf("initial run: %w", err)
	}

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	srv := grpc.NewServer()
	rpc.Register(srv, rpc.NewServer(res.Resolver, res.Iterations, logger.With("component", "rpc")))

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("shutting down")
		srv.GracefulStop()
		if metricsSrv != nil {
			metricsSrv.Close()
		}
	}()

	logger.Info("lineage server ready",
		"addr", cfg.ListenAddr,
		"metrics", cfg.MetricsAddr,
		"run_id", res.RunID,
		"nodes", res.Nodes,
	)
	return srv.Serve(lis)
}

// #endregion serve
