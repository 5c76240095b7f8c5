package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusevents/internal/activity"
	"campusevents/internal/config"
	"campusevents/internal/metrics"
	"campusevents/internal/queue"
	"campusevents/internal/store"
)

var logger = loggo.GetLogger("campus.worker")

// Worker consumes the activity stream published by the API.
func main() {
	cfg := config.Load()
	if err := loggo.ConfigureLoggers(cfg.LogConfig); err != nil {
		logger.Warningf("bad LOG_CONFIG %q: %v", cfg.LogConfig, err)
	}
	if cfg.QueueBackend != config.BackendRedis {
		logger.Criticalf("worker needs QUEUE_BACKEND=redis; the memory queue is drained by the API itself")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warningf("redis at %s not reachable yet, will keep retrying", cfg.RedisAddr)
	}

	collector := metrics.NewCollector()
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collector)
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server: %v", err)
		}
	}()

	consumer := &activity.Consumer{
		Queue:   queue.NewRedisQueue(redisClient.Client, cfg.QueueKey),
		Metrics: collector,
	}
	logger.Infof("worker started, consuming %s", cfg.QueueKey)
	handled, err := consumer.Run(ctx)
	if err != nil {
		logger.Errorf("consume: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Infof("worker stopped after %d activities", handled)
}
