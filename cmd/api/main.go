package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusevents/internal/account"
	"campusevents/internal/activity"
	"campusevents/internal/auth"
	"campusevents/internal/cloudinary"
	"campusevents/internal/config"
	"campusevents/internal/dataservice"
	"campusevents/internal/handler"
	"campusevents/internal/httpmiddleware"
	"campusevents/internal/metrics"
	"campusevents/internal/payment"
	"campusevents/internal/queue"
	"campusevents/internal/session"
	"campusevents/internal/store"
)

var logger = loggo.GetLogger("campus.api")

func main() {
	cfg := config.Load()
	if err := loggo.ConfigureLoggers(cfg.LogConfig); err != nil {
		logger.Warningf("bad LOG_CONFIG %q: %v", cfg.LogConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Criticalf("invalid configuration: %v", err)
		os.Exit(1)
	}
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := run(cfg); err != nil {
		logger.Criticalf("http server failed: %s", errors.ErrorStack(err))
		os.Exit(1)
	}
}

func run(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	clk := clock.WallClock

	collector := metrics.NewCollector()
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checks := map[string]func(context.Context) bool{}

	var st store.Store
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Trace(err)
		}
		defer db.Close()
		if err := store.Migrate(ctx, db); err != nil {
			return errors.Trace(err)
		}
		pg := store.NewPostgres(db)
		checks["db"] = func(ctx context.Context) bool { return pg.Ping(ctx) == nil }
		st = pg
	default:
		st = store.NewMemory(clk)
	}

	var redisClient *store.Redis
	if cfg.QueueBackend == config.BackendRedis || cfg.OTPBackend == config.BackendRedis {
		redisClient = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisClient.Close()
		checks["redis"] = redisClient.Healthy
	}

	var q queue.Queue
	if cfg.QueueBackend == config.BackendRedis {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	} else {
		mem := queue.NewInMemory(256)
		q = mem
		// No separate worker can reach an in-process queue, so drain it here.
		go func() {
			consumer := &activity.Consumer{Queue: mem, Metrics: collector}
			if _, err := consumer.Run(ctx); err != nil {
				logger.Errorf("activity consumer: %v", err)
			}
		}()
	}

	var otp account.OTPStore = account.NewMemoryOTPStore(clk)
	if cfg.OTPBackend == config.BackendRedis {
		otp = account.NewRedisOTPStore(redisClient.Client, "")
	}
	accounts := account.New(account.Config{Store: st, OTP: otp, Clock: clk})

	if cfg.SeedDemo && cfg.StoreBackend == config.BackendMemory {
		if err := store.SeedDemo(ctx, st); err != nil {
			return errors.Trace(err)
		}
		if err := accounts.SeedDemoAccounts(ctx); err != nil {
			return errors.Trace(err)
		}
		logger.Infof("seeded demo data (admin@demo.com / DEMO001)")
	}

	gateway := payment.NewSimulated(clk, cfg.PaymentDeclineRate)
	opts := dataservice.Options{
		Clock:    clk,
		Metrics:  collector,
		Currency: cfg.Currency,
		Location: cfg.Location(),
	}
	registry := handler.NewRegistry(st, func(sess *session.Session) *dataservice.Service {
		return dataservice.New(st, sess, gateway, opts)
	}, q, collector)

	server := &handler.Server{
		Store:    st,
		Accounts: accounts,
		Tokens: &auth.Tokens{
			Issuer:     cfg.JWTIssuer,
			Key:        []byte(cfg.JWTSigningKey),
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
			Clock:      clk,
		},
		Registry: registry,
		Limiter:  httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, clk, handler.SubjectOrIP),
		Health: func(ctx context.Context) map[string]bool {
			out := make(map[string]bool, len(checks))
			for name, check := range checks {
				out[name] = check(ctx)
			}
			return out
		},
	}
	if cfg.CloudinaryEnabled() {
		server.Uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logger.Infof("cloudinary configured: %s", cfg.CloudinaryCloudName)
	} else {
		logger.Infof("cloudinary not configured, image uploads disabled")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{SkipPaths: []string{"/healthz", "/metrics"}}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))
	server.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on :%s (store=%s queue=%s)", cfg.HTTPPort, cfg.StoreBackend, cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return errors.Annotate(err, "listen")
		}
	case <-ctx.Done():
	}
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warningf("forced shutdown: %v", err)
	}
	return nil
}
