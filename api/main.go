package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quickdeploy/api/auth"
	"quickdeploy/api/build"
	"quickdeploy/api/config"
	"quickdeploy/api/handler"
	"quickdeploy/api/hub"
	"quickdeploy/api/janitor"
	"quickdeploy/api/lease"
	"quickdeploy/api/logging"
	"quickdeploy/api/metrics"
	"quickdeploy/api/pipeline"
	"quickdeploy/api/retry"
	"quickdeploy/api/source"
	"quickdeploy/api/storage"
	"quickdeploy/api/store"
	"quickdeploy/api/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.JWTSecret == "" {
		logger.Error("QD_JWT_SECRET is required")
		os.Exit(1)
	}

	db, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.Migrate(context.Background(), db); err != nil {
		logger.Error("migration", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	var s3Client *storage.Client
	if cfg.S3Bucket != "" {
		s3Client, err = storage.NewClient(storage.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			logger.Error("s3", "error", err)
			os.Exit(1)
		}
		logger.Info("s3 storage configured", "endpoint", s3Client.Endpoint(), "bucket", s3Client.Bucket(), "region", s3Client.Region())
	} else {
		logger.Warn("QD_S3_BUCKET not set; deployments will fail until it is configured")
	}

	locker, redisLease := newLocker(cfg, logger)
	if redisLease != nil {
		defer redisLease.Close()
	}

	workspaces, err := workspace.New(cfg.WorkspaceRoot)
	if err != nil {
		logger.Error("workspace", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws := hub.New(cfg.Origins(), logger)
	go ws.Run(ctx)

	sweeper, err := janitor.New(workspaces, cfg.SweepSchedule, cfg.WorkspaceMaxAge, logger)
	if err != nil {
		logger.Error("janitor", "error", err)
		os.Exit(1)
	}
	sweeper.RunOnce()
	sweeper.Start()

	fetcher := newFetcher(cfg, logger)
	p := newPipeline(cfg, logger, db, fetcher, s3Client, workspaces, locker, ws, m)

	checks := []handler.Check{
		{Name: "postgres", Fn: db.Ping},
		{Name: "s3"},
		{Name: "redis"},
	}
	if s3Client != nil {
		checks[1].Fn = s3Client.Healthy
	}
	if redisLease != nil {
		checks[2].Fn = redisLease.Healthy
	}
	h := handler.New(p, db, fetcher, ws, Version, logger, checks...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(m.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   append([]string{"http://localhost:5173", "http://localhost:3000"}, cfg.Origins()...),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	h.Mount(r, auth.NewVerifier(cfg.JWTSecret))
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("quickdeploy listening", "version", Version, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")
	sweeper.Stop()
	// Deployments in flight get the build timeout to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.BuildTimeout+time.Minute)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newFetcher(cfg *config.Config, logger *slog.Logger) *source.Fetcher {
	fetcher := source.NewFetcher(cfg.GitHubAPIURL)
	fetcher.MetadataTimeout = cfg.MetadataTimeout
	fetcher.DownloadTimeout = cfg.DownloadTimeout
	fetcher.Logger = logger
	fetcher.Retry = retry.Policy{
		MaxAttempts: cfg.RetryAttempts,
		Backoff:     retry.Linear(cfg.RetryDelay),
		Retryable:   retry.Transient,
		Logger:      logger,
	}
	return fetcher
}

func newPipeline(cfg *config.Config, logger *slog.Logger, db *store.DB, fetcher *source.Fetcher, s3Client *storage.Client,
	workspaces *workspace.Manager, locker lease.Locker, ws *hub.Hub, m *metrics.Metrics) *pipeline.Pipeline {

	runner := build.NewRunner()
	runner.Timeout = cfg.BuildTimeout
	runner.Logger = logger

	var objects storage.ObjectStore
	if s3Client != nil {
		objects = s3Client
	}
	syncer := storage.NewSynchronizer(objects)
	syncer.Concurrency = cfg.UploadConcurrency
	syncer.MultipartThreshold = cfg.MultipartThreshold
	syncer.OpTimeout = cfg.S3Timeout
	syncer.Logger = logger
	syncer.InFlight = m.UploadsInFlight
	syncer.Retry = retry.Policy{
		MaxAttempts: cfg.RetryAttempts,
		Backoff:     retry.Linear(cfg.RetryDelay),
		Retryable:   storage.IsTransient,
		Logger:      logger,
		OnRetry:     func(int, error) { m.UploadRetries.Inc() },
	}

	return &pipeline.Pipeline{
		Users:      db,
		Fetcher:    fetcher,
		Builder:    runner,
		Workspaces: workspaces,
		Sync:       syncer,
		Lock:       locker,
		Events:     ws,
		Metrics:    m,
		Bucket:     cfg.S3Bucket,
		Region:     cfg.S3Region,
		Logger:     logger,
	}
}

func newLocker(cfg *config.Config, logger *slog.Logger) (lease.Locker, *lease.Redis) {
	switch cfg.TargetLock {
	case "local":
		logger.Info("target lock: in-process")
		return lease.NewLocal(), nil
	case "redis":
		r, err := lease.NewRedis(cfg.RedisAddr, cfg.RedisPassword, 0, logger)
		if err != nil {
			logger.Error("redis lease", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		logger.Info("target lock: redis", "addr", cfg.RedisAddr)
		return r, r
	default:
		logger.Warn("target lock disabled; concurrent deployments to the same bucket may interleave")
		return lease.None{}, nil
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
