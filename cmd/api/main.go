package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classroom/internal/attendance"
	"classroom/internal/config"
	"classroom/internal/directory"
	"classroom/internal/httpapi"
	"classroom/internal/httpmiddleware"
	"classroom/internal/logging"
	"classroom/internal/model"
	"classroom/internal/queue"
	"classroom/internal/scheduling"
	"classroom/internal/slotindex"
	"classroom/internal/store"
	"classroom/internal/substitution"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := store.Migrate(ctx, db.Client, logger); err != nil {
			return err
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.StoreTimeout)
	defer redisClient.Close()

	graph, err := slotindex.Open(cfg.SlotIndexPath)
	if err != nil {
		return err
	}
	defer graph.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	tx := store.NewTxRunner(db.Client)
	dir := directory.NewRepository(db.Client)
	sessionRepo := scheduling.NewRepository(db.Client)
	requestRepo := substitution.NewRepository(db.Client)

	syncer := slotindex.NewSynchronizer(graph, q, cfg.StoreTimeout, logger.Named("slotindex"))
	source := slotindex.SourceFuncs{
		SessionFn:      sessionRepo.Get,
		SubstitutionFn: requestRepo.Get,
		AllSessionsFn:  sessionRepo.ListAll,
		AcceptedSubstitutionsFn: func(ctx context.Context) ([]model.SubstitutionRequest, error) {
			return requestRepo.ListByStatus(ctx, model.SubstitutionAccepted)
		},
	}

	// Single-process setups reproject in-process.
	if mem, ok := q.(*queue.InMemory); ok {
		messages, err := mem.Consume(ctx)
		if err != nil {
			return err
		}
		go slotindex.NewReprojector(syncer, source, mem, 5, logger.Named("reproject")).Run(ctx, messages)
	}

	sched := scheduling.NewService(scheduling.Deps{
		Sessions:  sessionRepo,
		Tx:        tx,
		Directory: dir,
		Detector:  slotindex.NewDetector(graph, cfg.StoreTimeout, logger.Named("detector")),
		Projector: syncer,
		Log:       logger.Named("scheduling"),
	})
	subs := substitution.NewService(substitution.Deps{
		Requests:     requestRepo,
		Tx:           tx,
		Sessions:     sched,
		Instructors:  dir,
		Index:        graph,
		Projector:    syncer,
		IndexTimeout: cfg.StoreTimeout,
		Log:          logger.Named("substitution"),
	})
	att := attendance.NewService(attendance.Deps{
		Marks:        attendance.NewRepository(db.Client),
		Tx:           tx,
		Sessions:     sched,
		Students:     dir,
		Cache:        attendance.NewCache(redisClient.Client),
		CacheTimeout: cfg.StoreTimeout,
		Log:          logger.Named("attendance"),
	})

	r := httpapi.NewRouter(httpapi.Deps{
		Sessions:      sched,
		Substitutions: subs,
		Attendance:    att,
		Resync: func(ctx context.Context) (slotindex.ResyncReport, error) {
			return syncer.Resync(ctx, source)
		},
		Health: map[string]httpapi.HealthCheck{
			"db":    db.Healthy,
			"redis": redisClient.Healthy,
			"index": func(ctx context.Context) bool { return graph.Ping(ctx) == nil },
		},
		SigningKey: cfg.JWTSigningKey,
		Issuer:     cfg.JWTIssuer,
		Limiter:    httpmiddleware.NewRateLimiter(redisClient.Client, cfg.RateLimitPerMin, logger.Named("ratelimit")),
		Log:        logger.Named("http"),
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}
