package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"classroom/internal/config"
	"classroom/internal/logging"
	"classroom/internal/model"
	"classroom/internal/queue"
	"classroom/internal/scheduling"
	"classroom/internal/slotindex"
	"classroom/internal/store"
	"classroom/internal/substitution"
)

// Worker replays lagged slot index projections from the queue and
// periodically rebuilds the index from the session store.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Env).Named("worker")
	defer func() { _ = logger.Sync() }()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.StoreTimeout)
	defer redisClient.Close()

	graph, err := slotindex.Open(cfg.SlotIndexPath)
	if err != nil {
		logger.Fatal("open slot index failed", zap.Error(err))
	}
	defer graph.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// The API reprojects in-process with this backend; only resync here.
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	sessionRepo := scheduling.NewRepository(db.Client)
	requestRepo := substitution.NewRepository(db.Client)
	source := slotindex.SourceFuncs{
		SessionFn:      sessionRepo.Get,
		SubstitutionFn: requestRepo.Get,
		AllSessionsFn:  sessionRepo.ListAll,
		AcceptedSubstitutionsFn: func(ctx context.Context) ([]model.SubstitutionRequest, error) {
			return requestRepo.ListByStatus(ctx, model.SubstitutionAccepted)
		},
	}
	syncer := slotindex.NewSynchronizer(graph, q, cfg.StoreTimeout, logger)

	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		slotindex.NewReprojector(syncer, source, q, 5, logger).Run(ctx, messages)
	}()

	resync := func() {
		report, err := syncer.Resync(ctx, source)
		if err != nil {
			logger.Error("resync failed", zap.Error(err))
			return
		}
		logger.Info("resync complete",
			zap.Int("sessions", report.Sessions),
			zap.Int("substitutions", report.Substitutions),
			zap.Int("nodes", report.Index.Nodes),
			zap.Int("edges", report.Index.Edges),
			zap.Duration("took", report.Duration))
	}

	logger.Info("worker started", zap.String("queue", cfg.QueueBackend), zap.Duration("resync_every", cfg.ResyncInterval))
	resync()

	ticker := time.NewTicker(cfg.ResyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			resync()
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			<-done
			logger.Info("worker stopped")
			return
		}
	}
}
