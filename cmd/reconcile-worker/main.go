package main

import (
	"context"
	stdlog "log"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinicore/session-scheduling/internal/booking"
	"github.com/clinicore/session-scheduling/internal/config"
	"github.com/clinicore/session-scheduling/internal/db"
	"github.com/clinicore/session-scheduling/internal/logger"
)

// How many dirty sessions one run picks up.
const batchSize = 50

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("config load error: %v", err)
	}

	log := logger.New(cfg.LogLevel, cfg.Env)
	log.WithField("interval", cfg.WorkerInterval.String()).Info("reconcile-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.WithError(err).Fatal("postgres connection error")
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	repo := booking.NewPgRepository(pgPool)
	rec := booking.NewReconciler(repo, logger.ForComponent(log, "reconcile"))

	workerLog := logger.ForComponent(log, "reconcile")

	// Run once at startup
	runOnce(rootCtx, rec, cfg.BlockedSlotRelease, workerLog)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, rec, cfg.BlockedSlotRelease, workerLog)
		}
	}
}

func runOnce(ctx context.Context, rec *booking.Reconciler, blockedRetention time.Duration, log *logrus.Entry) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := rec.RunOnce(runCtx, batchSize); err != nil {
		log.WithError(err).Error("reconcile run error")
		return
	}
	if err := rec.ReleaseBlocked(runCtx, blockedRetention); err != nil {
		log.WithError(err).Error("blocked slot release error")
	}
	log.WithField("duration", time.Since(start).String()).Info("reconcile run complete")
}
