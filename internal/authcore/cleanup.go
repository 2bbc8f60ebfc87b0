package authcore

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RevocationSweeper runs the retention sweeps on a schedule, off the hot
// request path.
type RevocationSweeper struct {
	revocations RevocationStore
	logger      *zap.Logger
	scheduler   *cron.Cron
}

// NewRevocationSweeper constructs a sweeper over the given store.
func NewRevocationSweeper(revocations RevocationStore, logger *zap.Logger) *RevocationSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevocationSweeper{
		revocations: revocations,
		logger:      logger,
		scheduler:   cron.New(),
	}
}

// Start schedules hourly sweeps and returns immediately.
func (sweeper *RevocationSweeper) Start() error {
	if _, err := sweeper.scheduler.AddFunc("@hourly", sweeper.Sweep); err != nil {
		return err
	}
	sweeper.scheduler.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (sweeper *RevocationSweeper) Stop() {
	stopContext := sweeper.scheduler.Stop()
	<-stopContext.Done()
}

// Sweep runs both retention passes once.
func (sweeper *RevocationSweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removedBlacklisted, blacklistErr := sweeper.revocations.CleanupBlacklistedTokens(ctx)
	if blacklistErr != nil {
		sweeper.logger.Error("blacklist retention sweep failed",
			zap.String("code", "revocation_sweeper.blacklist"),
			zap.Error(blacklistErr))
	}
	removedInvalidated, invalidatedErr := sweeper.revocations.CleanupInvalidatedTokens(ctx)
	if invalidatedErr != nil {
		sweeper.logger.Error("invalidation retention sweep failed",
			zap.String("code", "revocation_sweeper.invalidated"),
			zap.Error(invalidatedErr))
	}
	if removedBlacklisted > 0 || removedInvalidated > 0 {
		sweeper.logger.Info("revocation retention sweep",
			zap.Int("blacklisted_removed", removedBlacklisted),
			zap.Int("invalidated_removed", removedInvalidated))
	}
}
