package syncer

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"signalcopier/src/bootstrap"
	syncsvc "signalcopier/src/sync"
)

// StartLoop runs the reconciliation pass on a fixed interval until ctx is
// canceled. One failing pass logs and waits for the next tick.
func StartLoop(ctx context.Context) error {
	config := syncsvc.GetConfig()

	ticker := time.NewTicker(config.Interval) // Set up a ticker that fires periodically
	defer ticker.Stop()

	deps, cleanup, err := bootstrap.Build()
	if err != nil {
		logger.WithError(err).Error("Failed to build syncer")
		return err
	}
	defer cleanup()

	logger.WithField("interval", config.Interval).Info("Syncer loop started")

	// first pass runs immediately, ticks cover the rest
	runPass(ctx, deps.Sync)

	for {
		select {
		case <-ctx.Done():
			logger.Println("loop stopped")
			return nil
		case <-ticker.C:
			runPass(ctx, deps.Sync)
		}
	}
}

func runPass(ctx context.Context, svc *syncsvc.Service) {
	report, err := svc.SyncAll(ctx)
	if err != nil {
		logger.WithError(err).Error("Reconciliation pass failed")
		return
	}

	var adopted, removed, failed int
	for _, fr := range report.Firms {
		adopted += len(fr.AdoptedTickets)
		removed += len(fr.RemovedTickets)
		if fr.Error != "" {
			failed++
		}
	}

	logger.WithFields(map[string]interface{}{
		"firms":   len(report.Firms),
		"adopted": adopted,
		"removed": removed,
		"failed":  failed,
		"took":    report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("Reconciliation pass finished")
}
