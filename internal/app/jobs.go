/**
 * @description
 * Scheduled job implementations.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/domain"
)

const reconcileJobTimeout = 2 * time.Minute

// LedgerReconciler defines the reconciliation operation the jobs drive.
type LedgerReconciler interface {
	ReconcileLedger(ctx context.Context, limit int) (*domain.ReconciliationReport, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	reconciler LedgerReconciler
	logger     *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(reconciler LedgerReconciler, logger *slog.Logger) *Jobs {
	return &Jobs{reconciler: reconciler, logger: logger}
}

// ReconcileLedger compares cached balances with the ledger and logs any drift.
func (j *Jobs) ReconcileLedger() {
	j.logger.Info("starting ledger reconciliation job")
	ctx, cancel := context.WithTimeout(context.Background(), reconcileJobTimeout)
	defer cancel()

	report, err := j.reconciler.ReconcileLedger(ctx, 0)
	if err != nil {
		j.logger.Error("ledger reconciliation failed", "error", err)
		return
	}

	for _, drift := range report.Drifts {
		j.logger.Warn("credit balance drift detected",
			"user_id", drift.UserID,
			"cached_credits", drift.CachedCredits,
			"ledger_credits", drift.LedgerCredits,
		)
	}

	j.logger.Info("ledger reconciliation job finished", "drifted_profiles", len(report.Drifts))
}
