// Package scheduler runs the periodic payment reconciliation: stale pending
// payments are expired, and recently idle ones are synced with the provider.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/service"
	"go.uber.org/zap"
)

// Payments is the part of the payment service reconciliation drives.
type Payments interface {
	ExpireStalePendingPayments(ctx context.Context, cutoff time.Time) (int64, error)
	FindPendingForSync(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
	SyncPaymentStatus(ctx context.Context, intentID string) (*service.Transition, error)
}

// Report tallies one reconciliation pass.
type Report struct {
	Expired    int64 `json:"expired"`
	Candidates int   `json:"candidates"`
	Synced     int   `json:"synced"`
	Unchanged  int   `json:"unchanged"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
}

// Per-payment results, used as the metric label.
const (
	resultExpired   = "expired"
	resultSynced    = "synced"
	resultUnchanged = "unchanged"
	resultFailed    = "failed"
	resultSkipped   = "skipped"
)

type Reconciler struct {
	cfg      config.SchedulerConfig
	payments Payments
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciler(cfg config.SchedulerConfig, payments Payments, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 24 * time.Hour
	}
	if cfg.PollAfter <= 0 {
		cfg.PollAfter = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if m == nil {
		m = metrics.New()
	}
	return &Reconciler{
		cfg:      cfg,
		payments: payments,
		metrics:  m,
		logger:   logger.Named("reconciler"),
		now:      time.Now,
	}
}

// RunOnce performs one pass. It never fails as a whole: every problem is
// logged and counted in the report.
func (r *Reconciler) RunOnce(ctx context.Context) Report {
	var report Report
	if !r.cfg.Enabled {
		r.logger.Debug("Reconciliation disabled, skipping run")
		return report
	}
	r.metrics.ReconcileRuns.Inc()
	now := r.now().UTC()

	expired, err := r.payments.ExpireStalePendingPayments(ctx, now.Add(-r.cfg.StaleAfter))
	if err != nil {
		r.logger.Error("Failed to expire stale payments", zap.Error(err))
	} else {
		report.Expired = expired
		r.metrics.ReconcileItems.WithLabelValues(resultExpired).Add(float64(expired))
	}

	candidates, err := r.payments.FindPendingForSync(ctx, now.Add(-r.cfg.PollAfter), r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("Failed to load payments to sync", zap.Error(err))
		return report
	}
	report.Candidates = len(candidates)

	for i := range candidates {
		if ctx.Err() != nil {
			r.logger.Warn("Reconciliation interrupted", zap.Int("remaining", len(candidates)-i))
			break
		}
		result := r.syncOne(ctx, &candidates[i])
		r.metrics.ReconcileItems.WithLabelValues(result).Inc()
		switch result {
		case resultSynced:
			report.Synced++
		case resultUnchanged:
			report.Unchanged++
		case resultSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	r.logger.Info("Reconciliation finished",
		zap.Int64("expired", report.Expired),
		zap.Int("candidates", report.Candidates),
		zap.Int("synced", report.Synced),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report
}

func (r *Reconciler) syncOne(ctx context.Context, p *models.Payment) (result string) {
	if p.TransactionID == "" {
		r.logger.Warn("Pending payment has no transaction id", zap.String("payment_id", p.ID))
		return resultSkipped
	}

	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("Payment sync panicked",
				zap.String("payment_id", p.ID),
				zap.Error(fmt.Errorf("%v", v)))
			result = resultFailed
		}
	}()

	t, err := r.payments.SyncPaymentStatus(ctx, p.TransactionID)
	if err != nil {
		r.logger.Error("Failed to sync payment",
			zap.String("payment_id", p.ID),
			zap.String("intent_id", p.TransactionID),
			zap.Error(err))
		return resultFailed
	}
	if t.Applied {
		return resultSynced
	}
	return resultUnchanged
}
