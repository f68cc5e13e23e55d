// Package reconcile runs the background maintenance cycle: it completes tank
// bookkeeping left behind by degraded packaging transitions and repairs
// cached inventory balances that drifted from the ledger.
package reconcile

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"brewery-production-backend/config"
	"brewery-production-backend/internal/appctx"
	"brewery-production-backend/internal/logging"
	"brewery-production-backend/internal/store"
)

// Maintainer is the part of the store the cycle needs.
type Maintainer interface {
	ListTenants(ctx context.Context) ([]string, error)
	RetryTankSyncs(ctx context.Context, limit, maxAttempts int) (store.RetryReport, error)
	ReconcileBalances(ctx context.Context) ([]store.BalanceDrift, error)
}

// Report summarizes one cycle across all tenants.
type Report struct {
	Tenants int               `json:"tenants"`
	Syncs   store.RetryReport `json:"syncs"`
	Drifts  int               `json:"drifts"`
	Errors  int               `json:"errors"`
}

// Service orchestrates the maintenance loop.
type Service struct {
	cfg    config.ReconcileConfig
	store  Maintainer
	logger *logrus.Logger
}

func NewService(cfg config.ReconcileConfig, s Maintainer, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{cfg: cfg, store: s, logger: logger}
}

// Run executes a cycle immediately and then every interval until ctx ends.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("reconcile loop is disabled")
		return
	}
	s.logger.WithField("interval", s.cfg.Interval.String()).Info("starting reconcile loop")

	s.RunOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconcile loop shutting down")
			return
		case <-timer.C:
			s.RunOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// RunOnce performs one cycle for every tenant. A failing tenant is logged and
// the cycle moves on to the next one.
func (s *Service) RunOnce(ctx context.Context) Report {
	var report Report
	tenants, err := s.store.ListTenants(appctx.SkipTenantScope(ctx))
	if err != nil {
		logging.LogError(s.logger, "reconcile", "RunOnce", "list tenants", nil, err)
		report.Errors++
		return report
	}

	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			break
		}
		report.Tenants++
		tctx := appctx.WithActor(appctx.WithTenant(ctx, tenantID), "reconciler")

		syncs, err := s.store.RetryTankSyncs(tctx, s.cfg.BatchSize, s.cfg.MaxAttempts)
		if err != nil {
			logging.LogError(s.logger, "reconcile", "RunOnce", "retry tank syncs", tenantID, err)
			report.Errors++
		}
		report.Syncs.Attempted += syncs.Attempted
		report.Syncs.Succeeded += syncs.Succeeded
		report.Syncs.Failed += syncs.Failed

		drifts, err := s.store.ReconcileBalances(tctx)
		if err != nil {
			logging.LogError(s.logger, "reconcile", "RunOnce", "reconcile balances", tenantID, err)
			report.Errors++
		}
		report.Drifts += len(drifts)
	}

	s.logger.WithFields(logrus.Fields{
		"tenants":         report.Tenants,
		"syncs_attempted": report.Syncs.Attempted,
		"syncs_failed":    report.Syncs.Failed,
		"drifts":          report.Drifts,
		"errors":          report.Errors,
	}).Info("reconcile cycle finished")
	return report
}
