package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"brewery-production-backend/internal/appctx"
	"brewery-production-backend/internal/apperr"
	"brewery-production-backend/internal/catalog"
	"brewery-production-backend/internal/lock"
	"brewery-production-backend/internal/logging"
	"brewery-production-backend/internal/metrics"
	"brewery-production-backend/internal/model"
	"brewery-production-backend/internal/phase"
)

// StartPackaging moves a batch, or one lot of it, into packaging. Repeated
// calls return the current state without writing anything. Batch and lot
// state commit first; the tank bookkeeping is completed afterwards from a
// TankSync row and a failure there only degrades the result.
func (s *gormStore) StartPackaging(ctx context.Context, in PackagingInput) (*PackagingResult, error) {
	tenantID, err := tenant(ctx)
	if err != nil {
		return nil, err
	}
	var pkg *catalog.PackageType
	if in.Details != nil {
		if in.Details.Quantity <= 0 {
			return nil, apperr.Validation("package quantity must be positive")
		}
		pt, err := s.packageTypes.Lookup(in.Details.Kind, in.Details.Size)
		if err != nil {
			return nil, err
		}
		pkg = &pt
	}

	release, err := s.locker.Acquire(ctx, lock.PackagingKey(tenantID, in.BatchID))
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now()
	actor := appctx.ActorID(ctx)
	result := &PackagingResult{}
	var sync *model.TankSync
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		batch, err := findBatch(tx, in.BatchID)
		if err != nil {
			return err
		}

		var (
			setIDs    []int64
			governing []model.Lot
		)
		if in.LotID != nil {
			lot, err := findLot(tx, *in.LotID)
			if err != nil {
				return err
			}
			if started, err := phase.CheckLotPackaging(lot.Status, lot.Phase); err != nil || started {
				result.Batch, result.AlreadyPackaging = *batch, started
				return err
			}
			if setIDs, err = lotBatchIDs(tx, lot.ID); err != nil {
				return err
			}
			if !containsID(setIDs, batch.ID) {
				return apperr.Validation("batch %s is not part of lot %s", batch.BatchNumber, lot.LotCode).
					WithParams(map[string]any{"batch_id": batch.ID, "lot_id": lot.ID})
			}
			claimed, err := claimLot(tx, lot)
			if err != nil || !claimed {
				return alreadyPackaging(tx, result, batch.ID, err)
			}
			governing = []model.Lot{*lot}
		} else {
			if started, err := phase.CheckBatchPackaging(batch.Status); err != nil || started {
				result.Batch, result.AlreadyPackaging = *batch, started
				return err
			}
			claimed, err := claimBatch(tx, batch, now)
			if err != nil || !claimed {
				return alreadyPackaging(tx, result, batch.ID, err)
			}
			if setIDs, governing, err = resolvePackagingSet(tx, batch.ID); err != nil {
				return err
			}
		}

		if err := tx.Model(&model.Batch{}).
			Where("id IN ? AND status <> ?", setIDs, model.BatchStatusCompleted).
			Updates(map[string]any{
				"status":      model.BatchStatusPackaging,
				"packaged_at": now,
			}).Error; err != nil {
			return fmt.Errorf("move batches %v to packaging: %w", setIDs, err)
		}

		lotCode := ""
		if len(governing) > 0 {
			lotCode = governing[0].LotCode
		}
		if pkg != nil {
			run := model.PackagingRun{
				BatchID:     batch.ID,
				LotCode:     lotCode,
				PackageType: pkg.Code,
				PackageKind: pkg.Kind,
				PackageSize: pkg.Size,
				Quantity:    in.Details.Quantity,
				TotalVolume: pkg.VolumeLiters.Mul(decimal.NewFromInt(int64(in.Details.Quantity))),
				PerformedBy: actor,
				PerformedAt: now,
				Notes:       in.Details.Notes,
			}
			if err := tx.Create(&run).Error; err != nil {
				return fmt.Errorf("record packaging run: %w", err)
			}
			result.PackagingRun = &run
		}

		lotIDs := make([]int64, 0, len(governing))
		for _, l := range governing {
			lotIDs = append(lotIDs, l.ID)
		}
		if len(lotIDs) > 0 {
			if err := tx.Model(&model.Lot{}).Where("id IN ?", lotIDs).Updates(map[string]any{
				"phase":  model.PhasePackaging,
				"status": model.LotStatusActive,
			}).Error; err != nil {
				return fmt.Errorf("move lots %v to packaging: %w", lotIDs, err)
			}
			sync = &model.TankSync{
				BatchID: batch.ID,
				LotIDs:  lotIDs,
				Phase:   model.PhasePackaging,
				Status:  model.TankSyncPending,
			}
			if err := tx.Create(sync).Error; err != nil {
				return fmt.Errorf("queue tank sync: %w", err)
			}
		}

		title := "Packaging started"
		description := fmt.Sprintf("Batch %s entered packaging", batch.BatchNumber)
		if len(setIDs) > 1 {
			description = fmt.Sprintf("Batch %s entered packaging with %d blended batches", batch.BatchNumber, len(setIDs))
		}
		if err := writeTimeline(tx, setIDs, model.EventPackagingStarted, title, description, actor, now); err != nil {
			return err
		}

		refreshed, err := findBatch(tx, batch.ID)
		if err != nil {
			return err
		}
		result.Batch = *refreshed
		result.BatchesMoved = len(setIDs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.AlreadyPackaging {
		metrics.PackagingTransitions.WithLabelValues("idempotent").Inc()
		return result, nil
	}
	metrics.PackagingTransitions.WithLabelValues("moved").Inc()
	metrics.PackagingBatchesMoved.Add(float64(result.BatchesMoved))

	if sync != nil {
		result.TankSyncStatus = s.completeTankSync(ctx, sync)
	}
	return result, nil
}

// claimBatch moves the batch into packaging only if its status is still the
// one that was checked. A concurrent transition that got there first leaves
// zero rows affected.
func claimBatch(tx *gorm.DB, batch *model.Batch, now time.Time) (bool, error) {
	res := tx.Model(&model.Batch{}).
		Where("id = ? AND status = ?", batch.ID, batch.Status).
		Updates(map[string]any{
			"status":      model.BatchStatusPackaging,
			"packaged_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim batch %d for packaging: %w", batch.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// claimLot is claimBatch for the split path, keyed on the lot's phase.
func claimLot(tx *gorm.DB, lot *model.Lot) (bool, error) {
	res := tx.Model(&model.Lot{}).
		Where("id = ? AND phase = ? AND status <> ?", lot.ID, lot.Phase, model.LotStatusCompleted).
		Update("phase", model.PhasePackaging)
	if res.Error != nil {
		return false, fmt.Errorf("claim lot %d for packaging: %w", lot.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// alreadyPackaging fills the no-op result after a lost claim.
func alreadyPackaging(tx *gorm.DB, result *PackagingResult, batchID int64, err error) error {
	if err != nil {
		return err
	}
	batch, err := findBatch(tx, batchID)
	if err != nil {
		return err
	}
	result.Batch, result.AlreadyPackaging = *batch, true
	return nil
}

// resolvePackagingSet finds the batches that must move with batchID and the
// lots that enter packaging with them. A blend lot drags all of its member
// batches along. Sibling lots of those batches join only when their phase
// allows packaging.
func resolvePackagingSet(tx *gorm.DB, batchID int64) ([]int64, []model.Lot, error) {
	lotIDs, err := activeLotIDsForBatches(tx, []int64{batchID})
	if err != nil {
		return nil, nil, err
	}
	if len(lotIDs) == 0 {
		return []int64{batchID}, nil, nil
	}
	setIDs, err := lotBatchIDs(tx, lotIDs[0])
	if err != nil {
		return nil, nil, err
	}
	if len(setIDs) <= 1 {
		setIDs = []int64{batchID}
	}

	candidates, err := activeLotIDsForBatches(tx, setIDs)
	if err != nil {
		return nil, nil, err
	}
	var lots []model.Lot
	if err := tx.Where("id IN ?", candidates).Order("id").Find(&lots).Error; err != nil {
		return nil, nil, err
	}
	governing := make([]model.Lot, 0, len(lots))
	for _, l := range lots {
		if l.ID == lotIDs[0] {
			governing = append([]model.Lot{l}, governing...)
			continue
		}
		if started, err := phase.CheckLotPackaging(l.Status, l.Phase); err == nil && !started {
			governing = append(governing, l)
		}
	}
	return setIDs, governing, nil
}

// completeTankSync runs the secondary tank bookkeeping of a committed
// packaging transition. Failures are recorded on the sync row and logged.
func (s *gormStore) completeTankSync(ctx context.Context, sync *model.TankSync) model.TankSyncStatus {
	if err := s.applyTankSync(ctx, sync); err != nil {
		metrics.TankSyncs.WithLabelValues("failed").Inc()
		logging.LogDegraded(s.logger, "store", "completeTankSync", logrus.Fields{
			"sync_id":  sync.ID,
			"batch_id": sync.BatchID,
			"lot_ids":  sync.LotIDs,
			"attempt":  sync.Attempts + 1,
		}, err)
		if markErr := s.db.WithContext(ctx).Model(&model.TankSync{}).Where("id = ?", sync.ID).Updates(map[string]any{
			"status":     model.TankSyncFailed,
			"attempts":   sync.Attempts + 1,
			"last_error": truncate(err.Error(), 1024),
		}).Error; markErr != nil {
			logging.LogError(s.logger, "store", "completeTankSync", "mark sync failed", sync.ID, markErr)
		}
		return model.TankSyncFailed
	}
	metrics.TankSyncs.WithLabelValues("done").Inc()
	return model.TankSyncDone
}

// applyTankSync moves the open assignments of the sync's lots, and the tanks
// they hold, into the sync's phase. Completed assignments are never touched.
func (s *gormStore) applyTankSync(ctx context.Context, sync *model.TankSync) error {
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assignments []model.TankAssignment
		if len(sync.LotIDs) > 0 {
			if err := tx.Where("lot_id IN ? AND status IN ?", sync.LotIDs, model.OpenAssignmentStatuses).
				Order("id").Find(&assignments).Error; err != nil {
				return fmt.Errorf("load assignments: %w", err)
			}
		}
		for _, a := range assignments {
			if err := tx.Model(&model.TankAssignment{}).Where("id = ?", a.ID).Updates(map[string]any{
				"phase":  sync.Phase,
				"status": model.AssignmentStatusActive,
			}).Error; err != nil {
				return fmt.Errorf("update assignment %d: %w", a.ID, err)
			}
			if err := tx.Model(&model.Tank{}).Where("id = ?", a.TankID).Updates(map[string]any{
				"status":         model.TankStatusInUse,
				"current_lot_id": a.LotID,
				"current_phase":  sync.Phase,
			}).Error; err != nil {
				return fmt.Errorf("update tank %d: %w", a.TankID, err)
			}
		}
		return tx.Model(&model.TankSync{}).Where("id = ?", sync.ID).Updates(map[string]any{
			"status":       model.TankSyncDone,
			"attempts":     sync.Attempts + 1,
			"last_error":   "",
			"completed_at": now,
		}).Error
	})
}

// RetryTankSyncs completes pending or failed tank syncs of the caller's
// tenant, oldest first, skipping rows that used up their attempts.
func (s *gormStore) RetryTankSyncs(ctx context.Context, limit, maxAttempts int) (RetryReport, error) {
	var report RetryReport
	if _, err := tenant(ctx); err != nil {
		return report, err
	}
	q := s.db.WithContext(ctx).
		Where("status IN ?", []model.TankSyncStatus{model.TankSyncPending, model.TankSyncFailed}).
		Order("id")
	if maxAttempts > 0 {
		q = q.Where("attempts < ?", maxAttempts)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var syncs []model.TankSync
	if err := q.Find(&syncs).Error; err != nil {
		return report, apperr.Internal(err)
	}
	for i := range syncs {
		report.Attempted++
		if s.completeTankSync(ctx, &syncs[i]) == model.TankSyncDone {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return report, nil
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
