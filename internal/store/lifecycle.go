package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"brewery-production-backend/internal/appctx"
	"brewery-production-backend/internal/apperr"
	"brewery-production-backend/internal/model"
	"brewery-production-backend/internal/parse"
	"brewery-production-backend/internal/phase"
)

var hundred = decimal.NewFromInt(100)

// StartBrew creates a fermenting batch with its direct lot, optionally
// placing the lot in a tank.
func (s *gormStore) StartBrew(ctx context.Context, in BrewInput) (*BrewResult, error) {
	tenantID, err := tenant(ctx)
	if err != nil {
		return nil, err
	}
	if !in.Volume.IsPositive() {
		return nil, apperr.Validation("brew volume must be positive")
	}
	if in.RecipeID != nil {
		recipes, err := s.recipes.Recipes(ctx, []int64{*in.RecipeID})
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if _, ok := recipes[*in.RecipeID]; !ok {
			return nil, apperr.ErrRecipeNotFound.WithParams(map[string]any{"recipe_id": *in.RecipeID})
		}
	}

	now := s.now()
	actor := appctx.ActorID(ctx)
	var result BrewResult
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		batchSeq, err := nextSequence(tx, tenantID, sequenceName("batch", now))
		if err != nil {
			return err
		}
		lotSeq, err := nextSequence(tx, tenantID, sequenceName("lot", now))
		if err != nil {
			return err
		}

		batch := model.Batch{
			BatchNumber:     parse.BatchNumber(now.Year(), batchSeq),
			RecipeID:        in.RecipeID,
			Volume:          in.Volume,
			OriginalGravity: in.OriginalGravity,
			Status:          model.BatchStatusFermenting,
			BrewedAt:        &now,
		}
		if err := tx.Create(&batch).Error; err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		lot := model.Lot{
			LotCode:       parse.DirectLotCode(now.Year(), lotSeq),
			Name:          in.Name,
			Phase:         model.PhaseFermentation,
			Status:        model.LotStatusActive,
			PlannedVolume: in.Volume,
			Notes:         in.Notes,
		}
		if err := tx.Create(&lot).Error; err != nil {
			return fmt.Errorf("create lot: %w", err)
		}
		link := model.LotBatch{LotID: lot.ID, BatchID: batch.ID, BatchPercentage: hundred, VolumeContribution: in.Volume}
		if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("link lot %d to batch %d: %w", lot.ID, batch.ID, err)
		}
		if in.TankID != nil {
			if _, err := occupyTank(tx, *in.TankID, &lot, batch.ID, in.Volume, now); err != nil {
				return err
			}
		}
		if err := writeTimeline(tx, []int64{batch.ID}, model.EventBrewStarted,
			"Brew started", fmt.Sprintf("Batch %s started as lot %s", batch.BatchNumber, lot.LotCode), actor, now); err != nil {
			return err
		}
		result = BrewResult{Batch: batch, Lot: lot}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SplitBatch retires a batch's direct lot and divides the batch across new
// split lots, one per part.
func (s *gormStore) SplitBatch(ctx context.Context, batchID int64, parts []SplitPart) (*SplitResult, error) {
	tenantID, err := tenant(ctx)
	if err != nil {
		return nil, err
	}
	if len(parts) < 2 {
		return nil, apperr.Validation("a split needs at least two parts")
	}
	total := decimal.Zero
	for i, p := range parts {
		if !p.Volume.IsPositive() {
			return nil, apperr.Validation("part %d volume must be positive", i+1)
		}
		total = total.Add(p.Volume)
	}

	now := s.now()
	actor := appctx.ActorID(ctx)
	var result SplitResult
	var released []model.Tank
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		batch, err := findBatch(tx, batchID)
		if err != nil {
			return err
		}
		if total.GreaterThan(batch.Volume) {
			return apperr.Validation("split volume %s exceeds batch volume %s", total, batch.Volume)
		}
		lotIDs, err := activeLotIDsForBatches(tx, []int64{batchID})
		if err != nil {
			return err
		}
		if len(lotIDs) != 1 {
			return apperr.Validation("batch %s must belong to exactly one active lot to be split", batch.BatchNumber)
		}
		parent, err := findLot(tx, lotIDs[0])
		if err != nil {
			return err
		}
		members, err := lotBatchIDs(tx, parent.ID)
		if err != nil {
			return err
		}
		if parsed, err := parse.ParseLotCode(parent.LotCode); err != nil || parsed.Kind != parse.LotKindDirect || len(members) != 1 {
			return apperr.Validation("only a direct single-batch lot can be split").WithParams(map[string]any{
				"lot_code": parent.LotCode,
			})
		}

		// retire the parent before anything references its children
		tankIDs, err := endAssignments(tx, []int64{parent.ID}, now)
		if err != nil {
			return err
		}
		if released, err = releaseTanks(tx, tankIDs); err != nil {
			return err
		}
		if err := tx.Model(&model.Lot{}).Where("id = ?", parent.ID).
			Update("status", model.LotStatusCompleted).Error; err != nil {
			return fmt.Errorf("retire lot %d: %w", parent.ID, err)
		}
		parent.Status = model.LotStatusCompleted

		children := make([]model.Lot, 0, len(parts))
		for i, p := range parts {
			code, err := parse.SplitLotCode(parent.LotCode, i)
			if err != nil {
				return apperr.Validation("%v", err)
			}
			child := model.Lot{
				LotCode:       code,
				Name:          parent.Name,
				Phase:         parent.Phase,
				Status:        model.LotStatusActive,
				PlannedVolume: p.Volume,
				Notes:         parent.Notes,
			}
			if err := tx.Create(&child).Error; err != nil {
				return fmt.Errorf("create split lot %s: %w", code, err)
			}
			link := model.LotBatch{
				LotID:              child.ID,
				BatchID:            batchID,
				BatchPercentage:    p.Volume.Div(total).Mul(hundred).Round(4),
				VolumeContribution: p.Volume,
			}
			if err := tx.Create(&link).Error; err != nil {
				return fmt.Errorf("link split lot %s: %w", code, err)
			}
			if p.TankID != nil {
				if _, err := occupyTank(tx, *p.TankID, &child, batchID, p.Volume, now); err != nil {
					return err
				}
			}
			children = append(children, child)
		}

		codes := make([]string, 0, len(children))
		for _, c := range children {
			codes = append(codes, c.LotCode)
		}
		if err := writeTimeline(tx, []int64{batchID}, model.EventBatchSplit, "Batch split",
			fmt.Sprintf("Lot %s split into %s", parent.LotCode, strings.Join(codes, ", ")), actor, now); err != nil {
			return err
		}
		result = SplitResult{Batch: *batch, Parent: *parent, Lots: children}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reused := make(map[int64]bool)
	for _, p := range parts {
		if p.TankID != nil {
			reused[*p.TankID] = true
		}
	}
	s.dispatch(cipAlerts(tenantID, released, reused))
	return &result, nil
}

// AdvancePhase moves a lot to the next phase. Asking for the current phase
// is a no-op. The phase cascades to the lot's open assignments, the tanks it
// occupies and, forward only, the status of its batches. BRIGHT to PACKAGING
// runs through StartPackaging for the lot.
func (s *gormStore) AdvancePhase(ctx context.Context, lotID int64, target model.Phase) (*LotView, error) {
	if _, err := tenant(ctx); err != nil {
		return nil, err
	}
	if target == model.PhasePackaging {
		handled, err := s.advanceIntoPackaging(ctx, lotID)
		if err != nil {
			return nil, err
		}
		if handled {
			return s.GetLotView(ctx, lotID)
		}
	}
	now := s.now()
	actor := appctx.ActorID(ctx)
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		lot, err := findLot(tx, lotID)
		if err != nil {
			return err
		}
		changed, err := phase.CheckAdvance(lot.Status, lot.Phase, target)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		if err := tx.Model(&model.Lot{}).Where("id = ?", lotID).Update("phase", target).Error; err != nil {
			return fmt.Errorf("advance lot %d: %w", lotID, err)
		}
		if err := tx.Model(&model.TankAssignment{}).
			Where("lot_id = ? AND status IN ?", lotID, model.OpenAssignmentStatuses).
			Update("phase", target).Error; err != nil {
			return fmt.Errorf("cascade phase to assignments of lot %d: %w", lotID, err)
		}
		if err := tx.Model(&model.Tank{}).Where("current_lot_id = ?", lotID).
			Update("current_phase", target).Error; err != nil {
			return fmt.Errorf("cascade phase to tanks of lot %d: %w", lotID, err)
		}

		batchIDs, err := lotBatchIDs(tx, lotID)
		if err != nil {
			return err
		}
		if err := advanceBatches(tx, batchIDs, phase.BatchStatusFor(target)); err != nil {
			return err
		}
		return writeTimeline(tx, batchIDs, model.EventPhaseAdvanced, "Phase advanced",
			fmt.Sprintf("Lot %s moved from %s to %s", lot.LotCode, lot.Phase, target), actor, now)
	})
	if err != nil {
		return nil, err
	}
	return s.GetLotView(ctx, lotID)
}

// advanceIntoPackaging starts packaging for the lot when the advance is a
// real BRIGHT to PACKAGING move. Anything else is left to AdvancePhase, which
// reports the rejection or the no-op.
func (s *gormStore) advanceIntoPackaging(ctx context.Context, lotID int64) (bool, error) {
	db := s.db.WithContext(ctx)
	lot, err := findLot(db, lotID)
	if err != nil {
		return false, nil
	}
	if changed, err := phase.CheckAdvance(lot.Status, lot.Phase, model.PhasePackaging); err != nil || !changed {
		return false, nil
	}
	batchIDs, err := lotBatchIDs(db, lotID)
	if err != nil {
		return false, apperr.Internal(err)
	}
	if len(batchIDs) == 0 {
		return false, nil
	}
	if _, err := s.StartPackaging(ctx, PackagingInput{BatchID: batchIDs[0], LotID: &lotID}); err != nil {
		return false, err
	}
	return true, nil
}

// advanceBatches moves each batch's status forward to implied.
func advanceBatches(tx *gorm.DB, batchIDs []int64, implied model.BatchStatus) error {
	if len(batchIDs) == 0 || implied == "" {
		return nil
	}
	var batches []model.Batch
	if err := tx.Where("id IN ?", batchIDs).Find(&batches).Error; err != nil {
		return err
	}
	for _, b := range batches {
		next, moved := phase.AdvanceBatchStatus(b.Status, implied)
		if !moved {
			continue
		}
		if err := tx.Model(&model.Batch{}).Where("id = ?", b.ID).Update("status", next).Error; err != nil {
			return fmt.Errorf("advance batch %d: %w", b.ID, err)
		}
	}
	return nil
}

// TransferLot moves an active lot to another tank.
func (s *gormStore) TransferLot(ctx context.Context, lotID, tankID int64) (*LotView, error) {
	tenantID, err := tenant(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	actor := appctx.ActorID(ctx)
	var released []model.Tank
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		lot, err := findLot(tx, lotID)
		if err != nil {
			return err
		}
		if lot.Status == model.LotStatusCompleted {
			return apperr.ErrLotCompleted.WithParams(map[string]any{"lot_id": lotID})
		}
		var already int64
		if err := tx.Model(&model.TankAssignment{}).
			Where("lot_id = ? AND tank_id = ? AND status = ?", lotID, tankID, model.AssignmentStatusActive).
			Count(&already).Error; err != nil {
			return err
		}
		if already > 0 {
			return nil
		}
		if _, err := findTank(tx, tankID); err != nil {
			return err
		}
		if err := ensureTankFree(tx, tankID); err != nil {
			return err
		}

		tankIDs, err := endAssignments(tx, []int64{lotID}, now)
		if err != nil {
			return err
		}
		if released, err = releaseTanks(tx, tankIDs); err != nil {
			return err
		}
		batchIDs, err := lotBatchIDs(tx, lotID)
		if err != nil {
			return err
		}
		var primary int64
		if len(batchIDs) > 0 {
			primary = batchIDs[0]
		}
		if _, err := occupyTank(tx, tankID, lot, primary, lot.Volume(), now); err != nil {
			return err
		}
		return writeTimeline(tx, batchIDs, model.EventLotTransferred, "Lot transferred",
			fmt.Sprintf("Lot %s moved to tank %d", lot.LotCode, tankID), actor, now)
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(cipAlerts(tenantID, released, map[int64]bool{tankID: true}))
	return s.GetLotView(ctx, lotID)
}

// CompleteLot closes a lot after packaging. Its batches complete too unless
// another active lot still holds them.
func (s *gormStore) CompleteLot(ctx context.Context, lotID int64) (*LotView, error) {
	tenantID, err := tenant(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	actor := appctx.ActorID(ctx)
	var released []model.Tank
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		lot, err := findLot(tx, lotID)
		if err != nil {
			return err
		}
		if lot.Status == model.LotStatusCompleted {
			return nil
		}
		if lot.Phase != model.PhasePackaging {
			return apperr.InvalidPhaseTransition(lot.Phase, model.LotStatusCompleted, []string{string(model.PhasePackaging)})
		}

		if err := tx.Model(&model.Lot{}).Where("id = ?", lotID).
			Update("status", model.LotStatusCompleted).Error; err != nil {
			return fmt.Errorf("complete lot %d: %w", lotID, err)
		}
		tankIDs, err := endAssignments(tx, []int64{lotID}, now)
		if err != nil {
			return err
		}
		if released, err = releaseTanks(tx, tankIDs); err != nil {
			return err
		}

		batchIDs, err := lotBatchIDs(tx, lotID)
		if err != nil {
			return err
		}
		stillHeld, err := activeLotIDsForBatches(tx, batchIDs)
		if err != nil {
			return err
		}
		finished := batchIDs
		if len(stillHeld) > 0 {
			var held []int64
			if err := tx.Model(&model.LotBatch{}).Where("lot_id IN ?", stillHeld).Pluck("batch_id", &held).Error; err != nil {
				return err
			}
			finished = subtract(batchIDs, held)
		}
		if len(finished) > 0 {
			if err := tx.Model(&model.Batch{}).Where("id IN ?", finished).Updates(map[string]any{
				"status":       model.BatchStatusCompleted,
				"completed_at": now,
			}).Error; err != nil {
				return fmt.Errorf("complete batches of lot %d: %w", lotID, err)
			}
		}
		return writeTimeline(tx, batchIDs, model.EventLotCompleted, "Lot completed",
			fmt.Sprintf("Lot %s completed", lot.LotCode), actor, now)
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(cipAlerts(tenantID, released, nil))
	return s.GetLotView(ctx, lotID)
}

// GetTimeline returns a batch's events, oldest first.
func (s *gormStore) GetTimeline(ctx context.Context, batchID int64) ([]model.BatchTimeline, error) {
	if _, err := tenant(ctx); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if _, err := findBatch(db, batchID); err != nil {
		return nil, apperr.Internal(err)
	}
	var events []model.BatchTimeline
	if err := db.Where("batch_id = ?", batchID).Order("occurred_at, id").Find(&events).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return events, nil
}

func subtract(ids, remove []int64) []int64 {
	drop := make(map[int64]struct{}, len(remove))
	for _, id := range remove {
		drop[id] = struct{}{}
	}
	var out []int64
	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
