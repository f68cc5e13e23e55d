package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"brewery-production-backend/internal/appctx"
	"brewery-production-backend/internal/apperr"
	"brewery-production-backend/internal/lock"
	"brewery-production-backend/internal/metrics"
	"brewery-production-backend/internal/model"
	"brewery-production-backend/internal/parse"
	"brewery-production-backend/internal/phase"
)

const minBlendSources = 2

// ListBlendCandidates returns active lots in a blendable phase.
func (s *gormStore) ListBlendCandidates(ctx context.Context) ([]BlendCandidate, error) {
	if _, err := tenant(ctx); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	var lots []model.Lot
	if err := db.Where("status = ? AND phase IN ?", model.LotStatusActive, phase.BlendEligiblePhases()).
		Order("id").Find(&lots).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if len(lots) == 0 {
		return []BlendCandidate{}, nil
	}
	lotIDs := make([]int64, 0, len(lots))
	for _, l := range lots {
		lotIDs = append(lotIDs, l.ID)
	}

	var links []model.LotBatch
	if err := db.Where("lot_id IN ?", lotIDs).Find(&links).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	var assignments []model.TankAssignment
	if err := db.Where("lot_id IN ? AND status IN ?", lotIDs, model.OpenAssignmentStatuses).
		Order("id").Find(&assignments).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	counts := make(map[int64]int)
	volumes := make(map[int64]decimal.Decimal)
	for _, l := range links {
		counts[l.LotID]++
		volumes[l.LotID] = volumes[l.LotID].Add(l.VolumeContribution)
	}
	tanks := make(map[int64]int64)
	for _, a := range assignments {
		if _, ok := tanks[a.LotID]; !ok {
			tanks[a.LotID] = a.TankID
		}
	}

	out := make([]BlendCandidate, 0, len(lots))
	for _, l := range lots {
		c := BlendCandidate{
			Lot:         l,
			BatchCount:  counts[l.ID],
			IsBlend:     counts[l.ID] > 1,
			TotalVolume: volumes[l.ID],
		}
		if tankID, ok := tanks[l.ID]; ok {
			c.TankID = &tankID
		}
		out = append(out, c)
	}
	return out, nil
}

// CreateBlend fuses two or more source lots into a new blend lot and retires
// the sources, all in one transaction. Sources are not required to be in a
// blendable phase; completed lots are refused.
func (s *gormStore) CreateBlend(ctx context.Context, in BlendInput) (*BlendResult, error) {
	tenantID, err := tenant(ctx)
	if err != nil {
		return nil, err
	}
	if (len(in.LotIDs) == 0) == (len(in.BatchIDs) == 0) {
		return nil, apperr.Validation("select blend sources by lot ids or by batch ids")
	}

	release, err := s.locker.Acquire(ctx, lock.BlendKey(tenantID))
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now()
	actor := appctx.ActorID(ctx)
	var result BlendResult
	var released map[int64]model.Tank
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		sources, err := resolveBlendSources(tx, in)
		if err != nil {
			return err
		}
		if len(sources) < minBlendSources {
			return apperr.ErrInsufficientSources.WithParams(map[string]any{
				"resolved": len(sources),
				"required": minBlendSources,
			})
		}

		aggregate := decimal.Zero
		sourceIDs := make([]int64, 0, len(sources))
		codes := make([]string, 0, len(sources))
		for _, src := range sources {
			aggregate = aggregate.Add(src.Volume())
			sourceIDs = append(sourceIDs, src.ID)
			codes = append(codes, src.LotCode)
		}
		recipeID, err := firstRecipe(tx, sources[0].ID)
		if err != nil {
			return err
		}

		batchSeq, err := nextSequence(tx, tenantID, sequenceName("batch", now))
		if err != nil {
			return err
		}
		blendSeq, err := nextSequence(tx, tenantID, sequenceName("blend", now))
		if err != nil {
			return err
		}

		batch := model.Batch{
			BatchNumber: parse.BatchNumber(now.Year(), batchSeq),
			RecipeID:    recipeID,
			Volume:      aggregate,
			Status:      model.BatchStatusConditioning,
		}
		if err := tx.Create(&batch).Error; err != nil {
			return fmt.Errorf("create blend batch: %w", err)
		}
		lot := model.Lot{
			LotCode:       parse.BlendLotCode(now.Year(), blendSeq),
			Name:          strings.TrimSpace(in.Name),
			Phase:         model.PhaseConditioning,
			Status:        model.LotStatusActive,
			PlannedVolume: aggregate,
			ActualVolume:  decimal.NewNullDecimal(aggregate),
			IsBlendResult: true,
			IsBlendTarget: true,
			BlendedAt:     &now,
			Notes:         in.Notes,
		}
		if lot.Name == "" {
			lot.Name = lot.LotCode
		}
		if err := tx.Create(&lot).Error; err != nil {
			return fmt.Errorf("create blend lot: %w", err)
		}
		link := model.LotBatch{LotID: lot.ID, BatchID: batch.ID, BatchPercentage: hundred, VolumeContribution: aggregate}
		if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("link blend lot %d: %w", lot.ID, err)
		}

		if err := tx.Model(&model.Lot{}).Where("id IN ?", sourceIDs).Updates(map[string]any{
			"status":        model.LotStatusCompleted,
			"parent_lot_id": lot.ID,
		}).Error; err != nil {
			return fmt.Errorf("retire blend sources %v: %w", sourceIDs, err)
		}
		tankIDs, err := endAssignments(tx, sourceIDs, now)
		if err != nil {
			return err
		}
		vacated, err := releaseTanks(tx, tankIDs)
		if err != nil {
			return err
		}
		released = make(map[int64]model.Tank, len(vacated))
		for _, t := range vacated {
			released[t.ID] = t
		}

		if in.TargetTankID != nil {
			if _, err := occupyTank(tx, *in.TargetTankID, &lot, batch.ID, aggregate, now); err != nil {
				return err
			}
			delete(released, *in.TargetTankID)
		}

		if err := writeTimeline(tx, []int64{batch.ID}, model.EventBlendCreated, "Blend created",
			fmt.Sprintf("Blend %s created from %s", lot.LotCode, strings.Join(codes, ", ")), actor, now); err != nil {
			return err
		}
		result = BlendResult{Batch: batch, Lot: lot, SourceLotIDs: sourceIDs}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.BlendsCreated.Inc()
	vacated := make([]model.Tank, 0, len(released))
	for _, t := range released {
		vacated = append(vacated, t)
	}
	s.dispatch(cipAlerts(tenantID, vacated, nil))
	return &result, nil
}

// resolveBlendSources returns distinct source lots in selection order.
func resolveBlendSources(tx *gorm.DB, in BlendInput) ([]model.Lot, error) {
	if len(in.LotIDs) > 0 {
		ids := uniqueIDs(in.LotIDs)
		var lots []model.Lot
		if err := tx.Where("id IN ?", ids).Find(&lots).Error; err != nil {
			return nil, err
		}
		byID := make(map[int64]model.Lot, len(lots))
		for _, l := range lots {
			byID[l.ID] = l
		}
		out := make([]model.Lot, 0, len(ids))
		for _, id := range ids {
			l, ok := byID[id]
			if !ok {
				return nil, apperr.LotNotFound(id)
			}
			if l.Status == model.LotStatusCompleted {
				return nil, apperr.ErrLotCompleted.WithParams(map[string]any{"lot_id": id, "lot_code": l.LotCode})
			}
			out = append(out, l)
		}
		return out, nil
	}

	batchIDs := uniqueIDs(in.BatchIDs)
	var found []int64
	if err := tx.Model(&model.Batch{}).Where("id IN ?", batchIDs).Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	if missing := subtract(batchIDs, found); len(missing) > 0 {
		return nil, apperr.BatchNotFound(missing[0])
	}
	activeIDs, err := activeLotIDsForBatches(tx, batchIDs)
	if err != nil {
		return nil, err
	}
	if len(activeIDs) == 0 {
		return nil, nil
	}
	var links []model.LotBatch
	if err := tx.Where("batch_id IN ? AND lot_id IN ?", batchIDs, activeIDs).Order("lot_id").Find(&links).Error; err != nil {
		return nil, err
	}
	var lots []model.Lot
	if err := tx.Where("id IN ?", activeIDs).Find(&lots).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Lot, len(lots))
	for _, l := range lots {
		byID[l.ID] = l
	}

	var ordered []int64
	for _, batchID := range batchIDs {
		for _, link := range links {
			if link.BatchID == batchID {
				ordered = append(ordered, link.LotID)
			}
		}
	}
	out := make([]model.Lot, 0, len(activeIDs))
	for _, id := range uniqueIDs(ordered) {
		out = append(out, byID[id])
	}
	return out, nil
}

// firstRecipe is the recipe of the lot's lowest-numbered batch.
func firstRecipe(tx *gorm.DB, lotID int64) (*int64, error) {
	batchIDs, err := lotBatchIDs(tx, lotID)
	if err != nil || len(batchIDs) == 0 {
		return nil, err
	}
	batch, err := findBatch(tx, batchIDs[0])
	if err != nil {
		return nil, err
	}
	return batch.RecipeID, nil
}
