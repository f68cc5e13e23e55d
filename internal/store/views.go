package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"brewery-production-backend/internal/apperr"
	"brewery-production-backend/internal/model"
	"brewery-production-backend/internal/parse"
)

// GetLotView assembles a lot with its batches, tank and packaging runs.
// Blend-ness, batch count and total volume are computed here from LotBatch
// rows and never read from stored columns.
func (s *gormStore) GetLotView(ctx context.Context, lotID int64) (*LotView, error) {
	if _, err := tenant(ctx); err != nil {
		return nil, err
	}
	view, err := s.lotView(ctx, s.db.WithContext(ctx), lotID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return view, nil
}

func (s *gormStore) lotView(ctx context.Context, db *gorm.DB, lotID int64) (*LotView, error) {
	lot, err := findLot(db, lotID)
	if err != nil {
		return nil, err
	}
	view := &LotView{Lot: *lot, TotalVolume: decimal.Zero}
	if parsed, err := parse.ParseLotCode(lot.LotCode); err == nil {
		view.Kind = parsed.Kind
	}

	var links []model.LotBatch
	if err := db.Where("lot_id = ?", lotID).Order("batch_id").Find(&links).Error; err != nil {
		return nil, err
	}
	view.BatchCount = len(links)
	view.IsBlend = len(links) > 1

	batchIDs := make([]int64, 0, len(links))
	for _, l := range links {
		batchIDs = append(batchIDs, l.BatchID)
		view.TotalVolume = view.TotalVolume.Add(l.VolumeContribution)
	}
	batches := make(map[int64]model.Batch, len(links))
	var recipeIDs []int64
	if len(batchIDs) > 0 {
		var rows []model.Batch
		if err := db.Where("id IN ?", batchIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, b := range rows {
			batches[b.ID] = b
			if b.RecipeID != nil {
				recipeIDs = append(recipeIDs, *b.RecipeID)
			}
		}
	}
	recipes, err := s.recipes.Recipes(ctx, uniqueIDs(recipeIDs))
	if err != nil {
		return nil, err
	}
	view.Batches = make([]LotBatchView, 0, len(links))
	for _, l := range links {
		b, ok := batches[l.BatchID]
		if !ok {
			continue
		}
		bv := LotBatchView{Batch: b, BatchPercentage: l.BatchPercentage, VolumeContribution: l.VolumeContribution}
		if b.RecipeID != nil {
			if r, ok := recipes[*b.RecipeID]; ok {
				bv.Recipe = &RecipeSummary{
					ID:        r.ID,
					Name:      r.Name,
					Style:     r.Style,
					TargetOG:  r.TargetOG,
					TargetFG:  r.TargetFG,
					TargetABV: r.TargetABV,
				}
			}
		}
		view.Batches = append(view.Batches, bv)
	}

	var assignments []model.TankAssignment
	if err := db.Where("lot_id = ?", lotID).Order("id").Find(&assignments).Error; err != nil {
		return nil, err
	}
	view.ActiveAssignment = activeAssignment(assignments)
	if view.ActiveAssignment != nil {
		var tank model.Tank
		err := db.Where("id = ?", view.ActiveAssignment.TankID).Take(&tank).Error
		switch {
		case err == nil:
			view.Tank = &TankSummary{ID: tank.ID, Name: tank.Name, Status: tank.Status, CurrentPhase: tank.CurrentPhase}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}

	if err := db.Where("lot_code = ?", lot.LotCode).Order("performed_at, id").Find(&view.PackagingRuns).Error; err != nil {
		return nil, err
	}
	return view, nil
}

// activeAssignment is the first non-completed assignment, or the most recent
// one when all are completed so finished lots still report their last tank.
func activeAssignment(assignments []model.TankAssignment) *model.TankAssignment {
	if len(assignments) == 0 {
		return nil
	}
	for i := range assignments {
		if assignments[i].Status != model.AssignmentStatusCompleted {
			return &assignments[i]
		}
	}
	return &assignments[len(assignments)-1]
}
