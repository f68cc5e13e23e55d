package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brewery-production-backend/internal/apperr"
	"brewery-production-backend/internal/model"
	"brewery-production-backend/internal/notification"
	"brewery-production-backend/internal/parse"
)

func TestCreateBlend(t *testing.T) {
	f := newFixture(t)
	recipe := model.Recipe{Name: "House Pale", Style: "APA"}
	require.NoError(t, f.db.WithContext(f.ctx).Create(&recipe).Error)

	fv1 := f.tank("FV-1", 1000)
	fv2 := f.tank("FV-2", 1000)
	bt1 := f.tank("BT-1", 1000)

	first, err := f.store.StartBrew(f.ctx, BrewInput{Volume: dec(500), TankID: &fv1, RecipeID: &recipe.ID})
	require.NoError(t, err)
	second := f.brew(300, &fv2)
	f.advanceTo(first.Lot.ID, model.PhaseConditioning)
	f.advanceTo(second.Lot.ID, model.PhaseBright)
	f.sink.reset()

	res, err := f.store.CreateBlend(f.ctx, BlendInput{
		LotIDs:       []int64{first.Lot.ID, second.Lot.ID},
		Name:         "Winter Blend",
		TargetTankID: &bt1,
	})
	require.NoError(t, err)

	assert.Equal(t, "BLEND-2026-001", res.Lot.LotCode)
	assert.Equal(t, "Winter Blend", res.Lot.Name)
	assert.Equal(t, "B2026-0003", res.Batch.BatchNumber)
	assert.Equal(t, model.BatchStatusConditioning, res.Batch.Status)
	assert.True(t, res.Batch.Volume.Equal(dec(800)))
	require.NotNil(t, res.Batch.RecipeID)
	assert.Equal(t, recipe.ID, *res.Batch.RecipeID)
	assert.Equal(t, []int64{first.Lot.ID, second.Lot.ID}, res.SourceLotIDs)

	for _, id := range []int64{first.Lot.ID, second.Lot.ID} {
		src := f.lot(id)
		assert.Equal(t, model.LotStatusCompleted, src.Status)
		require.NotNil(t, src.ParentLotID)
		assert.Equal(t, res.Lot.ID, *src.ParentLotID)
		for _, a := range f.assignments(id) {
			assert.Equal(t, model.AssignmentStatusCompleted, a.Status)
		}
	}
	for _, id := range []int64{fv1, fv2} {
		assert.Equal(t, model.TankStatusAvailable, f.tankRow(id).Status)
		assert.Equal(t, model.EquipmentStatusNeedsCIP, f.equipment(id).Status)
	}
	assert.ElementsMatch(t, []notification.AlertKind{notification.AlertTankNeedsCIP, notification.AlertTankNeedsCIP}, f.sink.kinds())

	view, err := f.store.GetLotView(f.ctx, res.Lot.ID)
	require.NoError(t, err)
	assert.Equal(t, parse.LotKindBlend, view.Kind)
	assert.Equal(t, model.PhaseConditioning, view.Phase)
	assert.Equal(t, model.LotStatusActive, view.Status)
	assert.True(t, view.IsBlendResult)
	assert.True(t, view.IsBlendTarget)
	assert.NotNil(t, view.BlendedAt)
	assert.Equal(t, 1, view.BatchCount)
	assert.False(t, view.IsBlend)
	assert.True(t, view.TotalVolume.Equal(dec(800)))
	require.Len(t, view.Batches, 1)
	require.NotNil(t, view.Batches[0].Recipe)
	assert.Equal(t, "House Pale", view.Batches[0].Recipe.Name)
	require.NotNil(t, view.Tank)
	assert.Equal(t, bt1, view.Tank.ID)
	f.assertTankExclusivity()

	timeline, err := f.store.GetTimeline(f.ctx, res.Batch.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, model.EventBlendCreated, timeline[0].EventType)
}

func TestCreateBlend_NameDefaultsToCode(t *testing.T) {
	f := newFixture(t)
	a := f.brew(100, nil)
	b := f.brew(100, nil)

	res, err := f.store.CreateBlend(f.ctx, BlendInput{LotIDs: []int64{a.Lot.ID, b.Lot.ID}})
	require.NoError(t, err)
	assert.Equal(t, res.Lot.LotCode, res.Lot.Name)
	// sources in fermentation are accepted
	assert.Equal(t, model.LotStatusCompleted, f.lot(a.Lot.ID).Status)
}

func TestCreateBlend_InsufficientSources(t *testing.T) {
	f := newFixture(t)
	a := f.brew(100, nil)
	f.advanceTo(a.Lot.ID, model.PhaseConditioning)

	testCases := []struct {
		name     string
		lotIDs   []int64
		resolved int
	}{
		{"single lot", []int64{a.Lot.ID}, 1},
		{"duplicate ids", []int64{a.Lot.ID, a.Lot.ID}, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.store.CreateBlend(f.ctx, BlendInput{LotIDs: tc.lotIDs})
			require.ErrorIs(t, err, apperr.ErrInsufficientSources)
			appErr, _ := apperr.As(err)
			assert.Equal(t, tc.resolved, appErr.Params["resolved"])
			assert.Equal(t, minBlendSources, appErr.Params["required"])
		})
	}

	assert.Equal(t, int64(1), f.count(&model.Lot{}, ""))
	assert.Equal(t, int64(1), f.count(&model.Batch{}, ""))
	assert.Equal(t, model.LotStatusActive, f.lot(a.Lot.ID).Status)
	assert.Equal(t, int64(0), f.count(&model.SequenceCounter{}, "name LIKE ?", "blend:%"))
}

func TestCreateBlend_BySourceBatches(t *testing.T) {
	f := newFixture(t)
	a := f.brew(200, nil)
	b := f.brew(300, nil)
	f.advanceTo(a.Lot.ID, model.PhaseConditioning)
	f.advanceTo(b.Lot.ID, model.PhaseConditioning)

	res, err := f.store.CreateBlend(f.ctx, BlendInput{BatchIDs: []int64{b.Batch.ID, a.Batch.ID}})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.Lot.ID, a.Lot.ID}, res.SourceLotIDs)
	assert.True(t, res.Lot.PlannedVolume.Equal(dec(500)))

	t.Run("batches without active lots resolve to nothing", func(t *testing.T) {
		_, err := f.store.CreateBlend(f.ctx, BlendInput{BatchIDs: []int64{a.Batch.ID, b.Batch.ID}})
		require.ErrorIs(t, err, apperr.ErrInsufficientSources)
		appErr, _ := apperr.As(err)
		assert.Equal(t, 0, appErr.Params["resolved"])
	})

	t.Run("unknown batch", func(t *testing.T) {
		_, err := f.store.CreateBlend(f.ctx, BlendInput{BatchIDs: []int64{a.Batch.ID, 999}})
		assert.ErrorIs(t, err, apperr.ErrBatchNotFound)
	})
}

func TestCreateBlend_Rejections(t *testing.T) {
	f := newFixture(t)
	a := f.brew(100, nil)
	b := f.brew(100, nil)
	c := f.brew(100, nil)
	_, err := f.store.CreateBlend(f.ctx, BlendInput{LotIDs: []int64{b.Lot.ID, c.Lot.ID}})
	require.NoError(t, err)

	testCases := []struct {
		name string
		in   BlendInput
		want error
	}{
		{"no selector", BlendInput{}, apperr.ErrValidationFailed},
		{"both selectors", BlendInput{LotIDs: []int64{a.Lot.ID}, BatchIDs: []int64{a.Batch.ID}}, apperr.ErrValidationFailed},
		{"unknown lot", BlendInput{LotIDs: []int64{a.Lot.ID, 999}}, apperr.ErrLotNotFound},
		{"completed source", BlendInput{LotIDs: []int64{a.Lot.ID, b.Lot.ID}}, apperr.ErrLotCompleted},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.store.CreateBlend(f.ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, model.LotStatusActive, f.lot(a.Lot.ID).Status)
}

func TestCreateBlend_OccupiedTargetRollsBack(t *testing.T) {
	f := newFixture(t)
	fv1 := f.tank("FV-1", 1000)
	bt1 := f.tank("BT-1", 1000)
	a := f.brew(100, &fv1)
	b := f.brew(100, nil)
	f.brew(100, &bt1)

	_, err := f.store.CreateBlend(f.ctx, BlendInput{LotIDs: []int64{a.Lot.ID, b.Lot.ID}, TargetTankID: &bt1})
	require.ErrorIs(t, err, apperr.ErrTankOccupied)

	assert.Equal(t, model.LotStatusActive, f.lot(a.Lot.ID).Status)
	assert.Equal(t, model.LotStatusActive, f.lot(b.Lot.ID).Status)
	assert.Equal(t, model.TankStatusInUse, f.tankRow(fv1).Status)
	assert.Equal(t, model.EquipmentStatusOperational, f.equipment(fv1).Status)
	assert.Empty(t, f.sink.kinds())

	res, err := f.store.CreateBlend(f.ctx, BlendInput{LotIDs: []int64{a.Lot.ID, b.Lot.ID}})
	require.NoError(t, err)
	assert.Equal(t, "BLEND-2026-001", res.Lot.LotCode)
	assert.Equal(t, "B2026-0004", res.Batch.BatchNumber)
}

func TestListBlendCandidates(t *testing.T) {
	f := newFixture(t)
	fv1 := f.tank("FV-1", 1000)
	fermenting := f.brew(100, nil)
	conditioning := f.brew(200, &fv1)
	bright := f.brew(300, nil)
	packaging := f.brew(400, nil)
	f.advanceTo(conditioning.Lot.ID, model.PhaseConditioning)
	f.advanceTo(bright.Lot.ID, model.PhaseBright)
	f.advanceTo(packaging.Lot.ID, model.PhasePackaging)

	candidates, err := f.store.ListBlendCandidates(f.ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, conditioning.Lot.ID, candidates[0].ID)
	assert.Equal(t, 1, candidates[0].BatchCount)
	assert.False(t, candidates[0].IsBlend)
	assert.True(t, candidates[0].TotalVolume.Equal(dec(200)))
	require.NotNil(t, candidates[0].TankID)
	assert.Equal(t, fv1, *candidates[0].TankID)
	assert.Equal(t, bright.Lot.ID, candidates[1].ID)
	assert.Nil(t, candidates[1].TankID)

	for _, c := range candidates {
		assert.NotEqual(t, fermenting.Lot.ID, c.ID)
	}
}
