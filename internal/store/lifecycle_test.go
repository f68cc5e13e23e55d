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

func TestRegisterTank(t *testing.T) {
	f := newFixture(t)
	view, err := f.store.RegisterTank(f.ctx, NewTank{Name: " FV-1 ", Capacity: dec(1000)})
	require.NoError(t, err)
	assert.Equal(t, "FV-1", view.Name)
	assert.Equal(t, model.TankStatusAvailable, view.Status)
	require.NotNil(t, view.Equipment)
	assert.Equal(t, model.EquipmentStatusAvailable, view.Equipment.Status)

	_, err = f.store.RegisterTank(f.ctx, NewTank{Name: "FV-1", Capacity: dec(10)})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
	_, err = f.store.RegisterTank(f.ctx, NewTank{Name: ""})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	tanks, err := f.store.ListTanks(f.ctx)
	require.NoError(t, err)
	require.Len(t, tanks, 1)

	_, err = f.store.GetTank(f.ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrTankNotFound)
}

func TestStartBrew(t *testing.T) {
	f := newFixture(t)
	fv1 := f.tank("FV-1", 1000)

	res := f.brew(800, &fv1)
	assert.Equal(t, "B2026-0001", res.Batch.BatchNumber)
	assert.Equal(t, model.BatchStatusFermenting, res.Batch.Status)
	assert.Equal(t, "L2026-0001", res.Lot.LotCode)
	assert.Equal(t, model.PhaseFermentation, res.Lot.Phase)
	assert.Equal(t, model.LotStatusActive, res.Lot.Status)

	assignments := f.assignments(res.Lot.ID)
	require.Len(t, assignments, 1)
	assert.Equal(t, model.AssignmentStatusActive, assignments[0].Status)
	assert.Equal(t, model.PhaseFermentation, assignments[0].Phase)

	tank := f.tankRow(fv1)
	assert.Equal(t, model.TankStatusInUse, tank.Status)
	require.NotNil(t, tank.CurrentLotID)
	assert.Equal(t, res.Lot.ID, *tank.CurrentLotID)
	assert.Equal(t, model.EquipmentStatusOperational, f.equipment(fv1).Status)

	timeline, err := f.store.GetTimeline(f.ctx, res.Batch.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, model.EventBrewStarted, timeline[0].EventType)
	assert.Equal(t, "brewer-1", timeline[0].Actor)
}

func TestStartBrew_Rejections(t *testing.T) {
	f := newFixture(t)
	fv1 := f.tank("FV-1", 1000)
	f.brew(500, &fv1)

	testCases := []struct {
		name string
		in   BrewInput
		want error
	}{
		{"occupied tank", BrewInput{Volume: dec(100), TankID: &fv1}, apperr.ErrTankOccupied},
		{"unknown tank", BrewInput{Volume: dec(100), TankID: ptr(int64(999))}, apperr.ErrTankNotFound},
		{"over capacity", BrewInput{Volume: dec(2000), TankID: ptr(f.tank("FV-2", 1000))}, apperr.ErrValidationFailed},
		{"zero volume", BrewInput{Volume: dec(0)}, apperr.ErrValidationFailed},
		{"unknown recipe", BrewInput{Volume: dec(10), RecipeID: ptr(int64(42))}, apperr.ErrRecipeNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.store.StartBrew(f.ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// failed brews leave nothing behind, numbering included
	assert.Equal(t, int64(1), f.count(&model.Batch{}, ""))
	assert.Equal(t, int64(1), f.count(&model.Lot{}, ""))
	next := f.brew(100, nil)
	assert.Equal(t, "B2026-0002", next.Batch.BatchNumber)
}

func TestAdvancePhase(t *testing.T) {
	f := newFixture(t)
	fv1 := f.tank("FV-1", 1000)
	res := f.brew(500, &fv1)

	view, err := f.store.AdvancePhase(f.ctx, res.Lot.ID, model.PhaseConditioning)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseConditioning, view.Phase)
	assert.Equal(t, 1, view.BatchCount)
	assert.False(t, view.IsBlend)
	require.NotNil(t, view.ActiveAssignment)
	assert.Equal(t, model.PhaseConditioning, view.ActiveAssignment.Phase)
	require.NotNil(t, view.Tank)
	assert.Equal(t, "FV-1", view.Tank.Name)
	require.NotNil(t, view.Tank.CurrentPhase)
	assert.Equal(t, model.PhaseConditioning, *view.Tank.CurrentPhase)
	assert.Equal(t, model.BatchStatusConditioning, f.batch(res.Batch.ID).Status)

	t.Run("same phase is a no-op", func(t *testing.T) {
		before := f.count(&model.BatchTimeline{}, "")
		view, err := f.store.AdvancePhase(f.ctx, res.Lot.ID, model.PhaseConditioning)
		require.NoError(t, err)
		assert.Equal(t, model.PhaseConditioning, view.Phase)
		assert.Equal(t, before, f.count(&model.BatchTimeline{}, ""))
	})

	t.Run("skipping a phase is rejected", func(t *testing.T) {
		_, err := f.store.AdvancePhase(f.ctx, res.Lot.ID, model.PhasePackaging)
		require.ErrorIs(t, err, apperr.ErrInvalidPhaseTransition)
		appErr, _ := apperr.As(err)
		assert.Equal(t, model.PhaseConditioning, appErr.Params["current"])
		assert.Equal(t, []string{"CONDITIONING", "BRIGHT"}, appErr.Params["required"])
	})

	t.Run("moving backward is rejected", func(t *testing.T) {
		_, err := f.store.AdvancePhase(f.ctx, res.Lot.ID, model.PhaseFermentation)
		assert.ErrorIs(t, err, apperr.ErrInvalidPhaseTransition)
	})

	t.Run("unknown phase is rejected", func(t *testing.T) {
		_, err := f.store.AdvancePhase(f.ctx, res.Lot.ID, model.Phase("LAGERING"))
		assert.ErrorIs(t, err, apperr.ErrInvalidPhaseTransition)
	})

	t.Run("unknown lot", func(t *testing.T) {
		_, err := f.store.AdvancePhase(f.ctx, 999, model.PhaseBright)
		assert.ErrorIs(t, err, apperr.ErrLotNotFound)
	})

	view, err = f.store.AdvancePhase(f.ctx, res.Lot.ID, model.PhaseBright)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseBright, view.Phase)
	assert.Equal(t, model.BatchStatusReady, f.batch(res.Batch.ID).Status)
}

func TestAdvancePhase_CompletedLotIsFrozen(t *testing.T) {
	f := newFixture(t)
	res := f.brew(500, nil)
	f.advanceTo(res.Lot.ID, model.PhaseConditioning)
	require.NoError(t, f.db.WithContext(f.ctx).Model(&model.Lot{}).Where("id = ?", res.Lot.ID).
		Update("status", model.LotStatusCompleted).Error)

	_, err := f.store.AdvancePhase(f.ctx, res.Lot.ID, model.PhaseBright)
	assert.ErrorIs(t, err, apperr.ErrLotCompleted)

	view, err := f.store.AdvancePhase(f.ctx, res.Lot.ID, model.PhaseConditioning)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseConditioning, view.Phase)
}

func TestAdvancePhase_BatchStatusNeverMovesBack(t *testing.T) {
	f := newFixture(t)
	res := f.brew(500, nil)
	require.NoError(t, f.db.WithContext(f.ctx).Model(&model.Batch{}).Where("id = ?", res.Batch.ID).
		Update("status", model.BatchStatusReady).Error)

	_, err := f.store.AdvancePhase(f.ctx, res.Lot.ID, model.PhaseConditioning)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusReady, f.batch(res.Batch.ID).Status)
}

func TestAdvancePhase_IntoPackagingStartsPackaging(t *testing.T) {
	f := newFixture(t)
	bt1 := f.tank("BT-1", 1000)
	res := f.brew(500, &bt1)
	f.advanceTo(res.Lot.ID, model.PhaseBright)

	view, err := f.store.AdvancePhase(f.ctx, res.Lot.ID, model.PhasePackaging)
	require.NoError(t, err)
	assert.Equal(t, model.PhasePackaging, view.Phase)
	require.NotNil(t, view.Tank)
	require.NotNil(t, view.Tank.CurrentPhase)
	assert.Equal(t, model.PhasePackaging, *view.Tank.CurrentPhase)

	batch := f.batch(res.Batch.ID)
	assert.Equal(t, model.BatchStatusPackaging, batch.Status)
	assert.NotNil(t, batch.PackagedAt)
	assert.Equal(t, int64(1), f.count(&model.BatchTimeline{}, "event_type = ?", model.EventPackagingStarted))
	assert.Equal(t, int64(0), f.count(&model.BatchTimeline{}, "event_type = ? AND description LIKE ?",
		model.EventPhaseAdvanced, "%to PACKAGING"))
	assert.Equal(t, int64(1), f.count(&model.TankSync{}, "status = ?", model.TankSyncDone))

	t.Run("a later packaging call is a no-op", func(t *testing.T) {
		out, err := f.store.StartPackaging(f.ctx, PackagingInput{BatchID: res.Batch.ID})
		require.NoError(t, err)
		assert.True(t, out.AlreadyPackaging)
		assert.Equal(t, int64(1), f.count(&model.BatchTimeline{}, "event_type = ?", model.EventPackagingStarted))
	})

	t.Run("advancing again is a no-op", func(t *testing.T) {
		before := f.count(&model.BatchTimeline{}, "")
		_, err := f.store.AdvancePhase(f.ctx, res.Lot.ID, model.PhasePackaging)
		require.NoError(t, err)
		assert.Equal(t, before, f.count(&model.BatchTimeline{}, ""))
		assert.Equal(t, int64(1), f.count(&model.TankSync{}, ""))
	})
}

func TestGetLotView_ActiveAssignmentFallsBackToLast(t *testing.T) {
	f := newFixture(t)
	fv1 := f.tank("FV-1", 1000)
	bt1 := f.tank("BT-1", 1000)
	res := f.brew(500, &fv1)

	view, err := f.store.TransferLot(f.ctx, res.Lot.ID, bt1)
	require.NoError(t, err)
	require.NotNil(t, view.ActiveAssignment)
	assert.Equal(t, bt1, view.ActiveAssignment.TankID)
	assert.Equal(t, model.AssignmentStatusActive, view.ActiveAssignment.Status)

	f.advanceTo(res.Lot.ID, model.PhasePackaging)
	view, err = f.store.CompleteLot(f.ctx, res.Lot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LotStatusCompleted, view.Status)
	require.NotNil(t, view.ActiveAssignment)
	assert.Equal(t, bt1, view.ActiveAssignment.TankID)
	assert.Equal(t, model.AssignmentStatusCompleted, view.ActiveAssignment.Status)
	assert.Equal(t, parse.LotKindDirect, view.Kind)
	assert.True(t, view.TotalVolume.Equal(dec(500)))
}

func TestTransferLot(t *testing.T) {
	f := newFixture(t)
	fv1 := f.tank("FV-1", 1000)
	bt1 := f.tank("BT-1", 1000)
	res := f.brew(500, &fv1)
	f.advanceTo(res.Lot.ID, model.PhaseConditioning)
	f.sink.reset()

	_, err := f.store.TransferLot(f.ctx, res.Lot.ID, bt1)
	require.NoError(t, err)

	old := f.tankRow(fv1)
	assert.Equal(t, model.TankStatusAvailable, old.Status)
	assert.Nil(t, old.CurrentLotID)
	assert.Nil(t, old.CurrentPhase)
	assert.Equal(t, model.EquipmentStatusNeedsCIP, f.equipment(fv1).Status)
	assert.Equal(t, []notification.AlertKind{notification.AlertTankNeedsCIP}, f.sink.kinds())

	moved := f.tankRow(bt1)
	assert.Equal(t, model.TankStatusInUse, moved.Status)
	require.NotNil(t, moved.CurrentPhase)
	assert.Equal(t, model.PhaseConditioning, *moved.CurrentPhase)

	assignments := f.assignments(res.Lot.ID)
	require.Len(t, assignments, 2)
	assert.Equal(t, model.AssignmentStatusCompleted, assignments[0].Status)
	assert.NotNil(t, assignments[0].ActualEnd)
	assert.Equal(t, model.AssignmentStatusActive, assignments[1].Status)
	f.assertTankExclusivity()

	t.Run("same tank is a no-op", func(t *testing.T) {
		_, err := f.store.TransferLot(f.ctx, res.Lot.ID, bt1)
		require.NoError(t, err)
		assert.Len(t, f.assignments(res.Lot.ID), 2)
	})

	t.Run("occupied tank is refused", func(t *testing.T) {
		other := f.brew(100, &fv1)
		_, err := f.store.TransferLot(f.ctx, other.Lot.ID, bt1)
		assert.ErrorIs(t, err, apperr.ErrTankOccupied)
		f.assertTankExclusivity()
	})
}

func TestCompleteCIP(t *testing.T) {
	f := newFixture(t)
	fv1 := f.tank("FV-1", 1000)
	bt1 := f.tank("BT-1", 1000)
	res := f.brew(500, &fv1)

	_, err := f.store.CompleteCIP(f.ctx, fv1)
	assert.ErrorIs(t, err, apperr.ErrTankOccupied)

	_, err = f.store.TransferLot(f.ctx, res.Lot.ID, bt1)
	require.NoError(t, err)
	require.Equal(t, model.EquipmentStatusNeedsCIP, f.equipment(fv1).Status)

	view, err := f.store.CompleteCIP(f.ctx, fv1)
	require.NoError(t, err)
	require.NotNil(t, view.Equipment)
	assert.Equal(t, model.EquipmentStatusAvailable, view.Equipment.Status)
	assert.NotNil(t, view.Equipment.LastCIPAt)
}

func TestSplitBatch(t *testing.T) {
	f := newFixture(t)
	fv1 := f.tank("FV-1", 1000)
	bt1 := f.tank("BT-1", 600)
	bt2 := f.tank("BT-2", 600)
	res := f.brew(1000, &fv1)
	f.advanceTo(res.Lot.ID, model.PhaseConditioning)

	split, err := f.store.SplitBatch(f.ctx, res.Batch.ID, []SplitPart{
		{TankID: &bt1, Volume: dec(600)},
		{TankID: &bt2, Volume: dec(400)},
	})
	require.NoError(t, err)
	require.Len(t, split.Lots, 2)
	assert.Equal(t, "L2026-0001-A", split.Lots[0].LotCode)
	assert.Equal(t, "L2026-0001-B", split.Lots[1].LotCode)
	assert.Equal(t, model.PhaseConditioning, split.Lots[0].Phase)
	assert.Equal(t, model.LotStatusCompleted, f.lot(res.Lot.ID).Status)

	view, err := f.store.GetLotView(f.ctx, split.Lots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, parse.LotKindSplit, view.Kind)
	require.Len(t, view.Batches, 1)
	assert.True(t, view.Batches[0].BatchPercentage.Equal(dec(60)))
	assert.True(t, view.TotalVolume.Equal(dec(600)))
	require.NotNil(t, view.Tank)
	assert.Equal(t, bt1, view.Tank.ID)

	assert.Equal(t, model.TankStatusAvailable, f.tankRow(fv1).Status)
	assert.Equal(t, model.EquipmentStatusNeedsCIP, f.equipment(fv1).Status)
	f.assertTankExclusivity()

	t.Run("split lots cannot be split again", func(t *testing.T) {
		_, err := f.store.SplitBatch(f.ctx, res.Batch.ID, []SplitPart{{Volume: dec(100)}, {Volume: dec(100)}})
		assert.ErrorIs(t, err, apperr.ErrValidationFailed)
	})

	t.Run("needs two parts", func(t *testing.T) {
		_, err := f.store.SplitBatch(f.ctx, res.Batch.ID, []SplitPart{{Volume: dec(100)}})
		assert.ErrorIs(t, err, apperr.ErrValidationFailed)
	})

	t.Run("parts cannot exceed the batch", func(t *testing.T) {
		other := f.brew(100, nil)
		_, err := f.store.SplitBatch(f.ctx, other.Batch.ID, []SplitPart{{Volume: dec(60)}, {Volume: dec(60)}})
		assert.ErrorIs(t, err, apperr.ErrValidationFailed)
		assert.Equal(t, model.LotStatusActive, f.lot(other.Lot.ID).Status)
	})
}

func TestCompleteLot(t *testing.T) {
	f := newFixture(t)
	fv1 := f.tank("FV-1", 1000)
	res := f.brew(500, &fv1)

	_, err := f.store.CompleteLot(f.ctx, res.Lot.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidPhaseTransition)

	f.advanceTo(res.Lot.ID, model.PhasePackaging)
	view, err := f.store.CompleteLot(f.ctx, res.Lot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LotStatusCompleted, view.Status)

	batch := f.batch(res.Batch.ID)
	assert.Equal(t, model.BatchStatusCompleted, batch.Status)
	assert.NotNil(t, batch.CompletedAt)
	assert.Equal(t, model.TankStatusAvailable, f.tankRow(fv1).Status)
	assert.Equal(t, model.EquipmentStatusNeedsCIP, f.equipment(fv1).Status)

	// completing again changes nothing
	before := f.count(&model.BatchTimeline{}, "")
	_, err = f.store.CompleteLot(f.ctx, res.Lot.ID)
	require.NoError(t, err)
	assert.Equal(t, before, f.count(&model.BatchTimeline{}, ""))

	_, err = f.store.AdvancePhase(f.ctx, res.Lot.ID, model.PhaseBright)
	assert.ErrorIs(t, err, apperr.ErrLotCompleted)
}

func TestCompleteLot_KeepsBatchOfSiblingSplitLot(t *testing.T) {
	f := newFixture(t)
	res := f.brew(1000, nil)
	f.advanceTo(res.Lot.ID, model.PhaseConditioning)
	split, err := f.store.SplitBatch(f.ctx, res.Batch.ID, []SplitPart{{Volume: dec(500)}, {Volume: dec(500)}})
	require.NoError(t, err)

	f.advanceTo(split.Lots[0].ID, model.PhasePackaging)
	_, err = f.store.CompleteLot(f.ctx, split.Lots[0].ID)
	require.NoError(t, err)

	assert.NotEqual(t, model.BatchStatusCompleted, f.batch(res.Batch.ID).Status)
	assert.Equal(t, model.LotStatusActive, f.lot(split.Lots[1].ID).Status)
}

func TestGetTimeline_UnknownBatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.GetTimeline(f.ctx, 404)
	assert.ErrorIs(t, err, apperr.ErrBatchNotFound)
}
