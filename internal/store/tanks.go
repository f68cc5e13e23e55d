package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"brewery-production-backend/internal/apperr"
	"brewery-production-backend/internal/model"
	"brewery-production-backend/internal/notification"
)

// RegisterTank creates an available tank with its equipment record.
func (s *gormStore) RegisterTank(ctx context.Context, in NewTank) (*TankView, error) {
	if _, err := tenant(ctx); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperr.Validation("tank name is required")
	}
	if in.Capacity.IsNegative() {
		return nil, apperr.Validation("tank capacity must not be negative")
	}

	var view TankView
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		var clash int64
		if err := tx.Model(&model.Tank{}).Where("name = ?", in.Name).Count(&clash).Error; err != nil {
			return err
		}
		if clash > 0 {
			return apperr.Validation("tank %q already exists", in.Name)
		}
		tank := model.Tank{Name: in.Name, Kind: in.Kind, Capacity: in.Capacity, Status: model.TankStatusAvailable}
		if err := tx.Create(&tank).Error; err != nil {
			return fmt.Errorf("create tank: %w", err)
		}
		equipment := model.Equipment{TankID: tank.ID, Status: model.EquipmentStatusAvailable}
		if err := tx.Create(&equipment).Error; err != nil {
			return fmt.Errorf("create equipment for tank %d: %w", tank.ID, err)
		}
		view = TankView{Tank: tank, Equipment: &equipment}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *gormStore) ListTanks(ctx context.Context) ([]TankView, error) {
	if _, err := tenant(ctx); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	var tanks []model.Tank
	if err := db.Order("name").Find(&tanks).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	var equipment []model.Equipment
	if err := db.Find(&equipment).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	byTank := make(map[int64]model.Equipment, len(equipment))
	for _, e := range equipment {
		byTank[e.TankID] = e
	}
	views := make([]TankView, 0, len(tanks))
	for _, t := range tanks {
		v := TankView{Tank: t}
		if e, ok := byTank[t.ID]; ok {
			v.Equipment = &e
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *gormStore) GetTank(ctx context.Context, id int64) (*TankView, error) {
	if _, err := tenant(ctx); err != nil {
		return nil, err
	}
	view, err := tankView(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return view, nil
}

// CompleteCIP records a cleaning and makes the equipment available again.
func (s *gormStore) CompleteCIP(ctx context.Context, id int64) (*TankView, error) {
	if _, err := tenant(ctx); err != nil {
		return nil, err
	}
	now := s.now()
	var view *TankView
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		tank, err := findTank(tx, id)
		if err != nil {
			return err
		}
		if tank.CurrentLotID != nil {
			return apperr.ErrTankOccupied.WithParams(map[string]any{
				"tank_id": id,
				"lot_id":  *tank.CurrentLotID,
			})
		}
		if err := tx.Model(&model.Equipment{}).Where("tank_id = ?", id).Updates(map[string]any{
			"status":           model.EquipmentStatusAvailable,
			"current_batch_id": nil,
			"last_cip_at":      now,
		}).Error; err != nil {
			return fmt.Errorf("complete cip for tank %d: %w", id, err)
		}
		view, err = tankView(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func tankView(tx *gorm.DB, id int64) (*TankView, error) {
	tank, err := findTank(tx, id)
	if err != nil {
		return nil, err
	}
	view := &TankView{Tank: *tank}
	var equipment model.Equipment
	err = tx.Where("tank_id = ?", id).Take(&equipment).Error
	switch {
	case err == nil:
		view.Equipment = &equipment
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return view, nil
}

// ensureTankFree enforces at most one PLANNED/ACTIVE assignment per tank.
func ensureTankFree(tx *gorm.DB, tankID int64) error {
	var open int64
	if err := tx.Model(&model.TankAssignment{}).
		Where("tank_id = ? AND status IN ?", tankID, model.OpenAssignmentStatuses).
		Count(&open).Error; err != nil {
		return err
	}
	if open > 0 {
		return apperr.ErrTankOccupied.WithParams(map[string]any{"tank_id": tankID})
	}
	return nil
}

// occupyTank creates the ACTIVE assignment of a lot on a free tank and marks
// the tank in use and its equipment operational.
func occupyTank(tx *gorm.DB, tankID int64, lot *model.Lot, batchID int64, volume decimal.Decimal, at time.Time) (*model.TankAssignment, error) {
	tank, err := findTank(tx, tankID)
	if err != nil {
		return nil, err
	}
	if tank.Status == model.TankStatusMaintenance {
		return nil, apperr.ErrTankUnavailable.WithParams(map[string]any{"tank_id": tankID})
	}
	var equipment model.Equipment
	err = tx.Where("tank_id = ?", tankID).Take(&equipment).Error
	switch {
	case err == nil:
		if equipment.Status == model.EquipmentStatusMaintenance {
			return nil, apperr.ErrTankUnavailable.WithParams(map[string]any{"tank_id": tankID})
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		equipment = model.Equipment{TankID: tankID, Status: model.EquipmentStatusAvailable}
		if err := tx.Create(&equipment).Error; err != nil {
			return nil, fmt.Errorf("create equipment for tank %d: %w", tankID, err)
		}
	default:
		return nil, err
	}
	if tank.Capacity.IsPositive() && volume.GreaterThan(tank.Capacity) {
		return nil, apperr.Validation("volume %s exceeds capacity %s of tank %s", volume, tank.Capacity, tank.Name)
	}
	if err := ensureTankFree(tx, tankID); err != nil {
		return nil, err
	}

	assignment := model.TankAssignment{
		LotID:         lot.ID,
		TankID:        tankID,
		Phase:         lot.Phase,
		Status:        model.AssignmentStatusActive,
		ActualStart:   &at,
		PlannedVolume: volume,
	}
	if err := tx.Create(&assignment).Error; err != nil {
		return nil, fmt.Errorf("create assignment on tank %d: %w", tankID, err)
	}
	if err := tx.Model(&model.Tank{}).Where("id = ?", tankID).Updates(map[string]any{
		"status":         model.TankStatusInUse,
		"current_lot_id": lot.ID,
		"current_phase":  lot.Phase,
	}).Error; err != nil {
		return nil, fmt.Errorf("occupy tank %d: %w", tankID, err)
	}
	if err := tx.Model(&model.Equipment{}).Where("tank_id = ?", tankID).Updates(map[string]any{
		"status":           model.EquipmentStatusOperational,
		"current_batch_id": batchID,
	}).Error; err != nil {
		return nil, fmt.Errorf("mark equipment of tank %d operational: %w", tankID, err)
	}
	return &assignment, nil
}

// endAssignments completes every open assignment of the lots and returns the
// tanks they held, together with tanks still pointing at those lots.
func endAssignments(tx *gorm.DB, lotIDs []int64, at time.Time) ([]int64, error) {
	if len(lotIDs) == 0 {
		return nil, nil
	}
	var held []int64
	if err := tx.Model(&model.TankAssignment{}).
		Where("lot_id IN ? AND status IN ?", lotIDs, model.OpenAssignmentStatuses).
		Pluck("tank_id", &held).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&model.TankAssignment{}).
		Where("lot_id IN ? AND status IN ?", lotIDs, model.OpenAssignmentStatuses).
		Updates(map[string]any{
			"status":     model.AssignmentStatusCompleted,
			"actual_end": at,
		}).Error; err != nil {
		return nil, fmt.Errorf("end assignments of lots %v: %w", lotIDs, err)
	}
	var pointing []int64
	if err := tx.Model(&model.Tank{}).Where("current_lot_id IN ?", lotIDs).Pluck("id", &pointing).Error; err != nil {
		return nil, err
	}
	return uniqueIDs(append(held, pointing...)), nil
}

// releaseTanks vacates the tanks and flags their equipment for cleaning.
// The two updates are independent and idempotent.
func releaseTanks(tx *gorm.DB, tankIDs []int64) ([]model.Tank, error) {
	if len(tankIDs) == 0 {
		return nil, nil
	}
	if err := tx.Model(&model.Tank{}).Where("id IN ?", tankIDs).Updates(map[string]any{
		"status":         model.TankStatusAvailable,
		"current_lot_id": nil,
		"current_phase":  nil,
	}).Error; err != nil {
		return nil, fmt.Errorf("release tanks %v: %w", tankIDs, err)
	}
	if err := tx.Model(&model.Equipment{}).Where("tank_id IN ?", tankIDs).Updates(map[string]any{
		"status":           model.EquipmentStatusNeedsCIP,
		"current_batch_id": nil,
	}).Error; err != nil {
		return nil, fmt.Errorf("flag tanks %v for cip: %w", tankIDs, err)
	}
	var tanks []model.Tank
	if err := tx.Where("id IN ?", tankIDs).Order("id").Find(&tanks).Error; err != nil {
		return nil, err
	}
	return tanks, nil
}

func cipAlerts(tenantID string, tanks []model.Tank, skip map[int64]bool) []notification.Alert {
	var alerts []notification.Alert
	for _, t := range tanks {
		if skip[t.ID] {
			continue
		}
		alerts = append(alerts, notification.Alert{
			TenantID: tenantID,
			Kind:     notification.AlertTankNeedsCIP,
			Title:    fmt.Sprintf("%s needs cleaning", t.Name),
			Body:     fmt.Sprintf("Tank %s was vacated and must be cleaned before reuse.", t.Name),
		})
	}
	return alerts
}
