package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"brewery-production-backend/internal/appctx"
	"brewery-production-backend/internal/apperr"
	"brewery-production-backend/internal/metrics"
	"brewery-production-backend/internal/model"
	"brewery-production-backend/internal/notification"
)

const (
	DirectionIn   = "IN"
	DirectionOut  = "OUT"
	DirectionNone = "NONE"
)

// CreateItem registers a stock item with a zero balance.
func (s *gormStore) CreateItem(ctx context.Context, in NewItem) (*model.InventoryItem, error) {
	if _, err := tenant(ctx); err != nil {
		return nil, err
	}
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	if in.SKU == "" || in.Name == "" {
		return nil, apperr.Validation("sku and name are required")
	}
	if in.Unit == "" {
		in.Unit = "unit"
	}
	item := model.InventoryItem{
		SKU:           in.SKU,
		Name:          in.Name,
		Unit:          in.Unit,
		CachedBalance: decimal.Zero,
		ReorderPoint:  in.ReorderPoint,
		UnitCost:      in.UnitCost,
		Supplier:      in.Supplier,
	}
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		var clash int64
		if err := tx.Model(&model.InventoryItem{}).Where("sku = ?", in.SKU).Count(&clash).Error; err != nil {
			return err
		}
		if clash > 0 {
			return apperr.Validation("sku %q already exists", in.SKU)
		}
		return tx.Create(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *gormStore) GetItem(ctx context.Context, id int64) (*model.InventoryItem, error) {
	if _, err := tenant(ctx); err != nil {
		return nil, err
	}
	item, err := findItem(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return item, nil
}

// RecordMovement appends a signed entry and recomputes the cached balance
// from the whole ledger.
func (s *gormStore) RecordMovement(ctx context.Context, in MovementInput) (*MovementResult, error) {
	tenantID, err := tenant(ctx)
	if err != nil {
		return nil, err
	}
	if !in.Quantity.IsPositive() {
		return nil, apperr.Validation("quantity must be a positive magnitude")
	}
	sign := in.Type.Sign()
	if sign == 0 {
		return nil, apperr.Validation("unsupported movement type %q", in.Type)
	}

	entry := model.InventoryLedgerEntry{
		ItemID:   in.ItemID,
		Quantity: in.Quantity.Mul(decimal.NewFromInt(int64(sign))),
		Type:     in.Type,
		BatchID:  in.BatchID,
		OrderRef: in.OrderRef,
		Notes:    in.Notes,
		Actor:    appctx.ActorID(ctx),
	}
	return s.appendEntry(ctx, tenantID, &entry, func(tx *gorm.DB) error {
		if in.BatchID != nil {
			if _, err := findBatch(tx, *in.BatchID); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReverseMovement appends a REVERSAL that cancels an earlier entry.
func (s *gormStore) ReverseMovement(ctx context.Context, entryUUID, notes string) (*MovementResult, error) {
	tenantID, err := tenant(ctx)
	if err != nil {
		return nil, err
	}
	var original model.InventoryLedgerEntry
	if err := s.db.WithContext(ctx).Where("uuid = ?", entryUUID).Take(&original).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrEntryNotFound.WithParams(map[string]any{"entry_id": entryUUID})
		}
		return nil, apperr.Internal(err)
	}
	if original.Type == model.LedgerReversal {
		return nil, apperr.Validation("a reversal cannot be reversed")
	}
	if notes == "" {
		notes = fmt.Sprintf("Reversal of %s", original.UUID)
	}
	entry := model.InventoryLedgerEntry{
		ItemID:     original.ItemID,
		Quantity:   original.Quantity.Neg(),
		Type:       model.LedgerReversal,
		BatchID:    original.BatchID,
		OrderRef:   original.OrderRef,
		Notes:      notes,
		Actor:      appctx.ActorID(ctx),
		ReversesID: &original.ID,
	}
	return s.appendEntry(ctx, tenantID, &entry, func(tx *gorm.DB) error {
		var reversed int64
		if err := tx.Model(&model.InventoryLedgerEntry{}).Where("reverses_id = ?", original.ID).Count(&reversed).Error; err != nil {
			return err
		}
		if reversed > 0 {
			return apperr.ErrAlreadyReversed.WithParams(map[string]any{"entry_id": original.UUID})
		}
		return nil
	})
}

// appendEntry writes one ledger row after check passes and refreshes the
// item's cached balance, then raises stock alerts.
func (s *gormStore) appendEntry(ctx context.Context, tenantID string, entry *model.InventoryLedgerEntry, check func(tx *gorm.DB) error) (*MovementResult, error) {
	now := s.now()
	entry.CreatedAt = now
	var item *model.InventoryItem
	var balance decimal.Decimal
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if item, err = lockItem(tx, entry.ItemID); err != nil {
			return err
		}
		if err := check(tx); err != nil {
			return err
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("append ledger entry for item %d: %w", entry.ItemID, err)
		}
		balance, err = refreshBalance(tx, entry.ItemID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.LedgerMovements.WithLabelValues(string(entry.Type)).Inc()
	item.CachedBalance = balance
	s.dispatch(stockAlerts(tenantID, item))
	return &MovementResult{EntryID: entry.UUID, Balance: balance, Entry: *entry}, nil
}

// lockItem reads the item row FOR UPDATE so writers of one item's ledger
// serialize before summing. SQLite ignores the clause.
func lockItem(tx *gorm.DB, id int64) (*model.InventoryItem, error) {
	return findItem(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// ledgerSum adds the item's entries in decimal arithmetic.
func ledgerSum(tx *gorm.DB, itemID int64) (decimal.Decimal, error) {
	var quantities []decimal.Decimal
	if err := tx.Model(&model.InventoryLedgerEntry{}).Where("item_id = ?", itemID).Pluck("quantity", &quantities).Error; err != nil {
		return decimal.Zero, fmt.Errorf("sum ledger of item %d: %w", itemID, err)
	}
	return decimal.Sum(decimal.Zero, quantities...), nil
}

// refreshBalance sets the cached balance to the full ledger sum.
func refreshBalance(tx *gorm.DB, itemID int64, at time.Time) (decimal.Decimal, error) {
	sum, err := ledgerSum(tx, itemID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := tx.Model(&model.InventoryItem{}).Where("id = ?", itemID).Updates(map[string]any{
		"cached_balance":     sum,
		"balance_updated_at": at,
	}).Error; err != nil {
		return decimal.Zero, fmt.Errorf("update balance of item %d: %w", itemID, err)
	}
	return sum, nil
}

func stockAlerts(tenantID string, item *model.InventoryItem) []notification.Alert {
	switch {
	case item.CachedBalance.IsNegative():
		return []notification.Alert{{
			TenantID: tenantID,
			Kind:     notification.AlertNegativeStock,
			Title:    fmt.Sprintf("%s is below zero", item.Name),
			Body:     fmt.Sprintf("%s (%s) balance is %s %s.", item.Name, item.SKU, item.CachedBalance, item.Unit),
		}}
	case item.ReorderPoint.Valid && item.CachedBalance.LessThanOrEqual(item.ReorderPoint.Decimal):
		return []notification.Alert{{
			TenantID: tenantID,
			Kind:     notification.AlertLowStock,
			Title:    fmt.Sprintf("%s is low", item.Name),
			Body:     fmt.Sprintf("%s (%s) balance %s %s is at or below reorder point %s.", item.Name, item.SKU, item.CachedBalance, item.Unit, item.ReorderPoint.Decimal),
		}}
	default:
		return nil
	}
}

// ListMovements returns the item's entries newest first with a running
// balance. The walk starts from the implied opening balance (cached balance
// minus the ledger sum) and goes oldest to newest. BalanceAfter is clamped at
// zero for display; RawBalanceAfter and NegativeBalance keep the real value.
func (s *gormStore) ListMovements(ctx context.Context, itemID int64) (*MovementList, error) {
	if _, err := tenant(ctx); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	item, err := findItem(db, itemID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	var entries []model.InventoryLedgerEntry
	if err := db.Where("item_id = ?", itemID).Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	batchNumbers := make(map[int64]string)
	var batchIDs []int64
	for _, e := range entries {
		if e.BatchID != nil {
			batchIDs = append(batchIDs, *e.BatchID)
		}
	}
	if len(batchIDs) > 0 {
		var batches []model.Batch
		if err := db.Where("id IN ?", uniqueIDs(batchIDs)).Find(&batches).Error; err != nil {
			return nil, apperr.Internal(err)
		}
		for _, b := range batches {
			batchNumbers[b.ID] = b.BatchNumber
		}
	}

	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Quantity)
	}
	list := &MovementList{
		Item:           *item,
		OpeningBalance: item.CachedBalance.Sub(sum),
		Movements:      make([]Movement, len(entries)),
	}
	running := list.OpeningBalance
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		running = running.Add(e.Quantity)
		m := Movement{
			InventoryLedgerEntry: e,
			Direction:            direction(e.Quantity),
			Reason:               e.Type.Label(),
			Reference:            reference(e, batchNumbers),
			BalanceAfter:         decimal.Max(running, decimal.Zero),
			RawBalanceAfter:      running,
			BelowZero:            running.IsNegative(),
		}
		if m.BelowZero {
			list.NegativeBalance = true
		}
		list.Movements[i] = m
	}
	if item.CachedBalance.IsNegative() {
		list.NegativeBalance = true
	}
	return list, nil
}

func direction(q decimal.Decimal) string {
	switch q.Sign() {
	case 1:
		return DirectionIn
	case -1:
		return DirectionOut
	default:
		return DirectionNone
	}
}

func reference(e model.InventoryLedgerEntry, batchNumbers map[int64]string) string {
	switch {
	case e.OrderRef != "":
		return "Order " + e.OrderRef
	case e.BatchID != nil:
		if n, ok := batchNumbers[*e.BatchID]; ok {
			return "Batch " + n
		}
		return fmt.Sprintf("Batch #%d", *e.BatchID)
	default:
		return e.Notes
	}
}

// AdjustBalanceDirect sets an absolute balance. With a reason or type the
// difference against the ledger sum is appended as a movement so the ledger
// stays authoritative; without either the cached balance is set silently.
func (s *gormStore) AdjustBalanceDirect(ctx context.Context, in AdjustInput) (*AdjustResult, error) {
	tenantID, err := tenant(ctx)
	if err != nil {
		return nil, err
	}
	if in.NewBalance.IsNegative() {
		return nil, apperr.Validation("balance must not be negative")
	}
	if in.Type != "" && in.Type.Sign() == 0 {
		return nil, apperr.Validation("unsupported movement type %q", in.Type)
	}

	now := s.now()
	actor := appctx.ActorID(ctx)
	result := &AdjustResult{}
	var item *model.InventoryItem
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if item, err = lockItem(tx, in.ItemID); err != nil {
			return err
		}
		if in.Reason == "" && in.Type == "" {
			result.Balance = in.NewBalance
			return tx.Model(&model.InventoryItem{}).Where("id = ?", in.ItemID).Updates(map[string]any{
				"cached_balance":     in.NewBalance,
				"balance_updated_at": now,
			}).Error
		}

		sum, err := ledgerSum(tx, in.ItemID)
		if err != nil {
			return err
		}
		diff := in.NewBalance.Sub(sum)
		if !diff.IsZero() {
			typ, err := adjustmentType(in.Type, diff)
			if err != nil {
				return err
			}
			entry := model.InventoryLedgerEntry{
				ItemID:    in.ItemID,
				Quantity:  diff,
				Type:      typ,
				Notes:     in.Reason,
				Actor:     actor,
				CreatedAt: now,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("append adjustment for item %d: %w", in.ItemID, err)
			}
			result.Entry = &entry
		}
		result.Balance, err = refreshBalance(tx, in.ItemID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Entry != nil {
		metrics.LedgerMovements.WithLabelValues(string(result.Entry.Type)).Inc()
	}
	item.CachedBalance = result.Balance
	s.dispatch(stockAlerts(tenantID, item))
	return result, nil
}

// adjustmentType picks the entry type for a signed difference. A caller
// supplied type must point the same way as the difference.
func adjustmentType(requested model.LedgerEntryType, diff decimal.Decimal) (model.LedgerEntryType, error) {
	if requested == "" {
		if diff.IsPositive() {
			return model.LedgerAdjustmentAdd, nil
		}
		return model.LedgerAdjustmentRemove, nil
	}
	if requested.Sign() != diff.Sign() {
		return "", apperr.Validation("type %s cannot record a change of %s", requested, diff).WithParams(map[string]any{
			"type":       requested,
			"difference": diff.String(),
		})
	}
	return requested, nil
}

// ReconcileBalances repairs every cached balance that drifted from its
// ledger sum and reports what it changed.
func (s *gormStore) ReconcileBalances(ctx context.Context) ([]BalanceDrift, error) {
	if _, err := tenant(ctx); err != nil {
		return nil, err
	}
	now := s.now()
	var drifts []BalanceDrift
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		var items []model.InventoryItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Order("id").Find(&items).Error; err != nil {
			return err
		}
		var entries []model.InventoryLedgerEntry
		if err := tx.Select("item_id", "quantity").Find(&entries).Error; err != nil {
			return err
		}
		sums := make(map[int64]decimal.Decimal, len(items))
		for _, e := range entries {
			sums[e.ItemID] = sums[e.ItemID].Add(e.Quantity)
		}
		for _, item := range items {
			sum := sums[item.ID]
			if sum.Equal(item.CachedBalance) {
				continue
			}
			if err := tx.Model(&model.InventoryItem{}).Where("id = ?", item.ID).Updates(map[string]any{
				"cached_balance":     sum,
				"balance_updated_at": now,
			}).Error; err != nil {
				return fmt.Errorf("repair balance of item %d: %w", item.ID, err)
			}
			drifts = append(drifts, BalanceDrift{
				ItemID:    item.ID,
				SKU:       item.SKU,
				Cached:    item.CachedBalance,
				LedgerSum: sum,
				At:        now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(drifts) > 0 {
		metrics.BalanceDrifts.Add(float64(len(drifts)))
		s.logger.WithField("repaired", len(drifts)).Warn("cached balances drifted from the ledger")
	}
	return drifts, nil
}
