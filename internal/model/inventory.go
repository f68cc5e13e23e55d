package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryItem is a stock-keeping unit. CachedBalance is derived from the
// ledger and must equal the sum of its entries whenever no write is in flight.
type InventoryItem struct {
	ID               int64               `gorm:"primaryKey" json:"id"`
	TenantID         string              `gorm:"size:64;not null;uniqueIndex:idx_inventory_items_tenant_sku,priority:1" json:"-"`
	SKU              string              `gorm:"column:sku;size:64;not null;uniqueIndex:idx_inventory_items_tenant_sku,priority:2" json:"sku"`
	Name             string              `gorm:"size:128;not null" json:"name"`
	Unit             string              `gorm:"size:16;not null" json:"unit"`
	CachedBalance    decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"cachedBalance"`
	ReorderPoint     decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"reorderPoint"`
	UnitCost         decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"unitCost"`
	Supplier         string              `gorm:"size:128" json:"supplier"`
	BalanceUpdatedAt *time.Time          `json:"balanceUpdatedAt"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// InventoryLedgerEntry is one immutable signed movement. Rows are never
// updated or deleted; corrections are new REVERSAL or ADJUSTMENT rows.
type InventoryLedgerEntry struct {
	ID         int64           `gorm:"primaryKey" json:"-"`
	UUID       string          `gorm:"column:uuid;size:36;not null;uniqueIndex" json:"id"`
	TenantID   string          `gorm:"size:64;not null;index" json:"-"`
	ItemID     int64           `gorm:"not null;index" json:"itemId"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Type       LedgerEntryType `gorm:"size:24;not null" json:"type"`
	BatchID    *int64          `gorm:"index" json:"batchId"`
	OrderRef   string          `gorm:"size:64" json:"orderRef"`
	Notes      string          `gorm:"size:1024" json:"notes"`
	Actor      string          `gorm:"size:64" json:"actor"`
	ReversesID *int64          `gorm:"index" json:"-"`
	CreatedAt  time.Time       `gorm:"not null" json:"createdAt"`
}

func (e *InventoryLedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.UUID == "" {
		e.UUID = uuid.NewString()
	}
	return nil
}
