package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tank is a vessel that holds at most one lot at a time.
type Tank struct {
	ID           int64           `gorm:"primaryKey" json:"id"`
	TenantID     string          `gorm:"size:64;not null;uniqueIndex:idx_tanks_tenant_name,priority:1" json:"-"`
	Name         string          `gorm:"size:128;not null;uniqueIndex:idx_tanks_tenant_name,priority:2" json:"name"`
	Kind         string          `gorm:"size:32" json:"kind"`
	Capacity     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"capacity"`
	Status       TankStatus      `gorm:"size:16;not null" json:"status"`
	CurrentLotID *int64          `gorm:"index" json:"currentLotId"`
	CurrentPhase *Phase          `gorm:"size:16" json:"currentPhase"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Equipment is the maintenance record of a tank. It is flagged NEEDS_CIP
// whenever the tank is vacated.
type Equipment struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	TenantID       string          `gorm:"size:64;not null;index" json:"-"`
	TankID         int64           `gorm:"not null;uniqueIndex" json:"tankId"`
	Status         EquipmentStatus `gorm:"size:16;not null" json:"status"`
	CurrentBatchID *int64          `json:"currentBatchId"`
	LastCIPAt      *time.Time      `gorm:"column:last_cip_at" json:"lastCipAt"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (Equipment) TableName() string { return "equipment" }

// TankAssignment is a time-bounded occupancy of a tank by a lot.
type TankAssignment struct {
	ID            int64               `gorm:"primaryKey" json:"id"`
	TenantID      string              `gorm:"size:64;not null;index" json:"-"`
	LotID         int64               `gorm:"not null;index" json:"lotId"`
	TankID        int64               `gorm:"not null;index" json:"tankId"`
	Phase         Phase               `gorm:"size:16;not null" json:"phase"`
	Status        AssignmentStatus    `gorm:"size:16;not null;index" json:"status"`
	ActualStart   *time.Time          `json:"actualStart"`
	ActualEnd     *time.Time          `json:"actualEnd"`
	PlannedVolume decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"plannedVolume"`
	ActualVolume  decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"actualVolume"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}
