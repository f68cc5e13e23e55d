package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recipe is read-only catalog data; the production core never writes it.
type Recipe struct {
	ID        int64               `gorm:"primaryKey" json:"id"`
	TenantID  string              `gorm:"size:64;not null;index" json:"-"`
	Name      string              `gorm:"size:128;not null" json:"name"`
	Style     string              `gorm:"size:64" json:"style"`
	TargetOG  decimal.NullDecimal `gorm:"type:decimal(6,4)" json:"targetOg"`
	TargetFG  decimal.NullDecimal `gorm:"type:decimal(6,4)" json:"targetFg"`
	TargetABV decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"targetAbv"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Batch is one brewing run.
type Batch struct {
	ID              int64               `gorm:"primaryKey" json:"id"`
	TenantID        string              `gorm:"size:64;not null;uniqueIndex:idx_batches_tenant_number,priority:1" json:"-"`
	BatchNumber     string              `gorm:"size:32;not null;uniqueIndex:idx_batches_tenant_number,priority:2" json:"batchNumber"`
	RecipeID        *int64              `gorm:"index" json:"recipeId"`
	Volume          decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"volume"`
	OriginalGravity decimal.NullDecimal `gorm:"type:decimal(6,4)" json:"originalGravity"`
	FinalGravity    decimal.NullDecimal `gorm:"type:decimal(6,4)" json:"finalGravity"`
	Status          BatchStatus         `gorm:"size:16;not null" json:"status"`
	BrewedAt        *time.Time          `json:"brewedAt"`
	PackagedAt      *time.Time          `json:"packagedAt"`
	CompletedAt     *time.Time          `json:"completedAt"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// Lot is the unit of product identity that moves through the phases.
// Derived properties (blend-ness, batch count, total volume) are computed
// from LotBatch rows on read and never stored.
type Lot struct {
	ID            int64               `gorm:"primaryKey" json:"id"`
	TenantID      string              `gorm:"size:64;not null;uniqueIndex:idx_lots_tenant_code,priority:1" json:"-"`
	LotCode       string              `gorm:"size:48;not null;uniqueIndex:idx_lots_tenant_code,priority:2" json:"lotCode"`
	Name          string              `gorm:"size:128" json:"name"`
	Phase         Phase               `gorm:"size:16;not null" json:"phase"`
	Status        LotStatus           `gorm:"size:16;not null;index" json:"status"`
	PlannedVolume decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"plannedVolume"`
	ActualVolume  decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"actualVolume"`
	IsBlendResult bool                `gorm:"not null" json:"isBlendResult"`
	IsBlendTarget bool                `gorm:"not null" json:"isBlendTarget"`
	ParentLotID   *int64              `gorm:"index" json:"parentLotId"`
	BlendedAt     *time.Time          `json:"blendedAt"`
	Notes         string              `gorm:"size:1024" json:"notes"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// Volume is the actual volume when measured, otherwise the planned one.
func (l Lot) Volume() decimal.Decimal {
	if l.ActualVolume.Valid {
		return l.ActualVolume.Decimal
	}
	return l.PlannedVolume
}

// LotBatch links a batch to a lot with its share of the lot's volume.
type LotBatch struct {
	ID                 int64           `gorm:"primaryKey" json:"id"`
	TenantID           string          `gorm:"size:64;not null;index" json:"-"`
	LotID              int64           `gorm:"not null;uniqueIndex:idx_lot_batches_lot_batch,priority:1" json:"lotId"`
	BatchID            int64           `gorm:"not null;index;uniqueIndex:idx_lot_batches_lot_batch,priority:2" json:"batchId"`
	BatchPercentage    decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"batchPercentage"`
	VolumeContribution decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"volumeContribution"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// PackagingRun is an append-only record of product put into packages.
type PackagingRun struct {
	ID          int64           `gorm:"primaryKey" json:"id"`
	TenantID    string          `gorm:"size:64;not null;index" json:"-"`
	BatchID     int64           `gorm:"not null;index" json:"batchId"`
	LotCode     string          `gorm:"size:48;index" json:"lotCode"`
	PackageType string          `gorm:"size:32;not null" json:"packageType"`
	PackageKind string          `gorm:"size:32;not null" json:"packageKind"`
	PackageSize string          `gorm:"size:32;not null" json:"packageSize"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	TotalVolume decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"totalVolume"`
	PerformedBy string          `gorm:"size:64" json:"performedBy"`
	PerformedAt time.Time       `gorm:"not null" json:"performedAt"`
	Notes       string          `gorm:"size:1024" json:"notes"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// BatchTimeline is the append-only audit trail of a batch.
type BatchTimeline struct {
	ID          int64             `gorm:"primaryKey" json:"id"`
	TenantID    string            `gorm:"size:64;not null;index" json:"-"`
	BatchID     int64             `gorm:"not null;index" json:"batchId"`
	EventType   TimelineEventType `gorm:"size:32;not null" json:"eventType"`
	Title       string            `gorm:"size:256;not null" json:"title"`
	Description string            `gorm:"size:1024" json:"description"`
	Actor       string            `gorm:"size:64" json:"actor"`
	OccurredAt  time.Time         `gorm:"not null" json:"occurredAt"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func (BatchTimeline) TableName() string { return "batch_timeline" }
