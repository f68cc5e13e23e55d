package model

import "time"

// SequenceCounter allocates human-readable numbers inside the caller's
// transaction. Name is e.g. "batch:2026" or "blend:2026".
type SequenceCounter struct {
	TenantID  string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"primaryKey;size:64"`
	Value     int64  `gorm:"not null"`
	UpdatedAt time.Time
}

// TankSync is the outbox row for the secondary tank bookkeeping of a
// packaging transition. It is written with the primary state and completed
// after commit, or later by the reconcile loop.
type TankSync struct {
	ID          int64          `gorm:"primaryKey" json:"id"`
	TenantID    string         `gorm:"size:64;not null;index" json:"-"`
	BatchID     int64          `gorm:"not null;index" json:"batchId"`
	LotIDs      []int64        `gorm:"type:text;serializer:json" json:"lotIds"`
	Phase       Phase          `gorm:"size:16;not null" json:"phase"`
	Status      TankSyncStatus `gorm:"size:16;not null;index" json:"status"`
	Attempts    int            `gorm:"not null" json:"attempts"`
	LastError   string         `gorm:"size:1024" json:"lastError"`
	CompletedAt *time.Time     `json:"completedAt"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// AlertSubscription holds a browser push subscription for a tenant's alerts.
type AlertSubscription struct {
	ID        int64     `gorm:"primaryKey"`
	TenantID  string    `gorm:"size:64;not null;uniqueIndex:idx_alert_subscriptions_tenant_endpoint,priority:1"`
	Endpoint  string    `gorm:"size:512;not null;uniqueIndex:idx_alert_subscriptions_tenant_endpoint,priority:2"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// All lists every model for migrations.
func All() []any {
	return []any{
		&Tank{},
		&Equipment{},
		&TankAssignment{},
		&Recipe{},
		&Batch{},
		&Lot{},
		&LotBatch{},
		&PackagingRun{},
		&BatchTimeline{},
		&InventoryItem{},
		&InventoryLedgerEntry{},
		&SequenceCounter{},
		&TankSync{},
		&AlertSubscription{},
	}
}
