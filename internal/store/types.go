package store

import (
	"time"

	"github.com/shopspring/decimal"

	"brewery-production-backend/internal/model"
	"brewery-production-backend/internal/parse"
)

// NewTank registers a vessel.
type NewTank struct {
	Name     string          `json:"name"`
	Kind     string          `json:"kind"`
	Capacity decimal.Decimal `json:"capacity"`
}

// TankView is a tank with its equipment record.
type TankView struct {
	model.Tank
	Equipment *model.Equipment `json:"equipment"`
}

// BrewInput starts a new batch with its direct lot.
type BrewInput struct {
	RecipeID        *int64              `json:"recipeId"`
	Volume          decimal.Decimal     `json:"volume"`
	OriginalGravity decimal.NullDecimal `json:"originalGravity"`
	TankID          *int64              `json:"tankId"`
	Name            string              `json:"name"`
	Notes           string              `json:"notes"`
}

// BrewResult is the batch and lot created at brew start.
type BrewResult struct {
	Batch model.Batch `json:"batch"`
	Lot   model.Lot   `json:"lot"`
}

// SplitPart is one child lot of a split batch.
type SplitPart struct {
	TankID *int64          `json:"tankId"`
	Volume decimal.Decimal `json:"volume"`
}

type SplitResult struct {
	Batch  model.Batch `json:"batch"`
	Parent model.Lot   `json:"parent"`
	Lots   []model.Lot `json:"lots"`
}

// RecipeSummary is the read-only projection of a batch's recipe.
type RecipeSummary struct {
	ID        int64               `json:"id"`
	Name      string              `json:"name"`
	Style     string              `json:"style"`
	TargetOG  decimal.NullDecimal `json:"targetOg"`
	TargetFG  decimal.NullDecimal `json:"targetFg"`
	TargetABV decimal.NullDecimal `json:"targetAbv"`
}

// LotBatchView is a constituent batch of a lot.
type LotBatchView struct {
	model.Batch
	BatchPercentage    decimal.Decimal `json:"batchPercentage"`
	VolumeContribution decimal.Decimal `json:"volumeContribution"`
	Recipe             *RecipeSummary  `json:"recipe"`
}

// TankSummary is the tank an assignment points at.
type TankSummary struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	Status       model.TankStatus `json:"status"`
	CurrentPhase *model.Phase     `json:"currentPhase"`
}

// LotView is a lot with everything derived from its child rows.
type LotView struct {
	model.Lot
	Kind             parse.LotKind        `json:"kind"`
	IsBlend          bool                 `json:"isBlend"`
	BatchCount       int                  `json:"batchCount"`
	TotalVolume      decimal.Decimal      `json:"totalVolume"`
	Batches          []LotBatchView       `json:"batches"`
	ActiveAssignment *model.TankAssignment `json:"activeAssignment"`
	Tank             *TankSummary         `json:"tank"`
	PackagingRuns    []model.PackagingRun `json:"packagingRuns"`
}

// BlendCandidate is a lot offered as a blend source.
type BlendCandidate struct {
	model.Lot
	BatchCount  int             `json:"batchCount"`
	IsBlend     bool            `json:"isBlend"`
	TotalVolume decimal.Decimal `json:"totalVolume"`
	TankID      *int64          `json:"tankId"`
}

// BlendInput selects the blend sources by lot or by batch, never both.
type BlendInput struct {
	LotIDs       []int64 `json:"lotIds"`
	BatchIDs     []int64 `json:"batchIds"`
	Name         string  `json:"name"`
	TargetTankID *int64  `json:"targetTankId"`
	Notes        string  `json:"notes"`
}

type BlendResult struct {
	Batch        model.Batch `json:"batch"`
	Lot          model.Lot   `json:"lot"`
	SourceLotIDs []int64     `json:"sourceLotIds"`
}

// PackagingDetails describes the packages filled, when known.
type PackagingDetails struct {
	Kind     string `json:"kind"`
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

type PackagingInput struct {
	BatchID int64             `json:"batchId"`
	LotID   *int64            `json:"lotId"`
	Details *PackagingDetails `json:"details"`
}

type PackagingResult struct {
	Batch            model.Batch          `json:"batch"`
	BatchesMoved     int                  `json:"blendedBatchesUpdated"`
	AlreadyPackaging bool                 `json:"alreadyPackaging"`
	PackagingRun     *model.PackagingRun  `json:"packagingRun,omitempty"`
	TankSyncStatus   model.TankSyncStatus `json:"tankSyncStatus,omitempty"`
}

// RetryReport summarizes one pass over pending tank syncs.
type RetryReport struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type NewItem struct {
	SKU          string              `json:"sku"`
	Name         string              `json:"name"`
	Unit         string              `json:"unit"`
	ReorderPoint decimal.NullDecimal `json:"reorderPoint"`
	UnitCost     decimal.NullDecimal `json:"unitCost"`
	Supplier     string              `json:"supplier"`
}

// MovementInput carries an unsigned magnitude; the type decides the sign.
type MovementInput struct {
	ItemID   int64                 `json:"itemId"`
	Type     model.LedgerEntryType `json:"type"`
	Quantity decimal.Decimal       `json:"quantity"`
	BatchID  *int64                `json:"batchId"`
	OrderRef string                `json:"orderRef"`
	Notes    string                `json:"notes"`
}

type MovementResult struct {
	EntryID string                     `json:"entryId"`
	Balance decimal.Decimal            `json:"balance"`
	Entry   model.InventoryLedgerEntry `json:"entry"`
}

// Movement is a ledger entry annotated for display.
type Movement struct {
	model.InventoryLedgerEntry
	Direction       string          `json:"direction"`
	Reason          string          `json:"reason"`
	Reference       string          `json:"reference"`
	BalanceAfter    decimal.Decimal `json:"balanceAfter"`
	RawBalanceAfter decimal.Decimal `json:"rawBalanceAfter"`
	BelowZero       bool            `json:"belowZero"`
}

// MovementList is newest-first.
type MovementList struct {
	Item            model.InventoryItem `json:"item"`
	OpeningBalance  decimal.Decimal     `json:"openingBalance"`
	NegativeBalance bool                `json:"negativeBalance"`
	Movements       []Movement          `json:"movements"`
}

// AdjustInput sets an absolute balance. Without Reason or Type the set is
// silent and writes no ledger entry.
type AdjustInput struct {
	ItemID     int64                 `json:"itemId"`
	NewBalance decimal.Decimal       `json:"newBalance"`
	Reason     string                `json:"reason"`
	Type       model.LedgerEntryType `json:"type"`
}

type AdjustResult struct {
	Balance decimal.Decimal             `json:"balance"`
	Entry   *model.InventoryLedgerEntry `json:"entry,omitempty"`
}

// BalanceDrift is a cached balance that disagreed with its ledger.
type BalanceDrift struct {
	ItemID    int64           `json:"itemId"`
	SKU       string          `json:"sku"`
	Cached    decimal.Decimal `json:"cached"`
	LedgerSum decimal.Decimal `json:"ledgerSum"`
	At        time.Time       `json:"at"`
}
