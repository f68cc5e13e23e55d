package model

// Phase is a lot's position in the production sequence.
type Phase string

const (
	PhaseFermentation Phase = "FERMENTATION"
	PhaseConditioning Phase = "CONDITIONING"
	PhaseBright       Phase = "BRIGHT"
	PhasePackaging    Phase = "PACKAGING"
)

type LotStatus string

const (
	LotStatusActive    LotStatus = "ACTIVE"
	LotStatusCompleted LotStatus = "COMPLETED"
)

type BatchStatus string

const (
	BatchStatusBrewing      BatchStatus = "BREWING"
	BatchStatusFermenting   BatchStatus = "FERMENTING"
	BatchStatusConditioning BatchStatus = "CONDITIONING"
	BatchStatusReady        BatchStatus = "READY"
	BatchStatusPackaging    BatchStatus = "PACKAGING"
	BatchStatusCompleted    BatchStatus = "COMPLETED"
)

// TankStatus tracks occupancy of the vessel itself.
type TankStatus string

const (
	TankStatusAvailable   TankStatus = "AVAILABLE"
	TankStatusInUse       TankStatus = "IN_USE"
	TankStatusMaintenance TankStatus = "MAINTENANCE"
)

// EquipmentStatus tracks the physical condition of the vessel.
type EquipmentStatus string

const (
	EquipmentStatusAvailable   EquipmentStatus = "AVAILABLE"
	EquipmentStatusOperational EquipmentStatus = "OPERATIONAL"
	EquipmentStatusNeedsCIP    EquipmentStatus = "NEEDS_CIP"
	EquipmentStatusMaintenance EquipmentStatus = "MAINTENANCE"
)

type AssignmentStatus string

const (
	AssignmentStatusPlanned   AssignmentStatus = "PLANNED"
	AssignmentStatusActive    AssignmentStatus = "ACTIVE"
	AssignmentStatusCompleted AssignmentStatus = "COMPLETED"
)

// OpenAssignmentStatuses are the statuses that hold a tank.
var OpenAssignmentStatuses = []AssignmentStatus{AssignmentStatusPlanned, AssignmentStatusActive}

type LedgerEntryType string

const (
	LedgerPurchase         LedgerEntryType = "PURCHASE"
	LedgerProduction       LedgerEntryType = "PRODUCTION"
	LedgerConsumption      LedgerEntryType = "CONSUMPTION"
	LedgerWaste            LedgerEntryType = "WASTE"
	LedgerAdjustmentAdd    LedgerEntryType = "ADJUSTMENT_ADD"
	LedgerAdjustmentRemove LedgerEntryType = "ADJUSTMENT_REMOVE"
	LedgerSale             LedgerEntryType = "SALE"
	LedgerReturn           LedgerEntryType = "RETURN"
	LedgerReversal         LedgerEntryType = "REVERSAL"
)

// Sign returns +1 for stock-increasing types, -1 for stock-decreasing ones
// and 0 for REVERSAL or unknown types, whose sign comes from the entry reversed.
func (t LedgerEntryType) Sign() int {
	switch t {
	case LedgerPurchase, LedgerProduction, LedgerReturn, LedgerAdjustmentAdd:
		return 1
	case LedgerConsumption, LedgerWaste, LedgerSale, LedgerAdjustmentRemove:
		return -1
	default:
		return 0
	}
}

// Label is the human-facing reason shown in movement listings.
func (t LedgerEntryType) Label() string {
	switch t {
	case LedgerPurchase:
		return "Purchase"
	case LedgerProduction:
		return "Production"
	case LedgerConsumption:
		return "Consumption"
	case LedgerWaste:
		return "Waste"
	case LedgerAdjustmentAdd, LedgerAdjustmentRemove:
		return "Adjustment"
	case LedgerSale:
		return "Sale"
	case LedgerReturn:
		return "Return"
	case LedgerReversal:
		return "Reversal"
	default:
		return string(t)
	}
}

type TimelineEventType string

const (
	EventBrewStarted      TimelineEventType = "BREW_STARTED"
	EventPhaseAdvanced    TimelineEventType = "PHASE_ADVANCED"
	EventBatchSplit       TimelineEventType = "BATCH_SPLIT"
	EventLotTransferred   TimelineEventType = "LOT_TRANSFERRED"
	EventBlendCreated     TimelineEventType = "BLEND_CREATED"
	EventPackagingStarted TimelineEventType = "PACKAGING_STARTED"
	EventLotCompleted     TimelineEventType = "LOT_COMPLETED"
)

type TankSyncStatus string

const (
	TankSyncPending TankSyncStatus = "PENDING"
	TankSyncDone    TankSyncStatus = "DONE"
	TankSyncFailed  TankSyncStatus = "FAILED"
)
