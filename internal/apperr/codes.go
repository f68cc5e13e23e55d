package apperr

import "net/http"

const (
	CodeLotNotFound            = "LOT_NOT_FOUND"
	CodeBatchNotFound          = "BATCH_NOT_FOUND"
	CodeTankNotFound           = "TANK_NOT_FOUND"
	CodeRecipeNotFound         = "RECIPE_NOT_FOUND"
	CodeItemNotFound           = "ITEM_NOT_FOUND"
	CodeEntryNotFound          = "ENTRY_NOT_FOUND"
	CodeInvalidPhaseTransition = "INVALID_PHASE_TRANSITION"
	CodeInvalidBatchStatus     = "INVALID_BATCH_STATUS"
	CodeLotCompleted           = "LOT_COMPLETED"
	CodeInsufficientSources    = "INSUFFICIENT_SOURCES"
	CodeTankOccupied           = "TANK_OCCUPIED"
	CodeTankUnavailable        = "TANK_UNAVAILABLE"
	CodeUnknownPackageType     = "UNKNOWN_PACKAGE_TYPE"
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeAlreadyReversed        = "ALREADY_REVERSED"
	CodeTenantRequired         = "TENANT_REQUIRED"
	CodeLockBusy               = "LOCK_BUSY"
	CodeInternal               = "INTERNAL"
)

// Sentinels for errors.Is checks. Call WithParams to attach state.
var (
	ErrLotNotFound            = New(CodeLotNotFound, "lot not found", http.StatusNotFound)
	ErrBatchNotFound          = New(CodeBatchNotFound, "batch not found", http.StatusNotFound)
	ErrTankNotFound           = New(CodeTankNotFound, "tank not found", http.StatusNotFound)
	ErrRecipeNotFound         = New(CodeRecipeNotFound, "recipe not found", http.StatusNotFound)
	ErrItemNotFound           = New(CodeItemNotFound, "inventory item not found", http.StatusNotFound)
	ErrEntryNotFound          = New(CodeEntryNotFound, "ledger entry not found", http.StatusNotFound)
	ErrInvalidPhaseTransition = New(CodeInvalidPhaseTransition, "invalid phase transition", http.StatusConflict)
	ErrInvalidBatchStatus     = New(CodeInvalidBatchStatus, "invalid batch status", http.StatusConflict)
	ErrLotCompleted           = New(CodeLotCompleted, "lot is completed", http.StatusConflict)
	ErrInsufficientSources    = New(CodeInsufficientSources, "a blend needs at least two distinct source lots", http.StatusUnprocessableEntity)
	ErrTankOccupied           = New(CodeTankOccupied, "tank already has a planned or active assignment", http.StatusConflict)
	ErrTankUnavailable        = New(CodeTankUnavailable, "tank is under maintenance", http.StatusConflict)
	ErrUnknownPackageType     = New(CodeUnknownPackageType, "unknown package type", http.StatusBadRequest)
	ErrValidationFailed       = New(CodeValidationFailed, "validation failed", http.StatusBadRequest)
	ErrAlreadyReversed        = New(CodeAlreadyReversed, "ledger entry already reversed", http.StatusConflict)
	ErrTenantRequired         = New(CodeTenantRequired, "tenant id is required", http.StatusUnauthorized)
	ErrLockBusy               = New(CodeLockBusy, "another operation holds the lock", http.StatusConflict)
)

func LotNotFound(id int64) *Error {
	return ErrLotNotFound.WithParams(map[string]any{"lot_id": id})
}

func BatchNotFound(id int64) *Error {
	return ErrBatchNotFound.WithParams(map[string]any{"batch_id": id})
}

func TankNotFound(id int64) *Error {
	return ErrTankNotFound.WithParams(map[string]any{"tank_id": id})
}

func ItemNotFound(id int64) *Error {
	return ErrItemNotFound.WithParams(map[string]any{"item_id": id})
}

// InvalidPhaseTransition reports the current phase and the phases that would have been accepted.
func InvalidPhaseTransition(current, target any, allowed []string) *Error {
	return ErrInvalidPhaseTransition.WithParams(map[string]any{
		"current":  current,
		"target":   target,
		"required": allowed,
	})
}

func InvalidBatchStatus(current any, allowed []string) *Error {
	return ErrInvalidBatchStatus.WithParams(map[string]any{
		"current":  current,
		"required": allowed,
	})
}

func Validation(format string, args ...any) *Error {
	return ErrValidationFailed.WithMessage(format, args...)
}
