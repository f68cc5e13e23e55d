// Package phase is the single authority on lot phase and batch status
// transitions. Every component asks it whether a move is legal.
package phase

import (
	"brewery-production-backend/internal/apperr"
	"brewery-production-backend/internal/model"
)

// Event triggers a transition.
type Event string

const (
	EventAdvance        Event = "ADVANCE"
	EventStartPackaging Event = "START_PACKAGING"
)

type lotKey struct {
	from  model.Phase
	event Event
}

type batchKey struct {
	from  model.BatchStatus
	event Event
}

var lotTransitions = map[lotKey]model.Phase{
	{model.PhaseFermentation, EventAdvance}:        model.PhaseConditioning,
	{model.PhaseConditioning, EventAdvance}:        model.PhaseBright,
	{model.PhaseBright, EventAdvance}:              model.PhasePackaging,
	{model.PhaseConditioning, EventStartPackaging}: model.PhasePackaging,
	{model.PhaseBright, EventStartPackaging}:       model.PhasePackaging,
}

var batchTransitions = map[batchKey]model.BatchStatus{
	{model.BatchStatusConditioning, EventStartPackaging}: model.BatchStatusPackaging,
	{model.BatchStatusReady, EventStartPackaging}:        model.BatchStatusPackaging,
}

var phaseOrder = []model.Phase{
	model.PhaseFermentation,
	model.PhaseConditioning,
	model.PhaseBright,
	model.PhasePackaging,
}

var batchOrder = []model.BatchStatus{
	model.BatchStatusBrewing,
	model.BatchStatusFermenting,
	model.BatchStatusConditioning,
	model.BatchStatusReady,
	model.BatchStatusPackaging,
	model.BatchStatusCompleted,
}

// Rank returns the position of p in the production sequence, or -1.
func Rank(p model.Phase) int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

func Valid(p model.Phase) bool { return Rank(p) >= 0 }

// Phases returns the ordered production sequence.
func Phases() []model.Phase {
	out := make([]model.Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// Fire applies event to from and returns the resulting phase.
func Fire(from model.Phase, event Event) (model.Phase, bool) {
	next, ok := lotTransitions[lotKey{from, event}]
	return next, ok
}

// Next is the phase one step after p.
func Next(p model.Phase) (model.Phase, bool) {
	return Fire(p, EventAdvance)
}

// CheckAdvance decides an advancePhase request. It returns changed=false for
// the idempotent same-phase case. Completed lots never move again.
func CheckAdvance(status model.LotStatus, current, target model.Phase) (bool, error) {
	if !Valid(target) {
		return false, apperr.InvalidPhaseTransition(current, target, allowedFrom(current))
	}
	if target == current {
		return false, nil
	}
	if status == model.LotStatusCompleted {
		return false, apperr.ErrLotCompleted.WithParams(map[string]any{
			"current": current,
			"target":  target,
			"status":  status,
		})
	}
	if next, ok := Next(current); ok && next == target {
		return true, nil
	}
	return false, apperr.InvalidPhaseTransition(current, target, allowedFrom(current))
}

// CheckLotPackaging decides the split path of startPackaging. started=true
// means packaging already began (or the lot is finished) and the call is a no-op.
func CheckLotPackaging(status model.LotStatus, current model.Phase) (bool, error) {
	if current == model.PhasePackaging || status == model.LotStatusCompleted {
		return true, nil
	}
	if _, ok := Fire(current, EventStartPackaging); ok {
		return false, nil
	}
	return false, apperr.InvalidPhaseTransition(current, model.PhasePackaging, packagingPhases())
}

// CheckBatchPackaging decides the non-split path of startPackaging.
func CheckBatchPackaging(status model.BatchStatus) (bool, error) {
	if status == model.BatchStatusPackaging {
		return true, nil
	}
	if _, ok := batchTransitions[batchKey{status, EventStartPackaging}]; ok {
		return false, nil
	}
	allowed := make([]string, 0, len(batchTransitions))
	for _, s := range batchOrder {
		if _, ok := batchTransitions[batchKey{s, EventStartPackaging}]; ok {
			allowed = append(allowed, string(s))
		}
	}
	return false, apperr.InvalidBatchStatus(status, allowed)
}

// BlendEligible reports whether a lot in p may be offered as a blend source.
func BlendEligible(p model.Phase) bool {
	return p == model.PhaseConditioning || p == model.PhaseBright
}

// BlendEligiblePhases lists the phases accepted by BlendEligible.
func BlendEligiblePhases() []model.Phase {
	var out []model.Phase
	for _, p := range phaseOrder {
		if BlendEligible(p) {
			out = append(out, p)
		}
	}
	return out
}

// BatchStatusFor maps a lot phase to the batch status it implies.
func BatchStatusFor(p model.Phase) model.BatchStatus {
	switch p {
	case model.PhaseFermentation:
		return model.BatchStatusFermenting
	case model.PhaseConditioning:
		return model.BatchStatusConditioning
	case model.PhaseBright:
		return model.BatchStatusReady
	case model.PhasePackaging:
		return model.BatchStatusPackaging
	default:
		return ""
	}
}

func batchRank(s model.BatchStatus) int {
	for i, candidate := range batchOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// AdvanceBatchStatus moves a batch forward to implied, never backward.
func AdvanceBatchStatus(current, implied model.BatchStatus) (model.BatchStatus, bool) {
	if batchRank(implied) > batchRank(current) {
		return implied, true
	}
	return current, false
}

func allowedFrom(current model.Phase) []string {
	allowed := []string{string(current)}
	if next, ok := Next(current); ok {
		allowed = append(allowed, string(next))
	}
	return allowed
}

func packagingPhases() []string {
	var out []string
	for _, p := range phaseOrder {
		if _, ok := Fire(p, EventStartPackaging); ok {
			out = append(out, string(p))
		}
	}
	return out
}
