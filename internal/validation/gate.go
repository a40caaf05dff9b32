package validation

import (
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/camp-treasury-ledger/internal/cash"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models"
)

// Mode selects the breakdown regime. Legacy data predates strict mode and
// must remain valid under ModeLegacy.
type Mode string

const (
	// ModeLegacy: a denomination breakdown is optional and its sum is not
	// checked against the movement amount.
	ModeLegacy Mode = "legacy"
	// ModeStrict: register movements must carry a breakdown and its net value
	// must equal the movement amount within tolerance.
	ModeStrict Mode = "strict"
)

// Gate enforces domain invariants before any mutation reaches the movement
// log. Every check is synchronous; a failing check means zero mutation to
// log, balance, or inventory.
type Gate struct {
	mode Mode
}

func NewGate(mode Mode) *Gate {
	return &Gate{mode: mode}
}

func (g *Gate) Mode() Mode {
	return g.mode
}

// CheckAppend validates a descriptor against the state of its resolved owner
// and the known denomination units.
func (g *Gate) CheckAppend(desc models.Descriptor, ownerActive bool, units map[string]models.DenominationUnit) error {
	if !desc.Kind.Valid() {
		return &models.InvalidMovementError{Rule: "unknown movement kind"}
	}
	if err := g.CheckAmount(desc.Amount); err != nil {
		return err
	}
	if !ownerActive {
		return &models.InvalidMovementError{Rule: "owner is inactive"}
	}
	if err := checkKindFields(desc); err != nil {
		return err
	}
	return g.checkBreakdown(desc, units)
}

// CheckAmount enforces the positive-amount invariant shared by appends and
// amount edits.
func (g *Gate) CheckAmount(amount decimal.Decimal) error {
	if amount.Cmp(decimal.Zero) <= 0 {
		return &models.InvalidMovementError{Rule: "amount must be positive"}
	}
	return nil
}

// CheckAmountChange re-validates the stored breakdown of a movement whose
// amount is being edited. In strict mode a movement that owns deltas must
// keep them matching the new amount; movements without a breakdown (history
// predating strict mode) stay editable.
func (g *Gate) CheckAmountChange(kind models.MovementKind, newAmount decimal.Decimal, deltas []models.DenominationDelta, units map[string]models.DenominationUnit) error {
	if err := g.CheckAmount(newAmount); err != nil {
		return err
	}
	if g.mode != ModeStrict || len(deltas) == 0 {
		return nil
	}
	return cash.CheckDeltasExact(kind, newAmount, deltas, units)
}

// checkKindFields enforces the kind-specific field rules: receipt metadata is
// expense-only, bank references are account-only, and deposit, withdrawal and
// transfer kinds exist only for registers.
func checkKindFields(desc models.Descriptor) error {
	if desc.Receipt != nil && desc.Kind != models.KindExpense {
		return &models.InvalidMovementError{Rule: "receipt metadata is only valid on expense movements"}
	}
	switch desc.Owner.Kind {
	case models.EntityRegister:
		if desc.Reference != "" {
			return &models.InvalidMovementError{Rule: "bank reference is only valid on account movements"}
		}
	case models.EntityAccount:
		switch desc.Kind {
		case models.KindDeposit, models.KindWithdrawal, models.KindTransferIn, models.KindTransferOut:
			return &models.InvalidMovementError{Rule: "kind " + string(desc.Kind) + " is only valid on registers"}
		}
		if len(desc.Breakdown) > 0 {
			return &models.InvalidMovementError{Rule: "accounts have no denomination breakdown"}
		}
	default:
		return &models.InvalidMovementError{Rule: "unknown owner kind"}
	}
	return nil
}

func (g *Gate) checkBreakdown(desc models.Descriptor, units map[string]models.DenominationUnit) error {
	for _, line := range desc.Breakdown {
		unit, ok := units[line.UnitID]
		if !ok {
			return &models.InvalidMovementError{Rule: "unknown denomination unit " + line.UnitID}
		}
		if !unit.Active {
			return &models.InvalidMovementError{Rule: "denomination unit " + line.UnitID + " is inactive"}
		}
		if line.Entries < 0 || line.Exits < 0 {
			return &models.InvalidMovementError{Rule: "breakdown counts must be non-negative"}
		}
	}

	if g.mode != ModeStrict || desc.Owner.Kind != models.EntityRegister {
		return nil
	}
	if len(desc.Breakdown) == 0 {
		return &models.InvalidMovementError{Rule: "a denomination breakdown is mandatory in strict mode"}
	}
	return cash.CheckExact(desc.Kind, desc.Amount, desc.Breakdown, units)
}
