package cash

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/camp-treasury-ledger/internal/interfaces"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models"
)

// Tolerance allowed between a movement amount and the net value of its
// denomination breakdown.
var Tolerance = decimal.RequireFromString("0.01")

// CheckExact verifies that the net value of the breakdown lines equals the
// movement amount, signed by its kind, within Tolerance. A credit movement
// must net +amount into the box, a debit movement -amount out of it.
func CheckExact(kind models.MovementKind, amount decimal.Decimal, lines []models.BreakdownLine, units map[string]models.DenominationUnit) error {
	total := decimal.Zero
	for _, line := range lines {
		unit, ok := units[line.UnitID]
		if !ok {
			return &models.InvalidMovementError{Rule: "unknown denomination unit " + line.UnitID}
		}
		net := decimal.NewFromInt(line.Entries - line.Exits)
		total = total.Add(unit.Value.Mul(net))
	}
	expected := amount
	if !kind.IsCredit() {
		expected = amount.Neg()
	}
	if total.Sub(expected).Abs().Cmp(Tolerance) > 0 {
		return &models.BreakdownMismatchError{Expected: expected, Got: total}
	}
	return nil
}

// CheckDeltasExact is CheckExact over already-linked deltas, used when an
// amount edit must keep the stored breakdown consistent.
func CheckDeltasExact(kind models.MovementKind, amount decimal.Decimal, deltas []models.DenominationDelta, units map[string]models.DenominationUnit) error {
	lines := make([]models.BreakdownLine, 0, len(deltas))
	for _, d := range deltas {
		lines = append(lines, models.BreakdownLine{UnitID: d.UnitID, Entries: d.Entries, Exits: d.Exits})
	}
	return CheckExact(kind, amount, lines, units)
}

// Seed creates a zero holding for every active denomination unit. Run once
// when a register is created.
func Seed(ctx context.Context, tx interfaces.Tx, registerID string) error {
	units, err := tx.Units(ctx)
	if err != nil {
		return err
	}
	for _, unit := range units {
		if !unit.Active {
			continue
		}
		if err := tx.UpsertHolding(ctx, models.DenominationHolding{
			RegisterID: registerID,
			UnitID:     unit.ID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Apply adds a delta's net count to the register's holding, creating the
// holding at zero if the unit was activated after the register was seeded.
// A count that would go negative is clamped at zero and reported as a
// ClampEvent; the clamp is never an error.
func Apply(ctx context.Context, tx interfaces.Tx, delta models.DenominationDelta) (*models.ClampEvent, error) {
	return adjustHolding(ctx, tx, delta.RegisterID, delta.UnitID, delta.Net())
}

// Reverse undoes a delta's effect on the holding, clamping at zero.
func Reverse(ctx context.Context, tx interfaces.Tx, delta models.DenominationDelta) (*models.ClampEvent, error) {
	return adjustHolding(ctx, tx, delta.RegisterID, delta.UnitID, -delta.Net())
}

func adjustHolding(ctx context.Context, tx interfaces.Tx, registerID, unitID string, net int64) (*models.ClampEvent, error) {
	holding, err := tx.GetHolding(ctx, registerID, unitID)
	if errors.Is(err, models.ErrNotFound) {
		holding = models.DenominationHolding{RegisterID: registerID, UnitID: unitID}
	} else if err != nil {
		return nil, err
	}

	var clamp *models.ClampEvent
	holding.Count += net
	if holding.Count < 0 {
		clamp = &models.ClampEvent{RegisterID: registerID, UnitID: unitID, Attempted: holding.Count}
		holding.Count = 0
	}
	if err := tx.UpsertHolding(ctx, holding); err != nil {
		return nil, err
	}
	return clamp, nil
}

// FullRecompute repairs holding drift: it deletes every holding for the
// register, reseeds them at zero, then replays all linked deltas in the
// chronological order of their movements.
func FullRecompute(ctx context.Context, tx interfaces.Tx, registerID string) ([]models.ClampEvent, error) {
	if err := tx.DeleteHoldings(ctx, registerID); err != nil {
		return nil, err
	}
	if err := Seed(ctx, tx, registerID); err != nil {
		return nil, err
	}

	deltas, err := tx.DeltasByRegister(ctx, registerID)
	if err != nil {
		return nil, err
	}
	var clamps []models.ClampEvent
	for _, delta := range deltas {
		clamp, err := Apply(ctx, tx, delta)
		if err != nil {
			return nil, err
		}
		if clamp != nil {
			clamps = append(clamps, *clamp)
		}
	}
	return clamps, nil
}

// HoldingsTotal returns the currency value of all holdings in the register.
func HoldingsTotal(ctx context.Context, tx interfaces.Tx, registerID string) (decimal.Decimal, error) {
	holdings, err := tx.HoldingsByRegister(ctx, registerID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, h := range holdings {
		unit, err := tx.GetUnit(ctx, h.UnitID)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(h.TotalValue(unit))
	}
	return total, nil
}
