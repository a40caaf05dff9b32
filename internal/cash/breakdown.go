package cash

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Decompose produces a greedy largest-first breakdown of amount over the
// active units, used to backfill movements recorded before breakdowns became
// mandatory. Fails if the amount cannot be represented with the active units.
func Decompose(amount decimal.Decimal, units []models.DenominationUnit) ([]models.BreakdownLine, error) {
	cents := amount.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has sub-cent precision", amount.String())
	}
	remaining := cents.IntPart()
	if remaining <= 0 {
		return nil, fmt.Errorf("amount %s is not positive", amount.String())
	}

	active := make([]models.DenominationUnit, 0, len(units))
	for _, u := range units {
		if u.Active {
			active = append(active, u)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].Value.Cmp(active[j].Value) > 0
	})

	var lines []models.BreakdownLine
	for _, unit := range active {
		unitCents := unit.Value.Mul(hundred).IntPart()
		if unitCents <= 0 || remaining < unitCents {
			continue
		}
		count := remaining / unitCents
		remaining -= count * unitCents
		lines = append(lines, models.BreakdownLine{UnitID: unit.ID, Entries: count})
	}
	if remaining != 0 {
		return nil, fmt.Errorf("amount %s cannot be represented with the active units (%d cents left)",
			amount.String(), remaining)
	}
	return lines, nil
}
