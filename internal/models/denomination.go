package models

import "github.com/shopspring/decimal"

// DenominationUnit is a specific bill or coin value. Only active units
// participate in new breakdowns; deactivated units keep their history.
type DenominationUnit struct {
	ID     string          `json:"id"`
	Value  decimal.Decimal `json:"value"`
	IsBill bool            `json:"is_bill"`
	Active bool            `json:"active"`
}

// DenominationHolding is the physically-known count of one unit in one
// register. The count is clamped at zero and never goes negative.
type DenominationHolding struct {
	RegisterID string `json:"register_id"`
	UnitID     string `json:"unit_id"`
	Count      int64  `json:"count"`
}

// TotalValue returns the currency value of the holding for the given unit.
func (h DenominationHolding) TotalValue(unit DenominationUnit) decimal.Decimal {
	return unit.Value.Mul(decimal.NewFromInt(h.Count))
}

// DenominationDelta is the breakdown evidence for one movement: how many
// units of a denomination entered and left the register. The owning movement
// is referenced by its (kind, id) pair since several movement variants share
// the breakdown mechanism.
type DenominationDelta struct {
	Movement   MovementRef `json:"movement"`
	RegisterID string      `json:"register_id"`
	UnitID     string      `json:"unit_id"`
	Entries    int64       `json:"entries"`
	Exits      int64       `json:"exits"`
}

// Net returns entries minus exits.
func (d DenominationDelta) Net() int64 {
	return d.Entries - d.Exits
}

// Value returns the net currency value of the delta for the given unit.
func (d DenominationDelta) Value(unit DenominationUnit) decimal.Decimal {
	return unit.Value.Mul(decimal.NewFromInt(d.Net()))
}

// ClampEvent records a holding count that would have gone negative and was
// clamped at zero. It is a reportable inconsistency, never a fatal error.
type ClampEvent struct {
	RegisterID string `json:"register_id"`
	UnitID     string `json:"unit_id"`
	Attempted  int64  `json:"attempted"`
}

// DefaultEuroUnits returns the standard euro denomination set. The 500 and
// 200 euro bills and the 1 and 2 cent coins start inactive.
func DefaultEuroUnits() []DenominationUnit {
	specs := []struct {
		value  string
		isBill bool
		active bool
	}{
		{"500.00", true, false},
		{"200.00", true, false},
		{"100.00", true, true},
		{"50.00", true, true},
		{"20.00", true, true},
		{"10.00", true, true},
		{"5.00", true, true},
		{"2.00", false, true},
		{"1.00", false, true},
		{"0.50", false, true},
		{"0.20", false, true},
		{"0.10", false, true},
		{"0.05", false, true},
		{"0.02", false, false},
		{"0.01", false, false},
	}

	units := make([]DenominationUnit, 0, len(specs))
	for _, s := range specs {
		units = append(units, DenominationUnit{
			ID:     "eur-" + s.value,
			Value:  decimal.RequireFromString(s.value),
			IsBill: s.isBill,
			Active: s.active,
		})
	}
	return units
}
