package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models"
)

func testUnits() map[string]models.DenominationUnit {
	return map[string]models.DenominationUnit{
		"eur-20.00": {ID: "eur-20.00", Value: decimal.RequireFromString("20.00"), IsBill: true, Active: true},
		"eur-10.00": {ID: "eur-10.00", Value: decimal.RequireFromString("10.00"), IsBill: true, Active: true},
		"eur-0.01":  {ID: "eur-0.01", Value: decimal.RequireFromString("0.01"), Active: false},
	}
}

func registerDesc(kind models.MovementKind, amount string) models.Descriptor {
	return models.Descriptor{
		Kind:     kind,
		Owner:    models.EntityRef{Kind: models.EntityRegister, ID: "reg-a"},
		PeriodID: "p1",
		Amount:   decimal.RequireFromString(amount),
	}
}

func accountDesc(kind models.MovementKind, amount string) models.Descriptor {
	d := registerDesc(kind, amount)
	d.Owner = models.EntityRef{Kind: models.EntityAccount, ID: "acct-a"}
	return d
}

func TestCheckAppendRejections(t *testing.T) {
	t.Parallel()

	withReceipt := registerDesc(models.KindIncome, "10.00")
	withReceipt.Receipt = &models.ReceiptMeta{Number: "F-001"}

	withReference := registerDesc(models.KindIncome, "10.00")
	withReference.Reference = "OP-123"

	withAccountBreakdown := accountDesc(models.KindIncome, "10.00")
	withAccountBreakdown.Breakdown = []models.BreakdownLine{{UnitID: "eur-10.00", Entries: 1}}

	unknownUnit := registerDesc(models.KindIncome, "10.00")
	unknownUnit.Breakdown = []models.BreakdownLine{{UnitID: "eur-3.00", Entries: 1}}

	inactiveUnit := registerDesc(models.KindIncome, "10.00")
	inactiveUnit.Breakdown = []models.BreakdownLine{{UnitID: "eur-0.01", Entries: 1}}

	negativeCount := registerDesc(models.KindIncome, "10.00")
	negativeCount.Breakdown = []models.BreakdownLine{{UnitID: "eur-10.00", Entries: -1}}

	cases := []struct {
		name        string
		desc        models.Descriptor
		ownerActive bool
		rule        string
	}{
		{"unknown kind", registerDesc(models.MovementKind("refund"), "10.00"), true, "unknown movement kind"},
		{"zero amount", registerDesc(models.KindIncome, "0"), true, "amount must be positive"},
		{"negative amount", registerDesc(models.KindExpense, "-5.00"), true, "amount must be positive"},
		{"inactive owner", registerDesc(models.KindIncome, "10.00"), false, "owner is inactive"},
		{"receipt on income", withReceipt, true, "receipt metadata is only valid on expense movements"},
		{"reference on register", withReference, true, "bank reference is only valid on account movements"},
		{"deposit on account", accountDesc(models.KindDeposit, "10.00"), true, "kind deposit is only valid on registers"},
		{"withdrawal on account", accountDesc(models.KindWithdrawal, "10.00"), true, "kind withdrawal is only valid on registers"},
		{"breakdown on account", withAccountBreakdown, true, "accounts have no denomination breakdown"},
		{"unknown unit", unknownUnit, true, "unknown denomination unit eur-3.00"},
		{"inactive unit", inactiveUnit, true, "denomination unit eur-0.01 is inactive"},
		{"negative count", negativeCount, true, "breakdown counts must be non-negative"},
	}

	gate := NewGate(ModeLegacy)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := gate.CheckAppend(tc.desc, tc.ownerActive, testUnits())
			var invalid *models.InvalidMovementError
			require.ErrorAs(t, err, &invalid)
			require.Equal(t, tc.rule, invalid.Rule)
		})
	}
}

func TestCheckAppendLegacyBreakdownSumUnchecked(t *testing.T) {
	t.Parallel()

	gate := NewGate(ModeLegacy)

	// The breakdown totals 30 against an amount of 10; legacy mode records it
	// as supplied.
	desc := registerDesc(models.KindIncome, "10.00")
	desc.Breakdown = []models.BreakdownLine{{UnitID: "eur-20.00", Entries: 1}, {UnitID: "eur-10.00", Entries: 1}}
	require.NoError(t, gate.CheckAppend(desc, true, testUnits()))

	// And no breakdown at all is fine.
	require.NoError(t, gate.CheckAppend(registerDesc(models.KindExpense, "10.00"), true, testUnits()))
}

func TestCheckAppendStrictMode(t *testing.T) {
	t.Parallel()

	gate := NewGate(ModeStrict)
	units := testUnits()

	t.Run("register without breakdown rejected", func(t *testing.T) {
		err := gate.CheckAppend(registerDesc(models.KindIncome, "10.00"), true, units)
		var invalid *models.InvalidMovementError
		require.ErrorAs(t, err, &invalid)
		require.Equal(t, "a denomination breakdown is mandatory in strict mode", invalid.Rule)
	})

	t.Run("mismatched sum rejected", func(t *testing.T) {
		desc := registerDesc(models.KindIncome, "10.00")
		desc.Breakdown = []models.BreakdownLine{{UnitID: "eur-20.00", Entries: 1}}
		var mismatch *models.BreakdownMismatchError
		require.ErrorAs(t, gate.CheckAppend(desc, true, units), &mismatch)
		require.True(t, mismatch.Got.Equal(decimal.RequireFromString("20.00")))
	})

	t.Run("expense breakdown nets out of the box", func(t *testing.T) {
		desc := registerDesc(models.KindExpense, "10.00")
		desc.Breakdown = []models.BreakdownLine{{UnitID: "eur-10.00", Exits: 1}}
		require.NoError(t, gate.CheckAppend(desc, true, units))
	})

	t.Run("expense breakdown adding cash rejected", func(t *testing.T) {
		desc := registerDesc(models.KindExpense, "10.00")
		desc.Breakdown = []models.BreakdownLine{{UnitID: "eur-10.00", Entries: 1}}
		var mismatch *models.BreakdownMismatchError
		require.ErrorAs(t, gate.CheckAppend(desc, true, units), &mismatch)
		require.True(t, mismatch.Expected.Equal(decimal.RequireFromString("-10.00")))
		require.True(t, mismatch.Got.Equal(decimal.RequireFromString("10.00")))
	})

	t.Run("exact sum accepted", func(t *testing.T) {
		desc := registerDesc(models.KindIncome, "30.00")
		desc.Breakdown = []models.BreakdownLine{{UnitID: "eur-20.00", Entries: 1}, {UnitID: "eur-10.00", Entries: 1}}
		require.NoError(t, gate.CheckAppend(desc, true, units))
	})

	t.Run("net of entries and exits accepted", func(t *testing.T) {
		desc := registerDesc(models.KindIncome, "10.00")
		desc.Breakdown = []models.BreakdownLine{{UnitID: "eur-20.00", Entries: 1}, {UnitID: "eur-10.00", Exits: 1}}
		require.NoError(t, gate.CheckAppend(desc, true, units))
	})

	t.Run("account movement needs no breakdown", func(t *testing.T) {
		desc := accountDesc(models.KindIncome, "10.00")
		desc.Reference = "OP-123"
		require.NoError(t, gate.CheckAppend(desc, true, units))
	})
}

func TestCheckAmountChange(t *testing.T) {
	t.Parallel()

	units := testUnits()
	deltas := []models.DenominationDelta{
		{Movement: models.MovementRef{Kind: models.KindIncome, ID: "m1"}, RegisterID: "reg-a", UnitID: "eur-20.00", Entries: 1},
	}

	t.Run("legacy never checks the breakdown", func(t *testing.T) {
		gate := NewGate(ModeLegacy)
		require.NoError(t, gate.CheckAmountChange(models.KindIncome, decimal.RequireFromString("35.00"), deltas, units))
	})

	t.Run("strict keeps linked deltas matching", func(t *testing.T) {
		gate := NewGate(ModeStrict)
		require.NoError(t, gate.CheckAmountChange(models.KindIncome, decimal.RequireFromString("20.00"), deltas, units))

		var mismatch *models.BreakdownMismatchError
		require.ErrorAs(t, gate.CheckAmountChange(models.KindIncome, decimal.RequireFromString("35.00"), deltas, units), &mismatch)
	})

	t.Run("strict matches debit deltas against the negated amount", func(t *testing.T) {
		gate := NewGate(ModeStrict)
		exits := []models.DenominationDelta{
			{Movement: models.MovementRef{Kind: models.KindExpense, ID: "m2"}, RegisterID: "reg-a", UnitID: "eur-20.00", Exits: 1},
		}
		require.NoError(t, gate.CheckAmountChange(models.KindExpense, decimal.RequireFromString("20.00"), exits, units))

		var mismatch *models.BreakdownMismatchError
		require.ErrorAs(t, gate.CheckAmountChange(models.KindExpense, decimal.RequireFromString("35.00"), exits, units), &mismatch)
	})

	t.Run("strict leaves breakdown-less history editable", func(t *testing.T) {
		gate := NewGate(ModeStrict)
		require.NoError(t, gate.CheckAmountChange(models.KindIncome, decimal.RequireFromString("35.00"), nil, units))
	})

	t.Run("amount must stay positive", func(t *testing.T) {
		gate := NewGate(ModeLegacy)
		var invalid *models.InvalidMovementError
		require.ErrorAs(t, gate.CheckAmountChange(models.KindIncome, decimal.Zero, nil, units), &invalid)
	})
}
