package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/camp-treasury-ledger/internal/interfaces"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models"
)

func TestAtomicallyCommitsOnSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryLedgerStore()

	err := store.Atomically(ctx, func(tx interfaces.Tx) error {
		if err := tx.InsertRegister(ctx, models.Register{ID: "reg-a", PeriodID: "p1", Active: true}); err != nil {
			return err
		}
		return tx.AddToBalance(ctx, models.EntityRef{Kind: models.EntityRegister, ID: "reg-a"}, decimal.RequireFromString("10.00"))
	})
	require.NoError(t, err)

	err = store.Atomically(ctx, func(tx interfaces.Tx) error {
		reg, err := tx.GetRegister(ctx, "reg-a")
		if err != nil {
			return err
		}
		require.True(t, reg.Balance.Equal(decimal.RequireFromString("10.00")))
		return nil
	})
	require.NoError(t, err)
}

func TestAtomicallyRollsBackEveryWriteOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryLedgerStore()

	err := store.Atomically(ctx, func(tx interfaces.Tx) error {
		return tx.InsertRegister(ctx, models.Register{ID: "reg-a", PeriodID: "p1", Active: true})
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.Atomically(ctx, func(tx interfaces.Tx) error {
		m := models.Movement{
			Ref:    models.MovementRef{Kind: models.KindIncome, ID: "m1"},
			Owner:  models.EntityRef{Kind: models.EntityRegister, ID: "reg-a"},
			Amount: decimal.RequireFromString("10.00"),
		}
		if err := tx.InsertMovement(ctx, m); err != nil {
			return err
		}
		if err := tx.AddToBalance(ctx, m.Owner, m.Amount); err != nil {
			return err
		}
		if err := tx.InsertDelta(ctx, models.DenominationDelta{Movement: m.Ref, RegisterID: "reg-a", UnitID: "eur-10.00", Entries: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.Atomically(ctx, func(tx interfaces.Tx) error {
		_, err := tx.GetMovement(ctx, models.MovementRef{Kind: models.KindIncome, ID: "m1"})
		require.ErrorIs(t, err, models.ErrNotFound)

		reg, err := tx.GetRegister(ctx, "reg-a")
		require.NoError(t, err)
		require.True(t, reg.Balance.IsZero())

		deltas, err := tx.DeltasByMovement(ctx, models.MovementRef{Kind: models.KindIncome, ID: "m1"})
		require.NoError(t, err)
		require.Empty(t, deltas)
		return nil
	})
	require.NoError(t, err)
}

func TestMovementLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryLedgerStore()
	owner := models.EntityRef{Kind: models.EntityRegister, ID: "reg-a"}

	err := store.Atomically(ctx, func(tx interfaces.Tx) error {
		m := models.Movement{
			Ref:         models.MovementRef{Kind: models.KindExpense, ID: "m1"},
			Owner:       owner,
			Amount:      decimal.RequireFromString("12.00"),
			Description: "ice",
		}
		if err := tx.InsertMovement(ctx, m); err != nil {
			return err
		}

		m.Description = "ice and lemons"
		if err := tx.UpdateMovement(ctx, m); err != nil {
			return err
		}

		got, err := tx.GetMovement(ctx, m.Ref)
		require.NoError(t, err)
		require.Equal(t, "ice and lemons", got.Description)

		byOwner, err := tx.MovementsByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, byOwner, 1)

		if err := tx.DeleteMovement(ctx, m.Ref); err != nil {
			return err
		}
		_, err = tx.GetMovement(ctx, m.Ref)
		require.ErrorIs(t, err, models.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestDeltasByRegisterChronologicalOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryLedgerStore()
	owner := models.EntityRef{Kind: models.EntityRegister, ID: "reg-a"}
	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	err := store.Atomically(ctx, func(tx interfaces.Tx) error {
		// Inserted newest-first; the read must come back oldest-first.
		later := models.Movement{Ref: models.MovementRef{Kind: models.KindIncome, ID: "m2"}, Owner: owner, OccurredAt: base.Add(time.Hour)}
		earlier := models.Movement{Ref: models.MovementRef{Kind: models.KindIncome, ID: "m1"}, Owner: owner, OccurredAt: base}
		for _, m := range []models.Movement{later, earlier} {
			if err := tx.InsertMovement(ctx, m); err != nil {
				return err
			}
			if err := tx.InsertDelta(ctx, models.DenominationDelta{Movement: m.Ref, RegisterID: "reg-a", UnitID: "eur-1.00", Entries: 1}); err != nil {
				return err
			}
		}

		deltas, err := tx.DeltasByRegister(ctx, "reg-a")
		require.NoError(t, err)
		require.Len(t, deltas, 2)
		require.Equal(t, "m1", deltas[0].Movement.ID)
		require.Equal(t, "m2", deltas[1].Movement.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestUnitsPreserveInsertionOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryLedgerStore()

	err := store.Atomically(ctx, func(tx interfaces.Tx) error {
		for _, u := range models.DefaultEuroUnits() {
			if err := tx.InsertUnit(ctx, u); err != nil {
				return err
			}
		}
		units, err := tx.Units(ctx)
		require.NoError(t, err)
		require.Equal(t, len(models.DefaultEuroUnits()), len(units))
		require.Equal(t, "eur-500.00", units[0].ID)
		return nil
	})
	require.NoError(t, err)
}
