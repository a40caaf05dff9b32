package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/camp-treasury-ledger/internal/cash"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/interfaces"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models/events"
)

// Reconciler verifies and repairs the derived representations (stored
// balances, denomination holdings) against the movement log. It never runs on
// the normal write path; each entity is handled in its own transaction so a
// repair never reads a half-applied balance.
type Reconciler struct {
	store interfaces.LedgerStore
	pub   interfaces.EventPublisher
	log   zerolog.Logger
}

func NewReconciler(store interfaces.LedgerStore, pub interfaces.EventPublisher, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, pub: pub, log: log}
}

// VerifyResult reports one entity's stored balance against the log.
// A non-zero drift is a reportable inconsistency, never an error.
type VerifyResult struct {
	Entity     models.EntityRef `json:"entity"`
	Stored     decimal.Decimal  `json:"stored"`
	Recomputed decimal.Decimal  `json:"recomputed"`
	Drift      decimal.Decimal  `json:"drift"`
}

// HasDrift reports whether the stored balance diverged from the log.
func (v VerifyResult) HasDrift() bool {
	return !v.Drift.IsZero()
}

// DenominationReport compares a register's holdings total with its balance.
// The breakdown is advisory evidence, so the report never auto-corrects.
type DenominationReport struct {
	RegisterID    string          `json:"register_id"`
	HoldingsTotal decimal.Decimal `json:"holdings_total"`
	Balance       decimal.Decimal `json:"balance"`
	Mismatch      decimal.Decimal `json:"mismatch"`
}

// Scope selects the entities a batch operation touches.
type Scope struct {
	PeriodID string
	// Entity narrows the scope to a single register or account.
	Entity *models.EntityRef
	// DryRun reports what would be corrected without writing.
	DryRun bool
}

// Verify recomputes an entity's balance from the log and reports the drift.
// It never mutates.
func (r *Reconciler) Verify(ctx context.Context, entity models.EntityRef) (VerifyResult, error) {
	var result VerifyResult
	err := r.store.Atomically(ctx, func(tx interfaces.Tx) error {
		var err error
		result, err = verifyInTx(ctx, tx, entity)
		return err
	})
	return result, err
}

// Repair sets the stored balance to the value recomputed from the log via a
// direct assignment that bypasses the incremental accumulator. Applying it
// twice yields the same balance.
func (r *Reconciler) Repair(ctx context.Context, actor string, entity models.EntityRef) (decimal.Decimal, error) {
	var result VerifyResult
	err := r.store.Atomically(ctx, func(tx interfaces.Tx) error {
		if err := lockEntity(ctx, tx, entity); err != nil {
			return err
		}
		var err error
		result, err = verifyInTx(ctx, tx, entity)
		if err != nil {
			return err
		}
		if !result.HasDrift() {
			return nil
		}
		return tx.SetBalance(ctx, entity, result.Recomputed)
	})
	if err != nil {
		return decimal.Zero, err
	}

	if result.HasDrift() {
		r.log.Info().
			Str("entity_kind", string(entity.Kind)).
			Str("entity_id", entity.ID).
			Str("old", result.Stored.StringFixed(2)).
			Str("new", result.Recomputed.StringFixed(2)).
			Str("actor", actor).
			Msg("balance repaired")
		r.publish(TopicBalanceRepaired, events.BalanceRepaired{
			Entity:     entity,
			OldBalance: result.Stored,
			NewBalance: result.Recomputed,
			Actor:      actor,
			RepairedAt: time.Now().UTC(),
		})
	}
	return result.Recomputed, nil
}

// VerifyDenominations compares the value of the register's holdings against
// its balance. A mismatch means some movement bypassed the breakdown linker
// (or was recorded under legacy mode); it is reported, not corrected.
func (r *Reconciler) VerifyDenominations(ctx context.Context, registerID string) (DenominationReport, error) {
	var report DenominationReport
	err := r.store.Atomically(ctx, func(tx interfaces.Tx) error {
		reg, err := tx.GetRegister(ctx, registerID)
		if err != nil {
			return err
		}
		total, err := cash.HoldingsTotal(ctx, tx, registerID)
		if err != nil {
			return err
		}
		report = DenominationReport{
			RegisterID:    registerID,
			HoldingsTotal: total,
			Balance:       reg.Balance,
			Mismatch:      reg.Balance.Sub(total),
		}
		return nil
	})
	return report, err
}

// RecomputeHoldings rebuilds a register's denomination inventory from its
// linked deltas, repairing holding drift.
func (r *Reconciler) RecomputeHoldings(ctx context.Context, actor string, registerID string) ([]models.ClampEvent, error) {
	var clamps []models.ClampEvent
	err := r.store.Atomically(ctx, func(tx interfaces.Tx) error {
		if _, err := tx.GetRegisterForUpdate(ctx, registerID); err != nil {
			return err
		}
		var err error
		clamps, err = cash.FullRecompute(ctx, tx, registerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, c := range clamps {
		r.log.Warn().
			Str("register_id", c.RegisterID).
			Str("unit_id", c.UnitID).
			Int64("attempted", c.Attempted).
			Msg("holding count clamped at zero during recompute")
	}
	return clamps, nil
}

// BatchRepair verifies every entity in scope and repairs the drifted ones,
// one transaction per entity. It returns how many balances were corrected
// (or, in a dry run, how many would be).
func (r *Reconciler) BatchRepair(ctx context.Context, actor string, scope Scope) (int, error) {
	entities, err := r.resolveScope(ctx, scope)
	if err != nil {
		return 0, err
	}

	corrected := 0
	for _, entity := range entities {
		result, err := r.Verify(ctx, entity)
		if err != nil {
			return corrected, err
		}
		if !result.HasDrift() {
			continue
		}
		if !scope.DryRun {
			if _, err := r.Repair(ctx, actor, entity); err != nil {
				return corrected, err
			}
		}
		corrected++
	}
	return corrected, nil
}

// BackfillBreakdowns generates a greedy denomination breakdown for every
// register movement that has none, preparing history recorded under legacy
// mode for strict mode. Movements whose amount cannot be represented with the
// active units are skipped and logged.
func (r *Reconciler) BackfillBreakdowns(ctx context.Context, actor string, registerID string, dryRun bool) (int, error) {
	backfilled := 0
	err := r.store.Atomically(ctx, func(tx interfaces.Tx) error {
		if _, err := tx.GetRegisterForUpdate(ctx, registerID); err != nil {
			return err
		}
		units, err := tx.Units(ctx)
		if err != nil {
			return err
		}
		movements, err := tx.MovementsByOwner(ctx, models.EntityRef{Kind: models.EntityRegister, ID: registerID})
		if err != nil {
			return err
		}

		for _, m := range movements {
			deltas, err := tx.DeltasByMovement(ctx, m.Ref)
			if err != nil {
				return err
			}
			if len(deltas) > 0 {
				continue
			}
			lines, err := cash.Decompose(m.Amount, units)
			if err != nil {
				r.log.Warn().
					Str("movement_id", m.Ref.ID).
					Str("kind", string(m.Ref.Kind)).
					Err(err).
					Msg("breakdown backfill skipped")
				continue
			}
			backfilled++
			if dryRun {
				continue
			}
			for _, line := range lines {
				delta := models.DenominationDelta{
					Movement:   m.Ref,
					RegisterID: registerID,
					UnitID:     line.UnitID,
				}
				// Debit movements take cash out of the box.
				if m.Ref.Kind.IsCredit() {
					delta.Entries = line.Entries
				} else {
					delta.Exits = line.Entries
				}
				if err := tx.InsertDelta(ctx, delta); err != nil {
					return err
				}
				if _, err := cash.Apply(ctx, tx, delta); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return backfilled, nil
}

func (r *Reconciler) resolveScope(ctx context.Context, scope Scope) ([]models.EntityRef, error) {
	if scope.Entity != nil {
		return []models.EntityRef{*scope.Entity}, nil
	}
	var entities []models.EntityRef
	err := r.store.Atomically(ctx, func(tx interfaces.Tx) error {
		registers, err := tx.RegistersByPeriod(ctx, scope.PeriodID)
		if err != nil {
			return err
		}
		for _, reg := range registers {
			entities = append(entities, reg.Ref())
		}
		accounts, err := tx.AccountsByPeriod(ctx, scope.PeriodID)
		if err != nil {
			return err
		}
		for _, acc := range accounts {
			entities = append(entities, acc.Ref())
		}
		return nil
	})
	return entities, err
}

// verifyInTx recomputes the balance as the signed sum over all movements
// currently owned by the entity. O(n) in that entity's movement count.
func verifyInTx(ctx context.Context, tx interfaces.Tx, entity models.EntityRef) (VerifyResult, error) {
	stored, _, err := storedBalance(ctx, tx, entity)
	if err != nil {
		return VerifyResult{}, err
	}
	movements, err := tx.MovementsByOwner(ctx, entity)
	if err != nil {
		return VerifyResult{}, err
	}
	recomputed := decimal.Zero
	for _, m := range movements {
		recomputed = recomputed.Add(m.Signed())
	}
	return VerifyResult{
		Entity:     entity,
		Stored:     stored,
		Recomputed: recomputed,
		Drift:      stored.Sub(recomputed),
	}, nil
}

func lockEntity(ctx context.Context, tx interfaces.Tx, entity models.EntityRef) error {
	switch entity.Kind {
	case models.EntityRegister:
		_, err := tx.GetRegisterForUpdate(ctx, entity.ID)
		return err
	case models.EntityAccount:
		_, err := tx.GetAccountForUpdate(ctx, entity.ID)
		return err
	default:
		return models.ErrNotFound
	}
}

func (r *Reconciler) publish(topic string, event any) {
	if r.pub == nil {
		return
	}
	if err := r.pub.Publish(topic, event); err != nil {
		r.log.Warn().Err(err).Str("topic", topic).Msg("event publish failed")
	}
}
