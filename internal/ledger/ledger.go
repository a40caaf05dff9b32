package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/camp-treasury-ledger/internal/cash"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/interfaces"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models/events"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/validation"
)

// Event topics published after successful commits.
const (
	TopicMovementRecorded = "movement_recorded"
	TopicMovementRemoved  = "movement_removed"
	TopicBalanceRepaired  = "balance_repaired"
)

// Ledger is the movement log and balance accumulator. Every mutating
// operation runs inside one store transaction: the movement row, its owner's
// balance and the denomination inventory change together or not at all.
type Ledger struct {
	store interfaces.LedgerStore
	gate  *validation.Gate
	pub   interfaces.EventPublisher
	log   zerolog.Logger
}

// NewLedger wires the service. pub may be nil when no event bus is
// configured.
func NewLedger(store interfaces.LedgerStore, gate *validation.Gate, pub interfaces.EventPublisher, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, gate: gate, pub: pub, log: log}
}

// Append validates a descriptor, persists the movement, applies its signed
// amount to the owner's balance and links its denomination deltas. The actor
// is recorded on the movement for audit attribution.
func (l *Ledger) Append(ctx context.Context, actor string, desc models.Descriptor) (models.MovementRef, error) {
	var (
		recorded models.Movement
		clamps   []models.ClampEvent
	)
	err := l.store.Atomically(ctx, func(tx interfaces.Tx) error {
		active, err := ownerActiveForUpdate(ctx, tx, desc.Owner)
		if err != nil {
			return err
		}
		units, err := unitMap(ctx, tx)
		if err != nil {
			return err
		}
		if err := l.gate.CheckAppend(desc, active, units); err != nil {
			return err
		}

		now := time.Now().UTC()
		m := models.Movement{
			Ref:         models.MovementRef{Kind: desc.Kind, ID: uuid.NewString()},
			Owner:       desc.Owner,
			PeriodID:    desc.PeriodID,
			Amount:      desc.Amount,
			OccurredAt:  desc.OccurredAt,
			Description: desc.Description,
			Reference:   desc.Reference,
			Receipt:     desc.Receipt,
			CreatedBy:   actor,
			CreatedAt:   now,
		}
		if err := tx.InsertMovement(ctx, m); err != nil {
			return err
		}
		if err := tx.AddToBalance(ctx, m.Owner, m.Signed()); err != nil {
			return err
		}

		cs, err := l.linkBreakdown(ctx, tx, m, desc.Breakdown)
		if err != nil {
			return err
		}
		clamps = cs
		recorded = m
		return nil
	})
	if err != nil {
		return models.MovementRef{}, err
	}

	l.reportClamps(clamps)
	l.publish(TopicMovementRecorded, events.MovementRecorded{
		Movement:   recorded.Ref,
		Owner:      recorded.Owner,
		PeriodID:   recorded.PeriodID,
		Amount:     recorded.Amount,
		Actor:      actor,
		OccurredAt: recorded.OccurredAt,
		RecordedAt: recorded.CreatedAt,
	})
	return recorded.Ref, nil
}

// Remove deletes a movement and undoes its effects. The linked deltas are
// reversed and deleted before the movement row disappears, since reversal
// reads the parent's owning register.
func (l *Ledger) Remove(ctx context.Context, actor string, ref models.MovementRef) error {
	var (
		removed models.Movement
		clamps  []models.ClampEvent
	)
	err := l.store.Atomically(ctx, func(tx interfaces.Tx) error {
		m, err := tx.GetMovement(ctx, ref)
		if err != nil {
			return err
		}
		if _, err := ownerActiveForUpdate(ctx, tx, m.Owner); err != nil {
			return err
		}

		deltas, err := tx.DeltasByMovement(ctx, ref)
		if err != nil {
			return err
		}
		for _, delta := range deltas {
			clamp, err := cash.Reverse(ctx, tx, delta)
			if err != nil {
				return err
			}
			if clamp != nil {
				clamps = append(clamps, *clamp)
			}
		}
		if err := tx.DeleteDeltasByMovement(ctx, ref); err != nil {
			return err
		}
		if err := tx.AddToBalance(ctx, m.Owner, m.Signed().Neg()); err != nil {
			return err
		}
		if err := tx.DeleteMovement(ctx, ref); err != nil {
			return err
		}
		removed = m
		return nil
	})
	if err != nil {
		return err
	}

	l.reportClamps(clamps)
	l.publish(TopicMovementRemoved, events.MovementRemoved{
		Movement:  removed.Ref,
		Owner:     removed.Owner,
		Amount:    removed.Amount,
		Actor:     actor,
		RemovedAt: time.Now().UTC(),
	})
	return nil
}

// Update edits the mutable movement fields. The kind is immutable. An amount
// change adjusts the owner's balance by the signed difference and, in strict
// mode, must keep the stored breakdown matching.
func (l *Ledger) Update(ctx context.Context, actor string, ref models.MovementRef, patch models.Patch) (models.Movement, error) {
	var updated models.Movement
	err := l.store.Atomically(ctx, func(tx interfaces.Tx) error {
		m, err := tx.GetMovement(ctx, ref)
		if err != nil {
			return err
		}
		active, err := ownerActiveForUpdate(ctx, tx, m.Owner)
		if err != nil {
			return err
		}
		if !active {
			return &models.InvalidMovementError{Rule: "owner is inactive"}
		}

		if patch.Amount != nil && !patch.Amount.Equal(m.Amount) {
			deltas, err := tx.DeltasByMovement(ctx, ref)
			if err != nil {
				return err
			}
			units, err := unitMap(ctx, tx)
			if err != nil {
				return err
			}
			if err := l.gate.CheckAmountChange(m.Ref.Kind, *patch.Amount, deltas, units); err != nil {
				return err
			}
			oldSigned := m.Signed()
			m.Amount = *patch.Amount
			if err := tx.AddToBalance(ctx, m.Owner, m.Signed().Sub(oldSigned)); err != nil {
				return err
			}
		}
		if patch.OccurredAt != nil {
			m.OccurredAt = *patch.OccurredAt
		}
		if patch.Description != nil {
			m.Description = *patch.Description
		}
		if patch.Reference != nil {
			if m.Owner.Kind != models.EntityAccount {
				return &models.InvalidMovementError{Rule: "bank reference is only valid on account movements"}
			}
			m.Reference = *patch.Reference
		}

		m.ModifiedBy = actor
		m.ModifiedAt = time.Now().UTC()
		if err := tx.UpdateMovement(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return models.Movement{}, err
	}
	return updated, nil
}

// Transfer moves cash between two registers as two linked legs committed in
// one transaction. The registers are locked in id order to avoid deadlocks.
// Transfer legs carry no denomination breakdown; cash only changes boxes.
func (l *Ledger) Transfer(ctx context.Context, actor string, instr models.TransferInstruction) (out, in models.MovementRef, err error) {
	if err := l.gate.CheckAmount(instr.Amount); err != nil {
		return models.MovementRef{}, models.MovementRef{}, err
	}
	if instr.FromRegisterID == instr.ToRegisterID {
		return models.MovementRef{}, models.MovementRef{}, &models.InvalidMovementError{Rule: "transfer origin and destination must differ"}
	}

	err = l.store.Atomically(ctx, func(tx interfaces.Tx) error {
		first, second := instr.FromRegisterID, instr.ToRegisterID
		if second < first {
			first, second = second, first
		}
		for _, id := range []string{first, second} {
			reg, err := tx.GetRegisterForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !reg.Active {
				return &models.InvalidMovementError{Rule: "register " + reg.ID + " is inactive"}
			}
		}

		now := time.Now().UTC()
		outLeg := models.Movement{
			Ref:         models.MovementRef{Kind: models.KindTransferOut, ID: uuid.NewString()},
			Owner:       models.EntityRef{Kind: models.EntityRegister, ID: instr.FromRegisterID},
			PeriodID:    instr.PeriodID,
			Amount:      instr.Amount,
			OccurredAt:  instr.OccurredAt,
			Description: instr.Description,
			CreatedBy:   actor,
			CreatedAt:   now,
		}
		inLeg := models.Movement{
			Ref:         models.MovementRef{Kind: models.KindTransferIn, ID: uuid.NewString()},
			Owner:       models.EntityRef{Kind: models.EntityRegister, ID: instr.ToRegisterID},
			PeriodID:    instr.PeriodID,
			Amount:      instr.Amount,
			OccurredAt:  instr.OccurredAt,
			Description: instr.Description,
			CreatedBy:   actor,
			CreatedAt:   now,
		}
		outLeg.CounterpartID = inLeg.Ref.ID
		inLeg.CounterpartID = outLeg.Ref.ID

		for _, leg := range []models.Movement{outLeg, inLeg} {
			if err := tx.InsertMovement(ctx, leg); err != nil {
				return err
			}
			if err := tx.AddToBalance(ctx, leg.Owner, leg.Signed()); err != nil {
				return err
			}
		}
		out, in = outLeg.Ref, inLeg.Ref
		return nil
	})
	if err != nil {
		return models.MovementRef{}, models.MovementRef{}, err
	}
	return out, in, nil
}

// linkBreakdown stores the descriptor's breakdown lines as deltas owned by
// the movement's (kind, id) pair and applies them to the register inventory.
func (l *Ledger) linkBreakdown(ctx context.Context, tx interfaces.Tx, m models.Movement, lines []models.BreakdownLine) ([]models.ClampEvent, error) {
	if m.Owner.Kind != models.EntityRegister || len(lines) == 0 {
		return nil, nil
	}
	var clamps []models.ClampEvent
	for _, line := range lines {
		if line.Entries == 0 && line.Exits == 0 {
			continue
		}
		delta := models.DenominationDelta{
			Movement:   m.Ref,
			RegisterID: m.Owner.ID,
			UnitID:     line.UnitID,
			Entries:    line.Entries,
			Exits:      line.Exits,
		}
		if err := tx.InsertDelta(ctx, delta); err != nil {
			return nil, err
		}
		clamp, err := cash.Apply(ctx, tx, delta)
		if err != nil {
			return nil, err
		}
		if clamp != nil {
			clamps = append(clamps, *clamp)
		}
	}
	return clamps, nil
}

// Balance returns the stored running balance of a register or account.
func (l *Ledger) Balance(ctx context.Context, entity models.EntityRef) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := l.store.Atomically(ctx, func(tx interfaces.Tx) error {
		var err error
		balance, _, err = storedBalance(ctx, tx, entity)
		return err
	})
	return balance, err
}

// Movements returns the log entries currently owned by the entity.
func (l *Ledger) Movements(ctx context.Context, entity models.EntityRef) ([]models.Movement, error) {
	var out []models.Movement
	err := l.store.Atomically(ctx, func(tx interfaces.Tx) error {
		var err error
		out, err = tx.MovementsByOwner(ctx, entity)
		return err
	})
	return out, err
}

// Holdings returns the register's current denomination inventory.
func (l *Ledger) Holdings(ctx context.Context, registerID string) ([]models.DenominationHolding, error) {
	var out []models.DenominationHolding
	err := l.store.Atomically(ctx, func(tx interfaces.Tx) error {
		if _, err := tx.GetRegister(ctx, registerID); err != nil {
			return err
		}
		var err error
		out, err = tx.HoldingsByRegister(ctx, registerID)
		return err
	})
	return out, err
}

// CreateRegister persists a register at balance zero and seeds a zero holding
// for every active denomination unit in the same transaction.
func (l *Ledger) CreateRegister(ctx context.Context, actor string, r models.Register) error {
	r.Balance = decimal.Zero
	return l.store.Atomically(ctx, func(tx interfaces.Tx) error {
		if err := tx.InsertRegister(ctx, r); err != nil {
			return err
		}
		return cash.Seed(ctx, tx, r.ID)
	})
}

// DeactivateRegister freezes further movements while preserving history.
func (l *Ledger) DeactivateRegister(ctx context.Context, actor string, id string) error {
	return l.store.Atomically(ctx, func(tx interfaces.Tx) error {
		if _, err := tx.GetRegister(ctx, id); err != nil {
			return err
		}
		return tx.SetRegisterActive(ctx, id, false)
	})
}

// CreateAccount persists a bank account at balance zero.
func (l *Ledger) CreateAccount(ctx context.Context, actor string, a models.Account) error {
	a.Balance = decimal.Zero
	return l.store.Atomically(ctx, func(tx interfaces.Tx) error {
		return tx.InsertAccount(ctx, a)
	})
}

// CreatePeriod persists a fiscal period.
func (l *Ledger) CreatePeriod(ctx context.Context, actor string, p models.FiscalPeriod) error {
	return l.store.Atomically(ctx, func(tx interfaces.Tx) error {
		return tx.InsertPeriod(ctx, p)
	})
}

// CreateCamp persists a camp.
func (l *Ledger) CreateCamp(ctx context.Context, actor string, c models.Camp) error {
	return l.store.Atomically(ctx, func(tx interfaces.Tx) error {
		return tx.InsertCamp(ctx, c)
	})
}

// CreateUnit persists a denomination unit.
func (l *Ledger) CreateUnit(ctx context.Context, actor string, u models.DenominationUnit) error {
	return l.store.Atomically(ctx, func(tx interfaces.Tx) error {
		return tx.InsertUnit(ctx, u)
	})
}

func (l *Ledger) reportClamps(clamps []models.ClampEvent) {
	for _, c := range clamps {
		l.log.Warn().
			Str("register_id", c.RegisterID).
			Str("unit_id", c.UnitID).
			Int64("attempted", c.Attempted).
			Msg("holding count clamped at zero")
	}
}

func (l *Ledger) publish(topic string, event any) {
	if l.pub == nil {
		return
	}
	if err := l.pub.Publish(topic, event); err != nil {
		l.log.Warn().Err(err).Str("topic", topic).Msg("event publish failed")
	}
}

// ownerActiveForUpdate resolves the owning entity with its row locked for the
// rest of the transaction, and reports whether it accepts new movements.
func ownerActiveForUpdate(ctx context.Context, tx interfaces.Tx, owner models.EntityRef) (bool, error) {
	switch owner.Kind {
	case models.EntityRegister:
		reg, err := tx.GetRegisterForUpdate(ctx, owner.ID)
		if err != nil {
			return false, err
		}
		return reg.Active, nil
	case models.EntityAccount:
		acc, err := tx.GetAccountForUpdate(ctx, owner.ID)
		if err != nil {
			return false, err
		}
		return acc.Active, nil
	default:
		return false, &models.InvalidMovementError{Rule: "unknown owner kind"}
	}
}

func storedBalance(ctx context.Context, tx interfaces.Tx, entity models.EntityRef) (decimal.Decimal, bool, error) {
	switch entity.Kind {
	case models.EntityRegister:
		reg, err := tx.GetRegister(ctx, entity.ID)
		if err != nil {
			return decimal.Zero, false, err
		}
		return reg.Balance, reg.Active, nil
	case models.EntityAccount:
		acc, err := tx.GetAccount(ctx, entity.ID)
		if err != nil {
			return decimal.Zero, false, err
		}
		return acc.Balance, acc.Active, nil
	default:
		return decimal.Zero, false, models.ErrNotFound
	}
}

func unitMap(ctx context.Context, tx interfaces.Tx) (map[string]models.DenominationUnit, error) {
	units, err := tx.Units(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.DenominationUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}
	return byID, nil
}
