package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models"
)

// Tx is the set of store operations available inside one atomic transaction.
// Movements are keyed by their (kind, id) pair; holdings by (register, unit);
// deltas by (movement kind, movement id, unit).
type Tx interface {
	// Movements.
	InsertMovement(ctx context.Context, m models.Movement) error
	GetMovement(ctx context.Context, ref models.MovementRef) (models.Movement, error)
	UpdateMovement(ctx context.Context, m models.Movement) error
	DeleteMovement(ctx context.Context, ref models.MovementRef) error
	MovementsByOwner(ctx context.Context, owner models.EntityRef) ([]models.Movement, error)

	// Entities. The ForUpdate reads take the row lock that serializes
	// concurrent writers targeting the same balance.
	InsertPeriod(ctx context.Context, p models.FiscalPeriod) error
	InsertCamp(ctx context.Context, c models.Camp) error
	InsertRegister(ctx context.Context, r models.Register) error
	InsertAccount(ctx context.Context, a models.Account) error
	GetRegister(ctx context.Context, id string) (models.Register, error)
	GetRegisterForUpdate(ctx context.Context, id string) (models.Register, error)
	GetAccount(ctx context.Context, id string) (models.Account, error)
	GetAccountForUpdate(ctx context.Context, id string) (models.Account, error)
	SetRegisterActive(ctx context.Context, id string, active bool) error
	AddToBalance(ctx context.Context, entity models.EntityRef, delta decimal.Decimal) error
	SetBalance(ctx context.Context, entity models.EntityRef, balance decimal.Decimal) error
	RegistersByPeriod(ctx context.Context, periodID string) ([]models.Register, error)
	AccountsByPeriod(ctx context.Context, periodID string) ([]models.Account, error)

	// Denominations.
	InsertUnit(ctx context.Context, u models.DenominationUnit) error
	GetUnit(ctx context.Context, id string) (models.DenominationUnit, error)
	Units(ctx context.Context) ([]models.DenominationUnit, error)
	GetHolding(ctx context.Context, registerID, unitID string) (models.DenominationHolding, error)
	UpsertHolding(ctx context.Context, h models.DenominationHolding) error
	DeleteHoldings(ctx context.Context, registerID string) error
	HoldingsByRegister(ctx context.Context, registerID string) ([]models.DenominationHolding, error)
	InsertDelta(ctx context.Context, d models.DenominationDelta) error
	DeltasByMovement(ctx context.Context, ref models.MovementRef) ([]models.DenominationDelta, error)
	DeleteDeltasByMovement(ctx context.Context, ref models.MovementRef) error
	// DeltasByRegister returns deltas in the chronological order of their
	// owning movements, for inventory replay.
	DeltasByRegister(ctx context.Context, registerID string) ([]models.DenominationDelta, error)
}

// LedgerStore is the transactional persistence contract for the ledger
// engine. Atomically runs fn inside one transaction: either every write in fn
// lands or none does.
type LedgerStore interface {
	Atomically(ctx context.Context, fn func(tx Tx) error) error
}
