package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/camp-treasury-ledger/internal/interfaces"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models"
)

type holdingKey struct {
	registerID string
	unitID     string
}

// state holds every table of the store. Transactions operate on a deep copy
// that replaces the live state only on commit, so a failed transaction leaves
// nothing behind.
type state struct {
	movements     map[models.MovementRef]models.Movement
	movementOrder []models.MovementRef
	periods       map[string]models.FiscalPeriod
	camps         map[string]models.Camp
	registers     map[string]models.Register
	accounts      map[string]models.Account
	units         map[string]models.DenominationUnit
	unitOrder     []string
	holdings      map[holdingKey]models.DenominationHolding
	deltas        []models.DenominationDelta
}

func newState() *state {
	return &state{
		movements: make(map[models.MovementRef]models.Movement),
		periods:   make(map[string]models.FiscalPeriod),
		camps:     make(map[string]models.Camp),
		registers: make(map[string]models.Register),
		accounts:  make(map[string]models.Account),
		units:     make(map[string]models.DenominationUnit),
		holdings:  make(map[holdingKey]models.DenominationHolding),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.movements {
		c.movements[k] = v
	}
	c.movementOrder = append([]models.MovementRef(nil), s.movementOrder...)
	for k, v := range s.periods {
		c.periods[k] = v
	}
	for k, v := range s.camps {
		c.camps[k] = v
	}
	for k, v := range s.registers {
		c.registers[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.units {
		c.units[k] = v
	}
	c.unitOrder = append([]string(nil), s.unitOrder...)
	for k, v := range s.holdings {
		c.holdings[k] = v
	}
	c.deltas = append([]models.DenominationDelta(nil), s.deltas...)
	return c
}

// MemoryLedgerStore is an in-memory implementation of
// interfaces.LedgerStore, used by tests and for running without a database.
// One mutex serializes all transactions, which satisfies the no-lost-update
// requirement for concurrent writers.
type MemoryLedgerStore struct {
	mu    sync.Mutex
	state *state
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{state: newState()}
}

// Atomically runs fn against a snapshot of the store and swaps it in only if
// fn succeeds.
func (m *MemoryLedgerStore) Atomically(ctx context.Context, fn func(tx interfaces.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := m.state.clone()
	if err := fn(&memTx{s: staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

// memTx implements interfaces.Tx over a staged state copy.
type memTx struct {
	s *state
}

var _ interfaces.Tx = (*memTx)(nil)

func (t *memTx) InsertMovement(ctx context.Context, m models.Movement) error {
	t.s.movements[m.Ref] = m
	t.s.movementOrder = append(t.s.movementOrder, m.Ref)
	return nil
}

func (t *memTx) GetMovement(ctx context.Context, ref models.MovementRef) (models.Movement, error) {
	m, ok := t.s.movements[ref]
	if !ok {
		return models.Movement{}, models.ErrNotFound
	}
	return m, nil
}

func (t *memTx) UpdateMovement(ctx context.Context, m models.Movement) error {
	if _, ok := t.s.movements[m.Ref]; !ok {
		return models.ErrNotFound
	}
	t.s.movements[m.Ref] = m
	return nil
}

func (t *memTx) DeleteMovement(ctx context.Context, ref models.MovementRef) error {
	if _, ok := t.s.movements[ref]; !ok {
		return models.ErrNotFound
	}
	delete(t.s.movements, ref)
	for i, r := range t.s.movementOrder {
		if r == ref {
			t.s.movementOrder = append(t.s.movementOrder[:i], t.s.movementOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (t *memTx) MovementsByOwner(ctx context.Context, owner models.EntityRef) ([]models.Movement, error) {
	var out []models.Movement
	for _, ref := range t.s.movementOrder {
		m := t.s.movements[ref]
		if m.Owner == owner {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t *memTx) InsertPeriod(ctx context.Context, p models.FiscalPeriod) error {
	t.s.periods[p.ID] = p
	return nil
}

func (t *memTx) InsertCamp(ctx context.Context, c models.Camp) error {
	t.s.camps[c.ID] = c
	return nil
}

func (t *memTx) InsertRegister(ctx context.Context, r models.Register) error {
	t.s.registers[r.ID] = r
	return nil
}

func (t *memTx) InsertAccount(ctx context.Context, a models.Account) error {
	t.s.accounts[a.ID] = a
	return nil
}

func (t *memTx) GetRegister(ctx context.Context, id string) (models.Register, error) {
	r, ok := t.s.registers[id]
	if !ok {
		return models.Register{}, models.ErrNotFound
	}
	return r, nil
}

// GetRegisterForUpdate is the same as GetRegister: the store-wide mutex
// already serializes concurrent transactions.
func (t *memTx) GetRegisterForUpdate(ctx context.Context, id string) (models.Register, error) {
	return t.GetRegister(ctx, id)
}

func (t *memTx) GetAccount(ctx context.Context, id string) (models.Account, error) {
	a, ok := t.s.accounts[id]
	if !ok {
		return models.Account{}, models.ErrNotFound
	}
	return a, nil
}

func (t *memTx) GetAccountForUpdate(ctx context.Context, id string) (models.Account, error) {
	return t.GetAccount(ctx, id)
}

func (t *memTx) SetRegisterActive(ctx context.Context, id string, active bool) error {
	r, ok := t.s.registers[id]
	if !ok {
		return models.ErrNotFound
	}
	r.Active = active
	t.s.registers[id] = r
	return nil
}

func (t *memTx) AddToBalance(ctx context.Context, entity models.EntityRef, delta decimal.Decimal) error {
	switch entity.Kind {
	case models.EntityRegister:
		r, ok := t.s.registers[entity.ID]
		if !ok {
			return models.ErrNotFound
		}
		r.Balance = r.Balance.Add(delta)
		t.s.registers[entity.ID] = r
	case models.EntityAccount:
		a, ok := t.s.accounts[entity.ID]
		if !ok {
			return models.ErrNotFound
		}
		a.Balance = a.Balance.Add(delta)
		t.s.accounts[entity.ID] = a
	default:
		return models.ErrNotFound
	}
	return nil
}

func (t *memTx) SetBalance(ctx context.Context, entity models.EntityRef, balance decimal.Decimal) error {
	switch entity.Kind {
	case models.EntityRegister:
		r, ok := t.s.registers[entity.ID]
		if !ok {
			return models.ErrNotFound
		}
		r.Balance = balance
		t.s.registers[entity.ID] = r
	case models.EntityAccount:
		a, ok := t.s.accounts[entity.ID]
		if !ok {
			return models.ErrNotFound
		}
		a.Balance = balance
		t.s.accounts[entity.ID] = a
	default:
		return models.ErrNotFound
	}
	return nil
}

func (t *memTx) RegistersByPeriod(ctx context.Context, periodID string) ([]models.Register, error) {
	var out []models.Register
	for _, r := range t.s.registers {
		if r.PeriodID == periodID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) AccountsByPeriod(ctx context.Context, periodID string) ([]models.Account, error) {
	var out []models.Account
	for _, a := range t.s.accounts {
		if a.PeriodID == periodID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) InsertUnit(ctx context.Context, u models.DenominationUnit) error {
	if _, ok := t.s.units[u.ID]; !ok {
		t.s.unitOrder = append(t.s.unitOrder, u.ID)
	}
	t.s.units[u.ID] = u
	return nil
}

func (t *memTx) GetUnit(ctx context.Context, id string) (models.DenominationUnit, error) {
	u, ok := t.s.units[id]
	if !ok {
		return models.DenominationUnit{}, models.ErrNotFound
	}
	return u, nil
}

func (t *memTx) Units(ctx context.Context) ([]models.DenominationUnit, error) {
	out := make([]models.DenominationUnit, 0, len(t.s.unitOrder))
	for _, id := range t.s.unitOrder {
		out = append(out, t.s.units[id])
	}
	return out, nil
}

func (t *memTx) GetHolding(ctx context.Context, registerID, unitID string) (models.DenominationHolding, error) {
	h, ok := t.s.holdings[holdingKey{registerID, unitID}]
	if !ok {
		return models.DenominationHolding{}, models.ErrNotFound
	}
	return h, nil
}

func (t *memTx) UpsertHolding(ctx context.Context, h models.DenominationHolding) error {
	t.s.holdings[holdingKey{h.RegisterID, h.UnitID}] = h
	return nil
}

func (t *memTx) DeleteHoldings(ctx context.Context, registerID string) error {
	for k := range t.s.holdings {
		if k.registerID == registerID {
			delete(t.s.holdings, k)
		}
	}
	return nil
}

func (t *memTx) HoldingsByRegister(ctx context.Context, registerID string) ([]models.DenominationHolding, error) {
	var out []models.DenominationHolding
	for k, h := range t.s.holdings {
		if k.registerID == registerID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out, nil
}

func (t *memTx) InsertDelta(ctx context.Context, d models.DenominationDelta) error {
	t.s.deltas = append(t.s.deltas, d)
	return nil
}

func (t *memTx) DeltasByMovement(ctx context.Context, ref models.MovementRef) ([]models.DenominationDelta, error) {
	var out []models.DenominationDelta
	for _, d := range t.s.deltas {
		if d.Movement == ref {
			out = append(out, d)
		}
	}
	return out, nil
}

func (t *memTx) DeleteDeltasByMovement(ctx context.Context, ref models.MovementRef) error {
	kept := t.s.deltas[:0]
	for _, d := range t.s.deltas {
		if d.Movement != ref {
			kept = append(kept, d)
		}
	}
	t.s.deltas = kept
	return nil
}

// DeltasByRegister returns the register's deltas ordered by the occurrence
// time of their owning movements, falling back to insertion order for ties.
func (t *memTx) DeltasByRegister(ctx context.Context, registerID string) ([]models.DenominationDelta, error) {
	var out []models.DenominationDelta
	for _, d := range t.s.deltas {
		if d.RegisterID == registerID {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		mi, iok := t.s.movements[out[i].Movement]
		mj, jok := t.s.movements[out[j].Movement]
		if !iok || !jok {
			return false
		}
		return mi.OccurredAt.Before(mj.OccurredAt)
	})
	return out, nil
}

var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
