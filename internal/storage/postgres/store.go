package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/camp-treasury-ledger/internal/interfaces"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models"
)

// PostgresLedgerStore is the durable implementation of
// interfaces.LedgerStore. Concurrent writers to the same register or account
// are serialized by the SELECT ... FOR UPDATE row lock taken on the balance
// row at the start of each mutating transaction.
type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

// Atomically runs fn inside one database transaction.
func (p *PostgresLedgerStore) Atomically(ctx context.Context, fn func(tx interfaces.Tx) error) error {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if err = fn(&pgTx{tx: dbTx}); err != nil {
		return err
	}
	err = dbTx.Commit()
	return err
}

type pgTx struct {
	tx *sql.Tx
}

var _ interfaces.Tx = (*pgTx)(nil)

const movementColumns = `kind, id, owner_kind, owner_id, period_id, amount, occurred_at, description,
	reference, receipt_reference, receipt_number, receipt_attachment_id, counterpart_id,
	created_by, created_at, modified_by, modified_at`

func (t *pgTx) InsertMovement(ctx context.Context, m models.Movement) error {
	const query = `INSERT INTO movements (` + movementColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	rcpRef, rcpNum, rcpAtt := receiptColumns(m.Receipt)
	_, err := t.tx.ExecContext(ctx, query,
		m.Ref.Kind, m.Ref.ID, m.Owner.Kind, m.Owner.ID, m.PeriodID, m.Amount, m.OccurredAt, m.Description,
		nullString(m.Reference), rcpRef, rcpNum, rcpAtt, nullString(m.CounterpartID),
		m.CreatedBy, m.CreatedAt, nullString(m.ModifiedBy), nullTime(m.ModifiedAt))
	return err
}

func (t *pgTx) GetMovement(ctx context.Context, ref models.MovementRef) (models.Movement, error) {
	const query = `SELECT ` + movementColumns + ` FROM movements WHERE kind = $1 AND id = $2`

	m, err := scanMovement(t.tx.QueryRowContext(ctx, query, ref.Kind, ref.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Movement{}, models.ErrNotFound
	}
	return m, err
}

func (t *pgTx) UpdateMovement(ctx context.Context, m models.Movement) error {
	const query = `UPDATE movements
	SET amount = $3, occurred_at = $4, description = $5, reference = $6,
		modified_by = $7, modified_at = $8
	WHERE kind = $1 AND id = $2`

	res, err := t.tx.ExecContext(ctx, query, m.Ref.Kind, m.Ref.ID,
		m.Amount, m.OccurredAt, m.Description, nullString(m.Reference),
		nullString(m.ModifiedBy), nullTime(m.ModifiedAt))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *pgTx) DeleteMovement(ctx context.Context, ref models.MovementRef) error {
	const query = `DELETE FROM movements WHERE kind = $1 AND id = $2`

	res, err := t.tx.ExecContext(ctx, query, ref.Kind, ref.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *pgTx) MovementsByOwner(ctx context.Context, owner models.EntityRef) ([]models.Movement, error) {
	const query = `SELECT ` + movementColumns + ` FROM movements
	WHERE owner_kind = $1 AND owner_id = $2
	ORDER BY occurred_at, created_at`

	rows, err := t.tx.QueryContext(ctx, query, owner.Kind, owner.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertPeriod(ctx context.Context, p models.FiscalPeriod) error {
	const query = `INSERT INTO fiscal_periods (id, name, year, active) VALUES ($1,$2,$3,$4)`

	_, err := t.tx.ExecContext(ctx, query, p.ID, p.Name, p.Year, p.Active)
	return err
}

func (t *pgTx) InsertCamp(ctx context.Context, c models.Camp) error {
	const query = `INSERT INTO camps (id, name) VALUES ($1,$2)`

	_, err := t.tx.ExecContext(ctx, query, c.ID, c.Name)
	return err
}

func (t *pgTx) InsertRegister(ctx context.Context, r models.Register) error {
	const query = `INSERT INTO registers (id, period_id, camp_id, name, active, balance)
	VALUES ($1,$2,$3,$4,$5,$6)`

	_, err := t.tx.ExecContext(ctx, query, r.ID, r.PeriodID, r.CampID, r.Name, r.Active, r.Balance)
	return err
}

func (t *pgTx) InsertAccount(ctx context.Context, a models.Account) error {
	const query = `INSERT INTO accounts (id, period_id, name, holder, iban, active, balance)
	VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err := t.tx.ExecContext(ctx, query, a.ID, a.PeriodID, a.Name, a.Holder, a.IBAN, a.Active, a.Balance)
	return err
}

func (t *pgTx) GetRegister(ctx context.Context, id string) (models.Register, error) {
	return t.getRegister(ctx, id, false)
}

func (t *pgTx) GetRegisterForUpdate(ctx context.Context, id string) (models.Register, error) {
	return t.getRegister(ctx, id, true)
}

func (t *pgTx) getRegister(ctx context.Context, id string, forUpdate bool) (models.Register, error) {
	query := `SELECT id, period_id, camp_id, name, active, balance FROM registers WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var r models.Register
	err := t.tx.QueryRowContext(ctx, query, id).
		Scan(&r.ID, &r.PeriodID, &r.CampID, &r.Name, &r.Active, &r.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Register{}, models.ErrNotFound
	}
	return r, err
}

func (t *pgTx) GetAccount(ctx context.Context, id string) (models.Account, error) {
	return t.getAccount(ctx, id, false)
}

func (t *pgTx) GetAccountForUpdate(ctx context.Context, id string) (models.Account, error) {
	return t.getAccount(ctx, id, true)
}

func (t *pgTx) getAccount(ctx context.Context, id string, forUpdate bool) (models.Account, error) {
	query := `SELECT id, period_id, name, holder, iban, active, balance FROM accounts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var a models.Account
	err := t.tx.QueryRowContext(ctx, query, id).
		Scan(&a.ID, &a.PeriodID, &a.Name, &a.Holder, &a.IBAN, &a.Active, &a.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, models.ErrNotFound
	}
	return a, err
}

func (t *pgTx) SetRegisterActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE registers SET active = $2 WHERE id = $1`

	res, err := t.tx.ExecContext(ctx, query, id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *pgTx) AddToBalance(ctx context.Context, entity models.EntityRef, delta decimal.Decimal) error {
	query := `UPDATE registers SET balance = balance + $2 WHERE id = $1`
	if entity.Kind == models.EntityAccount {
		query = `UPDATE accounts SET balance = balance + $2 WHERE id = $1`
	}

	res, err := t.tx.ExecContext(ctx, query, entity.ID, delta)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *pgTx) SetBalance(ctx context.Context, entity models.EntityRef, balance decimal.Decimal) error {
	query := `UPDATE registers SET balance = $2 WHERE id = $1`
	if entity.Kind == models.EntityAccount {
		query = `UPDATE accounts SET balance = $2 WHERE id = $1`
	}

	res, err := t.tx.ExecContext(ctx, query, entity.ID, balance)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *pgTx) RegistersByPeriod(ctx context.Context, periodID string) ([]models.Register, error) {
	const query = `SELECT id, period_id, camp_id, name, active, balance FROM registers
	WHERE period_id = $1 ORDER BY id`

	rows, err := t.tx.QueryContext(ctx, query, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Register
	for rows.Next() {
		var r models.Register
		if err := rows.Scan(&r.ID, &r.PeriodID, &r.CampID, &r.Name, &r.Active, &r.Balance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) AccountsByPeriod(ctx context.Context, periodID string) ([]models.Account, error) {
	const query = `SELECT id, period_id, name, holder, iban, active, balance FROM accounts
	WHERE period_id = $1 ORDER BY id`

	rows, err := t.tx.QueryContext(ctx, query, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.PeriodID, &a.Name, &a.Holder, &a.IBAN, &a.Active, &a.Balance); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertUnit(ctx context.Context, u models.DenominationUnit) error {
	const query = `INSERT INTO denomination_units (id, value, is_bill, active) VALUES ($1,$2,$3,$4)`

	_, err := t.tx.ExecContext(ctx, query, u.ID, u.Value, u.IsBill, u.Active)
	return err
}

func (t *pgTx) GetUnit(ctx context.Context, id string) (models.DenominationUnit, error) {
	const query = `SELECT id, value, is_bill, active FROM denomination_units WHERE id = $1`

	var u models.DenominationUnit
	err := t.tx.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Value, &u.IsBill, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DenominationUnit{}, models.ErrNotFound
	}
	return u, err
}

func (t *pgTx) Units(ctx context.Context) ([]models.DenominationUnit, error) {
	const query = `SELECT id, value, is_bill, active FROM denomination_units ORDER BY value DESC`

	rows, err := t.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DenominationUnit
	for rows.Next() {
		var u models.DenominationUnit
		if err := rows.Scan(&u.ID, &u.Value, &u.IsBill, &u.Active); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (t *pgTx) GetHolding(ctx context.Context, registerID, unitID string) (models.DenominationHolding, error) {
	const query = `SELECT register_id, unit_id, count FROM denomination_holdings
	WHERE register_id = $1 AND unit_id = $2`

	var h models.DenominationHolding
	err := t.tx.QueryRowContext(ctx, query, registerID, unitID).Scan(&h.RegisterID, &h.UnitID, &h.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DenominationHolding{}, models.ErrNotFound
	}
	return h, err
}

func (t *pgTx) UpsertHolding(ctx context.Context, h models.DenominationHolding) error {
	const query = `INSERT INTO denomination_holdings (register_id, unit_id, count)
	VALUES ($1,$2,$3)
	ON CONFLICT (register_id, unit_id) DO UPDATE SET count = EXCLUDED.count`

	_, err := t.tx.ExecContext(ctx, query, h.RegisterID, h.UnitID, h.Count)
	return err
}

func (t *pgTx) DeleteHoldings(ctx context.Context, registerID string) error {
	const query = `DELETE FROM denomination_holdings WHERE register_id = $1`

	_, err := t.tx.ExecContext(ctx, query, registerID)
	return err
}

func (t *pgTx) HoldingsByRegister(ctx context.Context, registerID string) ([]models.DenominationHolding, error) {
	const query = `SELECT h.register_id, h.unit_id, h.count FROM denomination_holdings h
	JOIN denomination_units u ON u.id = h.unit_id
	WHERE h.register_id = $1
	ORDER BY u.value DESC`

	rows, err := t.tx.QueryContext(ctx, query, registerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DenominationHolding
	for rows.Next() {
		var h models.DenominationHolding
		if err := rows.Scan(&h.RegisterID, &h.UnitID, &h.Count); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertDelta(ctx context.Context, d models.DenominationDelta) error {
	const query = `INSERT INTO denomination_deltas (movement_kind, movement_id, register_id, unit_id, entries, exits)
	VALUES ($1,$2,$3,$4,$5,$6)`

	_, err := t.tx.ExecContext(ctx, query, d.Movement.Kind, d.Movement.ID, d.RegisterID, d.UnitID, d.Entries, d.Exits)
	return err
}

func (t *pgTx) DeltasByMovement(ctx context.Context, ref models.MovementRef) ([]models.DenominationDelta, error) {
	const query = `SELECT movement_kind, movement_id, register_id, unit_id, entries, exits
	FROM denomination_deltas WHERE movement_kind = $1 AND movement_id = $2`

	rows, err := t.tx.QueryContext(ctx, query, ref.Kind, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeltas(rows)
}

func (t *pgTx) DeleteDeltasByMovement(ctx context.Context, ref models.MovementRef) error {
	const query = `DELETE FROM denomination_deltas WHERE movement_kind = $1 AND movement_id = $2`

	_, err := t.tx.ExecContext(ctx, query, ref.Kind, ref.ID)
	return err
}

func (t *pgTx) DeltasByRegister(ctx context.Context, registerID string) ([]models.DenominationDelta, error) {
	const query = `SELECT d.movement_kind, d.movement_id, d.register_id, d.unit_id, d.entries, d.exits
	FROM denomination_deltas d
	JOIN movements m ON m.kind = d.movement_kind AND m.id = d.movement_id
	WHERE d.register_id = $1
	ORDER BY m.occurred_at, m.created_at`

	rows, err := t.tx.QueryContext(ctx, query, registerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeltas(rows)
}

func collectDeltas(rows *sql.Rows) ([]models.DenominationDelta, error) {
	var out []models.DenominationDelta
	for rows.Next() {
		var d models.DenominationDelta
		if err := rows.Scan(&d.Movement.Kind, &d.Movement.ID, &d.RegisterID, &d.UnitID, &d.Entries, &d.Exits); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(row rowScanner) (models.Movement, error) {
	var (
		m                      models.Movement
		reference, counterpart sql.NullString
		rcpRef, rcpNum, rcpAtt sql.NullString
		modifiedBy             sql.NullString
		modifiedAt             sql.NullTime
	)
	err := row.Scan(&m.Ref.Kind, &m.Ref.ID, &m.Owner.Kind, &m.Owner.ID, &m.PeriodID,
		&m.Amount, &m.OccurredAt, &m.Description,
		&reference, &rcpRef, &rcpNum, &rcpAtt, &counterpart,
		&m.CreatedBy, &m.CreatedAt, &modifiedBy, &modifiedAt)
	if err != nil {
		return models.Movement{}, err
	}
	m.Reference = reference.String
	m.CounterpartID = counterpart.String
	m.ModifiedBy = modifiedBy.String
	m.ModifiedAt = modifiedAt.Time
	if rcpRef.Valid || rcpNum.Valid || rcpAtt.Valid {
		m.Receipt = &models.ReceiptMeta{
			Reference:    rcpRef.String,
			Number:       rcpNum.String,
			AttachmentID: rcpAtt.String,
		}
	}
	return m, nil
}

func receiptColumns(r *models.ReceiptMeta) (ref, num, att sql.NullString) {
	if r == nil {
		return
	}
	return sql.NullString{String: r.Reference, Valid: true},
		sql.NullString{String: r.Number, Valid: true},
		sql.NullString{String: r.AttachmentID, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
