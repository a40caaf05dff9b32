package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind identifies the variant of a ledger movement. The kind is part
// of the movement key: a movement is always addressed by its (kind, id) pair.
type MovementKind string

const (
	KindIncome      MovementKind = "income"
	KindExpense     MovementKind = "expense"
	KindDeposit     MovementKind = "deposit"
	KindWithdrawal  MovementKind = "withdrawal"
	KindTransferIn  MovementKind = "transfer_in"
	KindTransferOut MovementKind = "transfer_out"
)

// Valid reports whether k is one of the known movement kinds.
func (k MovementKind) Valid() bool {
	switch k {
	case KindIncome, KindExpense, KindDeposit, KindWithdrawal, KindTransferIn, KindTransferOut:
		return true
	}
	return false
}

// IsCredit reports whether movements of this kind add to their owner's balance.
// Debit kinds (expense, withdrawal, transfer_out) subtract.
func (k MovementKind) IsCredit() bool {
	switch k {
	case KindIncome, KindDeposit, KindTransferIn:
		return true
	}
	return false
}

// MovementRef addresses one movement across all kind variants.
type MovementRef struct {
	Kind MovementKind `json:"kind"`
	ID   string       `json:"id"`
}

// EntityKind distinguishes the two balance-holding entity types.
type EntityKind string

const (
	EntityRegister EntityKind = "register"
	EntityAccount  EntityKind = "account"
)

// EntityRef addresses the register or account that owns a movement.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

// ReceiptMeta carries the justification of an expense movement. These fields
// are only valid on expense-kind movements.
type ReceiptMeta struct {
	Reference    string `json:"reference"`
	Number       string `json:"number"`
	AttachmentID string `json:"attachment_id"`
}

// Movement is one signed ledger entry. Amount is always positive; the sign of
// its effect on the owner's balance is implied by the kind.
type Movement struct {
	Ref         MovementRef     `json:"ref"`
	Owner       EntityRef       `json:"owner"`
	PeriodID    string          `json:"period_id"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Description string          `json:"description"`

	// Reference is the bank operation reference; account movements only.
	Reference string `json:"reference,omitempty"`
	// Receipt is present on expense movements only.
	Receipt *ReceiptMeta `json:"receipt,omitempty"`
	// CounterpartID links the two legs of a transfer to each other.
	CounterpartID string `json:"counterpart_id,omitempty"`

	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedBy string    `json:"modified_by,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

// Signed returns the amount with the sign implied by the movement kind.
func (m Movement) Signed() decimal.Decimal {
	if m.Ref.Kind.IsCredit() {
		return m.Amount
	}
	return m.Amount.Neg()
}

// BreakdownLine is one denomination count pair supplied with a cash movement.
type BreakdownLine struct {
	UnitID  string `json:"unit_id"`
	Entries int64  `json:"entries"`
	Exits   int64  `json:"exits"`
}

// Descriptor is a fully-resolved movement submitted by the upstream
// collaborator. The engine's validation gate is the only authority on it.
type Descriptor struct {
	Kind        MovementKind    `json:"kind"`
	Owner       EntityRef       `json:"owner"`
	PeriodID    string          `json:"period_id"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	Receipt     *ReceiptMeta    `json:"receipt,omitempty"`
	Breakdown   []BreakdownLine `json:"breakdown,omitempty"`
}

// Patch carries the editable movement fields. A nil field is left unchanged.
// The movement kind is immutable.
type Patch struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	OccurredAt  *time.Time       `json:"occurred_at,omitempty"`
	Description *string          `json:"description,omitempty"`
	Reference   *string          `json:"reference,omitempty"`
}

// TransferInstruction is an intent to move cash between two registers.
// It expands into two linked movement legs, one debiting the origin and one
// crediting the destination.
type TransferInstruction struct {
	PeriodID       string          `json:"period_id"`
	FromRegisterID string          `json:"from_register_id"`
	ToRegisterID   string          `json:"to_register_id"`
	Amount         decimal.Decimal `json:"amount"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Description    string          `json:"description"`
}
