package models

import "github.com/shopspring/decimal"

// FiscalPeriod is a yearly accounting scope aggregating registers and bank
// activity.
type FiscalPeriod struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Year   int    `json:"year"`
	Active bool   `json:"active"`
}

// Camp is the organizational unit a register belongs to.
type Camp struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Register is a physical cash box. The balance is a running value maintained
// incrementally from the movement log and always re-derivable from it.
// Registers are deactivated, never deleted, so history stays intact.
type Register struct {
	ID       string          `json:"id"`
	PeriodID string          `json:"period_id"`
	CampID   string          `json:"camp_id"`
	Name     string          `json:"name"`
	Active   bool            `json:"active"`
	Balance  decimal.Decimal `json:"balance"`
}

// Ref returns the entity reference for this register.
func (r Register) Ref() EntityRef {
	return EntityRef{Kind: EntityRegister, ID: r.ID}
}

// Account is a bank-held balance, independent of any physical cash inventory.
type Account struct {
	ID       string          `json:"id"`
	PeriodID string          `json:"period_id"`
	Name     string          `json:"name"`
	Holder   string          `json:"holder"`
	IBAN     string          `json:"iban"`
	Active   bool            `json:"active"`
	Balance  decimal.Decimal `json:"balance"`
}

// Ref returns the entity reference for this account.
func (a Account) Ref() EntityRef {
	return EntityRef{Kind: EntityAccount, ID: a.ID}
}
