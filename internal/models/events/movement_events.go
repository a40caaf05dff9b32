package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models"
)

type MovementRecorded struct {
	Movement   models.MovementRef `json:"movement"`
	Owner      models.EntityRef   `json:"owner"`
	PeriodID   string             `json:"period_id"`
	Amount     decimal.Decimal    `json:"amount"`
	Actor      string             `json:"actor"`
	OccurredAt time.Time          `json:"occurred_at"`
	RecordedAt time.Time          `json:"recorded_at"`
}

type MovementRemoved struct {
	Movement  models.MovementRef `json:"movement"`
	Owner     models.EntityRef   `json:"owner"`
	Amount    decimal.Decimal    `json:"amount"`
	Actor     string             `json:"actor"`
	RemovedAt time.Time          `json:"removed_at"`
}

type BalanceRepaired struct {
	Entity     models.EntityRef `json:"entity"`
	OldBalance decimal.Decimal  `json:"old_balance"`
	NewBalance decimal.Decimal  `json:"new_balance"`
	Actor      string           `json:"actor"`
	RepairedAt time.Time        `json:"repaired_at"`
}
