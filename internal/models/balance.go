package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionTypePurchased = "purchased"
	TransactionTypeGift      = "gift"
)

// Balance holds the two coin pools of one user.
// Purchased coins are always spent before gift coins.
type Balance struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	PurchasedBalance int64
	GiftBalance      int64
	TotalPurchased   int64
	TotalConsumed    int64
	LastPurchaseAt   *time.Time
}

// Total is the number of coins available for spending.
func (b Balance) Total() int64 {
	return b.PurchasedBalance + b.GiftBalance
}

// ConsumptionRecord is one append-only ledger entry written per debit.
// Replaying all records for a user reconstructs the Balance counters.
type ConsumptionRecord struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	SessionID          uuid.UUID
	MinutesConsumed    decimal.Decimal
	CoinsConsumed      int64
	PurchasedCoinsUsed int64
	GiftCoinsUsed      int64
	BalanceAfter       int64
	ConsumedAt         time.Time
}

// Transaction records one balance-increasing event (purchase, admin grant,
// gift received). ReferenceID makes replayed external callbacks idempotent.
type Transaction struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Type         string
	Amount       int64
	Source       string
	ReferenceID  string
	BalanceAfter int64
	CreatedAt    time.Time
}
