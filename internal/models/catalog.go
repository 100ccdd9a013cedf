package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CoinPackage describes one purchasable coin bundle from the catalog
// collaborator. Minutes may be absent: such packages derive their minute
// count from total coins and the platform rate.
type CoinPackage struct {
	ID         uuid.UUID
	Name       string
	Price      decimal.Decimal
	Minutes    *int64
	TotalCoins int64
	IsActive   bool
}
