package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/nvoloshin/callmeter/internal/models"
)

const (
	// Platform-wide base rate used when the settings store has no value
	// and as the flat per-minute charge in degraded mode.
	DefaultCoinsPerMinute = 10
)

// Fallback USD value of one coin-minute when the catalog yields no usable
// packages. Configuration, not an architectural constant.
var DefaultBaseMinuteValue = decimal.RequireFromString("1.00")

// Snapshot freezes the pricing configuration for one settlement pass so a
// mid-pass settings change can not make two sessions in the same pass see
// different rates.
type Snapshot struct {
	CoinsPerMinute  int64
	BaseMinuteValue decimal.Decimal

	// Degraded is set when BaseMinuteValue could not be derived from the
	// catalog and the snapshot fell back to the default. Billing continues
	// at the flat coin rate.
	Degraded bool
}

// NewSnapshot derives the USD value of one coin-minute by averaging the
// active minute packages: sum(price) / sum(minutes). A package without an
// explicit minute count derives it as floor(totalCoins / coinsPerMinute).
// Packages with non-positive price or minutes are ignored. When nothing
// usable remains the snapshot degrades instead of failing.
func NewSnapshot(coinsPerMinute int64, packages []models.CoinPackage) Snapshot {
	if coinsPerMinute <= 0 {
		coinsPerMinute = DefaultCoinsPerMinute
	}

	var totalPrice decimal.Decimal
	var totalMinutes int64

	for _, p := range packages {
		if !p.IsActive || !p.Price.IsPositive() {
			continue
		}

		minutes := int64(0)
		if p.Minutes != nil {
			minutes = *p.Minutes
		} else if p.TotalCoins > 0 {
			minutes = p.TotalCoins / coinsPerMinute
		}
		if minutes <= 0 {
			continue
		}

		totalPrice = totalPrice.Add(p.Price)
		totalMinutes += minutes
	}

	if totalMinutes == 0 {
		return Snapshot{
			CoinsPerMinute:  coinsPerMinute,
			BaseMinuteValue: DefaultBaseMinuteValue,
			Degraded:        true,
		}
	}

	return Snapshot{
		CoinsPerMinute:  coinsPerMinute,
		BaseMinuteValue: totalPrice.Div(decimal.NewFromInt(totalMinutes)),
	}
}

// CoinsForMinute converts the USD rate of one minute into coins, always
// rounding up: the platform never under-charges a fractional coin. In
// degraded mode the charge is the flat per-minute coin rate.
func (s Snapshot) CoinsForMinute(minuteIndex int) int64 {
	if s.Degraded || !s.BaseMinuteValue.IsPositive() {
		return s.CoinsPerMinute
	}

	return UserRate(minuteIndex).
		Div(s.BaseMinuteValue).
		Mul(decimal.NewFromInt(s.CoinsPerMinute)).
		Ceil().
		IntPart()
}

// ProgressiveCoins sums CoinsForMinute over minutesToCharge minutes starting
// at startIndex. This is what the settlement scheduler bills when one or
// more whole minutes elapsed since the last checkpoint: a delayed tick
// charges exactly what on-time ticks would have.
func (s Snapshot) ProgressiveCoins(startIndex, minutesToCharge int) int64 {
	if minutesToCharge <= 0 {
		return 0
	}

	var coins int64
	for m := startIndex; m < startIndex+minutesToCharge; m++ {
		coins += s.CoinsForMinute(m)
	}
	return coins
}
