package pricing

import (
	"github.com/shopspring/decimal"
)

// Progressive per-minute rates in USD. A call gets more expensive the longer
// it runs, flat within a tier, capped at the last tier.
type tier struct {
	upTo      int // last minute index covered by the tier, 0 means unbounded
	userRate  decimal.Decimal
	modelRate decimal.Decimal
}

var tiers = []tier{
	{upTo: 10, userRate: decimal.RequireFromString("0.65"), modelRate: decimal.RequireFromString("0.30")},
	{upTo: 20, userRate: decimal.RequireFromString("0.75"), modelRate: decimal.RequireFromString("0.36")},
	{upTo: 40, userRate: decimal.RequireFromString("0.90"), modelRate: decimal.RequireFromString("0.44")},
	{upTo: 0, userRate: decimal.RequireFromString("1.00"), modelRate: decimal.RequireFromString("0.48")},
}

func tierForMinute(minuteIndex int) tier {
	for _, t := range tiers {
		if t.upTo == 0 || minuteIndex <= t.upTo {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

// UserRate returns the USD price the client pays for the given minute of a
// call. Minute indices are 1-based; indices below 1 are priced as minute 1.
func UserRate(minuteIndex int) decimal.Decimal {
	return tierForMinute(minuteIndex).userRate
}

// ModelRate returns the USD payout to the model for the given minute.
func ModelRate(minuteIndex int) decimal.Decimal {
	return tierForMinute(minuteIndex).modelRate
}

// Earnings aggregates USD amounts for the first payableMinutes minutes of a
// call, for reconciliation and reporting.
type Earnings struct {
	PayableMinutes int
	UserSpend      decimal.Decimal
	ModelEarnings  decimal.Decimal
	Margin         decimal.Decimal
}

// ProgressiveEarnings walks minutes 1..payableMinutes and sums client spend,
// model payout and the platform margin. Margin is UserRate-ModelRate per
// minute and is never negative by construction of the tier tables.
func ProgressiveEarnings(payableMinutes int) Earnings {
	e := Earnings{
		PayableMinutes: payableMinutes,
		UserSpend:      decimal.Zero,
		ModelEarnings:  decimal.Zero,
		Margin:         decimal.Zero,
	}

	for m := 1; m <= payableMinutes; m++ {
		user := UserRate(m)
		model := ModelRate(m)

		e.UserSpend = e.UserSpend.Add(user)
		e.ModelEarnings = e.ModelEarnings.Add(model)
		e.Margin = e.Margin.Add(user.Sub(model))
	}

	return e
}
