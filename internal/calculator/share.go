package calculator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Share is one party's weight in a proportional split.
type Share struct {
	Key    string
	Weight int
}

// SplitProportional divides total across shares in proportion to their weights.
// Based on the algorithm: part = total × (weight / total_weight), rounded down
// to places decimal digits, then the leftover units are handed out one at a
// time by largest remainder. Ties go to the share listed first, so callers
// control tie-break order by ordering the input.
//
// The parts always sum exactly to total rounded to places.
func SplitProportional(total decimal.Decimal, shares []Share, places int32) (map[string]decimal.Decimal, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("must have at least one share")
	}
	if total.IsNegative() {
		return nil, fmt.Errorf("total cannot be negative: %s", total)
	}

	totalWeight := 0
	seen := make(map[string]bool, len(shares))
	for _, s := range shares {
		if s.Weight <= 0 {
			return nil, fmt.Errorf("share %q must have positive weight, got %d", s.Key, s.Weight)
		}
		if seen[s.Key] {
			return nil, fmt.Errorf("duplicate share key %q", s.Key)
		}
		seen[s.Key] = true
		totalWeight += s.Weight
	}

	rounded := total.Round(places)
	unit := decimal.New(1, -places)
	weightSum := decimal.NewFromInt(int64(totalWeight))

	type part struct {
		index     int
		amount    decimal.Decimal
		remainder decimal.Decimal
	}
	parts := make([]part, len(shares))
	allocated := decimal.Zero
	for i, s := range shares {
		exact := rounded.Mul(decimal.NewFromInt(int64(s.Weight))).Div(weightSum)
		floor := exact.Truncate(places)
		parts[i] = part{index: i, amount: floor, remainder: exact.Sub(floor)}
		allocated = allocated.Add(floor)
	}

	leftover := rounded.Sub(allocated).Div(unit).IntPart()
	if leftover > 0 {
		order := make([]int, len(parts))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return parts[order[a]].remainder.GreaterThan(parts[order[b]].remainder)
		})
		for i := int64(0); i < leftover; i++ {
			p := &parts[order[int(i)%len(order)]]
			p.amount = p.amount.Add(unit)
		}
	}

	result := make(map[string]decimal.Decimal, len(shares))
	for _, p := range parts {
		result[shares[p.index].Key] = p.amount
	}
	return result, nil
}
