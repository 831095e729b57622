// Package payout implements the payout structure policy: fixed allocation
// tables that split a pot among the top finishers of a game.
//
// Tables are applied to however many ranked participants exist. Fewer
// participants than slots yields fewer payouts; the unallocated part of the
// pot is not redistributed and stays with the group operator.
//
// All monetary values use shopspring/decimal. No rounding is applied here;
// callers round for currency presentation.
package payout

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/league-engine/internal/model"
)

var (
	// ErrUnknownStructure is returned for a structure with no table.
	ErrUnknownStructure = errors.New("payout: unknown payout structure")

	// ErrNegativePot is returned when the pot is below zero.
	ErrNegativePot = errors.New("payout: pot must not be negative")
)

var hundred = decimal.NewFromInt(100)

// tables maps each structure to its per-rank percentages.
var tables = map[model.PayoutStructure][]decimal.Decimal{
	model.WinnerTakeAll: {decimal.NewFromInt(100)},
	model.Top3:          {decimal.NewFromInt(60), decimal.NewFromInt(30), decimal.NewFromInt(10)},
	model.Top5: {
		decimal.NewFromInt(40), decimal.NewFromInt(25), decimal.NewFromInt(20),
		decimal.NewFromInt(10), decimal.NewFromInt(5),
	},
}

// Valid reports whether s has an allocation table.
func Valid(s model.PayoutStructure) bool {
	_, ok := tables[s]
	return ok
}

// Compute splits pot across standings (ordered by return percent, best
// first) according to structure.
//
//	payout_i = pot * pct_i / 100
func Compute(standings []model.LeaderboardEntry, structure model.PayoutStructure, pot decimal.Decimal) ([]model.WinnerPayout, error) {
	table, ok := tables[structure]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStructure, structure)
	}
	if pot.IsNegative() {
		return nil, ErrNegativePot
	}

	n := len(table)
	if len(standings) < n {
		n = len(standings)
	}

	payouts := make([]model.WinnerPayout, 0, n)
	for i := 0; i < n; i++ {
		pct := table[i]
		payouts = append(payouts, model.WinnerPayout{
			UserID:     standings[i].UserID,
			Payout:     pot.Mul(pct).Div(hundred),
			Percentage: pct,
		})
	}
	return payouts, nil
}

// Total sums the payouts.
func Total(payouts []model.WinnerPayout) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payouts {
		total = total.Add(p.Payout)
	}
	return total
}

// Remainder is the part of pot that Compute left unallocated.
func Remainder(pot decimal.Decimal, payouts []model.WinnerPayout) decimal.Decimal {
	return pot.Sub(Total(payouts))
}
