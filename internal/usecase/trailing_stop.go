package usecase

import (
	"sort"

	"github.com/vitos/crypto_dca_bot/internal/domain"
)

// TrailingStopController tightens the exit stop as unrealized profit grows.
// It computes stop prices only; cancel/replace of the actual stop order is
// the execution collaborator's job.
type TrailingStopController struct {
	basePositive float64 // base trailing stop distance, as a profit ratio
	baseOffset   float64 // profit ratio required before trailing activates
}

func NewTrailingStopController(basePositive, baseOffset float64) *TrailingStopController {
	return &TrailingStopController{
		basePositive: basePositive,
		baseOffset:   baseOffset,
	}
}

// SelectBreakpoint returns the breakpoint with the largest StartPercentage
// that is <= profit (inclusive), and false when profit is still below the
// smallest breakpoint. The list must be sorted ascending, which config
// validation guarantees.
func SelectBreakpoint(breakpoints []domain.TrailingBreakpoint, profit float64) (domain.TrailingBreakpoint, bool) {
	// First index whose StartPercentage is strictly above profit; the
	// breakpoint before it is the active one.
	idx := sort.Search(len(breakpoints), func(i int) bool {
		return breakpoints[i].StartPercentage > profit
	})
	if idx == 0 {
		return domain.TrailingBreakpoint{}, false
	}
	return breakpoints[idx-1], true
}

// Evaluate recomputes the stop for the current price and profit ratio.
// Returns the stop price and whether it moved. The recorded floor never
// decreases: a long position's stop only ratchets upward.
func (c *TrailingStopController) Evaluate(pos *domain.Position, price, profit float64) (float64, bool) {
	factor := 1.0
	if len(pos.Breakpoints) > 0 {
		bp, ok := SelectBreakpoint(pos.Breakpoints, profit)
		if !ok {
			return pos.StopPrice, false
		}
		factor = bp.Factor
	}

	effectiveOffset := c.baseOffset * factor
	if profit < effectiveOffset {
		return pos.StopPrice, false
	}

	effectiveStop := c.basePositive * factor
	newStop := price * (1 - effectiveStop)
	if newStop <= pos.StopPrice {
		return pos.StopPrice, false
	}

	pos.StopPrice = newStop
	return newStop, true
}
