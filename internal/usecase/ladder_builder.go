package usecase

import (
	"math"

	"github.com/vitos/crypto_dca_bot/internal/domain"
)

// LadderBuilder computes safety-order ladders. Pure: the same profile and
// baseline always yield the same ladder.
type LadderBuilder struct{}

func NewLadderBuilder() *LadderBuilder {
	return &LadderBuilder{}
}

// Build returns the full reference ladder below a long entry.
// Trigger for order n is entryPrice scaled down by the cumulative deviation
// sum(priceDeviation * stepScale^(i-1)) for i = 1..n; stake for order n is
// baseStake * volumeScale^(n-1). MaxSafetyOrders of 0 yields an empty ladder.
func (b *LadderBuilder) Build(profile domain.SafetyOrderProfile, entryPrice, baseStake float64) []domain.LadderEntry {
	return b.build(profile, entryPrice, baseStake, 0)
}

// Rebase rebuilds the ladder for the orders still unfilled in shift mode.
// The most recent fill price becomes the new baseline and the deviation step
// sequence restarts, while stakes keep their position in the volume-scale
// progression so averaging keeps growing deeper fills.
func (b *LadderBuilder) Rebase(profile domain.SafetyOrderProfile, lastFillPrice, baseStake float64, filled int) []domain.LadderEntry {
	if filled >= profile.MaxSafetyOrders {
		return nil
	}
	return b.build(profile, lastFillPrice, baseStake, filled)
}

func (b *LadderBuilder) build(profile domain.SafetyOrderProfile, baseline, baseStake float64, filled int) []domain.LadderEntry {
	count := profile.MaxSafetyOrders - filled
	if count <= 0 {
		return nil
	}

	entries := make([]domain.LadderEntry, 0, count)
	cumulative := 0.0
	step := profile.PriceDeviation
	for i := 1; i <= count; i++ {
		cumulative += step
		index := filled + i
		entries = append(entries, domain.LadderEntry{
			OrderIndex:   index,
			TriggerPrice: baseline * (1 - cumulative/100),
			StakeAmount:  baseStake * math.Pow(profile.VolumeScale, float64(index-1)),
		})
		step *= profile.StepScale
	}
	return entries
}

// TotalStake returns the capital the full ladder commits, initial entry
// included. Used for the balance-ratio capacity check at open time.
func (b *LadderBuilder) TotalStake(profile domain.SafetyOrderProfile, baseStake float64) float64 {
	total := baseStake
	for n := 1; n <= profile.MaxSafetyOrders; n++ {
		total += baseStake * math.Pow(profile.VolumeScale, float64(n-1))
	}
	return total
}
