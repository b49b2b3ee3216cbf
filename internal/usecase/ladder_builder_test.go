package usecase_test

import (
	"testing"

	"github.com/vitos/crypto_dca_bot/internal/domain"
	"github.com/vitos/crypto_dca_bot/internal/usecase"
)

const epsilon = 0.000001

func floatEquals(a, b float64) bool {
	return (a-b) < epsilon && (b-a) < epsilon
}

func TestLadderBuilder_ReferenceExample(t *testing.T) {
	builder := usecase.NewLadderBuilder()
	profile := domain.SafetyOrderProfile{
		PriceDeviation:  2.25,
		VolumeScale:     1.0,
		StepScale:       0.97,
		MaxSafetyOrders: 2,
	}

	ladder := builder.Build(profile, 100.0, 10.0)
	if len(ladder) != 2 {
		t.Fatalf("expected 2 rungs, got %d", len(ladder))
	}

	// Order 1: deviation 2.25% -> 97.75
	if !floatEquals(ladder[0].TriggerPrice, 97.75) {
		t.Errorf("rung 1 trigger wrong: %f", ladder[0].TriggerPrice)
	}
	// Order 2: cumulative deviation 2.25 + 2.1825 = 4.4325% -> 95.5675
	if !floatEquals(ladder[1].TriggerPrice, 95.5675) {
		t.Errorf("rung 2 trigger wrong: %f", ladder[1].TriggerPrice)
	}
}

func TestLadderBuilder_LengthAndMonotonicity(t *testing.T) {
	builder := usecase.NewLadderBuilder()

	tests := []struct {
		name    string
		profile domain.SafetyOrderProfile
	}{
		{"shrinking steps", domain.SafetyOrderProfile{PriceDeviation: 1.5, VolumeScale: 1.5, StepScale: 0.5, MaxSafetyOrders: 6}},
		{"flat steps", domain.SafetyOrderProfile{PriceDeviation: 1.5, VolumeScale: 2.0, StepScale: 1.0, MaxSafetyOrders: 6}},
		{"widening steps", domain.SafetyOrderProfile{PriceDeviation: 1.5, VolumeScale: 1.1, StepScale: 1.5, MaxSafetyOrders: 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ladder := builder.Build(tt.profile, 250.0, 20.0)
			if len(ladder) != tt.profile.MaxSafetyOrders {
				t.Fatalf("expected %d rungs, got %d", tt.profile.MaxSafetyOrders, len(ladder))
			}
			for i := 1; i < len(ladder); i++ {
				if ladder[i].TriggerPrice >= ladder[i-1].TriggerPrice {
					t.Errorf("triggers not strictly decreasing at rung %d: %f >= %f",
						i+1, ladder[i].TriggerPrice, ladder[i-1].TriggerPrice)
				}
				// volume_scale > 1 means stakes strictly increase
				if tt.profile.VolumeScale > 1 && ladder[i].StakeAmount <= ladder[i-1].StakeAmount {
					t.Errorf("stakes not strictly increasing at rung %d: %f <= %f",
						i+1, ladder[i].StakeAmount, ladder[i-1].StakeAmount)
				}
			}
		})
	}
}

func TestLadderBuilder_ZeroSafetyOrders(t *testing.T) {
	builder := usecase.NewLadderBuilder()
	profile := domain.SafetyOrderProfile{PriceDeviation: 2.0, VolumeScale: 1.5, StepScale: 1.0, MaxSafetyOrders: 0}

	if ladder := builder.Build(profile, 100.0, 10.0); len(ladder) != 0 {
		t.Errorf("expected empty ladder, got %d rungs", len(ladder))
	}
}

func TestLadderBuilder_StakeProgression(t *testing.T) {
	builder := usecase.NewLadderBuilder()
	profile := domain.SafetyOrderProfile{PriceDeviation: 2.0, VolumeScale: 2.0, StepScale: 1.0, MaxSafetyOrders: 3}

	ladder := builder.Build(profile, 100.0, 10.0)
	wantStakes := []float64{10.0, 20.0, 40.0}
	for i, want := range wantStakes {
		if !floatEquals(ladder[i].StakeAmount, want) {
			t.Errorf("rung %d stake = %f, want %f", i+1, ladder[i].StakeAmount, want)
		}
	}

	// entry + all rungs
	if total := builder.TotalStake(profile, 10.0); !floatEquals(total, 80.0) {
		t.Errorf("TotalStake = %f, want 80", total)
	}
}

func TestLadderBuilder_Rebase(t *testing.T) {
	builder := usecase.NewLadderBuilder()
	profile := domain.SafetyOrderProfile{PriceDeviation: 2.0, VolumeScale: 2.0, StepScale: 0.5, MaxSafetyOrders: 3}

	// One order filled at 97.5: the step sequence restarts from the fill
	// price, the stake keeps its global index.
	remaining := builder.Rebase(profile, 97.5, 10.0, 1)
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining rungs, got %d", len(remaining))
	}
	if remaining[0].OrderIndex != 2 || remaining[1].OrderIndex != 3 {
		t.Errorf("order indices wrong: %d, %d", remaining[0].OrderIndex, remaining[1].OrderIndex)
	}
	// 97.5 * (1 - 0.02) = 95.55
	if !floatEquals(remaining[0].TriggerPrice, 95.55) {
		t.Errorf("rebased rung 2 trigger = %f, want 95.55", remaining[0].TriggerPrice)
	}
	// cumulative 2 + 1 = 3% -> 97.5 * 0.97 = 94.575
	if !floatEquals(remaining[1].TriggerPrice, 94.575) {
		t.Errorf("rebased rung 3 trigger = %f, want 94.575", remaining[1].TriggerPrice)
	}
	// stake continues the volume progression: 10 * 2^1, 10 * 2^2
	if !floatEquals(remaining[0].StakeAmount, 20.0) || !floatEquals(remaining[1].StakeAmount, 40.0) {
		t.Errorf("rebased stakes wrong: %f, %f", remaining[0].StakeAmount, remaining[1].StakeAmount)
	}

	if rest := builder.Rebase(profile, 95.0, 10.0, 3); rest != nil {
		t.Errorf("expected nil after all orders filled, got %d rungs", len(rest))
	}
}
