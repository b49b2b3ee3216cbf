package tests

import (
	"context"
	"testing"
	"time"

	"github.com/vitos/crypto_dca_bot/internal/domain"
	"github.com/vitos/crypto_dca_bot/internal/usecase"
)

func TestScenarioFullDCACycle(t *testing.T) {
	engine, mock, store := newScenario(t, "test_dca_cycle.db", string(domain.LadderStatic))
	ctx := context.Background()

	// 1. Entry signal and fill at 100
	if err := engine.OpenPosition(ctx, "BTC/USDT", 100.0); err != nil {
		t.Fatalf("Failed to open position: %v", err)
	}
	engine.OnEntryFill(ctx, "BTC/USDT", 100.0)

	// 2. Price drops through the first rung (98): safety order fires and fills
	engine.ProcessPrice("BTC/USDT", 97.9)
	engine.Tick(ctx, time.Now())
	if len(mock.SafetyIntents) != 1 {
		t.Fatalf("expected 1 safety intent, got %d", len(mock.SafetyIntents))
	}
	engine.OnSafetyFill(ctx, "BTC/USDT", 97.9)

	pos, _ := engine.Book().Get("BTC/USDT")
	if pos.State != domain.StateOpenPartialSO {
		t.Errorf("expected OPEN_PARTIAL_SO, got %s", pos.State)
	}

	// 3. Recovery above the trailing offset arms the stop
	engine.ProcessPrice("BTC/USDT", 104.0)
	engine.Tick(ctx, time.Now())
	stop, ok := mock.StopUpdates["BTC/USDT"]
	if !ok || stop < 102.95 || stop > 102.97 {
		t.Fatalf("expected stop near 102.96, got %v", stop)
	}

	// 4. Pullback through the stop floor exits the position
	engine.ProcessPrice("BTC/USDT", 102.0)
	engine.Tick(ctx, time.Now())
	if len(mock.ExitIntents) != 1 {
		t.Fatalf("expected 1 exit intent, got %d", len(mock.ExitIntents))
	}
	engine.OnExitFill(ctx, "BTC/USDT", 102.0)

	// 5. Persistence: two fills and one closed position on record
	fills, err := store.ListFills(ctx, "BTC/USDT", 10)
	if err != nil {
		t.Fatalf("Failed to list fills: %v", err)
	}
	if len(fills) != 2 {
		t.Errorf("expected 2 fills, got %d", len(fills))
	}

	history, err := store.ListPositionHistory(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(history))
	}
	record := history[0]
	if record.ExitReason != usecase.ExitReasonTrailingStop {
		t.Errorf("exit reason = %s, want %s", record.ExitReason, usecase.ExitReasonTrailingStop)
	}
	if record.SafetyOrders != 1 {
		t.Errorf("safety orders = %d, want 1", record.SafetyOrders)
	}
	if record.RealizedPnL <= 0 {
		t.Errorf("expected positive realized pnl, got %f", record.RealizedPnL)
	}

	// 6. Pair is locked after the close
	if err := engine.OpenPosition(ctx, "BTC/USDT", 100.0); err == nil {
		t.Error("expected re-entry blocked by pair lock")
	}
}

func TestScenarioShiftModeRebase(t *testing.T) {
	engine, mock, _ := newScenario(t, "test_shift_mode.db", string(domain.LadderShift))
	ctx := context.Background()

	if err := engine.OpenPosition(ctx, "ETH/USDT", 100.0); err != nil {
		t.Fatalf("Failed to open position: %v", err)
	}
	engine.OnEntryFill(ctx, "ETH/USDT", 100.0)

	// First rung fires at 98 and fills at 97.5
	engine.ProcessPrice("ETH/USDT", 97.9)
	engine.Tick(ctx, time.Now())
	engine.OnSafetyFill(ctx, "ETH/USDT", 97.5)

	// Remaining rungs rebase from the fill price: 97.5 * 0.98 = 95.55
	ladder := engine.Ladder("ETH/USDT")
	if len(ladder) != 2 {
		t.Fatalf("expected 2 remaining rungs, got %d", len(ladder))
	}
	if ladder[0].TriggerPrice < 95.54 || ladder[0].TriggerPrice > 95.56 {
		t.Errorf("rebased trigger = %f, want 95.55", ladder[0].TriggerPrice)
	}

	// The old static trigger (96) no longer fires
	engine.ProcessPrice("ETH/USDT", 95.6)
	engine.Tick(ctx, time.Now())
	if len(mock.SafetyIntents) != 1 {
		t.Fatalf("rung fired above its rebased trigger: %v", mock.SafetyIntents)
	}

	// The rebased trigger does
	engine.ProcessPrice("ETH/USDT", 95.5)
	engine.Tick(ctx, time.Now())
	if len(mock.SafetyIntents) != 2 {
		t.Fatalf("expected 2 safety intents, got %d", len(mock.SafetyIntents))
	}
	intent := mock.SafetyIntents[1]
	if intent.OrderIndex != 2 {
		t.Errorf("order index = %d, want 2", intent.OrderIndex)
	}
	// Stake keeps the global martingale progression
	if intent.Stake < 19.99 || intent.Stake > 20.01 {
		t.Errorf("stake = %f, want 20", intent.Stake)
	}
}

func TestScenarioStuckExitEscalates(t *testing.T) {
	engine, mock, _ := newScenario(t, "test_stuck_exit.db", string(domain.LadderStatic))
	ctx := context.Background()

	if err := engine.OpenPosition(ctx, "BTC/USDT", 100.0); err != nil {
		t.Fatalf("Failed to open position: %v", err)
	}
	engine.OnEntryFill(ctx, "BTC/USDT", 100.0)
	if err := engine.RequestExit(ctx, "BTC/USDT", 100.0, usecase.ExitReasonForce); err != nil {
		t.Fatalf("Failed to request exit: %v", err)
	}

	pos, _ := engine.Book().Get("BTC/USDT")

	// Exit order keeps timing out; budget is 2 cancels
	for i := 0; i < 3 && !pos.Failed; i++ {
		engine.Tick(ctx, time.Now().Add(time.Duration(i+1)*100*time.Second))
		if !pos.Failed && len(mock.Cancels) > 0 {
			last := mock.Cancels[len(mock.Cancels)-1]
			engine.OnOrderCancelled(ctx, "BTC/USDT", last.OrderID, domain.OrderExit)
		}
	}

	if !pos.Failed {
		t.Fatal("expected position marked failed after exhausting exit cancels")
	}
	if len(mock.Emergencies) != 1 {
		t.Errorf("expected 1 emergency exit, got %d", len(mock.Emergencies))
	}
}
