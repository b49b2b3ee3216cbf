package tests

import (
	"context"
	"os"
	"testing"

	"github.com/vitos/crypto_dca_bot/internal/config"
	"github.com/vitos/crypto_dca_bot/internal/domain"
	"github.com/vitos/crypto_dca_bot/internal/infrastructure/storage"
	"github.com/vitos/crypto_dca_bot/internal/usecase"
	"go.uber.org/zap"
)

type RecordingExecutor struct {
	SafetyIntents []domain.SafetyOrderIntent
	ExitIntents   []domain.ExitIntent
	Cancels       []domain.CancelIntent
	StopUpdates   map[string]float64
	Emergencies   []string
}

func NewRecordingExecutor() *RecordingExecutor {
	return &RecordingExecutor{StopUpdates: make(map[string]float64)}
}

func (m *RecordingExecutor) SubmitSafetyOrder(ctx context.Context, intent domain.SafetyOrderIntent) error {
	m.SafetyIntents = append(m.SafetyIntents, intent)
	return nil
}

func (m *RecordingExecutor) SubmitExit(ctx context.Context, intent domain.ExitIntent) error {
	m.ExitIntents = append(m.ExitIntents, intent)
	return nil
}

func (m *RecordingExecutor) CancelOrder(ctx context.Context, intent domain.CancelIntent) error {
	m.Cancels = append(m.Cancels, intent)
	return nil
}

func (m *RecordingExecutor) UpdateStop(ctx context.Context, pair string, stopPrice float64) error {
	m.StopUpdates[pair] = stopPrice
	return nil
}

func (m *RecordingExecutor) EmergencyExit(ctx context.Context, pair string, reason string) error {
	m.Emergencies = append(m.Emergencies, pair)
	return nil
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func scenarioConfig(mode string) *config.Config {
	cfg := &config.Config{
		SafetyConfiguration: map[string]config.SafetyOverride{
			config.DefaultProfileKey: {
				PriceDeviation:  floatPtr(2.0),
				VolumeScale:     floatPtr(2.0),
				StepScale:       floatPtr(1.0),
				MaxSafetyOrders: intPtr(3),
			},
		},
		SafetyOrderMode:            mode,
		MaxOpenTrades:              3,
		StakeAmount:                10,
		TradableBalanceRatio:       1.0,
		DryRunWallet:               10000,
		TrailingStopPositive:       0.01,
		TrailingStopPositiveOffset: 0.02,
		MinProfit:                  floatPtr(0.0025),
		Unfilledtimeout:            config.UnfilledTimeout{Entry: 60, Exit: 60, ExitTimeoutCount: 2, Unit: "seconds"},
	}
	cfg.Internals.ProcessThrottleSecs = 5
	cfg.Internals.PairLockSecs = 300
	return cfg
}

func newScenario(t *testing.T, dbPath, mode string) (*usecase.Engine, *RecordingExecutor, *storage.SQLiteStore) {
	t.Helper()
	os.Remove(dbPath)
	t.Cleanup(func() { os.Remove(dbPath) })

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mock := NewRecordingExecutor()
	engine := usecase.NewEngine(scenarioConfig(mode), mock, store, store, zap.NewNop())
	return engine, mock, store
}
