package execution

import (
	"context"

	"github.com/vitos/crypto_dca_bot/internal/domain"
	"go.uber.org/zap"
)

// LogExecutor is the default execution collaborator: it records every intent
// in the audit log and nothing else. A live deployment replaces it with an
// adapter that forwards intents to the order-routing service.
type LogExecutor struct {
	logger *zap.Logger
}

func NewLogExecutor(logger *zap.Logger) *LogExecutor {
	return &LogExecutor{logger: logger}
}

func (e *LogExecutor) SubmitSafetyOrder(ctx context.Context, intent domain.SafetyOrderIntent) error {
	e.logger.Info("INTENT safety_order",
		zap.String("pair", intent.Pair),
		zap.Int("order_index", intent.OrderIndex),
		zap.Float64("trigger_price", intent.TriggerPrice),
		zap.Float64("stake", intent.Stake))
	return nil
}

func (e *LogExecutor) SubmitExit(ctx context.Context, intent domain.ExitIntent) error {
	e.logger.Info("INTENT exit",
		zap.String("pair", intent.Pair),
		zap.String("order_id", intent.OrderID),
		zap.Float64("price", intent.Price),
		zap.String("reason", intent.Reason))
	return nil
}

func (e *LogExecutor) CancelOrder(ctx context.Context, intent domain.CancelIntent) error {
	e.logger.Info("INTENT cancel",
		zap.String("pair", intent.Pair),
		zap.String("order_id", intent.OrderID),
		zap.String("kind", string(intent.Kind)))
	return nil
}

func (e *LogExecutor) UpdateStop(ctx context.Context, pair string, stopPrice float64) error {
	e.logger.Info("INTENT stop_update",
		zap.String("pair", pair),
		zap.Float64("stop_price", stopPrice))
	return nil
}

func (e *LogExecutor) EmergencyExit(ctx context.Context, pair string, reason string) error {
	e.logger.Warn("INTENT emergency_exit",
		zap.String("pair", pair),
		zap.String("reason", reason))
	return nil
}
