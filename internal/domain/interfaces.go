package domain

import "context"

// SafetyOrderIntent asks the execution collaborator to place one safety order.
type SafetyOrderIntent struct {
	Pair         string
	OrderIndex   int
	TriggerPrice float64
	Stake        float64
}

// CancelIntent asks the execution collaborator to cancel an unfilled order.
type CancelIntent struct {
	Pair    string
	OrderID string
	Kind    OrderKind
}

// ExitIntent asks the execution collaborator to close the position.
type ExitIntent struct {
	Pair    string
	OrderID string
	Price   float64
	Reason  string
}

// Executor is the boundary to the execution collaborator. The core never
// performs exchange I/O itself; it emits intents and consumes fill and cancel
// confirmations delivered back before the next tick.
type Executor interface {
	SubmitSafetyOrder(ctx context.Context, intent SafetyOrderIntent) error
	SubmitExit(ctx context.Context, intent ExitIntent) error
	CancelOrder(ctx context.Context, intent CancelIntent) error
	UpdateStop(ctx context.Context, pair string, stopPrice float64) error
	EmergencyExit(ctx context.Context, pair string, reason string) error
}

// FillRepository defines storage operations for executed orders.
type FillRepository interface {
	SaveFill(ctx context.Context, fill *Fill) error
	ListFills(ctx context.Context, pair string, limit int) ([]*Fill, error)
}

// PositionRepository defines storage operations for closed positions.
type PositionRepository interface {
	SavePositionHistory(ctx context.Context, history *PositionHistory) error
	ListPositionHistory(ctx context.Context, limit int) ([]*PositionHistory, error)
}
