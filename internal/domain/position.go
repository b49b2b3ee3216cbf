package domain

import "time"

type Side string

const (
	SideLong Side = "LONG"
)

type PositionState string

const (
	StateAwaitingEntry PositionState = "AWAITING_ENTRY"
	StateOpenNoSO      PositionState = "OPEN_NO_SO"
	StateOpenPartialSO PositionState = "OPEN_PARTIAL_SO"
	StateOpenMaxSO     PositionState = "OPEN_MAX_SO"
	StateClosed        PositionState = "CLOSED"
)

// Position represents one open trade and everything the engine mutates on it.
// All mutation happens inside the position's slot in the tick; the only shared
// state is the book's open counter.
type Position struct {
	Pair               string
	Side               Side
	State              PositionState
	EntryPrice         float64
	AveragePrice       float64
	FilledSafetyOrders int
	BaseStake          float64
	TotalStake         float64
	Leverage           float64
	LadderMode         LadderMode
	Profile            SafetyOrderProfile
	Breakpoints        []TrailingBreakpoint
	StopPrice          float64 // trailing floor, 0 until first activation
	ExitCancelCount    int
	Failed             bool // timeout budget exceeded, awaiting manual handling
	OpenedAt           time.Time
}

// Fill records one executed order of a position. OrderIndex 0 is the
// initial entry, 1..N are safety orders.
type Fill struct {
	ID         int64
	Pair       string
	OrderIndex int
	Price      float64
	Stake      float64
	FilledAt   time.Time
}

type OrderKind string

const (
	OrderEntry OrderKind = "entry"
	OrderExit  OrderKind = "exit"
)

// PendingOrder is an order submitted to the exchange and not yet filled,
// tracked for timeout handling.
type PendingOrder struct {
	ID          string
	Pair        string
	Kind        OrderKind
	Price       float64
	Stake       float64
	SubmittedAt time.Time
	CancelSent  bool
}

// PositionHistory represents a closed position.
type PositionHistory struct {
	ID           int64
	Pair         string
	Side         Side
	AveragePrice float64
	ExitPrice    float64
	Stake        float64
	RealizedPnL  float64
	SafetyOrders int
	ExitReason   string
	ClosedAt     time.Time
}
