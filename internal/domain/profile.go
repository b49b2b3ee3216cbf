package domain

// SafetyOrderProfile is the effective DCA configuration for one pair.
// Immutable once resolved; a Position keeps its own copy at open time.
type SafetyOrderProfile struct {
	PriceDeviation  float64 // percent below the previous baseline for SO 1
	VolumeScale     float64 // stake multiplier per successive safety order
	StepScale       float64 // deviation multiplier per successive safety order
	MaxSafetyOrders int
}

type LadderMode string

const (
	LadderStatic LadderMode = "static"
	LadderShift  LadderMode = "shift"
)

// TrailingBreakpoint maps a profit threshold to a stop tightening factor.
// A pair owns an ascending, duplicate-free list of these.
type TrailingBreakpoint struct {
	StartPercentage float64
	Factor          float64
}

// LadderEntry is one rung of the safety-order ladder. Derived, never persisted.
type LadderEntry struct {
	OrderIndex   int // 1-based
	TriggerPrice float64
	StakeAmount  float64
}
