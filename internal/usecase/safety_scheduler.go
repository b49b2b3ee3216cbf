package usecase

import (
	"sync"

	"github.com/vitos/crypto_dca_bot/internal/domain"
	"go.uber.org/zap"
)

// ladderRuntime is the per-position safety-order progress. Owned by the
// scheduler, touched only during the position's slot in the tick.
type ladderRuntime struct {
	pending         []domain.LadderEntry
	awaitingFill    bool // an intent was fired and no fill confirmed yet
	deepestTrigger  float64
	exhaustedLogged bool
}

// SafetyOrderScheduler tracks each position's ladder and decides on every
// price update whether the next safety order should fire. It only reports
// intents; order submission belongs to the execution collaborator.
type SafetyOrderScheduler struct {
	builder *LadderBuilder
	logger  *zap.Logger

	mu       sync.Mutex
	runtimes map[string]*ladderRuntime
}

func NewSafetyOrderScheduler(builder *LadderBuilder, logger *zap.Logger) *SafetyOrderScheduler {
	return &SafetyOrderScheduler{
		builder:  builder,
		logger:   logger,
		runtimes: make(map[string]*ladderRuntime),
	}
}

// InitLadder computes the reference ladder when the entry order fills.
func (s *SafetyOrderScheduler) InitLadder(pos *domain.Position) {
	ladder := s.builder.Build(pos.Profile, pos.EntryPrice, pos.BaseStake)

	rt := &ladderRuntime{pending: ladder}
	if len(ladder) > 0 {
		rt.deepestTrigger = ladder[len(ladder)-1].TriggerPrice
	}

	s.mu.Lock()
	s.runtimes[pos.Pair] = rt
	s.mu.Unlock()

	if pos.Profile.MaxSafetyOrders == 0 {
		pos.State = domain.StateOpenMaxSO
	} else {
		pos.State = domain.StateOpenNoSO
	}
	s.logger.Info("Ladder initialized",
		zap.String("pair", pos.Pair),
		zap.String("mode", string(pos.LadderMode)),
		zap.Int("rungs", len(ladder)))
}

// Ladder returns the still-unfilled rungs, for status reporting.
func (s *SafetyOrderScheduler) Ladder(pair string) []domain.LadderEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.runtimes[pair]
	if !ok {
		return nil
	}
	out := make([]domain.LadderEntry, len(rt.pending))
	copy(out, rt.pending)
	return out
}

// Evaluate checks the market price against the next unfilled rung.
// Returns an intent when a rung is crossed, and ErrLadderExhausted exactly
// once when price sinks below the deepest trigger after max_so is filled.
func (s *SafetyOrderScheduler) Evaluate(pos *domain.Position, price float64) (domain.SafetyOrderIntent, bool, error) {
	switch pos.State {
	case domain.StateOpenNoSO, domain.StateOpenPartialSO, domain.StateOpenMaxSO:
	default:
		return domain.SafetyOrderIntent{}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.runtimes[pos.Pair]
	if !ok {
		return domain.SafetyOrderIntent{}, false, nil
	}

	if pos.State == domain.StateOpenMaxSO || len(rt.pending) == 0 {
		if rt.deepestTrigger > 0 && price < rt.deepestTrigger && !rt.exhaustedLogged {
			rt.exhaustedLogged = true
			return domain.SafetyOrderIntent{}, false, domain.ErrLadderExhausted
		}
		return domain.SafetyOrderIntent{}, false, nil
	}

	if rt.awaitingFill {
		return domain.SafetyOrderIntent{}, false, nil
	}

	next := rt.pending[0]
	if price > next.TriggerPrice {
		return domain.SafetyOrderIntent{}, false, nil
	}

	rt.awaitingFill = true
	return domain.SafetyOrderIntent{
		Pair:         pos.Pair,
		OrderIndex:   next.OrderIndex,
		TriggerPrice: next.TriggerPrice,
		Stake:        next.StakeAmount,
	}, true, nil
}

// OnSafetyFill consumes a fill confirmation for the fired rung: the average
// price is recomputed as a stake-weighted mean, the state machine advances
// and, in shift mode, the remaining rungs are rebased onto the fill price.
func (s *SafetyOrderScheduler) OnSafetyFill(pos *domain.Position, fillPrice float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.runtimes[pos.Pair]
	if !ok || len(rt.pending) == 0 {
		return
	}

	rung := rt.pending[0]
	rt.pending = rt.pending[1:]
	rt.awaitingFill = false

	pos.AveragePrice = (pos.AveragePrice*pos.TotalStake + fillPrice*rung.StakeAmount) /
		(pos.TotalStake + rung.StakeAmount)
	pos.TotalStake += rung.StakeAmount
	pos.FilledSafetyOrders++

	if pos.FilledSafetyOrders >= pos.Profile.MaxSafetyOrders {
		pos.State = domain.StateOpenMaxSO
	} else {
		pos.State = domain.StateOpenPartialSO
	}

	if pos.LadderMode == domain.LadderShift && pos.State != domain.StateOpenMaxSO {
		rt.pending = s.builder.Rebase(pos.Profile, fillPrice, pos.BaseStake, pos.FilledSafetyOrders)
		if len(rt.pending) > 0 {
			rt.deepestTrigger = rt.pending[len(rt.pending)-1].TriggerPrice
		}
	}

	s.logger.Info("Safety order filled",
		zap.String("pair", pos.Pair),
		zap.Int("order_index", rung.OrderIndex),
		zap.Float64("fill_price", fillPrice),
		zap.Float64("average_price", pos.AveragePrice),
		zap.String("state", string(pos.State)))
}

// ResetFire clears the awaiting-fill flag after a fired safety order was
// cancelled or its submission failed, so the rung can fire again.
func (s *SafetyOrderScheduler) ResetFire(pair string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.runtimes[pair]; ok {
		rt.awaitingFill = false
	}
}

// Drop discards the runtime when the position closes.
func (s *SafetyOrderScheduler) Drop(pair string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runtimes, pair)
}
