package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/crypto_dca_bot/internal/config"
	"github.com/vitos/crypto_dca_bot/internal/domain"
	"go.uber.org/zap"
)

// StrategyVersion is logged at startup and exposed on the status endpoint.
const StrategyVersion = "1.2.0"

// Exit reasons. Forced reasons bypass the minimum-profit check.
const (
	ExitReasonROI          = "roi"
	ExitReasonStopLoss     = "stop_loss"
	ExitReasonTrailingStop = "trailing_stop_loss"
	ExitReasonSignal       = "exit_signal"
	ExitReasonForce        = "force_exit"
	ExitReasonEmergency    = "emergency_exit"
)

// Engine drives the whole strategy: it owns the position book, the safety
// order scheduler, the trailing controller and the timeout monitor, and
// evaluates every open position once per clock tick. Fills and cancels are
// delivered by the execution collaborator between ticks.
type Engine struct {
	cfg       *config.Config
	book      *PositionBook
	builder   *LadderBuilder
	scheduler *SafetyOrderScheduler
	trailing  *TrailingStopController
	timeouts  *OrderTimeoutMonitor
	executor  domain.Executor
	fills     domain.FillRepository
	history   domain.PositionRepository
	logger    *zap.Logger

	// stateMu serializes everything that mutates position structs: the tick
	// body, fill and cancel confirmations, and opens. Other goroutines never
	// touch live positions; they read value copies via Positions.
	stateMu sync.Mutex

	mu             sync.RWMutex
	lastPrices     map[string]float64
	exitReasons    map[string]string
	exitSeq        map[string]int
	removeAutolock []string
}

func NewEngine(
	cfg *config.Config,
	executor domain.Executor,
	fills domain.FillRepository,
	history domain.PositionRepository,
	logger *zap.Logger,
) *Engine {
	builder := NewLadderBuilder()
	book := NewPositionBook(
		cfg.MaxOpenTrades,
		cfg.DryRunWallet*cfg.TradableBalanceRatio,
		time.Duration(cfg.Internals.PairLockSecs)*time.Second,
		logger,
	)
	return &Engine{
		cfg:         cfg,
		book:        book,
		builder:     builder,
		scheduler:   NewSafetyOrderScheduler(builder, logger),
		trailing:    NewTrailingStopController(cfg.TrailingStopPositive, cfg.TrailingStopPositiveOffset),
		timeouts:    NewOrderTimeoutMonitor(cfg.EntryTimeout(), cfg.ExitTimeout(), cfg.Unfilledtimeout.ExitTimeoutCount, logger),
		executor:    executor,
		fills:       fills,
		history:     history,
		logger:      logger,
		lastPrices:  make(map[string]float64),
		exitReasons: make(map[string]string),
		exitSeq:     make(map[string]int),
	}
}

func (e *Engine) Version() string { return StrategyVersion }

func (e *Engine) Book() *PositionBook { return e.book }

// Ladder exposes a position's remaining rungs for status reporting.
func (e *Engine) Ladder(pair string) []domain.LadderEntry {
	return e.scheduler.Ladder(pair)
}

// ProcessPrice records a price update from the feed. Positions are only
// re-evaluated on the next clock tick.
func (e *Engine) ProcessPrice(pair string, price float64) {
	e.mu.Lock()
	e.lastPrices[pair] = price
	e.mu.Unlock()
}

func (e *Engine) LastPrice(pair string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastPrices[pair]
}

// PositionStatus is a value copy of one open position for status reporting.
type PositionStatus struct {
	Pair               string
	State              domain.PositionState
	EntryPrice         float64
	AveragePrice       float64
	TotalStake         float64
	FilledSafetyOrders int
	StopPrice          float64
	LastPrice          float64
	Ladder             []domain.LadderEntry
}

// Positions snapshots every open position under the tick lock, so callers on
// other goroutines never observe a position mid-mutation.
func (e *Engine) Positions() []PositionStatus {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	pairs := e.book.Pairs()
	statuses := make([]PositionStatus, 0, len(pairs))
	for _, pair := range pairs {
		pos, ok := e.book.Get(pair)
		if !ok {
			continue
		}
		statuses = append(statuses, PositionStatus{
			Pair:               pos.Pair,
			State:              pos.State,
			EntryPrice:         pos.EntryPrice,
			AveragePrice:       pos.AveragePrice,
			TotalStake:         pos.TotalStake,
			FilledSafetyOrders: pos.FilledSafetyOrders,
			StopPrice:          pos.StopPrice,
			LastPrice:          e.LastPrice(pair),
			Ladder:             e.scheduler.Ladder(pair),
		})
	}
	return statuses
}

// Start runs the strategy clock until the context is cancelled. The tick
// body runs inline, so the next tick cannot start before the previous one
// finished.
func (e *Engine) Start(ctx context.Context) {
	interval := time.Duration(e.cfg.Internals.ProcessThrottleSecs) * time.Second
	e.logger.Info("Strategy engine started",
		zap.String("version", e.Version()),
		zap.Duration("tick_interval", interval),
		zap.String("safety_order_mode", e.cfg.SafetyOrderMode))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Strategy engine stopped")
			return
		case <-ticker.C:
			e.Tick(ctx, time.Now())
		}
	}
}

// ScheduleUnlock queues a pair for auto-lock removal at the start of the
// next tick, allowing immediate re-entry after a close.
func (e *Engine) ScheduleUnlock(pair string) {
	e.mu.Lock()
	e.removeAutolock = append(e.removeAutolock, pair)
	e.mu.Unlock()
}

// Tick evaluates every open position exactly once, in stable pair order.
// A failure in one position never aborts the others.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.mu.Lock()
	removals := e.removeAutolock
	e.removeAutolock = nil
	e.mu.Unlock()
	for _, pair := range removals {
		e.book.Unlock(pair)
		e.logger.Info("Auto-lock removed", zap.String("pair", pair))
	}

	for _, pair := range e.book.Pairs() {
		pos, ok := e.book.Get(pair)
		if !ok {
			continue
		}
		price := e.LastPrice(pair)
		if err := e.evaluatePosition(ctx, now, pos, price); err != nil {
			e.logger.Error("Position evaluation failed",
				zap.String("pair", pair), zap.Error(err))
		}
	}
}

func (e *Engine) evaluatePosition(ctx context.Context, now time.Time, pos *domain.Position, price float64) error {
	if pos.Failed {
		return nil
	}

	cancels, timeoutErr := e.timeouts.Check(now, pos)
	for _, c := range cancels {
		if err := e.executor.CancelOrder(ctx, c); err != nil {
			e.logger.Error("Cancel intent failed",
				zap.String("pair", c.Pair), zap.String("order_id", c.OrderID), zap.Error(err))
		}
	}
	if timeoutErr != nil {
		pos.Failed = true
		if err := e.executor.EmergencyExit(ctx, pos.Pair, timeoutErr.Error()); err != nil {
			e.logger.Error("Emergency exit intent failed", zap.String("pair", pos.Pair), zap.Error(err))
		}
		return timeoutErr
	}

	if pos.State == domain.StateAwaitingEntry || price <= 0 {
		return nil
	}

	intent, fire, err := e.scheduler.Evaluate(pos, price)
	if errors.Is(err, domain.ErrLadderExhausted) {
		e.logger.Info("Ladder exhausted, no further averaging",
			zap.String("pair", pos.Pair), zap.Float64("price", price))
	}
	if fire {
		orderID := fmt.Sprintf("%s-so-%d", pos.Pair, intent.OrderIndex)
		if err := e.executor.SubmitSafetyOrder(ctx, intent); err != nil {
			e.scheduler.ResetFire(pos.Pair)
			return fmt.Errorf("safety order intent: %w", err)
		}
		e.timeouts.Track(&domain.PendingOrder{
			ID:          orderID,
			Pair:        pos.Pair,
			Kind:        domain.OrderEntry,
			Price:       intent.TriggerPrice,
			Stake:       intent.Stake,
			SubmittedAt: now,
		})
	}

	profit := profitRatio(pos.AveragePrice, price)
	if newStop, changed := e.trailing.Evaluate(pos, price, profit); changed {
		if err := e.executor.UpdateStop(ctx, pos.Pair, newStop); err != nil {
			return fmt.Errorf("stop update intent: %w", err)
		}
	}

	if pos.StopPrice > 0 && price <= pos.StopPrice && !e.timeouts.Outstanding(pos.Pair, domain.OrderExit) {
		if err := e.requestExit(ctx, pos.Pair, price, ExitReasonTrailingStop); err != nil {
			e.logger.Warn("Exit not placed",
				zap.String("pair", pos.Pair), zap.Error(err))
		}
	}
	return nil
}

// OpenPosition resolves the pair's effective configuration and registers a
// new position awaiting its entry fill. Capacity is checked against the full
// ladder cost, not just the initial stake.
func (e *Engine) OpenPosition(ctx context.Context, pair string, signalPrice float64) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	profile, err := e.cfg.ResolveProfile(pair)
	if err != nil {
		return err
	}

	pos := &domain.Position{
		Pair:        pair,
		Side:        domain.SideLong,
		State:       domain.StateAwaitingEntry,
		EntryPrice:  signalPrice,
		BaseStake:   e.cfg.StakeAmount,
		Leverage:    e.cfg.ResolveLeverage(pair, domain.SideLong),
		LadderMode:  domain.LadderMode(e.cfg.SafetyOrderMode),
		Profile:     profile,
		Breakpoints: e.cfg.Breakpoints(pair),
		OpenedAt:    time.Now(),
	}

	ladderStake := e.builder.TotalStake(profile, pos.BaseStake)
	if err := e.book.Open(pos, ladderStake); err != nil {
		return err
	}

	e.timeouts.Track(&domain.PendingOrder{
		ID:          pair + "-entry",
		Pair:        pair,
		Kind:        domain.OrderEntry,
		Price:       signalPrice,
		Stake:       pos.BaseStake,
		SubmittedAt: time.Now(),
	})
	return nil
}

// OnEntryFill confirms the initial entry: the position becomes open and its
// reference ladder is computed from the actual fill price.
func (e *Engine) OnEntryFill(ctx context.Context, pair string, fillPrice float64) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	pos, ok := e.book.Get(pair)
	if !ok || pos.State != domain.StateAwaitingEntry {
		return
	}

	e.timeouts.Resolve(pair, pair+"-entry")
	pos.EntryPrice = fillPrice
	pos.AveragePrice = fillPrice
	pos.TotalStake = pos.BaseStake
	e.scheduler.InitLadder(pos)
	e.ProcessPrice(pair, fillPrice)

	e.saveFill(ctx, &domain.Fill{
		Pair:     pair,
		Price:    fillPrice,
		Stake:    pos.BaseStake,
		FilledAt: time.Now(),
	})
}

// OnSafetyFill consumes a safety-order fill confirmation.
func (e *Engine) OnSafetyFill(ctx context.Context, pair string, fillPrice float64) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	pos, ok := e.book.Get(pair)
	if !ok {
		return
	}

	index := pos.FilledSafetyOrders + 1
	e.timeouts.Resolve(pair, fmt.Sprintf("%s-so-%d", pair, index))
	stakeBefore := pos.TotalStake
	e.scheduler.OnSafetyFill(pos, fillPrice)
	e.ProcessPrice(pair, fillPrice)

	e.saveFill(ctx, &domain.Fill{
		Pair:       pair,
		OrderIndex: index,
		Price:      fillPrice,
		Stake:      pos.TotalStake - stakeBefore,
		FilledAt:   time.Now(),
	})
}

// RequestExit confirms and submits an exit. Non-forced exits are rejected
// while profit is at or below the configured minimum, so fees never turn a
// nominal win into a loss; force and emergency exits always pass.
func (e *Engine) RequestExit(ctx context.Context, pair string, price float64, reason string) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.requestExit(ctx, pair, price, reason)
}

func (e *Engine) requestExit(ctx context.Context, pair string, price float64, reason string) error {
	pos, ok := e.book.Get(pair)
	if !ok {
		return fmt.Errorf("no open position for %s", pair)
	}

	if reason != ExitReasonForce && reason != ExitReasonEmergency {
		minProfit := e.cfg.MinProfitRatio()
		profit := profitRatio(pos.AveragePrice, price)
		if profit <= minProfit {
			return fmt.Errorf("reject exit (%s) for %s: profit %.4f below minimum %.4f",
				reason, pair, profit, minProfit)
		}
	}
	return e.submitExit(ctx, pos, price, reason)
}

func (e *Engine) submitExit(ctx context.Context, pos *domain.Position, price float64, reason string) error {
	e.mu.Lock()
	e.exitSeq[pos.Pair]++
	seq := e.exitSeq[pos.Pair]
	e.exitReasons[pos.Pair] = reason
	e.mu.Unlock()

	orderID := fmt.Sprintf("%s-exit-%d", pos.Pair, seq)
	intent := domain.ExitIntent{Pair: pos.Pair, OrderID: orderID, Price: price, Reason: reason}
	if err := e.executor.SubmitExit(ctx, intent); err != nil {
		return fmt.Errorf("exit intent: %w", err)
	}

	e.timeouts.Track(&domain.PendingOrder{
		ID:          orderID,
		Pair:        pos.Pair,
		Kind:        domain.OrderExit,
		Price:       price,
		Stake:       pos.TotalStake,
		SubmittedAt: time.Now(),
	})
	return nil
}

// OnOrderCancelled consumes a cancel confirmation. A cancelled initial entry
// destroys the position; a cancelled safety order re-arms its rung; a
// cancelled exit is retried at the last known price unless the position has
// already been marked failed.
func (e *Engine) OnOrderCancelled(ctx context.Context, pair, orderID string, kind domain.OrderKind) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.timeouts.Resolve(pair, orderID)
	pos, ok := e.book.Get(pair)
	if !ok {
		return
	}

	if kind == domain.OrderEntry {
		if pos.State == domain.StateAwaitingEntry {
			pos.State = domain.StateClosed
			e.book.Close(pair, e.builder.TotalStake(pos.Profile, pos.BaseStake))
			e.book.Unlock(pair) // nothing traded, no reason to lock
			e.logger.Info("Entry cancelled, position discarded", zap.String("pair", pair))
			return
		}
		e.scheduler.ResetFire(pair)
		return
	}

	if pos.Failed {
		return
	}
	e.mu.RLock()
	reason := e.exitReasons[pair]
	e.mu.RUnlock()
	if err := e.submitExit(ctx, pos, e.LastPrice(pair), reason); err != nil {
		e.logger.Error("Exit retry failed", zap.String("pair", pair), zap.Error(err))
	}
}

// OnExitFill finalizes the position: history is persisted, runtime state is
// dropped and the pair is auto-locked.
func (e *Engine) OnExitFill(ctx context.Context, pair string, exitPrice float64) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	pos, ok := e.book.Get(pair)
	if !ok {
		return
	}

	e.mu.Lock()
	reason := e.exitReasons[pair]
	delete(e.exitReasons, pair)
	delete(e.exitSeq, pair)
	e.mu.Unlock()

	pos.State = domain.StateClosed
	realized := pos.TotalStake * (exitPrice/pos.AveragePrice - 1)

	if e.history != nil {
		record := &domain.PositionHistory{
			Pair:         pair,
			Side:         pos.Side,
			AveragePrice: pos.AveragePrice,
			ExitPrice:    exitPrice,
			Stake:        pos.TotalStake,
			RealizedPnL:  realized,
			SafetyOrders: pos.FilledSafetyOrders,
			ExitReason:   reason,
			ClosedAt:     time.Now(),
		}
		if err := e.history.SavePositionHistory(ctx, record); err != nil {
			e.logger.Error("Failed to save position history", zap.String("pair", pair), zap.Error(err))
		}
	}

	e.scheduler.Drop(pair)
	e.timeouts.Drop(pair)
	e.book.Close(pair, e.builder.TotalStake(pos.Profile, pos.BaseStake))
	e.logger.Info("Position exited",
		zap.String("pair", pair),
		zap.String("reason", reason),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("realized_pnl", realized),
		zap.Int("safety_orders", pos.FilledSafetyOrders))
}

func (e *Engine) saveFill(ctx context.Context, fill *domain.Fill) {
	if e.fills == nil {
		return
	}
	if err := e.fills.SaveFill(ctx, fill); err != nil {
		e.logger.Error("Failed to save fill", zap.String("pair", fill.Pair), zap.Error(err))
	}
}

func profitRatio(averagePrice, price float64) float64 {
	if averagePrice <= 0 {
		return 0
	}
	return (price - averagePrice) / averagePrice
}
