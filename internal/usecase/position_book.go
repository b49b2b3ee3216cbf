package usecase

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vitos/crypto_dca_bot/internal/domain"
	"go.uber.org/zap"
)

// PositionBook owns every open position and the global open-trade counter.
// Open performs the capacity check and the insert under one lock, so
// concurrent open attempts cannot race past max_open_trades.
type PositionBook struct {
	maxOpenTrades int
	walletBudget  float64 // dry_run_wallet * tradable_balance_ratio
	lockDuration  time.Duration
	logger        *zap.Logger

	mu        sync.RWMutex
	positions map[string]*domain.Position
	committed float64              // stake reserved by open positions, full ladders included
	locks     map[string]time.Time // pair -> locked until
}

func NewPositionBook(maxOpenTrades int, walletBudget float64, lockDuration time.Duration, logger *zap.Logger) *PositionBook {
	return &PositionBook{
		maxOpenTrades: maxOpenTrades,
		walletBudget:  walletBudget,
		lockDuration:  lockDuration,
		logger:        logger,
		positions:     make(map[string]*domain.Position),
		locks:         make(map[string]time.Time),
	}
}

// Open registers a new position if capacity allows. ladderStake is the full
// capital the position can commit (entry plus every safety order).
func (b *PositionBook) Open(pos *domain.Position, ladderStake float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if until, ok := b.locks[pos.Pair]; ok {
		if time.Now().Before(until) {
			return fmt.Errorf("%w until %s", domain.ErrPairLocked, until.Format(time.RFC3339))
		}
		delete(b.locks, pos.Pair)
	}
	if _, ok := b.positions[pos.Pair]; ok {
		return &domain.CapacityError{Reason: fmt.Sprintf("position already open for %s", pos.Pair)}
	}
	if len(b.positions) >= b.maxOpenTrades {
		return &domain.CapacityError{Reason: fmt.Sprintf("max_open_trades %d reached", b.maxOpenTrades)}
	}
	if b.committed+ladderStake > b.walletBudget {
		return &domain.CapacityError{
			Reason: fmt.Sprintf("stake %.2f exceeds tradable balance budget %.2f (committed %.2f)",
				ladderStake, b.walletBudget, b.committed),
		}
	}

	b.positions[pos.Pair] = pos
	b.committed += ladderStake
	b.logger.Info("Position opened",
		zap.String("pair", pos.Pair),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("ladder_stake", ladderStake))
	return nil
}

func (b *PositionBook) Get(pair string) (*domain.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[pair]
	return pos, ok
}

// Pairs returns open pairs in a stable order for tick iteration.
func (b *PositionBook) Pairs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pairs := make([]string, 0, len(b.positions))
	for pair := range b.positions {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	return pairs
}

func (b *PositionBook) OpenCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// Close removes the position, releases its budget and auto-locks the pair.
func (b *PositionBook) Close(pair string, ladderStake float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.positions[pair]; !ok {
		return
	}
	delete(b.positions, pair)
	b.committed -= ladderStake
	if b.committed < 0 {
		b.committed = 0
	}
	b.locks[pair] = time.Now().Add(b.lockDuration)
	b.logger.Info("Position closed, pair auto-locked",
		zap.String("pair", pair),
		zap.Duration("lock", b.lockDuration))
}

// Unlock clears a pair's auto-lock ahead of time.
func (b *PositionBook) Unlock(pair string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.locks, pair)
}

// LockedUntil reports the remaining auto-lock for a pair, if any.
func (b *PositionBook) LockedUntil(pair string) (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	until, ok := b.locks[pair]
	if !ok || time.Now().After(until) {
		return time.Time{}, false
	}
	return until, true
}
