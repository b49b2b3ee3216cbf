package usecase

import (
	"sync"
	"time"

	"github.com/vitos/crypto_dca_bot/internal/domain"
	"go.uber.org/zap"
)

// OrderTimeoutMonitor tracks unfilled entry and exit orders and emits cancel
// intents once their age exceeds the configured timeout. Exit cancellations
// are counted per position; past the budget the position is surfaced as
// failed instead of retried again. A budget of 0 means unlimited retries.
type OrderTimeoutMonitor struct {
	entryTimeout   time.Duration
	exitTimeout    time.Duration
	maxExitCancels int
	logger         *zap.Logger

	mu     sync.Mutex
	orders map[string][]*domain.PendingOrder // pair -> outstanding orders
}

func NewOrderTimeoutMonitor(entryTimeout, exitTimeout time.Duration, maxExitCancels int, logger *zap.Logger) *OrderTimeoutMonitor {
	return &OrderTimeoutMonitor{
		entryTimeout:   entryTimeout,
		exitTimeout:    exitTimeout,
		maxExitCancels: maxExitCancels,
		logger:         logger,
		orders:         make(map[string][]*domain.PendingOrder),
	}
}

// Track registers an order submitted to the exchange.
func (m *OrderTimeoutMonitor) Track(order *domain.PendingOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.Pair] = append(m.orders[order.Pair], order)
}

// Resolve removes an order once its fill or cancel confirmation arrives.
func (m *OrderTimeoutMonitor) Resolve(pair, orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := m.orders[pair]
	for i, o := range orders {
		if o.ID == orderID {
			m.orders[pair] = append(orders[:i], orders[i+1:]...)
			break
		}
	}
	if len(m.orders[pair]) == 0 {
		delete(m.orders, pair)
	}
}

// Outstanding reports whether the pair still has an unresolved order of the
// given kind.
func (m *OrderTimeoutMonitor) Outstanding(pair string, kind domain.OrderKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders[pair] {
		if o.Kind == kind {
			return true
		}
	}
	return false
}

// Check returns cancel intents for every aged order of the position, at most
// one per order. When an exit cancellation pushes the position past its
// budget, a TimeoutExceededError is returned alongside the intents.
func (m *OrderTimeoutMonitor) Check(now time.Time, pos *domain.Position) ([]domain.CancelIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var intents []domain.CancelIntent
	var err error
	for _, o := range m.orders[pos.Pair] {
		if o.CancelSent {
			continue
		}
		timeout := m.entryTimeout
		if o.Kind == domain.OrderExit {
			timeout = m.exitTimeout
		}
		if timeout <= 0 || now.Sub(o.SubmittedAt) <= timeout {
			continue
		}

		o.CancelSent = true
		intents = append(intents, domain.CancelIntent{Pair: o.Pair, OrderID: o.ID, Kind: o.Kind})
		m.logger.Warn("Order timed out, cancelling",
			zap.String("pair", o.Pair),
			zap.String("order_id", o.ID),
			zap.String("kind", string(o.Kind)),
			zap.Duration("age", now.Sub(o.SubmittedAt)))

		if o.Kind == domain.OrderExit {
			pos.ExitCancelCount++
			if m.maxExitCancels > 0 && pos.ExitCancelCount > m.maxExitCancels {
				err = &domain.TimeoutExceededError{
					Pair:    pos.Pair,
					Cancels: pos.ExitCancelCount,
					Max:     m.maxExitCancels,
				}
			}
		}
	}
	return intents, err
}

// Drop forgets all orders of a pair when its position closes.
func (m *OrderTimeoutMonitor) Drop(pair string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, pair)
}
