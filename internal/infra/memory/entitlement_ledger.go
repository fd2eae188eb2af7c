package memory

import (
	"context"
	"sync"

	"testseries-attempt-service/internal/domain"
)

// EntitlementLedger is an in-memory implementation of app.EntitlementLedger.
// Consume is a compare-and-set under the write lock, so one order can never
// authorize two attempts.
type EntitlementLedger struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewEntitlementLedger(orders ...domain.Order) *EntitlementLedger {
	l := &EntitlementLedger{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		l.orders[o.ID] = o
	}
	return l
}

// Add records a settled purchase (used by seeding and tests).
func (l *EntitlementLedger) Add(o domain.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders[o.ID] = o
}

func (l *EntitlementLedger) FindUnused(_ context.Context, studentID, testID string) (domain.Order, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, o := range l.orders {
		if o.StudentID == studentID && o.Settled && !o.AttemptUsed && o.Covers(testID) {
			return o, true, nil
		}
	}
	return domain.Order{}, false, nil
}

func (l *EntitlementLedger) Consume(_ context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[orderID]
	if !ok || o.AttemptUsed {
		return domain.ErrEntitlementUsed
	}
	o.AttemptUsed = true
	l.orders[orderID] = o
	return nil
}

func (l *EntitlementLedger) Release(_ context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[orderID]
	if !ok {
		return domain.ErrEntitlementUsed
	}
	o.AttemptUsed = false
	l.orders[orderID] = o
	return nil
}
