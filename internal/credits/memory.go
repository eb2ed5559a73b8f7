package credits

import (
	"context"
	"sync"
)

// MemoryLedger is an in-process ledger. Accounts not yet seen start at the
// default balance.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int
	initial  int
}

func NewMemoryLedger(initial int) *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]int), initial: initial}
}

// Set overwrites a user's balance.
func (m *MemoryLedger) Set(userID string, balance int) {
	m.mu.Lock()
	m.balances[userID] = balance
	m.mu.Unlock()
}

func (m *MemoryLedger) balanceLocked(userID string) int {
	b, ok := m.balances[userID]
	if !ok {
		b = m.initial
		m.balances[userID] = b
	}
	return b
}

func (m *MemoryLedger) Balance(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(userID), nil
}

func (m *MemoryLedger) Deduct(_ context.Context, userID string, amount int) (DeductResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.balanceLocked(userID)
	if b < amount {
		return DeductResult{Success: false, Remaining: b}, nil
	}
	m.balances[userID] = b - amount
	return DeductResult{Success: true, Remaining: b - amount}, nil
}
