package wallet

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore is a mutex-guarded in-process balance store. It backs
// tests and single-node deployments that run without Redis.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]map[string]decimal.Decimal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[string]map[string]decimal.Decimal)}
}

func (s *MemoryStore) Balance(_ context.Context, participantID, currency string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[participantID][currency], nil
}

func (s *MemoryStore) Debit(_ context.Context, participantID, currency string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.balances[participantID][currency]
	if before.LessThan(amount) {
		return before, before, ErrInsufficientFunds
	}
	after := before.Sub(amount)
	s.set(participantID, currency, after)
	return before, after, nil
}

func (s *MemoryStore) Credit(_ context.Context, participantID, currency string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.balances[participantID][currency]
	after := before.Add(amount)
	s.set(participantID, currency, after)
	return before, after, nil
}

func (s *MemoryStore) set(participantID, currency string, v decimal.Decimal) {
	m := s.balances[participantID]
	if m == nil {
		m = make(map[string]decimal.Decimal)
		s.balances[participantID] = m
	}
	m[currency] = v
}

// MemoryLedger keeps entries in order of appending. Test and dev use.
type MemoryLedger struct {
	mu      sync.Mutex
	entries []LedgerEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Append(_ context.Context, entry LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns a copy of everything appended so far.
func (l *MemoryLedger) Entries() []LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
