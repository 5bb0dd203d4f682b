// Package wallet holds participant balances and the append-only ledger
// of every balance mutation. Balances are mutated only through the
// atomic Debit/Credit primitives and can never go negative.
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Store is the balance backend. Debit and Credit are single atomic
// steps; there is no read-then-write window for callers to race
// through.
type Store interface {
	Balance(ctx context.Context, participantID, currency string) (decimal.Decimal, error)
	Debit(ctx context.Context, participantID, currency string, amount decimal.Decimal) (before, after decimal.Decimal, err error)
	Credit(ctx context.Context, participantID, currency string, amount decimal.Decimal) (before, after decimal.Decimal, err error)
}

type EntryType string

const (
	EntryWager      EntryType = "wager"
	EntryWithdrawal EntryType = "withdrawal"
	EntryDeposit    EntryType = "deposit"
)

// LedgerEntry is an immutable audit record of one balance mutation.
// Amount is negative for debits, positive for credits.
type LedgerEntry struct {
	ID            string          `json:"id"`
	ParticipantID string          `json:"participant_id"`
	Currency      string          `json:"currency"`
	Type          EntryType       `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	RoundID       string          `json:"round_id,omitempty"`
	WagerID       string          `json:"wager_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Ledger is an append-only sink. Entries are never mutated after
// creation.
type Ledger interface {
	Append(ctx context.Context, entry LedgerEntry) error
}
