package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"altitude/internal/config"
	"altitude/internal/wallet"
)

// RateSource supplies conversion rates from the reference currency to
// each settlement currency. A zero, negative or missing rate is treated
// as price-unavailable by the engine.
type RateSource interface {
	Rate(ctx context.Context, currency string) (float64, error)
}

// SettlementEngine validates and applies wager placement and
// withdrawal. It is the only component that moves money: every balance
// mutation goes through the wallet's atomic debit/credit and leaves a
// ledger entry behind.
type SettlementEngine struct {
	store  *RoundStore
	wallet wallet.Store
	ledger wallet.Ledger
	rates  RateSource
	events Broadcaster
	cfg    *config.Config
}

func NewSettlementEngine(store *RoundStore, w wallet.Store, ledger wallet.Ledger, rates RateSource, events Broadcaster, cfg *config.Config) *SettlementEngine {
	if events == nil {
		events = NopBroadcaster{}
	}
	return &SettlementEngine{
		store:  store,
		wallet: w,
		ledger: ledger,
		rates:  rates,
		events: events,
		cfg:    cfg,
	}
}

// PlaceWager converts a reference-currency stake into a settlement
// position in the current round. The balance debit and the wager append
// form one unit: if the append loses the race against round activation
// the debit is rolled back with a compensating credit, so a debited but
// unrecorded wager cannot exist.
func (e *SettlementEngine) PlaceWager(ctx context.Context, participantID string, stake float64, currency string) (*Wager, error) {
	if participantID == "" {
		return nil, fmt.Errorf("%w: participant id required", ErrInvalidInput)
	}
	if stake < e.cfg.Game.MinStake || stake > e.cfg.Game.MaxStake {
		return nil, fmt.Errorf("%w: stake must be between %.2f and %.2f", ErrInvalidInput, e.cfg.Game.MinStake, e.cfg.Game.MaxStake)
	}
	if !e.cfg.Supported(currency) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}

	round, ok := e.store.Current()
	if !ok || round.Status != StatusWaiting {
		return nil, ErrRoundNotAcceptingWagers
	}

	rate, err := e.rates.Rate(ctx, currency)
	if err != nil || rate <= 0 {
		return nil, ErrPriceUnavailable
	}

	refCur := e.cfg.ReferenceCurrency
	stakeDec := decimal.NewFromFloat(stake).Round(config.Precision(refCur))

	before, after, err := e.wallet.Debit(ctx, participantID, refCur, stakeDec)
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			return nil, ErrInsufficientBalance
		}
		return nil, fmt.Errorf("debit stake: %w", err)
	}

	converted := stakeDec.Div(decimal.NewFromFloat(rate)).Round(config.Precision(currency))
	w := &Wager{
		ID:              uuid.NewString(),
		RoundID:         round.ID,
		ParticipantID:   participantID,
		Stake:           stakeDec.InexactFloat64(),
		Currency:        currency,
		Rate:            rate,
		ConvertedAmount: converted.InexactFloat64(),
		PlacedAt:        time.Now(),
	}

	if err := e.store.AppendWager(round.ID, w); err != nil {
		// The wagering window closed between the status check and the
		// append. Undo the debit; the caller sees a clean rejection.
		if _, _, cErr := e.wallet.Credit(ctx, participantID, refCur, stakeDec); cErr != nil {
			log.Printf("[SETTLE] rollback credit failed for %s: %v", participantID, cErr)
		}
		return nil, ErrRoundNotAcceptingWagers
	}

	e.appendLedger(ctx, wallet.LedgerEntry{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		Currency:      refCur,
		Type:          wallet.EntryWager,
		Amount:        stakeDec.Neg(),
		BalanceBefore: before,
		BalanceAfter:  after,
		RoundID:       round.ID,
		WagerID:       w.ID,
		CreatedAt:     time.Now(),
	})

	e.events.Publish(WagerPlacedEvent{
		RoundID:         round.ID,
		ParticipantID:   participantID,
		Stake:           w.Stake,
		ConvertedAmount: w.ConvertedAmount,
		Currency:        currency,
	})

	return w, nil
}

// Withdraw settles the participant's open wager at the live multiplier.
// The store's settle compare-and-set guarantees at most one success per
// wager regardless of concurrent calls; losers of the race and calls
// arriving after the crash both see ErrNoOpenWager.
func (e *SettlementEngine) Withdraw(ctx context.Context, participantID string) (*Wager, error) {
	if participantID == "" {
		return nil, fmt.Errorf("%w: participant id required", ErrInvalidInput)
	}

	round, ok := e.store.Current()
	if !ok || round.Status != StatusActive {
		return nil, ErrRoundNotActive
	}

	elapsed := time.Since(round.ActivatedAt).Milliseconds()
	multiplier := MultiplierAt(elapsed, e.cfg.Game.GrowthFactor)

	settled, err := e.store.SettleWager(round.ID, participantID, multiplier)
	if err != nil {
		return nil, ErrNoOpenWager
	}

	payout := decimal.NewFromFloat(settled.Settlement.ConvertedPayout).Round(config.Precision(settled.Currency))
	before, after, err := e.wallet.Credit(ctx, participantID, settled.Currency, payout)
	if err != nil {
		// The settlement is already recorded; surface the failure and
		// leave reconciliation to the ledger rather than double-settle.
		log.Printf("[SETTLE] payout credit failed for %s wager %s: %v", participantID, settled.ID, err)
		return nil, fmt.Errorf("credit payout: %w", err)
	}

	e.appendLedger(ctx, wallet.LedgerEntry{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		Currency:      settled.Currency,
		Type:          wallet.EntryWithdrawal,
		Amount:        payout,
		BalanceBefore: before,
		BalanceAfter:  after,
		RoundID:       round.ID,
		WagerID:       settled.ID,
		CreatedAt:     time.Now(),
	})

	e.events.Publish(WagerSettledEvent{
		RoundID:         round.ID,
		ParticipantID:   participantID,
		Multiplier:      settled.Settlement.Multiplier,
		ConvertedPayout: settled.Settlement.ConvertedPayout,
		ReferencePayout: settled.Settlement.ReferencePayout,
		Currency:        settled.Currency,
	})

	return settled, nil
}

// Deposit credits a participant's balance outside of round play.
func (e *SettlementEngine) Deposit(ctx context.Context, participantID string, amount float64, currency string) (decimal.Decimal, error) {
	if participantID == "" || amount <= 0 {
		return decimal.Zero, fmt.Errorf("%w: participant id and positive amount required", ErrInvalidInput)
	}
	if currency != e.cfg.ReferenceCurrency && !e.cfg.Supported(currency) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}

	amt := decimal.NewFromFloat(amount).Round(config.Precision(currency))
	before, after, err := e.wallet.Credit(ctx, participantID, currency, amt)
	if err != nil {
		return decimal.Zero, fmt.Errorf("credit deposit: %w", err)
	}

	e.appendLedger(ctx, wallet.LedgerEntry{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		Currency:      currency,
		Type:          wallet.EntryDeposit,
		Amount:        amt,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     time.Now(),
	})

	return after, nil
}

func (e *SettlementEngine) appendLedger(ctx context.Context, entry wallet.LedgerEntry) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.Append(ctx, entry); err != nil {
		log.Printf("[SETTLE] ledger append failed for %s: %v", entry.ParticipantID, err)
	}
}
