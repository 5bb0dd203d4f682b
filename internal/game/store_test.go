package game

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestRound(t *testing.T, s *RoundStore) *Round {
	t.Helper()
	round, err := s.CreateRound("R1-1", "seed", 2.5, "hash")
	if err != nil {
		t.Fatalf("CreateRound() error: %v", err)
	}
	return round
}

func testWager(participantID string) *Wager {
	return &Wager{
		ID:              participantID + "-w",
		RoundID:         "R1-1",
		ParticipantID:   participantID,
		Stake:           10,
		Currency:        "BTC",
		Rate:            10000,
		ConvertedAmount: 0.001,
		PlacedAt:        time.Now(),
	}
}

func TestCreateRound_RejectsSecondRound(t *testing.T) {
	s := NewRoundStore()
	newTestRound(t, s)

	if _, err := s.CreateRound("R1-2", "seed2", 3.0, "hash2"); !errors.Is(err, ErrRoundInProgress) {
		t.Errorf("CreateRound() error = %v, want ErrRoundInProgress", err)
	}

	// After the round crashes a new one may be created.
	s.Transition("R1-1", StatusWaiting, StatusActive)
	if _, err := s.Finalize("R1-1"); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if _, err := s.CreateRound("R1-2", "seed2", 3.0, "hash2"); err != nil {
		t.Errorf("CreateRound() after crash error = %v, want nil", err)
	}
}

func TestTransition_CompareAndSet(t *testing.T) {
	s := NewRoundStore()
	newTestRound(t, s)

	if !s.Transition("R1-1", StatusWaiting, StatusActive) {
		t.Fatal("Transition(WAITING->ACTIVE) = false, want true")
	}

	// A duplicate tick must be a no-op.
	if s.Transition("R1-1", StatusWaiting, StatusActive) {
		t.Error("duplicate Transition() = true, want false")
	}
	if s.Transition("R9-9", StatusActive, StatusCrashed) {
		t.Error("Transition() for unknown round = true, want false")
	}

	round, _ := s.Current()
	if round.Status != StatusActive {
		t.Errorf("status = %v, want ACTIVE", round.Status)
	}
	if round.ActivatedAt.IsZero() {
		t.Error("ActivatedAt not recorded on activation")
	}
}

func TestAppendWager_OnlyWhileWaiting(t *testing.T) {
	s := NewRoundStore()
	newTestRound(t, s)

	if err := s.AppendWager("R1-1", testWager("alice")); err != nil {
		t.Fatalf("AppendWager() while WAITING error: %v", err)
	}

	s.Transition("R1-1", StatusWaiting, StatusActive)
	if err := s.AppendWager("R1-1", testWager("bob")); !errors.Is(err, ErrRoundNotAcceptingWagers) {
		t.Errorf("AppendWager() while ACTIVE error = %v, want ErrRoundNotAcceptingWagers", err)
	}

	if err := s.AppendWager("R9-9", testWager("carol")); !errors.Is(err, ErrRoundNotFound) {
		t.Errorf("AppendWager() unknown round error = %v, want ErrRoundNotFound", err)
	}
}

func TestSettleWager(t *testing.T) {
	s := NewRoundStore()
	newTestRound(t, s)
	s.AppendWager("R1-1", testWager("alice"))

	// Settlement is gated on ACTIVE.
	if _, err := s.SettleWager("R1-1", "alice", 1.5); !errors.Is(err, ErrNoOpenWager) {
		t.Errorf("SettleWager() while WAITING error = %v, want ErrNoOpenWager", err)
	}

	s.Transition("R1-1", StatusWaiting, StatusActive)

	settled, err := s.SettleWager("R1-1", "alice", 1.5)
	if err != nil {
		t.Fatalf("SettleWager() error: %v", err)
	}
	if settled.Settlement == nil || !settled.Settlement.Won {
		t.Fatal("SettleWager() did not populate a winning settlement")
	}
	if got, want := settled.Settlement.ConvertedPayout, 0.001*1.5; got != want {
		t.Errorf("ConvertedPayout = %v, want %v", got, want)
	}
	if got, want := settled.Settlement.ReferencePayout, 0.001*1.5*10000; got != want {
		t.Errorf("ReferencePayout = %v, want %v", got, want)
	}

	// The single open wager is gone; every further call misses.
	if _, err := s.SettleWager("R1-1", "alice", 1.6); !errors.Is(err, ErrNoOpenWager) {
		t.Errorf("second SettleWager() error = %v, want ErrNoOpenWager", err)
	}
	if _, err := s.SettleWager("R1-1", "nobody", 1.6); !errors.Is(err, ErrNoOpenWager) {
		t.Errorf("SettleWager() without wager error = %v, want ErrNoOpenWager", err)
	}
}

func TestSettleWager_ExactlyOnceUnderContention(t *testing.T) {
	s := NewRoundStore()
	newTestRound(t, s)
	s.AppendWager("R1-1", testWager("alice"))
	s.Transition("R1-1", StatusWaiting, StatusActive)

	const callers = 64
	var wg sync.WaitGroup
	results := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SettleWager("R1-1", "alice", 1.25)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, misses := 0, 0
	for err := range results {
		if err == nil {
			wins++
		} else if errors.Is(err, ErrNoOpenWager) {
			misses++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
	if misses != callers-1 {
		t.Errorf("misses = %d, want %d", misses, callers-1)
	}
}

func TestFinalize(t *testing.T) {
	s := NewRoundStore()
	newTestRound(t, s) // crash point 2.5

	s.AppendWager("R1-1", testWager("alice"))
	s.AppendWager("R1-1", testWager("bob"))
	s.Transition("R1-1", StatusWaiting, StatusActive)

	// Alice withdraws; Bob rides it down.
	if _, err := s.SettleWager("R1-1", "alice", 2.0); err != nil {
		t.Fatalf("SettleWager() error: %v", err)
	}

	final, err := s.Finalize("R1-1")
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	if final.Status != StatusCrashed {
		t.Errorf("status = %v, want CRASHED", final.Status)
	}
	if final.CurrentMultiplier != 2.5 {
		t.Errorf("CurrentMultiplier = %v, want crash point 2.5", final.CurrentMultiplier)
	}

	agg := final.Aggregates
	if agg.TotalWagered != 20 {
		t.Errorf("TotalWagered = %v, want 20", agg.TotalWagered)
	}
	wantPaid := 0.001 * 2.0 * 10000
	if agg.TotalPaidOut != wantPaid {
		t.Errorf("TotalPaidOut = %v, want %v", agg.TotalPaidOut, wantPaid)
	}
	if agg.Winners != 1 || agg.Losers != 1 {
		t.Errorf("winners/losers = %d/%d, want 1/1", agg.Winners, agg.Losers)
	}
	if agg.HouseProfit != agg.TotalWagered-agg.TotalPaidOut {
		t.Errorf("HouseProfit = %v, want %v", agg.HouseProfit, agg.TotalWagered-agg.TotalPaidOut)
	}

	// Bob's wager was swept as a loss with no payout.
	for _, w := range final.Wagers {
		if w.ParticipantID != "bob" {
			continue
		}
		if w.Settlement == nil {
			t.Fatal("finalize left an open wager")
		}
		if w.Settlement.Won {
			t.Error("swept wager marked as won")
		}
		if w.Settlement.ConvertedPayout != 0 {
			t.Errorf("swept wager payout = %v, want 0", w.Settlement.ConvertedPayout)
		}
	}

	// Double finalize is rejected; settlements after crash miss.
	if _, err := s.Finalize("R1-1"); !errors.Is(err, ErrRoundNotActive) {
		t.Errorf("second Finalize() error = %v, want ErrRoundNotActive", err)
	}
	if _, err := s.SettleWager("R1-1", "bob", 2.4); !errors.Is(err, ErrNoOpenWager) {
		t.Errorf("SettleWager() after crash error = %v, want ErrNoOpenWager", err)
	}
}

func TestUpdateMultiplier_TracksPeak(t *testing.T) {
	s := NewRoundStore()
	newTestRound(t, s)
	s.Transition("R1-1", StatusWaiting, StatusActive)

	s.UpdateMultiplier("R1-1", 1.2)
	s.UpdateMultiplier("R1-1", 1.8)
	s.UpdateMultiplier("R1-1", 1.5)

	round, _ := s.Current()
	if round.CurrentMultiplier != 1.5 {
		t.Errorf("CurrentMultiplier = %v, want 1.5", round.CurrentMultiplier)
	}
	if round.PeakMultiplier != 1.8 {
		t.Errorf("PeakMultiplier = %v, want 1.8", round.PeakMultiplier)
	}
}

func TestCurrent_ReturnsSnapshot(t *testing.T) {
	s := NewRoundStore()
	newTestRound(t, s)
	s.AppendWager("R1-1", testWager("alice"))

	snap, ok := s.Current()
	if !ok {
		t.Fatal("Current() returned no round")
	}

	// Mutating the snapshot must not leak into the store.
	snap.Status = StatusCrashed
	snap.Wagers[0].Settlement = &Settlement{Won: true}

	round, _ := s.Current()
	if round.Status != StatusWaiting {
		t.Error("snapshot mutation leaked into store status")
	}
	if round.Wagers[0].Settlement != nil {
		t.Error("snapshot mutation leaked into store wagers")
	}
}

func TestRoundView_ConcealsUntilCrash(t *testing.T) {
	s := NewRoundStore()
	newTestRound(t, s)

	round, _ := s.Current()
	view := round.View()
	if view.Seed != "" || view.CrashMultiplier != 0 {
		t.Error("View() leaked seed or crash point before crash")
	}
	if view.Hash == "" {
		t.Error("View() must always expose the commitment hash")
	}

	s.Transition("R1-1", StatusWaiting, StatusActive)
	s.Finalize("R1-1")

	round, _ = s.Current()
	view = round.View()
	if view.Seed != "seed" || view.CrashMultiplier != 2.5 {
		t.Error("View() must reveal seed and crash point after crash")
	}
}
