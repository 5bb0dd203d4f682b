package game

import (
	"sync"
	"time"
)

// RoundStore owns the authoritative state of the in-progress round.
// Every exported method is a single atomic step under one mutex; the
// compare-and-set transition and wager settlement are the only
// serialization points between the scheduler and request handlers.
type RoundStore struct {
	mu      sync.Mutex
	current *Round
}

func NewRoundStore() *RoundStore {
	return &RoundStore{}
}

// CreateRound installs a fresh WAITING round. At most one round may be
// WAITING or ACTIVE process-wide; a crashed round is replaced in place.
func (s *RoundStore) CreateRound(id, seed string, crashMultiplier float64, hash string) (*Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.Status != StatusCrashed {
		return nil, ErrRoundInProgress
	}

	s.current = &Round{
		ID:                id,
		Status:            StatusWaiting,
		CreatedAt:         time.Now(),
		Seed:              seed,
		CrashMultiplier:   crashMultiplier,
		Hash:              hash,
		CurrentMultiplier: MinMultiplier,
		PeakMultiplier:    MinMultiplier,
	}
	return s.current.clone(), nil
}

// Transition is a guarded compare-and-set on round status. It returns
// false without mutating anything when the round is unknown or its
// status no longer matches from, so a late or duplicate scheduler tick
// cannot double-apply a transition.
func (s *RoundStore) Transition(roundID string, from, to Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.current
	if r == nil || r.ID != roundID || r.Status != from {
		return false
	}
	r.Status = to
	switch to {
	case StatusActive:
		r.ActivatedAt = time.Now()
	case StatusCrashed:
		r.CrashedAt = time.Now()
	}
	return true
}

// AppendWager records a wager while the round is still in its wagering
// window.
func (s *RoundStore) AppendWager(roundID string, w *Wager) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.current
	if r == nil || r.ID != roundID {
		return ErrRoundNotFound
	}
	if r.Status != StatusWaiting {
		return ErrRoundNotAcceptingWagers
	}
	r.Wagers = append(r.Wagers, w)
	return nil
}

// SettleWager finds the single open wager for a participant and marks
// it settled in one step. Only one caller can win this compare-and-set;
// every concurrent duplicate observes ErrNoOpenWager. Settlement after
// the round left ACTIVE is rejected the same way.
func (s *RoundStore) SettleWager(roundID, participantID string, multiplier float64) (*Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.current
	if r == nil || r.ID != roundID || r.Status != StatusActive {
		return nil, ErrNoOpenWager
	}

	for _, w := range r.Wagers {
		if w.ParticipantID != participantID || !w.Open() {
			continue
		}
		payout := w.ConvertedAmount * multiplier
		w.Settlement = &Settlement{
			Multiplier:      multiplier,
			ConvertedPayout: payout,
			ReferencePayout: payout * w.Rate,
			SettledAt:       time.Now(),
			Won:             true,
		}
		return w.clone(), nil
	}
	return nil, ErrNoOpenWager
}

// UpdateMultiplier writes the tick value back and tracks the peak.
func (s *RoundStore) UpdateMultiplier(roundID string, multiplier float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.current
	if r == nil || r.ID != roundID || r.Status != StatusActive {
		return
	}
	r.CurrentMultiplier = multiplier
	if multiplier > r.PeakMultiplier {
		r.PeakMultiplier = multiplier
	}
}

// Finalize terminates an ACTIVE round: every wager still open is marked
// a loss (never converted to a payout), aggregates are computed and the
// round becomes CRASHED. A withdrawal that raced finalize and won the
// settle compare-and-set keeps its payout; one that lost sees
// ErrNoOpenWager from then on.
func (s *RoundStore) Finalize(roundID string) (*Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.current
	if r == nil || r.ID != roundID {
		return nil, ErrRoundNotFound
	}
	if r.Status != StatusActive {
		return nil, ErrRoundNotActive
	}

	now := time.Now()
	r.Status = StatusCrashed
	r.CrashedAt = now
	r.CurrentMultiplier = r.CrashMultiplier
	if r.CrashMultiplier > r.PeakMultiplier {
		r.PeakMultiplier = r.CrashMultiplier
	}

	agg := Aggregates{}
	for _, w := range r.Wagers {
		agg.TotalWagered += w.Stake
		if w.Open() {
			w.Settlement = &Settlement{
				Multiplier: r.CrashMultiplier,
				SettledAt:  now,
				Won:        false,
			}
		}
		if w.Settlement.Won {
			agg.Winners++
			agg.TotalPaidOut += w.Settlement.ReferencePayout
		} else {
			agg.Losers++
		}
	}
	agg.HouseProfit = agg.TotalWagered - agg.TotalPaidOut
	r.Aggregates = agg

	return r.clone(), nil
}

// Current returns a snapshot of the round the store owns, if any.
func (s *RoundStore) Current() (*Round, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, false
	}
	return s.current.clone(), true
}

// clone deep-copies a round so snapshots never alias store-owned state.
func (r *Round) clone() *Round {
	cp := *r
	cp.Wagers = make([]*Wager, len(r.Wagers))
	for i, w := range r.Wagers {
		cp.Wagers[i] = w.clone()
	}
	return &cp
}

func (w *Wager) clone() *Wager {
	cp := *w
	if w.Settlement != nil {
		st := *w.Settlement
		cp.Settlement = &st
	}
	return &cp
}
