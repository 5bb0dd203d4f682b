package game

import (
	"fmt"
	"time"
)

// Status is the round lifecycle state. Transitions are strictly
// WAITING -> ACTIVE -> CRASHED; CRASHED is terminal.
type Status string

const (
	StatusWaiting Status = "WAITING"
	StatusActive  Status = "ACTIVE"
	StatusCrashed Status = "CRASHED"
)

// Round is one instance of the wagering cycle. Seed and the crash
// multiplier stay concealed until the round crashes; only the
// commitment hash is public from creation.
type Round struct {
	ID        string    `json:"round_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	Seed            string  `json:"-"`
	CrashMultiplier float64 `json:"-"`
	Hash            string  `json:"hash"`

	ActivatedAt       time.Time `json:"activated_at,omitempty"`
	CrashedAt         time.Time `json:"crashed_at,omitempty"`
	CurrentMultiplier float64   `json:"current_multiplier"`
	PeakMultiplier    float64   `json:"peak_multiplier"`

	Wagers []*Wager `json:"wagers,omitempty"`

	Aggregates Aggregates `json:"aggregates"`
}

// Aggregates are computed once, during finalization.
type Aggregates struct {
	TotalWagered float64 `json:"total_wagered"`
	TotalPaidOut float64 `json:"total_paid_out"`
	Winners      int     `json:"winners"`
	Losers       int     `json:"losers"`
	HouseProfit  float64 `json:"house_profit"`
}

// Wager is one participant's stake in a round. Stake is in the
// reference currency; ConvertedAmount is the settlement-currency
// position bought at Rate.
type Wager struct {
	ID              string    `json:"wager_id"`
	RoundID         string    `json:"round_id"`
	ParticipantID   string    `json:"participant_id"`
	Stake           float64   `json:"stake"`
	Currency        string    `json:"currency"`
	Rate            float64   `json:"rate"`
	ConvertedAmount float64   `json:"converted_amount"`
	PlacedAt        time.Time `json:"placed_at"`

	// Settlement is nil while the wager is open and populated exactly
	// once, by withdrawal or by the finalization sweep.
	Settlement *Settlement `json:"settlement,omitempty"`
}

// Settlement fixes a wager's outcome.
type Settlement struct {
	Multiplier      float64   `json:"multiplier"`
	ConvertedPayout float64   `json:"converted_payout"`
	ReferencePayout float64   `json:"reference_payout"`
	SettledAt       time.Time `json:"settled_at"`
	Won             bool      `json:"won"`
}

// Open reports whether the wager still has no settlement.
func (w *Wager) Open() bool {
	return w.Settlement == nil
}

// NewRoundID builds a time-ordered round identifier.
func NewRoundID(nonce int) string {
	return fmt.Sprintf("R%d-%d", time.Now().Unix(), nonce)
}

// RoundView is the public projection of a round. Seed and crash point
// are included only once the round has crashed.
type RoundView struct {
	ID                string     `json:"round_id"`
	Status            Status     `json:"status"`
	Hash              string     `json:"hash"`
	CurrentMultiplier float64    `json:"current_multiplier"`
	PeakMultiplier    float64    `json:"peak_multiplier"`
	WagerCount        int        `json:"wager_count"`
	Seed              string     `json:"seed,omitempty"`
	CrashMultiplier   float64    `json:"crash_multiplier,omitempty"`
	Aggregates        Aggregates `json:"aggregates"`
}

// View projects the round for public consumption, concealing seed and
// crash point until the terminal state.
func (r *Round) View() RoundView {
	v := RoundView{
		ID:                r.ID,
		Status:            r.Status,
		Hash:              r.Hash,
		CurrentMultiplier: r.CurrentMultiplier,
		PeakMultiplier:    r.PeakMultiplier,
		WagerCount:        len(r.Wagers),
		Aggregates:        r.Aggregates,
	}
	if r.Status == StatusCrashed {
		v.Seed = r.Seed
		v.CrashMultiplier = r.CrashMultiplier
	}
	return v
}
