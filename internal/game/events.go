package game

import "time"

// Broadcaster receives lifecycle events. The engine only publishes; it
// never blocks on or confirms delivery.
type Broadcaster interface {
	Publish(event Event)
}

// Event is a typed lifecycle payload. Type is the wire discriminator.
type Event interface {
	EventType() string
}

type RoundCreatedEvent struct {
	RoundID   string    `json:"round_id"`
	StartTime time.Time `json:"start_time"`
	Hash      string    `json:"hash"`
}

func (RoundCreatedEvent) EventType() string { return "round_created" }

type RoundActivatedEvent struct {
	RoundID   string    `json:"round_id"`
	StartTime time.Time `json:"start_time"`
}

func (RoundActivatedEvent) EventType() string { return "round_activated" }

type MultiplierTickEvent struct {
	RoundID       string  `json:"round_id"`
	Multiplier    float64 `json:"multiplier"`
	ElapsedMillis int64   `json:"elapsed_ms"`
}

func (MultiplierTickEvent) EventType() string { return "multiplier_tick" }

type RoundCrashedEvent struct {
	RoundID         string     `json:"round_id"`
	CrashMultiplier float64    `json:"crash_multiplier"`
	FinalMultiplier float64    `json:"final_multiplier"`
	Seed            string     `json:"seed"`
	Aggregates      Aggregates `json:"aggregates"`
}

func (RoundCrashedEvent) EventType() string { return "round_crashed" }

type WagerPlacedEvent struct {
	RoundID         string  `json:"round_id"`
	ParticipantID   string  `json:"participant_id"`
	Stake           float64 `json:"stake"`
	ConvertedAmount float64 `json:"converted_amount"`
	Currency        string  `json:"currency"`
}

func (WagerPlacedEvent) EventType() string { return "wager_placed" }

type WagerSettledEvent struct {
	RoundID         string  `json:"round_id"`
	ParticipantID   string  `json:"participant_id"`
	Multiplier      float64 `json:"multiplier"`
	ConvertedPayout float64 `json:"converted_payout"`
	ReferencePayout float64 `json:"reference_payout"`
	Currency        string  `json:"currency"`
}

func (WagerSettledEvent) EventType() string { return "wager_settled" }

// NopBroadcaster drops every event. Used when no transport is wired.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(Event) {}
