package game

import "errors"

// Caller-facing failures. Each one is stable: handlers match with
// errors.Is and map to a response kind, never on message text.
var (
	// ErrInvalidInput covers malformed seeds, identifiers and
	// non-positive stakes. Nothing was mutated.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedCurrency is returned for a settlement currency
	// outside the configured set.
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrRoundNotAcceptingWagers is returned when no round is in the
	// wagering window.
	ErrRoundNotAcceptingWagers = errors.New("round not accepting wagers")

	// ErrRoundNotActive is returned for a withdrawal outside an active
	// round.
	ErrRoundNotActive = errors.New("round not active")

	// ErrInsufficientBalance is returned when the stake exceeds the
	// participant's reference-currency balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNoOpenWager is returned when a withdrawal finds no open wager:
	// never placed, already settled, or the round crashed first. The
	// three cases are deliberately indistinguishable to the caller.
	ErrNoOpenWager = errors.New("no open wager")

	// ErrPriceUnavailable is returned when no usable conversion rate
	// exists for the requested currency.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrRoundInProgress is returned by the store when a round is
	// created while another is still WAITING or ACTIVE.
	ErrRoundInProgress = errors.New("round already in progress")

	// ErrRoundNotFound is returned for operations against an unknown or
	// already archived round.
	ErrRoundNotFound = errors.New("round not found")
)
