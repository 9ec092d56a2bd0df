package engine

import (
	"errors"

	"chiprails/internal/ledger"
)

// Every rejection below is detected before any mutating side effect; a failed
// operation leaves all prior state intact, which is what makes atomic
// re-submission safe.
var (
	// Authorization.
	ErrUnauthorized = errors.New("caller is not authorized")
	ErrNotYourGame  = errors.New("caller is not the game's player")

	// Lifecycle state.
	ErrSlotLocked    = errors.New("shoe slot has a game in progress")
	ErrSlotInactive  = errors.New("shoe slot is not active")
	ErrSlotExpired   = errors.New("shoe slot has expired")
	ErrGameNotActive = errors.New("game is not active")
	ErrReentrantCall = errors.New("reentrant call rejected")
	ErrUnknownSlot   = errors.New("unknown shoe slot")
	ErrUnknownGame   = errors.New("unknown game")

	// Capacity.
	ErrShoeExhausted    = errors.New("shoe exhausted")
	ErrInvalidSize      = errors.New("deck size must be positive")
	ErrInvalidCardCount = errors.New("invalid card count")
	ErrInvalidBet       = errors.New("bet amount must be positive")

	// Randomness.
	ErrNoSeedAvailable  = errors.New("no unconsumed seed available")
	ErrAlreadyFulfilled = errors.New("randomness request already fulfilled")
	ErrUnknownRequest   = errors.New("unknown randomness request")
)

// Kind classifies engine errors for callers that map the taxonomy onto a
// transport (HTTP status codes, metrics labels) without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindState
	KindCapacity
	KindRandomness
	KindCustody
	KindNotFound
)

func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNotYourGame):
		return KindAuthorization
	case errors.Is(err, ErrSlotLocked), errors.Is(err, ErrSlotInactive),
		errors.Is(err, ErrSlotExpired), errors.Is(err, ErrGameNotActive),
		errors.Is(err, ErrReentrantCall):
		return KindState
	case errors.Is(err, ErrShoeExhausted), errors.Is(err, ErrInvalidSize),
		errors.Is(err, ErrInvalidCardCount), errors.Is(err, ErrInvalidBet):
		return KindCapacity
	case errors.Is(err, ErrNoSeedAvailable), errors.Is(err, ErrAlreadyFulfilled),
		errors.Is(err, ErrUnknownRequest):
		return KindRandomness
	case errors.Is(err, ledger.ErrInsufficientAllowance),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientCustodyBalance):
		return KindCustody
	case errors.Is(err, ErrUnknownSlot), errors.Is(err, ErrUnknownGame):
		return KindNotFound
	default:
		return KindUnknown
	}
}
