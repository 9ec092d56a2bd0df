// Package engine implements the provably-fair card-game escrow core: shoe
// commitments bound to oracle randomness, bet custody through the external
// chips ledger, and atomic settlement of reported outcomes.
package engine

import (
	"math/big"

	"chiprails/internal/ledger"
	"chiprails/internal/oracle"

	"github.com/rs/zerolog"
)

// Engine composes the four core components. Each component exclusively owns
// its records; cross-component effects happen through calls, never shared
// field writes.
type Engine struct {
	Access     *AccessControl
	Randomness *RandomnessCoordinator
	Shoes      *ShoeRegistry
	Games      *GameManager
}

type Config struct {
	Operator        string
	CustodyAddress  string
	MaxCardsPerHand uint64
	Oracle          oracle.Client
	OracleTuning    oracle.Config
	Ledger          ledger.Adapter
}

func New(cfg Config, log zerolog.Logger) *Engine {
	access := NewAccessControl(cfg.Operator)
	coordinator := NewRandomnessCoordinator(access, cfg.Oracle, log)
	coordinator.config = cfg.OracleTuning
	registry := NewShoeRegistry(access, coordinator, log)
	manager := NewGameManager(GameManagerConfig{
		Access:          access,
		Registry:        registry,
		Ledger:          cfg.Ledger,
		CustodyAddress:  cfg.CustodyAddress,
		MaxCardsPerHand: cfg.MaxCardsPerHand,
	}, log)

	return &Engine{
		Access:     access,
		Randomness: coordinator,
		Shoes:      registry,
		Games:      manager,
	}
}

// CustodyExposure is a point-in-time snapshot of the bankroll invariant's
// two sides, for metrics and health reporting.
type CustodyExposure struct {
	OutstandingLiability *big.Int
	ActiveGames          int
}

func (e *Engine) Exposure() CustodyExposure {
	return CustodyExposure{
		OutstandingLiability: e.Games.OutstandingLiability(),
		ActiveGames:          e.Games.ActiveGames(),
	}
}
