package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"chiprails/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// GameState is the per-game lifecycle. Active is the only initial state and
// Finished the only terminal one; there are no other transitions.
type GameState string

const (
	GameActive   GameState = "active"
	GameFinished GameState = "finished"
)

// Outcome is the caller-reported result of a finished game.
type Outcome string

const (
	PlayerWon  Outcome = "player_won"
	PlayerLost Outcome = "player_lost"
)

// Game is a single wager against a committed shoe. Once finished the record
// is immutable history.
type Game struct {
	ID          uint64      `json:"id"`
	Player      string      `json:"player"`
	ShoeSlotID  uint64      `json:"shoeSlotId"`
	BetAmount   *big.Int    `json:"betAmount"`
	State       GameState   `json:"state"`
	CardsUsed   uint64      `json:"cardsUsed,omitempty"`
	SubDeckHash common.Hash `json:"subDeckHash,omitempty"`
	Outcome     Outcome     `json:"outcome,omitempty"`
	StartedAt   time.Time   `json:"startedAt"`
	FinishedAt  time.Time   `json:"finishedAt,omitempty"`

	// settling guards the window where the payout push is in flight; a
	// reentrant finish for the same game is rejected instead of interleaved.
	settling bool
}

// GameManager owns game lifecycle transitions and settlement. The external
// ledger call is the transaction boundary: validation happens entirely
// before it, local commit entirely after it, and any failure triggers the
// compensating release so no game is ever left half-settled.
type GameManager struct {
	mu       sync.Mutex
	access   *AccessControl
	registry *ShoeRegistry
	ledger   ledger.Adapter

	custody  string // engine custody account, for the bankroll invariant
	maxCards uint64 // per-hand card ceiling

	games     map[uint64]*Game
	nextID    uint64
	liability *big.Int // total outstanding win-liability of active games

	log zerolog.Logger

	onFinish func(g Game)
}

type GameManagerConfig struct {
	Access          *AccessControl
	Registry        *ShoeRegistry
	Ledger          ledger.Adapter
	CustodyAddress  string
	MaxCardsPerHand uint64
}

const defaultMaxCardsPerHand = 21

func NewGameManager(cfg GameManagerConfig, log zerolog.Logger) *GameManager {
	maxCards := cfg.MaxCardsPerHand
	if maxCards == 0 {
		maxCards = defaultMaxCardsPerHand
	}
	return &GameManager{
		access:    cfg.Access,
		registry:  cfg.Registry,
		ledger:    cfg.Ledger,
		custody:   cfg.CustodyAddress,
		maxCards:  maxCards,
		games:     make(map[uint64]*Game),
		nextID:    1,
		liability: new(big.Int),
		log:       log.With().Str("component", "game").Logger(),
	}
}

// OnFinish registers an observer called with a copy of the game after every
// successful finish. Used for the audit trail.
func (m *GameManager) OnFinish(fn func(g Game)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFinish = fn
}

// StartGame escrows the bet and opens a game on the slot. All-or-nothing: if
// the custody pull fails the reservation is released and no game exists.
func (m *GameManager) StartGame(ctx context.Context, caller string, slotID uint64, betAmount *big.Int) (uint64, error) {
	if betAmount == nil || betAmount.Sign() <= 0 {
		return 0, fmt.Errorf("start game: %w", ErrInvalidBet)
	}
	if normalizeAddr(caller) == "" {
		return 0, fmt.Errorf("start game: %w", ErrUnauthorized)
	}

	// A game needs at least one card left in the shoe.
	if err := m.registry.Reserve(slotID, 1); err != nil {
		return 0, fmt.Errorf("start game: %w", err)
	}

	// Bankroll invariant: outstanding win-liability never exceeds custody.
	// The payout for this game is 2×bet, of which the bet itself arrives
	// with the pull, so the house must already cover the other bet's worth.
	payout := new(big.Int).Lsh(betAmount, 1)
	balance, err := m.ledger.BalanceOf(ctx, m.custody)
	if err != nil {
		m.registry.Release(slotID)
		return 0, fmt.Errorf("start game: custody balance: %w", err)
	}

	m.mu.Lock()
	needed := new(big.Int).Add(m.liability, payout)
	covered := new(big.Int).Add(balance, betAmount)
	if needed.Cmp(covered) > 0 {
		m.mu.Unlock()
		m.registry.Release(slotID)
		return 0, fmt.Errorf("start game: %w", ledger.ErrInsufficientCustodyBalance)
	}
	// Claim the liability before the pull so a concurrent start on another
	// slot cannot overcommit the same bankroll.
	m.liability.Add(m.liability, payout)
	m.mu.Unlock()

	if err := m.ledger.Pull(ctx, caller, betAmount); err != nil {
		m.mu.Lock()
		m.liability.Sub(m.liability, payout)
		m.mu.Unlock()
		m.registry.Release(slotID)
		return 0, fmt.Errorf("start game: escrow bet: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.games[id] = &Game{
		ID:         id,
		Player:     normalizeAddr(caller),
		ShoeSlotID: slotID,
		BetAmount:  new(big.Int).Set(betAmount),
		State:      GameActive,
		StartedAt:  time.Now().UTC(),
	}

	m.log.Info().Uint64("game_id", id).Uint64("slot_id", slotID).
		Str("player", normalizeAddr(caller)).Str("bet", betAmount.String()).Msg("game started")
	return id, nil
}

// FinishGame settles a game on the caller-reported outcome. Only the game's
// player, or a registered arbiter, may report. The shoe pointer bound is the
// engine's one defense: the reported result itself is trusted.
func (m *GameManager) FinishGame(ctx context.Context, caller string, gameID, cardsUsed uint64, subDeckHash common.Hash, outcome Outcome) error {
	if outcome != PlayerWon && outcome != PlayerLost {
		return fmt.Errorf("finish game %d: invalid outcome %q", gameID, outcome)
	}

	m.mu.Lock()
	game, ok := m.games[gameID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("finish game %d: %w", gameID, ErrUnknownGame)
	}
	if !SameIdentity(caller, game.Player) && !m.access.IsArbiter(caller) {
		m.mu.Unlock()
		return fmt.Errorf("finish game %d: %w", gameID, ErrNotYourGame)
	}
	if game.State != GameActive {
		m.mu.Unlock()
		return fmt.Errorf("finish game %d: %w", gameID, ErrGameNotActive)
	}
	if game.settling {
		m.mu.Unlock()
		return fmt.Errorf("finish game %d: %w", gameID, ErrReentrantCall)
	}
	if cardsUsed == 0 || cardsUsed > m.maxCards {
		m.mu.Unlock()
		return fmt.Errorf("finish game %d: %w", gameID, ErrInvalidCardCount)
	}

	// Capacity check before any effect. The slot is reserved by this game,
	// so nothing else can move its pointer until we advance it below.
	remaining, err := m.registry.Remaining(game.ShoeSlotID)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("finish game %d: %w", gameID, err)
	}
	if cardsUsed > remaining {
		m.mu.Unlock()
		return fmt.Errorf("finish game %d: %w", gameID, ErrShoeExhausted)
	}

	payout := new(big.Int)
	if outcome == PlayerWon {
		payout.Lsh(game.BetAmount, 1)
	}
	player := game.Player
	game.settling = true
	m.mu.Unlock()

	// Transaction boundary. A lost game pushes zero, which is a no-op on
	// every adapter, so both outcomes share one settlement path.
	if err := m.ledger.Push(ctx, player, payout); err != nil {
		m.mu.Lock()
		game.settling = false
		m.mu.Unlock()
		return fmt.Errorf("finish game %d: settle: %w", gameID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Cannot fail: capacity was checked above and the reservation held.
	if err := m.registry.Advance(game.ShoeSlotID, cardsUsed); err != nil {
		game.settling = false
		return fmt.Errorf("finish game %d: advance: %w", gameID, err)
	}

	game.settling = false
	game.State = GameFinished
	game.CardsUsed = cardsUsed
	game.SubDeckHash = subDeckHash
	game.Outcome = outcome
	game.FinishedAt = time.Now().UTC()
	m.liability.Sub(m.liability, new(big.Int).Lsh(game.BetAmount, 1))

	m.log.Info().Uint64("game_id", gameID).Uint64("cards_used", cardsUsed).
		Str("outcome", string(outcome)).Str("payout", payout.String()).Msg("game finished")
	if m.onFinish != nil {
		m.onFinish(copyGame(game))
	}
	return nil
}

// Game returns a copy of the record.
func (m *GameManager) Game(gameID uint64) (Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	game, ok := m.games[gameID]
	if !ok {
		return Game{}, fmt.Errorf("game %d: %w", gameID, ErrUnknownGame)
	}
	return copyGame(game), nil
}

// InProgress reports whether the game exists and is still active.
func (m *GameManager) InProgress(gameID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	game, ok := m.games[gameID]
	return ok && game.State == GameActive
}

// OutstandingLiability returns the summed 2×bet exposure of active games.
func (m *GameManager) OutstandingLiability() *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.liability)
}

// ActiveGames counts games still awaiting a finish.
func (m *GameManager) ActiveGames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, g := range m.games {
		if g.State == GameActive {
			n++
		}
	}
	return n
}

func copyGame(g *Game) Game {
	out := *g
	out.BetAmount = new(big.Int).Set(g.BetAmount)
	out.settling = false
	return out
}
