package engine

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// ShoeSlot is the on-engine representation of a committed shoe: the
// commitment digest of the shuffled deck plus salt, the deck size, and the
// consumption pointer. Slots are append-only; a slot is reused by committing
// a fresh shoe into it, never deleted.
type ShoeSlot struct {
	ID         uint64      `json:"id"`
	CommitHash common.Hash `json:"commitHash"`
	DeckSize   uint64      `json:"deckSize"`
	Pointer    uint64      `json:"pointer"`
	Active     bool        `json:"active"`
	BoundSeed  *big.Int    `json:"boundSeed,omitempty"`
	Expiry     time.Time   `json:"expiry,omitempty"`

	// inUse marks the slot reserved by an in-progress game. It doubles as
	// the reentrancy guard for the slot while a ledger call is in flight.
	inUse bool
}

func (s *ShoeSlot) expired(now time.Time) bool {
	return !s.Expiry.IsZero() && now.After(s.Expiry)
}

// ShoeRegistry owns all ShoeSlot mutation. Games touch slots only through
// Reserve, Release and Advance.
type ShoeRegistry struct {
	mu          sync.Mutex
	access      *AccessControl
	coordinator *RandomnessCoordinator
	slots       []*ShoeSlot
	now         func() time.Time
	log         zerolog.Logger

	onCommit func(slot ShoeSlot)
}

func NewShoeRegistry(access *AccessControl, coordinator *RandomnessCoordinator, log zerolog.Logger) *ShoeRegistry {
	return &ShoeRegistry{
		access:      access,
		coordinator: coordinator,
		now:         time.Now,
		log:         log.With().Str("component", "shoe").Logger(),
	}
}

// OnCommit registers an observer called with a copy of the slot after every
// successful commit. Used for the audit trail.
func (r *ShoeRegistry) OnCommit(fn func(slot ShoeSlot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCommit = fn
}

// CreateSlot registers a new slot holding the given commitment. The slot
// stays inactive until a seed-bound Commit; slot ids start at zero.
func (r *ShoeRegistry) CreateSlot(caller string, commitHash common.Hash, deckSize uint64, expiry time.Time) (uint64, error) {
	if err := r.access.RequireOperator(caller); err != nil {
		return 0, fmt.Errorf("create slot: %w", err)
	}
	if deckSize == 0 {
		return 0, fmt.Errorf("create slot: %w", ErrInvalidSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot := &ShoeSlot{
		ID:         uint64(len(r.slots)),
		CommitHash: commitHash,
		DeckSize:   deckSize,
		Expiry:     expiry,
	}
	r.slots = append(r.slots, slot)
	r.log.Info().Uint64("slot_id", slot.ID).Uint64("deck_size", deckSize).Msg("slot created")
	return slot.ID, nil
}

// Commit binds a fresh shoe to the slot: a new commitment, a new size, a
// fresh unconsumed oracle seed, pointer reset to zero, slot activated. All
// preconditions are checked before the seed is taken, so a rejected commit
// never burns a seed.
func (r *ShoeRegistry) Commit(caller string, slotID uint64, commitHash common.Hash, deckSize uint64) error {
	if err := r.access.RequireOperator(caller); err != nil {
		return fmt.Errorf("commit slot %d: %w", slotID, err)
	}
	if deckSize == 0 {
		return fmt.Errorf("commit slot %d: %w", slotID, ErrInvalidSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot, err := r.slotLocked(slotID)
	if err != nil {
		return err
	}
	if slot.inUse {
		return fmt.Errorf("commit slot %d: %w", slotID, ErrSlotLocked)
	}

	seed, err := r.coordinator.TakeUnconsumedSeed()
	if err != nil {
		return fmt.Errorf("commit slot %d: %w", slotID, err)
	}

	slot.CommitHash = commitHash
	slot.DeckSize = deckSize
	slot.Pointer = 0
	slot.Active = true
	slot.BoundSeed = seed

	r.log.Info().Uint64("slot_id", slotID).Uint64("deck_size", deckSize).
		Str("commit", commitHash.Hex()).Msg("shoe committed")
	if r.onCommit != nil {
		r.onCommit(*slot)
	}
	return nil
}

// Reserve claims the slot for a starting game. Per-slot exclusivity: at most
// one in-progress game per slot, independent slots run independently.
func (r *ShoeRegistry) Reserve(slotID, cardsRequested uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, err := r.slotLocked(slotID)
	if err != nil {
		return err
	}
	if !slot.Active {
		return fmt.Errorf("reserve slot %d: %w", slotID, ErrSlotInactive)
	}
	if slot.expired(r.now()) {
		return fmt.Errorf("reserve slot %d: %w", slotID, ErrSlotExpired)
	}
	if slot.inUse {
		return fmt.Errorf("reserve slot %d: %w", slotID, ErrSlotLocked)
	}
	if slot.Pointer+cardsRequested > slot.DeckSize {
		return fmt.Errorf("reserve slot %d: %w", slotID, ErrShoeExhausted)
	}

	slot.inUse = true
	return nil
}

// Release drops a reservation without consuming cards. This is the
// compensation path when a game start fails after the slot was claimed.
func (r *ShoeRegistry) Release(slotID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, err := r.slotLocked(slotID); err == nil {
		slot.inUse = false
	}
}

// Advance consumes cards from the reserved shoe and releases the
// reservation. The pointer only ever moves forward; an advance past the deck
// fails and leaves the pointer untouched.
func (r *ShoeRegistry) Advance(slotID, cardsUsed uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, err := r.slotLocked(slotID)
	if err != nil {
		return err
	}
	if slot.Pointer+cardsUsed > slot.DeckSize {
		return fmt.Errorf("advance slot %d by %d: %w", slotID, cardsUsed, ErrShoeExhausted)
	}

	slot.Pointer += cardsUsed
	slot.inUse = false
	return nil
}

// Remaining reports the unconsumed card capacity of a slot.
func (r *ShoeRegistry) Remaining(slotID uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, err := r.slotLocked(slotID)
	if err != nil {
		return 0, err
	}
	return slot.DeckSize - slot.Pointer, nil
}

// Pointer returns the slot's consumption pointer.
func (r *ShoeRegistry) Pointer(slotID uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, err := r.slotLocked(slotID)
	if err != nil {
		return 0, err
	}
	return slot.Pointer, nil
}

// Active reports whether the slot holds a committed, live shoe.
func (r *ShoeRegistry) Active(slotID uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, err := r.slotLocked(slotID)
	if err != nil {
		return false, err
	}
	return slot.Active, nil
}

// Slot returns a copy of the slot record.
func (r *ShoeRegistry) Slot(slotID uint64) (ShoeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, err := r.slotLocked(slotID)
	if err != nil {
		return ShoeSlot{}, err
	}
	out := *slot
	if slot.BoundSeed != nil {
		out.BoundSeed = new(big.Int).Set(slot.BoundSeed)
	}
	return out, nil
}

// InUse reports whether a game currently holds the slot.
func (r *ShoeRegistry) InUse(slotID uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, err := r.slotLocked(slotID)
	if err != nil {
		return false, err
	}
	return slot.inUse, nil
}

// slotLocked assumes r.mu is held.
func (r *ShoeRegistry) slotLocked(slotID uint64) (*ShoeSlot, error) {
	if slotID >= uint64(len(r.slots)) {
		return nil, fmt.Errorf("slot %d: %w", slotID, ErrUnknownSlot)
	}
	return r.slots[slotID], nil
}
