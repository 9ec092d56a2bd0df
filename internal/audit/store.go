// Package audit persists the engine's append-only history: every shoe
// commitment and every finished game. Records are written after the engine
// transaction commits and are never updated or deleted.
package audit

import (
	"context"
	"sync"
	"time"
)

// CommitRecord is one shoe commitment.
type CommitRecord struct {
	SlotID      uint64    `json:"slotId"`
	CommitHash  string    `json:"commitHash"`
	DeckSize    uint64    `json:"deckSize"`
	BoundSeed   string    `json:"boundSeed"`
	CommittedAt time.Time `json:"committedAt"`
}

// GameRecord is one settled game.
type GameRecord struct {
	GameID      uint64    `json:"gameId"`
	Player      string    `json:"player"`
	SlotID      uint64    `json:"slotId"`
	BetAmount   string    `json:"betAmount"`
	CardsUsed   uint64    `json:"cardsUsed"`
	SubDeckHash string    `json:"subDeckHash"`
	Outcome     string    `json:"outcome"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// Store abstracts audit persistence.
type Store interface {
	SaveCommit(ctx context.Context, rec CommitRecord) error
	SaveGame(ctx context.Context, rec GameRecord) error
	Commits(ctx context.Context, limit int) ([]CommitRecord, error)
	Games(ctx context.Context, limit int) ([]GameRecord, error)
}

// MemoryStore is mostly for testing and local dev.
type MemoryStore struct {
	mu      sync.RWMutex
	commits []CommitRecord
	games   []GameRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) SaveCommit(_ context.Context, rec CommitRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits = append(m.commits, rec)
	return nil
}

func (m *MemoryStore) SaveGame(_ context.Context, rec GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games = append(m.games, rec)
	return nil
}

func (m *MemoryStore) Commits(_ context.Context, limit int) ([]CommitRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.commits, limit), nil
}

func (m *MemoryStore) Games(_ context.Context, limit int) ([]GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.games, limit), nil
}

// lastN copies the newest records, newest first.
func lastN[T any](in []T, limit int) []T {
	if limit <= 0 || limit > len(in) {
		limit = len(in)
	}
	out := make([]T, 0, limit)
	for i := len(in) - 1; i >= len(in)-limit; i-- {
		out = append(out, in[i])
	}
	return out
}
