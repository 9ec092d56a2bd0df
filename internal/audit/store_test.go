package audit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStore_Commits(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := CommitRecord{
			SlotID:      uint64(i),
			CommitHash:  fmt.Sprintf("0xhash%d", i),
			DeckSize:    52,
			BoundSeed:   fmt.Sprintf("%d", 1000+i),
			CommittedAt: time.Now().UTC(),
		}
		if err := store.SaveCommit(ctx, rec); err != nil {
			t.Fatalf("save commit %d: %v", i, err)
		}
	}

	got, err := store.Commits(ctx, 3)
	if err != nil {
		t.Fatalf("commits: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	// Newest first.
	for i, rec := range got {
		if want := uint64(4 - i); rec.SlotID != want {
			t.Fatalf("record %d: expected slot %d, got %d", i, want, rec.SlotID)
		}
	}

	// A zero limit returns everything.
	all, err := store.Commits(ctx, 0)
	if err != nil {
		t.Fatalf("commits: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected all 5 records, got %d", len(all))
	}
}

func TestMemoryStore_Games(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := GameRecord{
		GameID:      1,
		Player:      "0xplayer1",
		SlotID:      0,
		BetAmount:   "100",
		CardsUsed:   5,
		SubDeckHash: "0xsubdeck",
		Outcome:     "player_won",
		FinishedAt:  time.Now().UTC(),
	}
	if err := store.SaveGame(ctx, rec); err != nil {
		t.Fatalf("save game: %v", err)
	}

	got, err := store.Games(ctx, 10)
	if err != nil {
		t.Fatalf("games: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0] != rec {
		t.Fatalf("round trip mismatch: %+v", got[0])
	}

	empty, err := NewMemoryStore().Games(ctx, 10)
	if err != nil {
		t.Fatalf("games on empty store: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no records, got %d", len(empty))
	}
}
