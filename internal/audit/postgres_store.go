package audit

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists audit records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS shoe_commits (
    id BIGSERIAL PRIMARY KEY,
    slot_id BIGINT NOT NULL,
    commit_hash TEXT NOT NULL,
    deck_size BIGINT NOT NULL,
    bound_seed TEXT NOT NULL,
    committed_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS game_records (
    game_id BIGINT PRIMARY KEY,
    player TEXT NOT NULL,
    slot_id BIGINT NOT NULL,
    bet_amount TEXT NOT NULL,
    cards_used BIGINT NOT NULL,
    sub_deck_hash TEXT NOT NULL,
    outcome TEXT NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore connects using the DSN and ensures the tables exist.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTablesSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) SaveCommit(ctx context.Context, rec CommitRecord) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO shoe_commits (slot_id, commit_hash, deck_size, bound_seed, committed_at)
VALUES ($1, $2, $3, $4, $5)
`, rec.SlotID, rec.CommitHash, rec.DeckSize, rec.BoundSeed, rec.CommittedAt)
	return err
}

func (p *PostgresStore) SaveGame(ctx context.Context, rec GameRecord) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO game_records (game_id, player, slot_id, bet_amount, cards_used, sub_deck_hash, outcome, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (game_id) DO NOTHING
`, rec.GameID, rec.Player, rec.SlotID, rec.BetAmount, rec.CardsUsed, rec.SubDeckHash, rec.Outcome, rec.FinishedAt)
	return err
}

func (p *PostgresStore) Commits(ctx context.Context, limit int) ([]CommitRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
SELECT slot_id, commit_hash, deck_size, bound_seed, committed_at
FROM shoe_commits
ORDER BY id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommitRecord
	for rows.Next() {
		var rec CommitRecord
		if err := rows.Scan(&rec.SlotID, &rec.CommitHash, &rec.DeckSize, &rec.BoundSeed, &rec.CommittedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Games(ctx context.Context, limit int) ([]GameRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
SELECT game_id, player, slot_id, bet_amount, cards_used, sub_deck_hash, outcome, finished_at
FROM game_records
ORDER BY game_id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GameRecord
	for rows.Next() {
		var rec GameRecord
		if err := rows.Scan(&rec.GameID, &rec.Player, &rec.SlotID, &rec.BetAmount, &rec.CardsUsed, &rec.SubDeckHash, &rec.Outcome, &rec.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
