// internal/database/rounds.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/closemaster/closemaster/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
	round_id      UUID PRIMARY KEY,
	room_id       TEXT NOT NULL,
	round_number  INT NOT NULL,
	closer_id     TEXT NOT NULL,
	correct_close BOOLEAN NOT NULL,
	auto_close    BOOLEAN NOT NULL,
	lowest        INT NOT NULL,
	highest       INT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS round_results (
	round_id   UUID NOT NULL REFERENCES rounds (round_id) ON DELETE CASCADE,
	player_id  TEXT NOT NULL,
	name       TEXT NOT NULL,
	hand_total INT NOT NULL,
	delta      INT NOT NULL,
	score      INT NOT NULL,
	PRIMARY KEY (round_id, player_id)
);

CREATE INDEX IF NOT EXISTS rounds_room_idx ON rounds (room_id, round_number);
`

// RoundStore persists settled rounds for later analysis.
type RoundStore struct {
	pool *pgxpool.Pool
}

func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

// Migrate creates the tables if they do not exist yet.
func (s *RoundStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate rounds schema: %w", err)
	}
	return nil
}

// WriteRounds stores a batch in one transaction. Rounds already stored are
// skipped, so a batch replayed after a crash is harmless.
func (s *RoundStore) WriteRounds(ctx context.Context, recs []models.RoundRecord) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if err := insertRoundTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertRoundTx %s: %w", rec.RoundID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx write rounds: %w", err)
	}
	return nil
}

func insertRoundTx(ctx context.Context, tx pgx.Tx, rec models.RoundRecord) error {
	q := `
		INSERT INTO rounds (
			round_id, room_id, round_number, closer_id, correct_close,
			auto_close, lowest, highest, started_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (round_id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, q,
		rec.RoundID, rec.RoomID, rec.RoundNumber, rec.CloserID, rec.CorrectClose,
		rec.AutoClose, rec.Lowest, rec.Highest, rec.StartedAt, rec.EndedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, res := range rec.Results {
		batch.Queue(`
			INSERT INTO round_results (round_id, player_id, name, hand_total, delta, score)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, rec.RoundID, res.PlayerID, res.Name, res.HandTotal, res.Delta, res.Score)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// roomRounds returns the stored rounds of a room, oldest first. Only tests
// read history back; the server never does.
func (s *RoundStore) roomRounds(ctx context.Context, roomID string) ([]models.RoundRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT round_id, room_id, round_number, closer_id, correct_close,
		       auto_close, lowest, highest, started_at, ended_at
		FROM rounds
		WHERE room_id = $1
		ORDER BY round_number, ended_at
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RoundRecord, error) {
		var rec models.RoundRecord
		err := row.Scan(
			&rec.RoundID, &rec.RoomID, &rec.RoundNumber, &rec.CloserID, &rec.CorrectClose,
			&rec.AutoClose, &rec.Lowest, &rec.Highest, &rec.StartedAt, &rec.EndedAt,
		)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan rounds: %w", err)
	}

	for i := range recs {
		results, err := s.roundResults(ctx, recs[i])
		if err != nil {
			return nil, err
		}
		recs[i].Results = results
	}
	return recs, nil
}

func (s *RoundStore) roundResults(ctx context.Context, rec models.RoundRecord) ([]models.PlayerResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT player_id, name, hand_total, delta, score
		FROM round_results
		WHERE round_id = $1
		ORDER BY player_id
	`, rec.RoundID)
	if err != nil {
		return nil, fmt.Errorf("query round results: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PlayerResult, error) {
		var r models.PlayerResult
		err := row.Scan(&r.PlayerID, &r.Name, &r.HandTotal, &r.Delta, &r.Score)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan round results: %w", err)
	}
	return results, nil
}
