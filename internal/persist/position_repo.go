package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PositionRow is where a player stood when last saved. Name is the folded
// player name.
type PositionRow struct {
	Name  string
	Board string
	Row   int
	Col   int
}

type PositionRepo struct {
	db *DB
}

func NewPositionRepo(db *DB) *PositionRepo {
	return &PositionRepo{db: db}
}

// Load returns the saved position for name, or nil if there is none.
func (r *PositionRepo) Load(ctx context.Context, name string) (*PositionRow, error) {
	row := &PositionRow{Name: name}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT board, row_idx, col_idx FROM player_positions WHERE name = $1`, name,
	).Scan(&row.Board, &row.Row, &row.Col)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

const upsertPosition = `INSERT INTO player_positions (name, board, row_idx, col_idx, updated_at)
	VALUES ($1, $2, $3, $4, now())
	ON CONFLICT (name) DO UPDATE
	SET board = EXCLUDED.board, row_idx = EXCLUDED.row_idx, col_idx = EXCLUDED.col_idx, updated_at = now()`

// SaveBatch upserts many positions in one round trip and one transaction.
func (r *PositionRepo) SaveBatch(ctx context.Context, rows []PositionRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save positions begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range rows {
		batch.Queue(upsertPosition, p.Name, p.Board, p.Row, p.Col)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save positions: %w", err)
	}
	return tx.Commit(ctx)
}
