package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InsertRoundResult records a completed round for later inspection.
func InsertRoundResult(ctx context.Context, roomID uuid.UUID, winners []string, dealerScore int, dealerBust bool, finishedAt time.Time) error {
	q := `INSERT INTO round_results (id, room_id, winners, dealer_score, dealer_bust, finished_at)
	      VALUES ($1, $2, $3, $4, $5, $6)`

	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("failed to generate round result id: %w", err)
	}

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, id, roomID, winners, dealerScore, dealerBust, finishedAt)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert round result: %w", err)
	}
	return nil
}
