package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresLedger keeps balances in a credit_balances table. The deduction is
// a single conditional UPDATE so concurrent starts cannot overdraw.
type PostgresLedger struct {
	db *sql.DB
}

const createCreditsTable = `
CREATE TABLE IF NOT EXISTS credit_balances (
	user_id    TEXT PRIMARY KEY,
	balance    INTEGER NOT NULL CHECK (balance >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// OpenPostgresLedger connects with the given DSN and ensures the table exists.
func OpenPostgresLedger(ctx context.Context, dsn string) (*PostgresLedger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createCreditsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create credit table: %w", err)
	}
	return &PostgresLedger{db: db}, nil
}

// NewPostgresLedger wraps an existing handle.
func NewPostgresLedger(db *sql.DB) *PostgresLedger { return &PostgresLedger{db: db} }

func (p *PostgresLedger) Close() error { return p.db.Close() }

func (p *PostgresLedger) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := p.db.QueryRowContext(ctx,
		`SELECT balance FROM credit_balances WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnknownUser
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

func (p *PostgresLedger) Deduct(ctx context.Context, userID string, amount int) (DeductResult, error) {
	var remaining int
	err := p.db.QueryRowContext(ctx, `
		UPDATE credit_balances
		SET balance = balance - $2, updated_at = now()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance`, userID, amount).Scan(&remaining)
	if err == nil {
		return DeductResult{Success: true, Remaining: remaining}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return DeductResult{}, fmt.Errorf("failed to deduct credits: %w", err)
	}
	balance, err := p.Balance(ctx, userID)
	if errors.Is(err, ErrUnknownUser) {
		return DeductResult{Success: false, Remaining: 0}, nil
	}
	if err != nil {
		return DeductResult{}, err
	}
	return DeductResult{Success: false, Remaining: balance}, nil
}
