package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Repository writes journal rows. There is deliberately no read path.
type Repository struct {
	db Execer
}

// NewRepository creates a new repository
func NewRepository(db Execer) *Repository {
	return &Repository{db: db}
}

// InsertEvent appends a bus event
func (r *Repository) InsertEvent(ctx context.Context, rec EventRecord) error {
	query := `
		INSERT INTO bot_events (event_type, symbol, payload, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4)
	`
	_, err := r.db.Exec(ctx, query, rec.EventType, rec.Symbol, rec.Payload, rec.CreatedAt)
	return err
}

// InsertTrade appends a closed trade
func (r *Repository) InsertTrade(ctx context.Context, rec TradeRecord) error {
	query := `
		INSERT INTO trades (symbol, direction, quantity, entry_price, exit_price, exit_reason, pnl, dry_run, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		rec.Symbol, rec.Direction, rec.Quantity, rec.EntryPrice, rec.ExitPrice,
		rec.ExitReason, rec.PnL, rec.DryRun, rec.OpenedAt, rec.ClosedAt,
	)
	return err
}
