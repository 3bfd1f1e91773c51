package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Alias1177/Backtester/models"
)

// DB represents a database connection used as the run ledger store
type DB struct {
	*sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN builds the lib/pq connection string
func (p ConnectionParams) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode,
	)
}

// RunSummary is one stored run without its ledger
type RunSummary struct {
	ID             string
	Symbol         string
	SignalKind     string
	InitialCapital decimal.Decimal
	FinalEquity    decimal.Decimal
	Halted         bool
	Trades         int
	CreatedAt      time.Time
}

// New creates a new database connection
func New(ctx context.Context, params ConnectionParams, logger zerolog.Logger) (*DB, error) {
	db, err := sql.Open("postgres", params.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The server may still be starting, retry the first ping
	operation := func() error {
		return db.PingContext(ctx)
	}
	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backoffStrategy, ctx)); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database after retries: %w", err)
	}

	return NewFromDB(ctx, db, logger)
}

// NewFromDB wraps an open connection and makes sure the schema exists
func NewFromDB(ctx context.Context, db *sql.DB, logger zerolog.Logger) (*DB, error) {
	if err := createTables(ctx, db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &DB{
		DB:     db,
		logger: logger.With().Str("component", "database").Logger(),
		now:    time.Now,
	}, nil
}

// createTables creates the necessary tables if they don't exist
func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS backtest_runs (
			id UUID PRIMARY KEY,
			symbol TEXT NOT NULL,
			signal_kind TEXT NOT NULL,
			initial_capital NUMERIC NOT NULL,
			final_equity NUMERIC NOT NULL,
			halted BOOLEAN NOT NULL,
			trades INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS backtest_ledger (
			run_id UUID NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
			bar_index INTEGER NOT NULL,
			bar_time TIMESTAMP,
			position SMALLINT NOT NULL,
			actual_weight NUMERIC NOT NULL,
			trade_executed BOOLEAN NOT NULL,
			exit_reason TEXT,
			equity NUMERIC NOT NULL,
			PRIMARY KEY (run_id, bar_index)
		)
	`)

	return err
}

// SaveRun stores a run and its ledger in one transaction and returns the run id
func (db *DB) SaveRun(ctx context.Context, run models.RunRecord) (string, error) {
	id := uuid.New().String()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs (
			id, symbol, signal_kind, initial_capital, final_equity, halted, trades, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		id, run.Symbol, run.SignalKind.String(),
		decimal.NewFromFloat(run.InitialCapital), decimal.NewFromFloat(run.FinalEquity),
		run.Halted, len(run.Trades), db.now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, row := range run.Ledger {
		barTime := sql.NullTime{Time: row.Time, Valid: !row.Time.IsZero()}
		reason := sql.NullString{String: row.ExitReason.String(), Valid: row.ExitReason != models.ExitNone}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO backtest_ledger (
				run_id, bar_index, bar_time, position, actual_weight, trade_executed, exit_reason, equity
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			id, row.Index, barTime, row.Position,
			decimal.NewFromFloat(row.ActualWeight), row.TradeExecuted, reason,
			decimal.NewFromFloat(row.Equity))
		if err != nil {
			return "", fmt.Errorf("insert ledger row %d: %w", row.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}

	db.logger.Info().
		Str("run_id", id).
		Str("symbol", run.Symbol).
		Int("rows", len(run.Ledger)).
		Msg("Run saved")

	return id, nil
}

// RunSummaries lists stored runs for a symbol, newest first
func (db *DB) RunSummaries(ctx context.Context, symbol string) ([]RunSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, symbol, signal_kind, initial_capital, final_equity, halted, trades, created_at
		FROM backtest_runs
		WHERE symbol = $1
		ORDER BY created_at DESC
	`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(
			&s.ID, &s.Symbol, &s.SignalKind, &s.InitialCapital,
			&s.FinalEquity, &s.Halted, &s.Trades, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

var _ models.RunStore = (*DB)(nil)
