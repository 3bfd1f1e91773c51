package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/Backtester/models"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS backtest_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS backtest_ledger").WillReturnResult(sqlmock.NewResult(0, 0))

	db, err := NewFromDB(context.Background(), conn, zerolog.Nop())
	require.NoError(t, err)
	db.now = func() time.Time { return fixedNow }
	return db, mock
}

func sampleRun() models.RunRecord {
	return models.RunRecord{
		Symbol:         "SPY",
		SignalKind:     models.SignalBinary,
		InitialCapital: 10000,
		FinalEquity:    10500.5,
		Ledger: []models.LedgerRow{
			{Index: 0, Time: fixedNow, Position: 1, ActualWeight: 0.99, TradeExecuted: true, Equity: 10000},
			{Index: 1, Position: 0, TradeExecuted: true, ExitReason: models.ExitTakeProfit, Equity: 10500.5},
		},
		Trades: []models.TradeRecord{{PnLPct: 0.05, Reason: models.ExitTakeProfit}},
	}
}

func TestConnectionParamsDSN(t *testing.T) {
	p := ConnectionParams{Host: "localhost", Port: "5432", User: "bt", Password: "secret", DBName: "runs", SSLMode: "disable"}
	assert.Equal(t, "host=localhost port=5432 user=bt password=secret dbname=runs sslmode=disable", p.DSN())
}

func TestNewFromDBCreateTablesError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS backtest_runs").WillReturnError(errors.New("permission denied"))

	_, err = NewFromDB(context.Background(), conn, zerolog.Nop())
	assert.ErrorContains(t, err, "create tables")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun(t *testing.T) {
	db, mock := newMockDB(t)
	run := sampleRun()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO backtest_runs").
		WithArgs(sqlmock.AnyArg(), "SPY", "binary", "10000", "10500.5", false, 1, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO backtest_ledger").
		WithArgs(sqlmock.AnyArg(), 0, fixedNow, 1, "0.99", true, nil, "10000").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO backtest_ledger").
		WithArgs(sqlmock.AnyArg(), 1, nil, 0, "0", true, "take_profit", "10500.5").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	id, err := db.SaveRun(context.Background(), run)
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRollsBackOnLedgerError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO backtest_runs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO backtest_ledger").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := db.SaveRun(context.Background(), sampleRun())
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSummaries(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "symbol", "signal_kind", "initial_capital", "final_equity", "halted", "trades", "created_at"}).
		AddRow("6f1c5d0e-8a0b-4c39-9a43-3c1f3f2f0a11", "SPY", "weighted", "10000", "9123.45", true, 4, fixedNow)
	mock.ExpectQuery("SELECT (.+) FROM backtest_runs").WithArgs("SPY").WillReturnRows(rows)

	summaries, err := db.RunSummaries(context.Background(), "SPY")
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, "weighted", s.SignalKind)
	assert.True(t, s.FinalEquity.Equal(decimal.RequireFromString("9123.45")))
	assert.True(t, s.Halted)
	assert.Equal(t, 4, s.Trades)
	assert.Equal(t, fixedNow, s.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
