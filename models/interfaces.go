package models

import "context"

// RunStore persists finished runs
type RunStore interface {
	SaveRun(ctx context.Context, run RunRecord) (string, error)
}

// RunRecord is a finished single-instrument run ready for storage
type RunRecord struct {
	Symbol         string
	SignalKind     SignalKind
	InitialCapital float64
	FinalEquity    float64
	Halted         bool
	Ledger         []LedgerRow
	Trades         []TradeRecord
}
