package permission

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// HistoryEntry is one executed transaction in the rolling ledger. Value is
// in native units.
type HistoryEntry struct {
	TxHash      string
	WalletID    string
	Destination string
	Value       decimal.Decimal
	Timestamp   time.Time
}

// History is the append-only ledger behind rolling spend windows. Record
// must be visible to the next evaluation; entries older than the retention
// horizon are pruned on each record.
type History interface {
	Record(ctx context.Context, entry HistoryEntry) error
	Since(ctx context.Context, walletID string, since time.Time) ([]HistoryEntry, error)
	Prune(ctx context.Context, before time.Time) error
}
