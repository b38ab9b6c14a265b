package snapshots

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a per-account balance rollup as of the end of SnapshotDate.
// At most one exists per (account, date); never mutated after creation.
type Snapshot struct {
	ID           int64
	AccountID    int64
	SnapshotDate time.Time
	Balance      decimal.Decimal
	EntriesCount int64
	CreatedAt    time.Time
}

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
