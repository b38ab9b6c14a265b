package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSnapshotDaily rolls up end-of-day balances for every active account.
	TaskSnapshotDaily = "ledger:snapshot_daily"
	// TaskIntegrityCheck re-derives the trial balance and verifies the global
	// accounting identities.
	TaskIntegrityCheck = "ledger:integrity_check"
)

// SnapshotDailyPayload selects the calendar day to roll up. An empty Date
// means yesterday at execution time.
type SnapshotDailyPayload struct {
	Date string `json:"date,omitempty"`
}

// NewSnapshotDailyTask constructs the daily rollup task.
func NewSnapshotDailyTask(payload SnapshotDailyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotDaily, data), nil
}

// IntegrityCheckPayload is currently empty; the check always covers the whole
// ledger.
type IntegrityCheckPayload struct{}

// NewIntegrityCheckTask constructs the integrity verification task.
func NewIntegrityCheckTask() (*asynq.Task, error) {
	data, err := json.Marshal(IntegrityCheckPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityCheck, data), nil
}
