package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/umoja-fin/ledger/internal/jobs"
	"github.com/umoja-fin/ledger/internal/ledger/snapshots"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SnapshotDailyJob rolls up end-of-day balances for every active account.
type SnapshotDailyJob struct {
	Snapshots *snapshots.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewSnapshotDailyJob wires dependencies for the rollup handler.
func NewSnapshotDailyJob(svc *snapshots.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *SnapshotDailyJob {
	return &SnapshotDailyJob{
		Snapshots: svc,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes daily rollup tasks. The payload date defaults to yesterday
// so the swept day is fully in the past and its rollup is final.
func (j *SnapshotDailyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Snapshots == nil {
		return errors.New("snapshot daily: handler not configured")
	}
	var payload SnapshotDailyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	date := j.now().AddDate(0, 0, -1)
	if payload.Date != "" {
		parsed, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			return asynq.SkipRetry
		}
		date = parsed
	}

	tracker := j.metrics().Track(TaskSnapshotDaily)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("run_id", uuid.NewString()),
		slog.String("date", date.Format("2006-01-02")))
	logger.Info("starting daily balance rollup")

	result, err := j.Snapshots.CreateDailySnapshots(ctx, date)
	if err != nil {
		resultErr = err
		logger.Error("daily balance rollup", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddSnapshots(result.Created, result.Skipped, result.Failed)

	logger.Info("completed daily balance rollup",
		slog.Int64("created", result.Created),
		slog.Int64("skipped", result.Skipped),
		slog.Int64("failed", result.Failed))
	return resultErr
}

func (j *SnapshotDailyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSnapshotDaily))
	}
	return slog.Default().With(slog.String("job", TaskSnapshotDaily))
}

func (j *SnapshotDailyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SnapshotDailyJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
