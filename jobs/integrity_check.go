package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/umoja-fin/ledger/internal/jobs"
	"github.com/umoja-fin/ledger/internal/ledger/integrity"
	"github.com/umoja-fin/ledger/internal/ledger/shared"
)

// IntegrityCheckJob verifies the global accounting identities over all active
// accounts.
type IntegrityCheckJob struct {
	Checker *integrity.Checker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityCheckJob wires dependencies for the integrity handler.
func NewIntegrityCheckJob(checker *integrity.Checker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityCheckJob {
	return &IntegrityCheckJob{Checker: checker, Logger: logger, Metrics: metrics}
}

// Handle processes integrity check tasks. An imbalance indicates corruption
// that is never auto-corrected; the task fails loudly and is retried so the
// alert repeats until someone intervenes.
func (j *IntegrityCheckJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Checker == nil {
		return errors.New("integrity check: handler not configured")
	}

	tracker := j.metrics().Track(TaskIntegrityCheck)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting ledger integrity check")

	report, err := j.Checker.Run(ctx)
	if errors.Is(err, shared.ErrLedgerImbalance) {
		resultErr = err
		logger.Error("LEDGER INTEGRITY VIOLATION",
			slog.String("total_debit", report.TotalDebit.String()),
			slog.String("total_credit", report.TotalCredit.String()),
			slog.String("assets", report.Assets.String()),
			slog.String("liabilities", report.Liabilities.String()),
			slog.String("equity", report.Equity.String()),
			slog.String("net_income", report.NetIncome.String()),
			slog.Any("error", err))
		return resultErr
	}
	if err != nil {
		resultErr = err
		logger.Error("ledger integrity check", slog.Any("error", err))
		return resultErr
	}

	logger.Info("ledger integrity verified",
		slog.Int("accounts", len(report.Rows)),
		slog.String("total_debit", report.TotalDebit.String()),
		slog.String("total_credit", report.TotalCredit.String()))
	return resultErr
}

func (j *IntegrityCheckJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIntegrityCheck))
	}
	return slog.Default().With(slog.String("job", TaskIntegrityCheck))
}

func (j *IntegrityCheckJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
