package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/umoja-fin/ledger/internal/ledger/accounts"
	"github.com/umoja-fin/ledger/internal/ledger/shared"
)

// identityTolerance allows for rounding noise in the global identities.
var identityTolerance = decimal.New(1, -2)

const (
	reportCacheKey = "trial_balance:current"
	reportCacheTTL = 5 * time.Minute
)

// AccountBalance is the per-account input to the checker.
type AccountBalance struct {
	AccountID int64                `json:"account_id"`
	Code      string               `json:"code"`
	Name      string               `json:"name"`
	Type      accounts.AccountType `json:"type"`
	Currency  string               `json:"currency"`
	Balance   decimal.Decimal      `json:"balance"`
}

// Row is one trial-balance line with the balance split into the column
// implied by the account's normal balance.
type Row struct {
	AccountBalance
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// Report carries the re-derived trial balance and the global identities.
// Equity excludes current earnings; NetIncome carries them separately, so the
// accounting equation reads Assets = Liabilities + Equity + NetIncome.
type Report struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Rows        []Row           `json:"rows"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Assets      decimal.Decimal `json:"assets"`
	Liabilities decimal.Decimal `json:"liabilities"`
	Equity      decimal.Decimal `json:"equity"`
	NetIncome   decimal.Decimal `json:"net_income"`
	Balanced    bool            `json:"balanced"`
}

// Repository lists the balances the checker verifies.
type Repository interface {
	ListActiveBalances(ctx context.Context) ([]AccountBalance, error)
}

// Checker re-derives debit/credit columns from current balances and asserts
// the global accounting identities. It is a correctness oracle over the
// posting engine: a violation is fatal and never auto-corrected.
type Checker struct {
	repo   Repository
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewChecker constructs the checker. client may be nil; the current report is
// then never cached.
func NewChecker(repo Repository, client *redis.Client, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{repo: repo, client: client, logger: logger, now: time.Now}
}

func (c *Checker) WithNow(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// Run builds the trial balance and verifies both identities:
// sum(debit) == sum(credit) and Assets == Liabilities + Equity + NetIncome,
// each within the fixed tolerance. On success the report is cached briefly
// for readers; a violating report is returned alongside ErrLedgerImbalance
// and never cached. Run itself always recomputes.
func (c *Checker) Run(ctx context.Context) (Report, error) {
	balances, err := c.repo.ListActiveBalances(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{GeneratedAt: c.now(), Rows: make([]Row, 0, len(balances))}
	for _, ab := range balances {
		debit, credit := splitBalance(ab.Type, ab.Balance)
		report.Rows = append(report.Rows, Row{AccountBalance: ab, Debit: debit, Credit: credit})
		report.TotalDebit = report.TotalDebit.Add(debit)
		report.TotalCredit = report.TotalCredit.Add(credit)
		switch ab.Type {
		case accounts.AccountTypeAsset:
			report.Assets = report.Assets.Add(ab.Balance)
		case accounts.AccountTypeLiability:
			report.Liabilities = report.Liabilities.Add(ab.Balance)
		case accounts.AccountTypeEquity:
			report.Equity = report.Equity.Add(ab.Balance)
		case accounts.AccountTypeIncome:
			report.NetIncome = report.NetIncome.Add(ab.Balance)
		case accounts.AccountTypeExpense:
			report.NetIncome = report.NetIncome.Sub(ab.Balance)
		}
	}

	columnDiff := report.TotalDebit.Sub(report.TotalCredit)
	equationDiff := report.Assets.Sub(report.Liabilities.Add(report.Equity).Add(report.NetIncome))
	report.Balanced = columnDiff.Abs().LessThanOrEqual(identityTolerance) &&
		equationDiff.Abs().LessThanOrEqual(identityTolerance)
	if !report.Balanced {
		return report, fmt.Errorf("%w: debit-credit difference %s, equation difference %s",
			shared.ErrLedgerImbalance, columnDiff, equationDiff)
	}

	c.cacheReport(ctx, report)
	return report, nil
}

// splitBalance places a balance in the debit or credit column under the
// normal-balance rule; a negative balance lands in the opposite column.
func splitBalance(t accounts.AccountType, balance decimal.Decimal) (debit, credit decimal.Decimal) {
	if t.DebitNormal() {
		if balance.Sign() >= 0 {
			return balance, decimal.Zero
		}
		return decimal.Zero, balance.Abs()
	}
	if balance.Sign() >= 0 {
		return decimal.Zero, balance
	}
	return balance.Abs(), decimal.Zero
}

// LatestReport serves the recent report for read-only consumers, recomputing
// when the cache is cold.
func (c *Checker) LatestReport(ctx context.Context) (Report, error) {
	if cached, ok := c.cachedReport(ctx); ok {
		return cached, nil
	}
	return c.Run(ctx)
}

func (c *Checker) cachedReport(ctx context.Context) (Report, bool) {
	if c.client == nil {
		return Report{}, false
	}
	raw, err := c.client.Get(ctx, reportCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Report{}, false
	}
	if err != nil {
		c.logger.Warn("trial balance cache get", slog.Any("error", err))
		return Report{}, false
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return Report{}, false
	}
	return report, true
}

func (c *Checker) cacheReport(ctx context.Context, report Report) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, reportCacheKey, raw, reportCacheTTL).Err(); err != nil {
		c.logger.Warn("trial balance cache set", slog.Any("error", err))
	}
}
