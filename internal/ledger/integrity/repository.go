package integrity

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) ListActiveBalances(ctx context.Context) ([]AccountBalance, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code, name, account_type, currency, current_balance
FROM accounts WHERE active=true ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var ab AccountBalance
		if err := rows.Scan(&ab.AccountID, &ab.Code, &ab.Name, &ab.Type, &ab.Currency, &ab.Balance); err != nil {
			return nil, err
		}
		out = append(out, ab)
	}
	return out, rows.Err()
}
