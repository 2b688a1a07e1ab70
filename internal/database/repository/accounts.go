package repository

import (
	"context"
	"database/sql"
)

// AccountRepo handles accounts.
type AccountRepo struct {
	db DBTX
}

func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Create(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, user_id, name, account_type, opening_balance_cents, current_balance_cents, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, a.ID, a.UserID, a.Name, a.AccountType, a.OpeningBalanceCents, a.OpeningBalanceCents)
	return err
}

func (r *AccountRepo) Get(ctx context.Context, id string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, name, account_type, opening_balance_cents, current_balance_cents, created_at, updated_at
	FROM accounts WHERE id = ?`, id)
	var a Account
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.AccountType, &a.OpeningBalanceCents, &a.CurrentBalanceCents, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) ListForUser(ctx context.Context, userID string) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, name, account_type, opening_balance_cents, current_balance_cents, created_at, updated_at
	FROM accounts WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.AccountType, &a.OpeningBalanceCents, &a.CurrentBalanceCents, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetOpeningBalance updates only the opening balance; the caller is
// responsible for recomputing the ledger in the same transaction.
func (r *AccountRepo) SetOpeningBalance(ctx context.Context, id string, cents int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE accounts SET opening_balance_cents = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, cents, id)
	return err
}

// SetCurrentBalance writes the cached derived balance.
func (r *AccountRepo) SetCurrentBalance(ctx context.Context, id string, cents int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE accounts SET current_balance_cents = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, cents, id)
	return err
}

func (r *AccountRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}
