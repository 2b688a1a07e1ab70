package repository

import (
	"context"
	"database/sql"
	"time"
)

const transactionCols = `id, account_id, date, seq, description, debit_cents, credit_cents,
 balance_after_cents, category_id, is_transfer, linked_transaction_id, source_hash, created_at, updated_at`

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db DBTX
}

func NewTransactionRepo(db DBTX) *TransactionRepo { return &TransactionRepo{db: db} }

// Insert adds a transaction, assigning the next per-account seq. The seq
// subquery must run inside the same transaction as any surrounding ledger
// mutation, which is why repos accept *sql.Tx through DBTX.
func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, account_id, date, seq, description, debit_cents, credit_cents, balance_after_cents,
	 category_id, is_transfer, linked_transaction_id, source_hash, created_at, updated_at)
	VALUES(?, ?, ?,
	 (SELECT COALESCE(MAX(seq), 0) + 1 FROM transactions WHERE account_id = ?),
	 ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		t.ID, t.AccountID, t.Date, t.AccountID, t.Description, t.DebitCents, t.CreditCents,
		t.BalanceAfterCents, t.CategoryID, t.IsTransfer, t.LinkedTransactionID, t.SourceHash)
	return err
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionCols+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ListForAccount returns an account's ledger in replay order: date, then
// the per-account seq, then id as a final deterministic tie-break.
func (r *TransactionRepo) ListForAccount(ctx context.Context, accountID string) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+transactionCols+` FROM transactions
	WHERE account_id = ? ORDER BY date ASC, seq ASC, id ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListForUserSince returns all of a user's transactions dated on or after
// since, across accounts, in ascending date order.
func (r *TransactionRepo) ListForUserSince(ctx context.Context, userID string, since time.Time) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT t.id, t.account_id, t.date, t.seq, t.description, t.debit_cents, t.credit_cents,
	 t.balance_after_cents, t.category_id, t.is_transfer, t.linked_transaction_id, t.source_hash, t.created_at, t.updated_at
	FROM transactions t
	JOIN accounts a ON a.id = t.account_id
	WHERE a.user_id = ? AND t.date >= ?
	ORDER BY t.date ASC, t.seq ASC, t.id ASC`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// Update rewrites the mutable fields of a transaction. Balance fields are
// owned by recompute and not touched here.
func (r *TransactionRepo) Update(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET date = ?, description = ?, debit_cents = ?, credit_cents = ?,
	 category_id = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`, t.Date, t.Description, t.DebitCents, t.CreditCents, t.CategoryID, t.ID)
	return err
}

func (r *TransactionRepo) UpdateCategory(ctx context.Context, id string, categoryID *string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET category_id = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, categoryID, id)
	return err
}

// SetBalanceAfter writes one recomputed running balance.
func (r *TransactionRepo) SetBalanceAfter(ctx context.Context, id string, cents int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET balance_after_cents = ? WHERE id = ?`, cents, id)
	return err
}

// LinkTransfer records the two legs of a transfer as each other's pair.
func (r *TransactionRepo) LinkTransfer(ctx context.Context, id, linkedID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET is_transfer = 1, linked_transaction_id = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, linkedID, id)
	return err
}

// ClearTransferLink removes a dangling back-reference after the paired leg
// is deleted. The row stays flagged is_transfer for history.
func (r *TransactionRepo) ClearTransferLink(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET linked_transaction_id = NULL, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}

// ClearTransferLinksTo nils every back-reference pointing at a transaction
// in the given account, used before account deletion cascades.
func (r *TransactionRepo) ClearTransferLinksTo(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET linked_transaction_id = NULL, updated_at=CURRENT_TIMESTAMP
	WHERE linked_transaction_id IN (SELECT id FROM transactions WHERE account_id = ?)
	AND account_id != ?`, accountID, accountID)
	return err
}

func (r *TransactionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	return err
}

func (r *TransactionRepo) DeleteForAccount(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE account_id = ?`, accountID)
	return err
}

// scanTransaction handles nullable fields for both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var category, linked, source sql.NullString
	if err := row.Scan(&t.ID, &t.AccountID, &t.Date, &t.Seq, &t.Description, &t.DebitCents, &t.CreditCents,
		&t.BalanceAfterCents, &category, &t.IsTransfer, &linked, &source, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	if category.Valid {
		t.CategoryID = &category.String
	}
	if linked.Valid {
		t.LinkedTransactionID = &linked.String
	}
	if source.Valid {
		t.SourceHash = &source.String
	}
	return t, nil
}

func collectTransactions(rows *sql.Rows) ([]Transaction, error) {
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
