package repository

import (
	"context"
)

// RecurringPatternRepo stores confirmed recurring patterns and their
// transaction tags.
type RecurringPatternRepo struct{ db DBTX }

func NewRecurringPatternRepo(db DBTX) *RecurringPatternRepo { return &RecurringPatternRepo{db: db} }

func (r *RecurringPatternRepo) Insert(ctx context.Context, p RecurringPattern) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO recurring_patterns(id, user_id, normalized_description, merchant, typical_amount_cents,
	 typical_day, frequency, is_subscription, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, p.ID, p.UserID, p.NormalizedDescription, p.Merchant, p.TypicalAmountCents, p.TypicalDay, p.Frequency, p.IsSubscription)
	return err
}

func (r *RecurringPatternRepo) ListForUser(ctx context.Context, userID string) ([]RecurringPattern, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, normalized_description, merchant, typical_amount_cents, typical_day, frequency, is_subscription, created_at
	FROM recurring_patterns WHERE user_id = ? ORDER BY merchant`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecurringPattern
	for rows.Next() {
		var p RecurringPattern
		if err := rows.Scan(&p.ID, &p.UserID, &p.NormalizedDescription, &p.Merchant, &p.TypicalAmountCents,
			&p.TypicalDay, &p.Frequency, &p.IsSubscription, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TagTransaction links one contributing transaction to a pattern.
func (r *RecurringPatternRepo) TagTransaction(ctx context.Context, patternID, transactionID string) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO pattern_transactions(pattern_id, transaction_id) VALUES(?, ?)`, patternID, transactionID)
	return err
}

// TaggedTransactionIDs returns the transactions tagged to a pattern.
func (r *RecurringPatternRepo) TaggedTransactionIDs(ctx context.Context, patternID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT transaction_id FROM pattern_transactions WHERE pattern_id = ? ORDER BY transaction_id`, patternID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *RecurringPatternRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recurring_patterns WHERE id = ?`, id)
	return err
}
