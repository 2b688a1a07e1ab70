package repository

import (
	"context"
	"database/sql"
)

// CategoryRuleRepo stores wildcard categorization rules.
type CategoryRuleRepo struct{ db DBTX }

func NewCategoryRuleRepo(db DBTX) *CategoryRuleRepo { return &CategoryRuleRepo{db: db} }

// Insert adds a rule, assigning the next creation seq. Seq is the persisted
// tie-break for equal priorities, so two rules can never be ambiguous.
func (r *CategoryRuleRepo) Insert(ctx context.Context, cr CategoryRule) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO category_rules(id, seq, pattern, category_id, priority, created_at)
	VALUES(?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM category_rules), ?, ?, ?, CURRENT_TIMESTAMP)
	`, cr.ID, cr.Pattern, cr.CategoryID, cr.Priority)
	return err
}

func (r *CategoryRuleRepo) Get(ctx context.Context, id string) (*CategoryRule, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, seq, pattern, category_id, priority, created_at
	FROM category_rules WHERE id = ?`, id)
	var cr CategoryRule
	if err := row.Scan(&cr.ID, &cr.Seq, &cr.Pattern, &cr.CategoryID, &cr.Priority, &cr.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &cr, nil
}

// ListOrdered returns all rules in resolution order: ascending priority,
// then creation seq.
func (r *CategoryRuleRepo) ListOrdered(ctx context.Context) ([]CategoryRule, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, seq, pattern, category_id, priority, created_at
	FROM category_rules ORDER BY priority ASC, seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategoryRule
	for rows.Next() {
		var cr CategoryRule
		if err := rows.Scan(&cr.ID, &cr.Seq, &cr.Pattern, &cr.CategoryID, &cr.Priority, &cr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

func (r *CategoryRuleRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM category_rules WHERE id = ?`, id)
	return err
}
