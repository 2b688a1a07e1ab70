package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashdown/tally/internal/database/repository"
)

func TestResetWipesDataKeepsSchema(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	acct := newTestAccount(t, db, "u1", 0)

	// populate every table so the wipe has to respect foreign keys
	var txs []repository.Transaction
	for i := 0; i < 3; i++ {
		txs = append(txs, debitOn(day(2026, 1, 10).AddDate(0, i, 0), "NETFLIX.COM", 999))
	}
	require.NoError(t, ledger.AddTransactions(ctx, acct.ID, txs))

	cat := newTestCategory(t, db, "Subscriptions")
	classifier := NewClassifierService(repository.NewCategoryRuleRepo(db), repository.NewCategoryRepo(db))
	_, err := classifier.SaveRule(ctx, "%NETFLIX%", cat.ID, 10)
	require.NoError(t, err)

	recurring := NewRecurringService(db, testDetector())
	cands, err := recurring.Detect(ctx, "u1", DetectOptions{Now: day(2026, 4, 1)})
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	_, err = recurring.Confirm(ctx, cands[0])
	require.NoError(t, err)

	m := &MaintenanceService{DB: db}
	require.NoError(t, m.Reset(ctx))

	for _, table := range wipeOrder {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
		require.Zero(t, n, "table %s should be empty", table)
	}

	// schema survives: the engine keeps working against the same handle
	again := newTestAccount(t, db, "u1", 500)
	require.NoError(t, ledger.AddTransactions(ctx, again.ID, []repository.Transaction{
		debitOn(day(2026, 5, 1), "COFFEE", 100),
	}))
}
