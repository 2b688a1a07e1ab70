package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ashdown/tally/internal/config"
	"github.com/ashdown/tally/internal/database"
	"github.com/ashdown/tally/internal/database/repository"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestAccount(t *testing.T, db *sql.DB, userID string, openingCents int64) repository.Account {
	t.Helper()
	ledger := NewLedgerService(db)
	acct, err := ledger.CreateAccount(context.Background(), repository.Account{
		UserID:              userID,
		Name:                "Test " + uuid.NewString()[:8],
		AccountType:         "current",
		OpeningBalanceCents: openingCents,
	})
	require.NoError(t, err)
	return acct
}

func newTestCategory(t *testing.T, db *sql.DB, name string) repository.Category {
	t.Helper()
	cat := repository.Category{ID: uuid.NewString(), Name: name}
	require.NoError(t, repository.NewCategoryRepo(db).Upsert(context.Background(), cat))
	return cat
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func debitOn(date time.Time, desc string, cents int64) repository.Transaction {
	return repository.Transaction{Date: date, Description: desc, DebitCents: cents}
}

func creditOn(date time.Time, desc string, cents int64) repository.Transaction {
	return repository.Transaction{Date: date, Description: desc, CreditCents: cents}
}

func testDetector() config.DetectorConfig { return config.DefaultDetector() }
