package testdata

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/ashdown/tally/internal/database/repository"
	"github.com/ashdown/tally/internal/service"
)

// Seed creates a sample ledger for userID: one account, default
// categories, six months of history mixing one-off spending with recurring
// merchants (a monthly subscription, a monthly gym bill, a monthly salary)
// so the recurring detector has real signal. The generator is seeded, so
// the same seed always produces the same ledger, and the batch lands
// through the engine's bulk insert so balances are consistent on return.
func Seed(ctx context.Context, db *sql.DB, userID string, seed int64) (accountID string, err error) {
	rng := rand.New(rand.NewSource(seed))

	ledger := service.NewLedgerService(db)
	acct, err := ledger.CreateAccount(ctx, repository.Account{
		ID:                  uuid.NewSHA1(uuid.NameSpaceOID, []byte("acct:"+userID+":sample")).String(),
		UserID:              userID,
		Name:                "Sample Current",
		AccountType:         "current",
		OpeningBalanceCents: 150000,
	})
	if err != nil {
		return "", err
	}

	if err := seedCategories(ctx, repository.NewCategoryRepo(db)); err != nil {
		return "", err
	}

	now := time.Now().UTC().Truncate(24 * time.Hour)
	start := now.AddDate(0, -6, 0)

	var txs []repository.Transaction

	// recurring: subscription, gym, salary, each on a fixed day of month
	for month := 0; month < 6; month++ {
		base := start.AddDate(0, month, 0)
		txs = append(txs,
			debit(base.AddDate(0, 0, 11), "NETFLIX.COM 8837729", 1399),
			debit(base.AddDate(0, 0, 3), "CITY GYM MEMBERSHIP", 4500),
			credit(base.AddDate(0, 0, 14), "ACME PTY LTD SALARY", 425000),
		)
	}

	// one-off noise with varying merchants and amounts
	merchants := []string{"UBER EATS* SUSHI", "AMAZON.COM*XYZ", "WOOLWORTHS 3042", "DAN MURPHY'S", "BP CONNECT"}
	for i := 0; i < 30; i++ {
		day := rng.Intn(180)
		amount := int64(rng.Intn(15000) + 500)
		txs = append(txs, debit(start.AddDate(0, 0, day), merchants[rng.Intn(len(merchants))], amount))
	}

	if err := ledger.AddTransactions(ctx, acct.ID, txs); err != nil {
		return "", fmt.Errorf("seed transactions: %w", err)
	}
	return acct.ID, nil
}

func debit(date time.Time, desc string, cents int64) repository.Transaction {
	return repository.Transaction{ID: uuid.NewString(), Date: date, Description: desc, DebitCents: cents}
}

func credit(date time.Time, desc string, cents int64) repository.Transaction {
	return repository.Transaction{ID: uuid.NewString(), Date: date, Description: desc, CreditCents: cents}
}

func seedCategories(ctx context.Context, repo *repository.CategoryRepo) error {
	cats := []string{
		"Income",
		"Groceries",
		"Restaurants",
		"Transport",
		"Shopping",
		"Utilities",
		"Subscriptions",
		"Health",
		"Entertainment",
	}
	for i, name := range cats {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("cat:"+name)).String()
		if err := repo.Upsert(ctx, repository.Category{ID: id, Name: name, SortOrder: i}); err != nil {
			return err
		}
	}
	return nil
}
