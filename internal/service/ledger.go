package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ashdown/tally/internal/database"
	"github.com/ashdown/tally/internal/database/repository"
)

// LedgerService owns balance recomputation and every ledger mutation that
// triggers it. Each mutation and its recompute commit in one transaction,
// so a reader can never observe a transaction whose balance_after reflects
// a stale ledger. The store handle is injected; the caller owns its
// lifecycle.
type LedgerService struct {
	DB *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService { return &LedgerService{DB: db} }

// TransferInput describes a transfer between two accounts of one user.
type TransferInput struct {
	FromAccountID string
	ToAccountID   string
	AmountCents   int64
	Date          time.Time
	Description   string
}

// Recompute replays an account's ledger in (date, seq, id) order and
// rewrites every running balance plus the account's cached current
// balance. Idempotent: a second run without intervening mutation writes
// identical values. All-or-nothing: any failure rolls the whole pass back
// and surfaces as ErrLedgerInconsistency.
func (s *LedgerService) Recompute(ctx context.Context, accountID string) error {
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		return recomputeTx(ctx, tx, accountID)
	})
	return fatal("recompute", accountID, err)
}

// recomputeTx is the single recompute implementation; every mutation below
// calls it inside its own transaction.
func recomputeTx(ctx context.Context, tx *sql.Tx, accountID string) error {
	accounts := repository.NewAccountRepo(tx)
	transactions := repository.NewTransactionRepo(tx)

	acct, err := accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}

	rows, err := transactions.ListForAccount(ctx, accountID)
	if err != nil {
		return err
	}

	balance := acct.OpeningBalanceCents
	for _, t := range rows {
		balance += t.CreditCents - t.DebitCents
		if err := transactions.SetBalanceAfter(ctx, t.ID, balance); err != nil {
			return err
		}
	}
	return accounts.SetCurrentBalance(ctx, accountID, balance)
}

// CreateAccount creates an account with its current balance seeded from
// the opening balance.
func (s *LedgerService) CreateAccount(ctx context.Context, a repository.Account) (repository.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AccountType == "" {
		a.AccountType = "current"
	}
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		return repository.NewAccountRepo(tx).Create(ctx, a)
	})
	if err != nil {
		return repository.Account{}, fmt.Errorf("create account: %w", err)
	}
	a.CurrentBalanceCents = a.OpeningBalanceCents
	return a, nil
}

// SetOpeningBalance changes an account's opening balance and recomputes in
// the same transaction, shifting every running balance by the delta.
func (s *LedgerService) SetOpeningBalance(ctx context.Context, accountID string, cents int64) error {
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		if err := repository.NewAccountRepo(tx).SetOpeningBalance(ctx, accountID, cents); err != nil {
			return err
		}
		return recomputeTx(ctx, tx, accountID)
	})
	return fatal("set opening balance", accountID, err)
}

// AddTransaction inserts one transaction and recomputes its account.
func (s *LedgerService) AddTransaction(ctx context.Context, t repository.Transaction) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		if err := repository.NewTransactionRepo(tx).Insert(ctx, t); err != nil {
			return err
		}
		return recomputeTx(ctx, tx, t.AccountID)
	})
	return t.ID, fatal("add transaction", t.AccountID, err)
}

// AddTransactions bulk-inserts into one account with a single recompute at
// the end of the batch, still one atomic unit. Used by imports and
// test-data generation.
func (s *LedgerService) AddTransactions(ctx context.Context, accountID string, txs []repository.Transaction) error {
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		transactions := repository.NewTransactionRepo(tx)
		for _, t := range txs {
			if t.ID == "" {
				t.ID = uuid.NewString()
			}
			t.AccountID = accountID
			if err := transactions.Insert(ctx, t); err != nil {
				return err
			}
		}
		return recomputeTx(ctx, tx, accountID)
	})
	return fatal("add transactions", accountID, err)
}

// UpdateTransaction edits a transaction's date, description, amounts or
// category, then recomputes its account.
func (s *LedgerService) UpdateTransaction(ctx context.Context, t repository.Transaction) error {
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		transactions := repository.NewTransactionRepo(tx)
		existing, err := transactions.Get(ctx, t.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("transaction %s: %w", t.ID, ErrNotFound)
		}
		if err := transactions.Update(ctx, t); err != nil {
			return err
		}
		return recomputeTx(ctx, tx, existing.AccountID)
	})
	return fatal("update transaction", t.ID, err)
}

// DeleteTransaction removes one transaction. If it is a transfer leg, the
// paired leg's back-reference is cleared first so no dangling pointer
// survives. The owning account is recomputed in the same transaction.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		transactions := repository.NewTransactionRepo(tx)
		t, err := transactions.Get(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		if t.LinkedTransactionID != nil {
			if err := transactions.ClearTransferLink(ctx, *t.LinkedTransactionID); err != nil {
				return err
			}
		}
		if err := transactions.Delete(ctx, id); err != nil {
			return err
		}
		return recomputeTx(ctx, tx, t.AccountID)
	})
	return fatal("delete transaction", id, err)
}

// CreateTransfer writes both legs of a transfer, links them to each other,
// and recomputes both accounts, all in one transaction.
func (s *LedgerService) CreateTransfer(ctx context.Context, in TransferInput) (fromID, toID string, err error) {
	if in.AmountCents <= 0 {
		return "", "", fmt.Errorf("transfer amount must be positive")
	}
	fromID, toID = uuid.NewString(), uuid.NewString()
	err = database.WithTx(s.DB, func(tx *sql.Tx) error {
		accounts := repository.NewAccountRepo(tx)
		for _, id := range []string{in.FromAccountID, in.ToAccountID} {
			acct, err := accounts.Get(ctx, id)
			if err != nil {
				return err
			}
			if acct == nil {
				return fmt.Errorf("account %s: %w", id, ErrNotFound)
			}
		}
		transactions := repository.NewTransactionRepo(tx)
		out := repository.Transaction{
			ID:          fromID,
			AccountID:   in.FromAccountID,
			Date:        in.Date,
			Description: in.Description,
			DebitCents:  in.AmountCents,
			IsTransfer:  true,
		}
		if err := transactions.Insert(ctx, out); err != nil {
			return err
		}
		inLeg := repository.Transaction{
			ID:          toID,
			AccountID:   in.ToAccountID,
			Date:        in.Date,
			Description: in.Description,
			CreditCents: in.AmountCents,
			IsTransfer:  true,
		}
		if err := transactions.Insert(ctx, inLeg); err != nil {
			return err
		}
		if err := transactions.LinkTransfer(ctx, fromID, toID); err != nil {
			return err
		}
		if err := transactions.LinkTransfer(ctx, toID, fromID); err != nil {
			return err
		}
		if err := recomputeTx(ctx, tx, in.FromAccountID); err != nil {
			return err
		}
		return recomputeTx(ctx, tx, in.ToAccountID)
	})
	if err != nil {
		return "", "", fatal("create transfer", in.FromAccountID, err)
	}
	return fromID, toID, nil
}

// ClearAccount deletes every transaction of an account and resets its
// current balance to the opening balance. Transfer legs in other accounts
// that pointed here keep their rows but lose the back-reference.
func (s *LedgerService) ClearAccount(ctx context.Context, accountID string) error {
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		transactions := repository.NewTransactionRepo(tx)
		if err := transactions.ClearTransferLinksTo(ctx, accountID); err != nil {
			return err
		}
		if err := transactions.DeleteForAccount(ctx, accountID); err != nil {
			return err
		}
		return recomputeTx(ctx, tx, accountID)
	})
	return fatal("clear account", accountID, err)
}

// DeleteAccount removes an account. Its transactions and any pattern tags
// on them cascade; transfer legs in other accounts are unlinked first.
func (s *LedgerService) DeleteAccount(ctx context.Context, accountID string) error {
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		accounts := repository.NewAccountRepo(tx)
		acct, err := accounts.Get(ctx, accountID)
		if err != nil {
			return err
		}
		if acct == nil {
			return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
		}
		if err := repository.NewTransactionRepo(tx).ClearTransferLinksTo(ctx, accountID); err != nil {
			return err
		}
		return accounts.Delete(ctx, accountID)
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("delete account %s: %w", accountID, err)
	}
	return nil
}

// fatal classifies a failed mutation: missing rows stay ErrNotFound,
// anything else means the atomic pass was rolled back and is surfaced as a
// consistency error for the caller to abort on.
func fatal(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w: %w", op, id, ErrLedgerInconsistency, err)
}
