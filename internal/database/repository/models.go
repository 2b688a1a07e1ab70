package repository

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx. Repos
// are constructed over it so the engine can run the same queries inside a
// transaction when a mutation and its recompute must commit together.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Account represents an account row. CurrentBalanceCents is derived: it
// always mirrors the balance_after of the account's last transaction, or
// the opening balance when the ledger is empty.
type Account struct {
	ID                  string
	UserID              string
	Name                string
	AccountType         string
	OpeningBalanceCents int64
	CurrentBalanceCents int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Category represents a category row.
type Category struct {
	ID        string
	Name      string
	SortOrder int
}

// Transaction represents a ledger row. Seq is a per-account monotonic
// counter assigned at insert; (Date, Seq, ID) is the replay order.
type Transaction struct {
	ID                  string
	AccountID           string
	Date                time.Time
	Seq                 int64
	Description         string
	DebitCents          int64
	CreditCents         int64
	BalanceAfterCents   int64
	CategoryID          *string
	IsTransfer          bool
	LinkedTransactionID *string
	SourceHash          *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CategoryRule maps description patterns to a category. Seq records
// creation order and breaks priority ties deterministically.
type CategoryRule struct {
	ID         string
	Seq        int64
	Pattern    string
	CategoryID string
	Priority   int
	CreatedAt  time.Time
}

// RecurringPattern is a confirmed recurring obligation.
type RecurringPattern struct {
	ID                    string
	UserID                string
	NormalizedDescription string
	Merchant              string
	TypicalAmountCents    int64
	TypicalDay            *int
	Frequency             string
	IsSubscription        bool
	CreatedAt             time.Time
}
