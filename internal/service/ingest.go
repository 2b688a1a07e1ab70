package service

import (
	"bufio"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashdown/tally/internal/database"
	"github.com/ashdown/tally/internal/database/repository"
)

// IngestService imports CSV rows into an account's ledger. The whole batch
// plus the closing recompute commit together: readers never see imported
// rows with stale running balances.
type IngestService struct {
	DB         *sql.DB
	Classifier *ClassifierService
}

type IngestResult struct {
	Imported int
	Skipped  int
	Errors   []error
}

type parsedRow struct {
	date        time.Time
	description string
	amountCents int64
	categoryID  *string
	sourceHash  *string
}

// ImportCSV reads `date,description,amount` rows (amount in units of the
// account currency, negative = money out) and inserts them into accountID.
// Each row is classified through the rule matcher before insert. Rows that
// fail to parse are collected per-line and skipped; duplicate rows (same
// account, date, amount, description) are skipped via source hash. The
// insert batch and the recompute are one atomic unit.
func (s *IngestService) ImportCSV(ctx context.Context, r io.Reader, accountID string, loc *time.Location) (IngestResult, error) {
	if loc == nil {
		loc = time.UTC
	}
	res := IngestResult{}

	var rows []parsedRow
	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1
	line := 0
	for {
		line++
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if len(rec) < 3 {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: expected 3 columns (date, description, amount)", line))
			continue
		}
		date, err := parseLocalDate(rec[0], loc)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d date: %w", line, err))
			continue
		}
		desc := strings.TrimSpace(rec[1])
		amountCents, err := unitsToCents(rec[2])
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d amount: %w", line, err))
			continue
		}
		row := parsedRow{
			date:        date,
			description: desc,
			amountCents: amountCents,
			sourceHash:  hashSource(accountID, date.Format(time.DateOnly), strconv.FormatInt(amountCents, 10), desc),
		}
		// classification is advisory; a classifier failure leaves the
		// row uncategorized rather than failing the import
		if s.Classifier != nil {
			if m, err := s.Classifier.Classify(ctx, desc); err == nil && m != nil {
				catID := m.CategoryID
				row.categoryID = &catID
			}
		}
		rows = append(rows, row)
	}

	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		acct, err := repository.NewAccountRepo(tx).Get(ctx, accountID)
		if err != nil {
			return err
		}
		if acct == nil {
			return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
		}
		transactions := repository.NewTransactionRepo(tx)
		for _, row := range rows {
			t := repository.Transaction{
				ID:          uuid.NewString(),
				AccountID:   accountID,
				Date:        row.date,
				Description: row.description,
				CategoryID:  row.categoryID,
				SourceHash:  row.sourceHash,
			}
			if row.amountCents < 0 {
				t.DebitCents = -row.amountCents
			} else {
				t.CreditCents = row.amountCents
			}
			if err := transactions.Insert(ctx, t); err != nil {
				if strings.Contains(err.Error(), "UNIQUE") {
					res.Skipped++
					continue
				}
				return err
			}
			res.Imported++
		}
		return recomputeTx(ctx, tx, accountID)
	})
	if err != nil {
		res.Imported = 0
		res.Skipped = 0
		return res, fatal("import", accountID, err)
	}
	return res, nil
}

func unitsToCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f * 100)), nil
}

func hashSource(parts ...string) *string {
	joined := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(joined))
	h := fmt.Sprintf("%x", sum[:])
	return &h
}

func parseLocalDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
