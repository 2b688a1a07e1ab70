package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashdown/tally/internal/database/repository"
)

func TestDetectMonthlySubscription(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	acct := newTestAccount(t, db, "u1", 0)

	// six occurrences spaced 28-31 days apart, with minor price drift and
	// changing receipt references
	dates := []time.Time{
		day(2026, 1, 10), day(2026, 2, 9), day(2026, 3, 11),
		day(2026, 4, 10), day(2026, 5, 10), day(2026, 6, 9),
	}
	refs := []string{"556677", "556912", "557203", "557488", "557801", "558122"}
	amounts := []int64{999, 999, 1029, 999, 1029, 999}
	var txs []repository.Transaction
	for i, d := range dates {
		txs = append(txs, debitOn(d, "NETFLIX.COM "+refs[i], amounts[i]))
	}
	require.NoError(t, ledger.AddTransactions(ctx, acct.ID, txs))

	recurring := NewRecurringService(db, testDetector())
	cands, err := recurring.Detect(ctx, "u1", DetectOptions{Now: day(2026, 6, 20)})
	require.NoError(t, err)
	require.Len(t, cands, 1)

	cand := cands[0]
	require.Equal(t, "monthly", cand.Frequency)
	require.Equal(t, 6, cand.Occurrences)
	require.Len(t, cand.TransactionIDs, 6)
	require.Equal(t, "NETFLIX.COM", cand.NormalizedDescription)
	require.Equal(t, int64(999), cand.TypicalAmountCents, "median resists the two drifted amounts")
	require.True(t, cand.IsSubscription)
	require.NotNil(t, cand.TypicalDay)
	require.Equal(t, 10, *cand.TypicalDay)
}

func TestDetectTooFewOccurrences(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	acct := newTestAccount(t, db, "u1", 0)

	require.NoError(t, ledger.AddTransactions(ctx, acct.ID, []repository.Transaction{
		debitOn(day(2026, 1, 10), "CITY GYM", 4500),
		debitOn(day(2026, 2, 10), "CITY GYM", 4500),
	}))

	recurring := NewRecurringService(db, testDetector())
	cands, err := recurring.Detect(ctx, "u1", DetectOptions{Now: day(2026, 3, 1)})
	require.NoError(t, err)
	require.Empty(t, cands, "two occurrences are not a pattern")
}

func TestDetectIrregularGaps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	acct := newTestAccount(t, db, "u1", 0)

	// same merchant, same amount, but gaps of 3, 47 and 11 days fit no
	// canonical interval
	require.NoError(t, ledger.AddTransactions(ctx, acct.ID, []repository.Transaction{
		debitOn(day(2026, 1, 1), "CORNER CAFE", 1200),
		debitOn(day(2026, 1, 4), "CORNER CAFE", 1200),
		debitOn(day(2026, 2, 20), "CORNER CAFE", 1200),
		debitOn(day(2026, 3, 3), "CORNER CAFE", 1200),
	}))

	recurring := NewRecurringService(db, testDetector())
	cands, err := recurring.Detect(ctx, "u1", DetectOptions{Now: day(2026, 3, 10)})
	require.NoError(t, err)
	require.Empty(t, cands, "irregular groups are discarded, not low-confidence candidates")
}

func TestDetectWeeklyAndSalary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	acct := newTestAccount(t, db, "u1", 0)

	var txs []repository.Transaction
	start := day(2026, 1, 2)
	for i := 0; i < 5; i++ {
		txs = append(txs, debitOn(start.AddDate(0, 0, 7*i), "BEAN SCENE COFFEE", 2100))
	}
	for i := 0; i < 4; i++ {
		txs = append(txs, creditOn(day(2026, 1, 15).AddDate(0, i, 0), "ACME PTY LTD SALARY", 425000))
	}
	require.NoError(t, ledger.AddTransactions(ctx, acct.ID, txs))

	recurring := NewRecurringService(db, testDetector())
	cands, err := recurring.Detect(ctx, "u1", DetectOptions{Now: day(2026, 5, 1)})
	require.NoError(t, err)
	require.Len(t, cands, 2)

	byDesc := map[string]Candidate{}
	for _, c := range cands {
		byDesc[c.NormalizedDescription] = c
	}

	coffee := byDesc["BEAN SCENE COFFEE"]
	require.Equal(t, "weekly", coffee.Frequency)
	require.True(t, coffee.IsSubscription)
	require.Nil(t, coffee.TypicalDay, "weekly patterns have no typical day-of-month")

	salary := byDesc["ACME PTY LTD SALARY"]
	require.Equal(t, "monthly", salary.Frequency)
	require.False(t, salary.IsSubscription, "credits are income, not subscriptions")
	require.Equal(t, int64(425000), salary.TypicalAmountCents)
}

func TestDetectSkipsTransfersAndSplitsAmounts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	acct := newTestAccount(t, db, "u1", 100000)
	savings := newTestAccount(t, db, "u1", 0)

	for i := 0; i < 4; i++ {
		_, _, err := ledger.CreateTransfer(ctx, TransferInput{
			FromAccountID: acct.ID,
			ToAccountID:   savings.ID,
			AmountCents:   50000,
			Date:          day(2026, 1, 1).AddDate(0, i, 0),
			Description:   "Savings sweep",
		})
		require.NoError(t, err)
	}

	// same merchant at two very different price points stays two groups,
	// and neither has enough occurrences
	require.NoError(t, ledger.AddTransactions(ctx, acct.ID, []repository.Transaction{
		debitOn(day(2026, 1, 5), "AMAZON.COM", 899),
		debitOn(day(2026, 2, 5), "AMAZON.COM", 89900),
		debitOn(day(2026, 3, 5), "AMAZON.COM", 910),
	}))

	recurring := NewRecurringService(db, testDetector())
	cands, err := recurring.Detect(ctx, "u1", DetectOptions{Now: day(2026, 5, 1)})
	require.NoError(t, err)
	require.Empty(t, cands)
}

func TestConfirmPersistsAndTags(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	acct := newTestAccount(t, db, "u1", 0)

	var txs []repository.Transaction
	for i := 0; i < 4; i++ {
		txs = append(txs, debitOn(day(2026, 1, 12).AddDate(0, i, 0), "SPOTIFY P11223", 1299))
	}
	// noise that must not be tagged
	txs = append(txs, debitOn(day(2026, 2, 3), "ONE OFF SHOP", 5000))
	require.NoError(t, ledger.AddTransactions(ctx, acct.ID, txs))

	recurring := NewRecurringService(db, testDetector())
	cands, err := recurring.Detect(ctx, "u1", DetectOptions{Now: day(2026, 5, 1)})
	require.NoError(t, err)
	require.Len(t, cands, 1)

	p, err := recurring.Confirm(ctx, cands[0])
	require.NoError(t, err)
	require.Equal(t, "u1", p.UserID)
	require.Equal(t, "monthly", p.Frequency)

	patterns, err := repository.NewRecurringPatternRepo(db).ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, patterns, 1, "exactly one pattern persisted")

	tagged, err := repository.NewRecurringPatternRepo(db).TaggedTransactionIDs(ctx, p.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, cands[0].TransactionIDs, tagged, "exactly the evidence ids, no more and no fewer")
	require.Len(t, tagged, 4)

	// a confirmed pattern suppresses re-proposal
	cands, err = recurring.Detect(ctx, "u1", DetectOptions{Now: day(2026, 5, 1)})
	require.NoError(t, err)
	require.Empty(t, cands)
}

func TestDetectUnknownUser(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	recurring := NewRecurringService(db, testDetector())
	_, err := recurring.Detect(context.Background(), "nobody", DetectOptions{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSimilarityCountsRunesNotBytes(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, similarity("Café Nero", "CAFÉ NERO"))

	// three substitutions over twelve runes; a byte denominator (fifteen,
	// the accents are two bytes each) would inflate this to 0.80 and merge
	// the merchants
	require.InDelta(t, 0.75, similarity("CRÈME BRÛLÉE", "CREME BRULEE"), 1e-9)
}

func TestNormalizeDescription(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"NETFLIX.COM 556677":        "NETFLIX.COM",
		"netflix.com 556912":        "NETFLIX.COM",
		"PAYMENT THANKYOU 28/01/26": "PAYMENT THANKYOU",
		"UBER EATS* SUSHI":          "UBER EATS SUSHI",
		"CITY GYM  MEMBERSHIP":      "CITY GYM MEMBERSHIP",
		"RENT #4410":                "RENT",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeDescription(in), "input %q", in)
	}
}
