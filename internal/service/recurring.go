package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/ashdown/tally/internal/config"
	"github.com/ashdown/tally/internal/database"
	"github.com/ashdown/tally/internal/database/repository"
)

// canonical intervals, smallest first so a weekly cadence is never
// mistaken for a sloppy fortnightly one
var canonicalIntervals = []struct {
	days  int
	label string
}{
	{7, "weekly"},
	{14, "fortnightly"},
	{30, "monthly"},
	{90, "quarterly"},
	{365, "yearly"},
}

// mergedPatternSimilarity is the levenshtein similarity above which a
// candidate merchant is considered already covered by a confirmed pattern.
const mergedPatternSimilarity = 0.8

// RecurringService detects candidate recurring obligations in transaction
// history and manages their confirm lifecycle. Detection is read-only;
// only Confirm writes, and rejection is simply never calling it.
type RecurringService struct {
	DB           *sql.DB
	Accounts     *repository.AccountRepo
	Transactions *repository.TransactionRepo
	Patterns     *repository.RecurringPatternRepo
	Thresholds   config.DetectorConfig
}

func NewRecurringService(db *sql.DB, thresholds config.DetectorConfig) *RecurringService {
	return &RecurringService{
		DB:           db,
		Accounts:     repository.NewAccountRepo(db),
		Transactions: repository.NewTransactionRepo(db),
		Patterns:     repository.NewRecurringPatternRepo(db),
		Thresholds:   thresholds,
	}
}

// DetectOptions tunes a single detection run.
type DetectOptions struct {
	// LookbackMonths overrides the configured scan window when > 0.
	LookbackMonths int
	// Now anchors the window; zero means time.Now. Tests pin it.
	Now time.Time
}

// Candidate is a transient detection result. It is never persisted; it
// exists for the duration of a review session and becomes a
// RecurringPattern only through Confirm.
type Candidate struct {
	UserID                string
	Merchant              string
	NormalizedDescription string
	TypicalAmountCents    int64
	TypicalDay            *int
	Frequency             string
	IsSubscription        bool
	Occurrences           int
	TransactionIDs        []string
}

type group struct {
	desc    string
	isDebit bool
	amounts []int64
	dates   []time.Time
	days    []int
	ids     []string
}

// Detect scans a user's ledger for regularly repeating obligations. Groups
// below the occurrence minimum, with irregular gaps, or already covered by
// a confirmed pattern are discarded, not returned as low-confidence
// results. An empty slice is a successful answer. Transfer legs are
// excluded: money moving between a user's own accounts is not an
// obligation.
func (s *RecurringService) Detect(ctx context.Context, userID string, opts DetectOptions) ([]Candidate, error) {
	accounts, err := s.Accounts.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	lookback := s.Thresholds.LookbackMonths
	if opts.LookbackMonths > 0 {
		lookback = opts.LookbackMonths
	}
	since := now.AddDate(0, -lookback, 0)

	txs, err := s.Transactions.ListForUserSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	groups := s.groupTransactions(txs)

	existing, err := s.Patterns.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	var out []Candidate
	for _, g := range groups {
		cand, ok := s.candidateFromGroup(userID, g)
		if !ok {
			continue
		}
		if coveredByExisting(cand, existing) {
			continue
		}
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedDescription < out[j].NormalizedDescription })
	return out, nil
}

// groupTransactions buckets by normalized description, direction, and
// amount: a transaction joins an existing bucket when its amount is within
// the relative tolerance of the bucket's first amount, which absorbs minor
// price drift without letting a £9.99 subscription merge with a £99
// purchase at the same merchant.
func (s *RecurringService) groupTransactions(txs []repository.Transaction) []*group {
	var groups []*group
	byDesc := make(map[string][]*group)
	for _, t := range txs {
		if t.IsTransfer {
			continue
		}
		amount := t.CreditCents
		isDebit := false
		if t.DebitCents > 0 {
			amount = t.DebitCents
			isDebit = true
		}
		if amount == 0 {
			continue
		}
		desc := NormalizeDescription(t.Description)
		if desc == "" {
			continue
		}
		var g *group
		for _, cand := range byDesc[desc] {
			if cand.isDebit == isDebit && withinTolerance(amount, cand.amounts[0], s.Thresholds.AmountTolerance) {
				g = cand
				break
			}
		}
		if g == nil {
			g = &group{desc: desc, isDebit: isDebit}
			byDesc[desc] = append(byDesc[desc], g)
			groups = append(groups, g)
		}
		g.amounts = append(g.amounts, amount)
		g.dates = append(g.dates, t.Date)
		g.days = append(g.days, t.Date.Day())
		g.ids = append(g.ids, t.ID)
	}
	return groups
}

func (s *RecurringService) candidateFromGroup(userID string, g *group) (Candidate, bool) {
	if len(g.ids) < s.Thresholds.MinOccurrences {
		return Candidate{}, false
	}
	freqDays, label, ok := s.matchInterval(g.dates)
	if !ok {
		return Candidate{}, false
	}
	cand := Candidate{
		UserID:                userID,
		Merchant:              merchantLabel(g.desc),
		NormalizedDescription: g.desc,
		TypicalAmountCents:    medianInt64(g.amounts),
		Frequency:             label,
		IsSubscription:        g.isDebit && freqDays <= 30,
		Occurrences:           len(g.ids),
		TransactionIDs:        append([]string(nil), g.ids...),
	}
	if freqDays >= 30 {
		day := medianInt(g.days)
		cand.TypicalDay = &day
	}
	return cand, true
}

// matchInterval reports whether every gap between consecutive occurrences
// sits inside the tolerance window of one canonical interval.
func (s *RecurringService) matchInterval(dates []time.Time) (int, string, bool) {
	gaps := make([]int, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		gaps = append(gaps, int(math.Round(dates[i].Sub(dates[i-1]).Hours()/24)))
	}
	for _, iv := range canonicalIntervals {
		tol := int(math.Round(float64(iv.days) * s.Thresholds.GapTolerance))
		if tol < 2 {
			tol = 2
		}
		regular := true
		for _, gap := range gaps {
			if gap < iv.days-tol || gap > iv.days+tol {
				regular = false
				break
			}
		}
		if regular {
			return iv.days, iv.label, true
		}
	}
	return 0, "", false
}

// Confirm persists a reviewed candidate as a RecurringPattern and tags
// exactly its evidence transactions, in one transaction.
func (s *RecurringService) Confirm(ctx context.Context, cand Candidate) (repository.RecurringPattern, error) {
	if len(cand.TransactionIDs) == 0 {
		return repository.RecurringPattern{}, fmt.Errorf("confirm: candidate has no evidence transactions")
	}
	p := repository.RecurringPattern{
		ID:                    uuid.NewString(),
		UserID:                cand.UserID,
		NormalizedDescription: cand.NormalizedDescription,
		Merchant:              cand.Merchant,
		TypicalAmountCents:    cand.TypicalAmountCents,
		TypicalDay:            cand.TypicalDay,
		Frequency:             cand.Frequency,
		IsSubscription:        cand.IsSubscription,
	}
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		patterns := repository.NewRecurringPatternRepo(tx)
		if err := patterns.Insert(ctx, p); err != nil {
			return err
		}
		for _, id := range cand.TransactionIDs {
			if err := patterns.TagTransaction(ctx, p.ID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return repository.RecurringPattern{}, fmt.Errorf("confirm %s: %w", cand.NormalizedDescription, err)
	}
	return p, nil
}

// coveredByExisting suppresses candidates an earlier confirmation already
// covers: identical normalized description, or a merchant name close
// enough to be the same obligation under slight rewording.
func coveredByExisting(cand Candidate, existing []repository.RecurringPattern) bool {
	for _, p := range existing {
		if p.NormalizedDescription == cand.NormalizedDescription {
			return true
		}
		if similarity(p.Merchant, cand.Merchant) >= mergedPatternSimilarity {
			return true
		}
	}
	return false
}

// similarity is edit distance normalized by the longer name's rune count;
// the distance is rune-based, so the denominator must be too or accented
// merchant names score as closer than they are.
func similarity(a, b string) float64 {
	a, b = strings.ToUpper(a), strings.ToUpper(b)
	if a == b {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// NormalizeDescription upper-cases, collapses separators, and strips
// trailing reference numbers and dates, so "NETFLIX.COM 556677" and
// "NETFLIX.COM 556912" key to the same obligation.
func NormalizeDescription(desc string) string {
	desc = strings.ToUpper(strings.TrimSpace(desc))
	desc = strings.NewReplacer("*", " ", "\t", " ").Replace(desc)
	fields := strings.Fields(desc)
	for len(fields) > 0 && isReferenceToken(fields[len(fields)-1]) {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// isReferenceToken reports whether a trailing token looks like a receipt
// reference or a date rather than part of the merchant name.
func isReferenceToken(tok string) bool {
	tok = strings.TrimLeft(tok, "#")
	if tok == "" {
		return true
	}
	digits := 0
	for _, r := range tok {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '/' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return digits > 0
}

// merchantLabel keeps the leading words of a normalized description up to
// the first token containing a digit.
func merchantLabel(desc string) string {
	fields := strings.Fields(desc)
	var out []string
	for _, f := range fields {
		if strings.ContainsAny(f, "0123456789") {
			break
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return desc
	}
	return strings.Join(out, " ")
}

func medianInt64(vals []int64) int64 {
	sorted := append([]int64(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func medianInt(vals []int) int {
	sorted := append([]int(nil), vals...)
	sort.Ints(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func withinTolerance(a, b int64, tol float64) bool {
	if a == b {
		return true
	}
	bigger := math.Max(float64(a), float64(b))
	return math.Abs(float64(a)-float64(b))/bigger <= tol
}
