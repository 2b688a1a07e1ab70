package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/ashdown/tally/internal/database/repository"
	"github.com/ashdown/tally/internal/service"
	"github.com/ashdown/tally/internal/testdata"
)

const defaultUser = "local"

// centsFromUnits converts a flag amount to cents, rounding so values like
// 10.45 do not truncate a cent off through float representation.
func centsFromUnits(units float64) int64 {
	return int64(math.Round(units * 100))
}

type addAccountCmd struct {
	app     *app
	user    string
	name    string
	acctTyp string
	opening float64
}

func (*addAccountCmd) Name() string     { return "add-account" }
func (*addAccountCmd) Synopsis() string { return "create an account" }
func (*addAccountCmd) Usage() string {
	return `add-account -name <name> [-type current|savings|credit] [-opening <amount>]

  Creates an account with the given opening balance.
`
}

func (c *addAccountCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", defaultUser, "owner user id")
	f.StringVar(&c.name, "name", "", "account name (required)")
	f.StringVar(&c.acctTyp, "type", "current", "account type")
	f.Float64Var(&c.opening, "opening", 0, "opening balance")
}

func (c *addAccountCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" {
		fmt.Fprintln(os.Stderr, "Error: -name is required")
		return subcommands.ExitUsageError
	}
	acct, err := c.app.ledger.CreateAccount(ctx, repository.Account{
		UserID:              c.user,
		Name:                c.name,
		AccountType:         c.acctTyp,
		OpeningBalanceCents: centsFromUnits(c.opening),
	})
	if err != nil {
		slog.Error("add-account", "err", err)
		return subcommands.ExitFailure
	}
	fmt.Println(acct.ID)
	return subcommands.ExitSuccess
}

type importCmd struct {
	app     *app
	account string
	file    string
	tz      string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import a CSV of transactions into an account" }
func (*importCmd) Usage() string {
	return `import -account <id> -file <path> [-tz <zone>]

  CSV columns: date (2006-01-02), description, amount. Negative amounts are
  money out. Duplicates are skipped; balances are recomputed atomically
  with the import.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "account id (required)")
	f.StringVar(&c.file, "file", "", "CSV path (required)")
	f.StringVar(&c.tz, "tz", "UTC", "timezone of dates in the file")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" || c.file == "" {
		fmt.Fprintln(os.Stderr, "Error: -account and -file are required")
		return subcommands.ExitUsageError
	}
	loc, err := time.LoadLocation(c.tz)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad timezone %q: %v\n", c.tz, err)
		return subcommands.ExitUsageError
	}
	fh, err := os.Open(c.file)
	if err != nil {
		slog.Error("import open", "err", err)
		return subcommands.ExitFailure
	}
	defer fh.Close()

	res, err := c.app.ingest.ImportCSV(ctx, fh, c.account, loc)
	if err != nil {
		slog.Error("import", "account", c.account, "err", err)
		return subcommands.ExitFailure
	}
	for _, e := range res.Errors {
		slog.Warn("import row skipped", "err", e)
	}
	fmt.Printf("imported %d, skipped %d (%d bad rows)\n", res.Imported, res.Skipped, len(res.Errors))
	return subcommands.ExitSuccess
}

type recomputeCmd struct {
	app     *app
	account string
}

func (*recomputeCmd) Name() string     { return "recompute" }
func (*recomputeCmd) Synopsis() string { return "recompute an account's running balances" }
func (*recomputeCmd) Usage() string {
	return `recompute -account <id>

  Replays the account's ledger and rewrites every running balance. Normally
  unnecessary: every mutation already recomputes; this exists for manual
  verification.
`
}

func (c *recomputeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "account id (required)")
}

func (c *recomputeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" {
		fmt.Fprintln(os.Stderr, "Error: -account is required")
		return subcommands.ExitUsageError
	}
	if err := c.app.ledger.Recompute(ctx, c.account); err != nil {
		slog.Error("recompute", "account", c.account, "err", err)
		return subcommands.ExitFailure
	}
	acct, err := c.app.accounts.Get(ctx, c.account)
	if err == nil && acct != nil {
		fmt.Printf("current balance: %.2f\n", float64(acct.CurrentBalanceCents)/100)
	}
	return subcommands.ExitSuccess
}

type addRuleCmd struct {
	app      *app
	pattern  string
	category string
	priority int
}

func (*addRuleCmd) Name() string     { return "add-rule" }
func (*addRuleCmd) Synopsis() string { return "add a categorization rule" }
func (*addRuleCmd) Usage() string {
	return `add-rule -pattern <pattern> -category <id> [-priority N]

  Pattern: comma-separated alternatives, % matches any run of characters,
  _ matches one. Matching is case-insensitive against the whole
  description. Lower priority wins.
`
}

func (c *addRuleCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.pattern, "pattern", "", "wildcard pattern (required)")
	f.StringVar(&c.category, "category", "", "target category id (required)")
	f.IntVar(&c.priority, "priority", 100, "rule priority, lower wins")
}

func (c *addRuleCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.pattern == "" || c.category == "" {
		fmt.Fprintln(os.Stderr, "Error: -pattern and -category are required")
		return subcommands.ExitUsageError
	}
	rule, err := c.app.classifier.SaveRule(ctx, c.pattern, c.category, c.priority)
	if err != nil {
		slog.Error("add-rule", "err", err)
		return subcommands.ExitFailure
	}
	fmt.Println(rule.ID)
	return subcommands.ExitSuccess
}

type classifyCmd struct {
	app *app
}

func (*classifyCmd) Name() string     { return "classify" }
func (*classifyCmd) Synopsis() string { return "test a description against the rule set" }
func (*classifyCmd) Usage() string {
	return `classify <description>

  Runs the given description through the same matcher the import pipeline
  uses and prints the winning rule and category, or "no match".
`
}

func (c *classifyCmd) SetFlags(f *flag.FlagSet) {}

func (c *classifyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: a description argument is required")
		return subcommands.ExitUsageError
	}
	desc := f.Arg(0)
	m, err := c.app.classifier.Classify(ctx, desc)
	if err != nil {
		slog.Error("classify", "err", err)
		return subcommands.ExitFailure
	}
	if m == nil {
		fmt.Println("no match")
		return subcommands.ExitSuccess
	}
	fmt.Printf("rule %s (pattern %q, priority %d) -> category %s\n", m.Rule.ID, m.Rule.Pattern, m.Rule.Priority, m.CategoryID)
	return subcommands.ExitSuccess
}

type detectCmd struct {
	app      *app
	user     string
	lookback int
}

func (*detectCmd) Name() string     { return "detect" }
func (*detectCmd) Synopsis() string { return "detect candidate recurring obligations" }
func (*detectCmd) Usage() string {
	return `detect [-user <id>] [-lookback <months>]

  Scans the user's ledger and lists candidate recurring patterns. Nothing
  is persisted; confirm a candidate with the confirm command.
`
}

func (c *detectCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", defaultUser, "user id")
	f.IntVar(&c.lookback, "lookback", 0, "lookback window in months (0 = configured default)")
}

func (c *detectCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cands, err := c.app.recurring.Detect(ctx, c.user, service.DetectOptions{LookbackMonths: c.lookback})
	if err != nil {
		slog.Error("detect", "user", c.user, "err", err)
		return subcommands.ExitFailure
	}
	if len(cands) == 0 {
		fmt.Println("no recurring candidates found")
		return subcommands.ExitSuccess
	}
	for i, cand := range cands {
		day := "-"
		if cand.TypicalDay != nil {
			day = fmt.Sprintf("day %d", *cand.TypicalDay)
		}
		fmt.Printf("[%d] %s  %s  %.2f  %s  (%d occurrences)\n",
			i, cand.Merchant, cand.Frequency, float64(cand.TypicalAmountCents)/100, day, cand.Occurrences)
	}
	return subcommands.ExitSuccess
}

type confirmCmd struct {
	app      *app
	user     string
	index    int
	lookback int
}

func (*confirmCmd) Name() string     { return "confirm" }
func (*confirmCmd) Synopsis() string { return "confirm a detected candidate as a recurring pattern" }
func (*confirmCmd) Usage() string {
	return `confirm -index <n> [-user <id>] [-lookback <months>]

  Re-runs detection and confirms the n-th candidate from the detect
  listing, persisting it and tagging its contributing transactions.
  Candidates you do not confirm are simply forgotten.
`
}

func (c *confirmCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", defaultUser, "user id")
	f.IntVar(&c.index, "index", -1, "candidate index from the detect listing (required)")
	f.IntVar(&c.lookback, "lookback", 0, "lookback window in months (0 = configured default)")
}

func (c *confirmCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.index < 0 {
		fmt.Fprintln(os.Stderr, "Error: -index is required")
		return subcommands.ExitUsageError
	}
	cands, err := c.app.recurring.Detect(ctx, c.user, service.DetectOptions{LookbackMonths: c.lookback})
	if err != nil {
		slog.Error("confirm detect", "user", c.user, "err", err)
		return subcommands.ExitFailure
	}
	if c.index >= len(cands) {
		fmt.Fprintf(os.Stderr, "Error: index %d out of range, %d candidates\n", c.index, len(cands))
		return subcommands.ExitUsageError
	}
	p, err := c.app.recurring.Confirm(ctx, cands[c.index])
	if err != nil {
		slog.Error("confirm", "err", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("confirmed %s (%s, %d transactions tagged)\n", p.Merchant, p.Frequency, len(cands[c.index].TransactionIDs))
	return subcommands.ExitSuccess
}

type seedCmd struct {
	app  *app
	user string
	seed int64
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "populate a sample ledger" }
func (*seedCmd) Usage() string {
	return `seed [-user <id>] [-seed <n>]

  Generates a deterministic sample account with six months of history
  including recurring merchants for trying out detect.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", defaultUser, "user id")
	f.Int64Var(&c.seed, "seed", 1, "random seed")
}

func (c *seedCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	accountID, err := testdata.Seed(ctx, c.app.db, c.user, c.seed)
	if err != nil {
		slog.Error("seed", "err", err)
		return subcommands.ExitFailure
	}
	fmt.Println(accountID)
	return subcommands.ExitSuccess
}

type resetCmd struct {
	app *app
	yes bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "wipe all data, keeping the schema" }
func (*resetCmd) Usage() string {
	return `reset -yes

  Deletes every account, transaction, rule and pattern.
`
}

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "confirm the wipe")
}

func (c *resetCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintln(os.Stderr, "Error: pass -yes to confirm")
		return subcommands.ExitUsageError
	}
	m := &service.MaintenanceService{DB: c.app.db}
	if err := m.Reset(ctx); err != nil {
		slog.Error("reset", "err", err)
		return subcommands.ExitFailure
	}
	fmt.Println("reset complete")
	return subcommands.ExitSuccess
}
