package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"

	"github.com/ashdown/tally/internal/config"
	"github.com/ashdown/tally/internal/database"
	"github.com/ashdown/tally/internal/database/repository"
	"github.com/ashdown/tally/internal/service"
)

// app bundles the wired engine for the commands.
type app struct {
	cfg        config.Config
	db         *sql.DB
	ledger     *service.LedgerService
	classifier *service.ClassifierService
	recurring  *service.RecurringService
	ingest     *service.IngestService
	accounts   *repository.AccountRepo
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	initLogger(cfg.Log.Level)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		slog.Error("mkdir db dir", "err", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(cfg.Database.Path); err != nil {
		slog.Error("migrate", "err", err)
		os.Exit(1)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("open db", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ruleRepo := repository.NewCategoryRuleRepo(db)
	catRepo := repository.NewCategoryRepo(db)
	classifier := service.NewClassifierService(ruleRepo, catRepo)

	a := &app{
		cfg:        cfg,
		db:         db,
		ledger:     service.NewLedgerService(db),
		classifier: classifier,
		recurring:  service.NewRecurringService(db, cfg.Detector),
		ingest:     &service.IngestService{DB: db, Classifier: classifier},
		accounts:   repository.NewAccountRepo(db),
	}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(&addAccountCmd{app: a}, "ledger")
	commander.Register(&importCmd{app: a}, "ledger")
	commander.Register(&recomputeCmd{app: a}, "ledger")
	commander.Register(&addRuleCmd{app: a}, "rules")
	commander.Register(&classifyCmd{app: a}, "rules")
	commander.Register(&detectCmd{app: a}, "recurring")
	commander.Register(&confirmCmd{app: a}, "recurring")
	commander.Register(&seedCmd{app: a}, "ops")
	commander.Register(&resetCmd{app: a}, "ops")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

func initLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
