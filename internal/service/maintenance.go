package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ashdown/tally/internal/database"
)

// wipeOrder lists every engine table, children before parents, so the
// wipe never trips a foreign key.
var wipeOrder = []string{
	"pattern_transactions",
	"recurring_patterns",
	"category_rules",
	"transactions",
	"categories",
	"accounts",
}

// MaintenanceService owns destructive engine-wide operations.
type MaintenanceService struct {
	DB *sql.DB
}

// Reset empties every table in one transaction, then reclaims file space.
// Schema and migration state survive, so the handle stays usable and a
// fresh seed or import can follow immediately.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		for _, table := range wipeOrder {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("wipe %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	// VACUUM cannot run inside the transaction; a failure here leaves a
	// correct but unshrunk file
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
