package database

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/eslsoft/lingoledger/internal/entity"
)

// Table names shared by the repository and the backup service.
const (
	LedgersTableName     = "ledgers"
	CompletionsTableName = "ledger_completions"
)

var (
	// LedgersColumns holds the columns for the "ledgers" table.
	LedgersColumns = []*schema.Column{
		{Name: "user_id", Type: field.TypeString, Size: 191},
		{Name: "hearts", Type: field.TypeInt, Default: entity.MaxHearts},
		{Name: "last_heart_update", Type: field.TypeTime},
		{Name: "experience", Type: field.TypeInt64, Default: 0},
		{Name: "has_unlimited_hearts", Type: field.TypeBool, Default: false},
		{Name: "version", Type: field.TypeInt64, Default: 0},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// LedgersTable holds the schema information for the "ledgers" table.
	LedgersTable = &schema.Table{
		Name:       LedgersTableName,
		Columns:    LedgersColumns,
		PrimaryKey: []*schema.Column{LedgersColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "ledger_hearts_last_heart_update",
				Unique:  false,
				Columns: []*schema.Column{LedgersColumns[1], LedgersColumns[2]},
			},
		},
	}
	// CompletionsColumns holds the columns for the "ledger_completions" table.
	CompletionsColumns = []*schema.Column{
		{Name: "user_id", Type: field.TypeString, Size: 191},
		{Name: "kind", Type: field.TypeString, Size: 16},
		{Name: "exercise_id", Type: field.TypeString, Size: 191},
		{Name: "points", Type: field.TypeInt64, Default: 0},
		{Name: "completed_at", Type: field.TypeTime},
	}
	// CompletionsTable holds the schema information for the "ledger_completions" table.
	CompletionsTable = &schema.Table{
		Name:       CompletionsTableName,
		Columns:    CompletionsColumns,
		PrimaryKey: []*schema.Column{CompletionsColumns[0], CompletionsColumns[1], CompletionsColumns[2]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "ledger_completions_ledgers_completions",
				Columns:    []*schema.Column{CompletionsColumns[0]},
				RefColumns: []*schema.Column{LedgersColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		LedgersTable,
		CompletionsTable,
	}
)

func init() {
	CompletionsTable.ForeignKeys[0].RefTable = LedgersTable
}

// Migrate creates or upgrades the ledger tables in place.
func Migrate(ctx context.Context, db *DB) error {
	// The ent driver shares db's pool, so it is not closed here.
	drv := entsql.OpenDB(db.Dialect, db.DB.DB)
	migrator, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := migrator.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
