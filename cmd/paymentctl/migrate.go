package main

import (
	"fmt"

	"github.com/nnecfa/payments/internal/database"
	"github.com/spf13/cobra"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the embedded schema migrations",
	Long: `Apply every pending migration, or roll back the most recent one.

Examples:
  paymentctl migrate
  paymentctl migrate --down`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back the most recent migration")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if migrateDown {
		if err := database.RollbackMigration(db); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		fmt.Println("Rolled back one migration")
		return nil
	}

	if err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Println("Schema is up to date")
	return nil
}
