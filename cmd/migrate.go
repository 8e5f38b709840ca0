package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	migrateDB   string
	migrateDown bool
)

// migrateCmd applies the SQL migrations under migrations/.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		connStr := migrateDB
		if connStr == "" {
			connStr = os.Getenv("DATABASE_URL")
		}
		if connStr == "" {
			return fmt.Errorf("--db flag or DATABASE_URL required")
		}

		m, err := migrate.New("file://migrations", connStr)
		if err != nil {
			return fmt.Errorf("failed to initialize migrations: %w", err)
		}
		defer m.Close()

		if migrateDown {
			err = m.Down()
		} else {
			err = m.Up()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}

		fmt.Println("Migrations applied successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateDB, "db", "", "Database connection string (defaults to DATABASE_URL)")
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Roll back all migrations instead of applying them")
}
