package main

import (
	"fmt"
	"os"

	"github.com/ignatij/shopfloor/internal/config"
	internal_storage "github.com/ignatij/shopfloor/internal/storage"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "shopfloor-migrate"}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load("")
		if err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
		if driver, _ := cmd.Flags().GetString("driver"); driver != "" {
			cfg.DB.Driver = driver
		}
		if dsn, _ := cmd.Flags().GetString("db"); dsn != "" {
			cfg.DB.DSN = dsn
		}
		dsn, err := cfg.DatabaseDSN()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if err := internal_storage.Migrate(cfg.DB.Driver, dsn); err != nil {
			fmt.Printf("%v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied successfully")
	},
}

func main() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("db", "", "Database connection string (optional if DB_* env vars are set)")
	migrateCmd.Flags().String("driver", "", "Database driver: postgres or sqlite3 (defaults to DB_DRIVER or postgres)")
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
