package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mcdev12/courtside/go/internal/dbconfig"
)

var skipSeed bool

var rootCmd = &cobra.Command{
	Use:   "bootstrap_db",
	Short: "Create the live match schema and seed a demo match",
	Long: `Create the live match tables if they do not exist and, unless --schema-only
is given, upsert a demo team with players, users and an open match.

Connection settings are read from DB_HOST, DB_PORT, DB_USER, DB_PASSWORD,
DB_NAME and DB_SSLMODE.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := dbconfig.NewConfigFromEnv()
		if err != nil {
			return err
		}
		pool, err := pgxpool.New(ctx, cfg.DSN())
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer pool.Close()

		if err := createSchema(ctx, pool); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%d statements)\n", len(schemaStatements))

		if skipSeed {
			return nil
		}
		matchID, err := seed(ctx, pool, demo)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded team %q with %d players, %d users; open match id %d\n",
			demo.Team, len(demo.Players), len(demo.Users), matchID)
		return nil
	},
}

func init() {
	rootCmd.Flags().BoolVar(&skipSeed, "schema-only", false, "create tables without demo data")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}
}
