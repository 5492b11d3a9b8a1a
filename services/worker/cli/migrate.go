package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bjpl/inteljobs/internal/postgres"
	"github.com/bjpl/inteljobs/internal/postgres/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the execution-log schema",
	Long: `Connect to PostgreSQL and apply schema migrations for the durable
execution log.

Reads the DSN from --postgres-dsn, JOB_POSTGRES_DSN, or the config file.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("postgres-dsn", "", "PostgreSQL DSN")
}

// migrationFiles are applied in order. Each file is idempotent.
var migrationFiles = []string{
	"001_create_job_executions.sql",
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	dsn := resolveDSN(cmd)
	if dsn == "" {
		return fmt.Errorf("postgres_dsn is required (flag, JOB_POSTGRES_DSN, or config file)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	for _, f := range migrationFiles {
		sql, err := migrations.FS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("execute migration %s: %w", f, err)
		}
		fmt.Printf("applied %s\n", f)
	}

	fmt.Println("migrations complete")
	return nil
}

// resolveDSN prefers the command's own flag over the viper key, so migrate and
// history do not depend on serve's flag binding.
func resolveDSN(cmd *cobra.Command) string {
	if dsn, err := cmd.Flags().GetString("postgres-dsn"); err == nil && dsn != "" {
		return dsn
	}
	return viper.GetString("postgres_dsn")
}
