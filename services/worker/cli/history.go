package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bjpl/inteljobs/internal/postgres"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent executions from the durable log",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().String("postgres-dsn", "", "PostgreSQL DSN")
	historyCmd.Flags().String("job", "", "show the latest execution of one job ID")
	historyCmd.Flags().String("type", "", "filter by job type")
	historyCmd.Flags().Int("limit", 20, "maximum rows to print")
}

func runHistory(cmd *cobra.Command, _ []string) error {
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
	repo := postgres.NewRepository(pool)

	jobID, _ := cmd.Flags().GetString("job")
	if jobID != "" {
		exec, err := repo.GetByJobID(ctx, jobID)
		if err != nil {
			return err
		}
		printExecution(exec)
		return nil
	}

	jobType, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")
	execs, err := repo.ListRecent(ctx, jobType, limit)
	if err != nil {
		return err
	}
	if len(execs) == 0 {
		fmt.Println("no executions recorded")
		return nil
	}
	for _, exec := range execs {
		printExecution(exec)
	}
	return nil
}

func printExecution(e *postgres.Execution) {
	fmt.Printf("%s  %-24s %-10s attempts=%d %6dms  %s\n",
		e.ExecutedAt.Format(time.RFC3339), e.JobType, e.Status, e.Attempts, e.DurationMs, e.JobID)
	if e.Error != "" {
		fmt.Printf("    error: %s\n", e.Error)
	}
}
