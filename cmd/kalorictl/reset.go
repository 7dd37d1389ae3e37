package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/kalori/backend/internal/repository"
	"github.com/kalori/backend/internal/reset"
)

var (
	resetDate        string
	resetConcurrency int
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Archive a day and zero every profile's accumulators",
	Long:  "reset runs the daily reset sweep for --date (default yesterday, UTC). Profiles already archived for that day are skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := reset.ParseDay(resetDate)
		if err != nil {
			return err
		}
		return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
			sweeper := reset.NewSweeper(repository.NewProfileRepo(pool), slog.Default(), resetConcurrency)
			sum, err := sweeper.Run(cmd.Context(), day)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "daily reset %s: %s\n", day.Format(time.DateOnly), sum)
			if sum.Failed > 0 {
				return fmt.Errorf("%d profiles failed, rerun to retry them", sum.Failed)
			}
			return nil
		})
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetDate, "date", "", "Day to archive, YYYY-MM-DD (default yesterday)")
	resetCmd.Flags().IntVar(&resetConcurrency, "concurrency", 8, "Profiles processed in parallel")
	rootCmd.AddCommand(resetCmd)
}
