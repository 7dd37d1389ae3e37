package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/kalori/backend/internal/quota"
	"github.com/kalori/backend/internal/repository"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage subscription plans",
}

var planSetCmd = &cobra.Command{
	Use:   "set <user-id> <free|basic|pro|unlimited>",
	Short: "Change a user's plan tier",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		tier, err := parseTier(args[1])
		if err != nil {
			return err
		}
		return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
			err := repository.NewProfileRepo(pool).SetPlanTier(cmd.Context(), userID, string(tier))
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("no profile for user %s", userID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set plan of %s to %s\n", userID, tier)
			return nil
		})
	},
}

// parseTier accepts only known tiers; the lenient mapping to free is for
// reading stored values, not for operator input.
func parseTier(s string) (quota.Tier, error) {
	tier, ok := quota.ParseTier(s)
	if !ok {
		return "", fmt.Errorf("unknown plan %q (want free, basic, pro or unlimited)", strings.ToLower(strings.TrimSpace(s)))
	}
	return tier, nil
}

func init() {
	planCmd.AddCommand(planSetCmd)
	rootCmd.AddCommand(planCmd)
}
