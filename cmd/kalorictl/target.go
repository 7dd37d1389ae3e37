package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kalori/backend/internal/nutrition"
)

var (
	targetGender   string
	targetWeight   float64
	targetHeight   float64
	targetAge      float64
	targetActivity string
	targetGoal     string
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Print the daily calorie target and macro split for body stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := nutrition.Profile{
			Gender:        targetGender,
			ActivityLevel: targetActivity,
			Goal:          targetGoal,
		}
		for _, f := range []struct {
			flag string
			v    float64
			dst  *nutrition.Number
		}{
			{"weight", targetWeight, &p.WeightKg},
			{"height", targetHeight, &p.HeightCm},
			{"age", targetAge, &p.AgeYears},
		} {
			if cmd.Flags().Changed(f.flag) {
				*f.dst = nutrition.N(f.v)
			}
		}

		kcal := nutrition.DailyCalorieTarget(p)
		m := nutrition.MacroTargets(kcal)
		fmt.Fprintf(cmd.OutOrStdout(), "Calories: %d\nProtein: %dg\nCarbs: %dg\nFat: %dg\n", kcal, m.ProteinG, m.CarbsG, m.FatG)
		return nil
	},
}

func init() {
	targetCmd.Flags().StringVar(&targetGender, "gender", "", "male or female")
	targetCmd.Flags().Float64Var(&targetWeight, "weight", 0, "Weight in kg")
	targetCmd.Flags().Float64Var(&targetHeight, "height", 0, "Height in cm")
	targetCmd.Flags().Float64Var(&targetAge, "age", 0, "Age in years")
	targetCmd.Flags().StringVar(&targetActivity, "activity", "moderate", "sedentary, light, moderate, active or very_active")
	targetCmd.Flags().StringVar(&targetGoal, "goal", "maintain", "lose, maintain or gain")
	rootCmd.AddCommand(targetCmd)
}
