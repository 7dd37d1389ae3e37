package nutrition

import "math"

// Macros is a daily macro target in grams.
type Macros struct {
	ProteinG int `json:"protein_g"`
	CarbsG   int `json:"carbs_g"`
	FatG     int `json:"fat_g"`
}

// MacroTargets splits a calorie target 30/40/30 between protein, carbs and fat.
func MacroTargets(calories int) Macros {
	if calories <= 0 {
		return Macros{}
	}
	kcal := float64(calories)
	return Macros{
		ProteinG: int(math.Round(kcal * 0.30 / 4)),
		CarbsG:   int(math.Round(kcal * 0.40 / 4)),
		FatG:     int(math.Round(kcal * 0.30 / 9)),
	}
}
