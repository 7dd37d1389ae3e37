// Package nutrition holds the deterministic diet arithmetic: the daily
// calorie target, macro split and the bounds applied to model-produced
// nutrition values.
package nutrition

import (
	"math"
	"strings"
)

const (
	// DefaultCalorieTarget is returned whenever the profile is incomplete.
	DefaultCalorieTarget = 2000
	// MinCalorieTarget is the floor applied to every computed target.
	MinCalorieTarget = 1200

	loseAdjustment = -500
	gainAdjustment = 300
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

type Goal string

const (
	GoalLose     Goal = "lose"
	GoalMaintain Goal = "maintain"
	GoalGain     Goal = "gain"
)

var activityMultipliers = map[ActivityLevel]float64{
	ActivitySedentary:  1.2,
	ActivityLight:      1.375,
	ActivityModerate:   1.55,
	ActivityActive:     1.725,
	ActivityVeryActive: 1.9,
}

// Profile is the subset of a user profile the calculator reads.
type Profile struct {
	Gender        string `json:"gender"`
	WeightKg      Number `json:"weight"`
	HeightCm      Number `json:"height"`
	AgeYears      Number `json:"age"`
	ActivityLevel string `json:"activity_level"`
	Goal          string `json:"goal_type"`
}

// ParseGender accepts English and Turkish spellings.
func ParseGender(s string) (Gender, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "erkek":
		return GenderMale, true
	case "female", "f", "kadın", "kadin":
		return GenderFemale, true
	}
	return "", false
}

func ParseActivityLevel(s string) (ActivityLevel, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "-", "_")
	v = strings.ReplaceAll(v, " ", "_")
	switch v {
	case "sedentary":
		return ActivitySedentary, true
	case "light", "lightly_active":
		return ActivityLight, true
	case "moderate", "moderately_active":
		return ActivityModerate, true
	case "active":
		return ActivityActive, true
	case "very_active", "extra_active":
		return ActivityVeryActive, true
	}
	return "", false
}

func ParseGoal(s string) (Goal, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lose", "lose_weight":
		return GoalLose, true
	case "maintain", "maintain_weight":
		return GoalMaintain, true
	case "gain", "gain_weight":
		return GoalGain, true
	}
	return "", false
}

// BMR computes the basal metabolic rate with the revised Harris-Benedict
// equations (Roza & Shizgal, 1984).
func BMR(g Gender, weightKg, heightCm, ageYears float64) float64 {
	if g == GenderFemale {
		return 447.593 + 9.247*weightKg + 3.098*heightCm - 4.330*ageYears
	}
	return 88.362 + 13.397*weightKg + 4.799*heightCm - 5.677*ageYears
}

// DailyCalorieTarget returns the recommended daily intake in kcal. Any
// missing or unusable input yields DefaultCalorieTarget; the result is never
// below MinCalorieTarget.
func DailyCalorieTarget(p Profile) int {
	gender, ok := ParseGender(p.Gender)
	if !ok {
		return DefaultCalorieTarget
	}
	activity, ok := ParseActivityLevel(p.ActivityLevel)
	if !ok {
		return DefaultCalorieTarget
	}
	goal, ok := ParseGoal(p.Goal)
	if !ok {
		return DefaultCalorieTarget
	}
	if !p.WeightKg.Positive() || !p.HeightCm.Positive() || !p.AgeYears.Positive() {
		return DefaultCalorieTarget
	}

	tdee := BMR(gender, p.WeightKg.Value, p.HeightCm.Value, p.AgeYears.Value) * activityMultipliers[activity]
	switch goal {
	case GoalLose:
		tdee += loseAdjustment
	case GoalGain:
		tdee += gainAdjustment
	}

	target := int(math.Round(tdee))
	if target < MinCalorieTarget {
		return MinCalorieTarget
	}
	return target
}
