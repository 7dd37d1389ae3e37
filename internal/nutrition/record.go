package nutrition

import "math"

const (
	MaxCalories = 900.0
	MaxMacroG   = 200.0
)

// Record is one food or meal as reported by the model or logged by a user.
type Record struct {
	Name     string  `json:"name"`
	Brand    string  `json:"brand,omitempty"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Clamp bounds v to [lo, hi]. NaN and infinities map to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamped returns a copy of r with calories in [0, 900] and every macro in
// [0, 200] grams, rounded to one decimal.
func (r Record) Clamped() Record {
	r.Calories = round1(Clamp(r.Calories, 0, MaxCalories))
	r.Protein = round1(Clamp(r.Protein, 0, MaxMacroG))
	r.Carbs = round1(Clamp(r.Carbs, 0, MaxMacroG))
	r.Fat = round1(Clamp(r.Fat, 0, MaxMacroG))
	return r
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
