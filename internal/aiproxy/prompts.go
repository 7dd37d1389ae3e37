package aiproxy

import (
	"fmt"
	"strings"
	"text/template"
)

const systemPrompt = `You are a nutrition assistant inside a calorie tracking app.
Answer with a single JSON value and nothing else. Use kcal for energy and grams for macros.`

var searchTmpl = template.Must(template.New("search").Parse(
	`Find up to {{.Max}} foods matching "{{.Query}}".
Values are per typical single serving.
Return {"foods":[{"name":string,"brand":string|null,"calories":number,"protein":number,"carbs":number,"fat":number}]}.`))

var analysisTmpl = template.Must(template.New("analysis").Parse(
	`Identify the meal in the photo and estimate its nutrition for the whole plate.
Return {"name":string,"calories":number,"protein":number,"carbs":number,"fat":number,"confidence":number between 0 and 1,
"items":[{"name":string,"calories":number,"protein":number,"carbs":number,"fat":number}]}.`))

var insightsTmpl = template.Must(template.New("insights").Funcs(template.FuncMap{
	"deref": func(p *float64) float64 { return *p },
}).Parse(
	`Here is a user's diet summary for the last {{.Stats.Days}} days ({{.Range}}).
Average per day: {{printf "%.0f" .Stats.AvgCalories}} kcal, protein {{printf "%.0f" .Stats.AvgProtein}} g, carbs {{printf "%.0f" .Stats.AvgCarbs}} g, fat {{printf "%.0f" .Stats.AvgFat}} g.
{{- if .Stats.CalorieTarget}}
Daily calorie target: {{.Stats.CalorieTarget}} kcal.{{end}}
{{- if and .Stats.WeightStart .Stats.WeightEnd}}
Weight went from {{printf "%.1f" (deref .Stats.WeightStart)}} kg to {{printf "%.1f" (deref .Stats.WeightEnd)}} kg.{{end}}
Write a short encouraging summary and at most {{.MaxTips}} concrete tips.
Return {"summary":string,"tips":[string]}.`))

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return b.String(), nil
}
