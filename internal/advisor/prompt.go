package advisor

import (
	_ "embed"
	"os"
	"strings"
	"text/template"
)

//go:embed prompt.md
var defaultPrompt string

const defaultSystemPrompt = "You are a cautious crypto trading assistant. You only answer by calling the provided tool. " +
	"Prices are in the quote currency of the pair. Risk is an integer from 1 (lowest) to 10 (highest)."

type PromptData struct {
	Symbol          string
	Timestamp       string
	Price           float64
	MomentumPct     float64
	MomentumPeriod  int
	TrendPct        float64
	DayChangePct    float64
	VolatilityPct   float64
	BuyThresholdPct float64
	TakeProfitPct   float64
	Context         string
}

// LoadTemplate returns the contents of path, or fallback when path is empty
// or unreadable.
func LoadTemplate(path, fallback string) string {
	if path == "" {
		return fallback
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	return string(contents)
}

func RenderPrompt(templateText string, data PromptData) (string, error) {
	tmpl, err := template.New("advice").Parse(templateText)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
