package config

import (
	_ "embed"
	"fmt"
	"math"

	"momentum/internal/sizing"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// Preset is the parameter grid recommended for one volatility category.
type Preset struct {
	Name            string            `yaml:"name"`
	Label           string            `yaml:"label"`
	MinDayChangePct float64           `yaml:"min_day_change_pct"`
	RiskLevel       string            `yaml:"risk_level"`
	BuyThresholds   []float64         `yaml:"buy_thresholds"`
	SellThresholds  []float64         `yaml:"sell_thresholds"`
	TakeProfits     []float64         `yaml:"take_profits"`
	Sizing          []sizing.Strategy `yaml:"sizing"`
}

type presetFile struct {
	Categories []Preset `yaml:"categories"`
}

// Presets parses the embedded category table, most volatile first.
func Presets() ([]Preset, error) {
	return parsePresets(presetsYAML)
}

func parsePresets(data []byte) ([]Preset, error) {
	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("parse presets: no categories")
	}
	for _, p := range file.Categories {
		for _, s := range p.Sizing {
			if _, err := sizing.ParseStrategy(string(s)); err != nil {
				return nil, fmt.Errorf("preset %s: %w", p.Name, err)
			}
		}
	}
	return file.Categories, nil
}

// PresetFor picks the first category whose floor the absolute 24h change
// exceeds. The last category catches everything else.
func PresetFor(dayChangePct float64) (Preset, error) {
	presets, err := Presets()
	if err != nil {
		return Preset{}, err
	}
	change := math.Abs(dayChangePct)
	for _, p := range presets {
		if change > p.MinDayChangePct {
			return p, nil
		}
	}
	return presets[len(presets)-1], nil
}
