package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelPriceOverride mirrors one entry of internal/breaker.PriceTable in a
// YAML-friendly shape.
type ModelPriceOverride struct {
	InputPerMTok  float64 `yaml:"input-per-mtok"`
	OutputPerMTok float64 `yaml:"output-per-mtok"`
}

// ProjectConfig is the optional `.qralph/config.yaml` override file
// described in SPEC_FULL.md §6.3: pricing table overrides, per-kind process
// grace-period overrides (seconds), and a manual quality-gate command that
// bypasses the §4.2.1 auto-detection probe.
type ProjectConfig struct {
	Pricing        map[string]ModelPriceOverride `yaml:"pricing"`
	GracePeriods   map[string]int                `yaml:"grace-periods"`
	QualityGateCmd string                        `yaml:"quality-gate-cmd"`
}

// LoadProjectConfig reads and validates path. A missing file is not an
// error — it returns a zero-value ProjectConfig so every field falls back
// to its built-in default, per §6.3.
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ProjectConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg ProjectConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := validateProjectConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateProjectConfig(cfg *ProjectConfig) error {
	for tier, price := range cfg.Pricing {
		if tier == "" {
			return fmt.Errorf("config: pricing: empty model tier name")
		}
		if price.InputPerMTok < 0 {
			return fmt.Errorf("config: pricing[%s].input-per-mtok must be >= 0, got %f", tier, price.InputPerMTok)
		}
		if price.OutputPerMTok < 0 {
			return fmt.Errorf("config: pricing[%s].output-per-mtok must be >= 0, got %f", tier, price.OutputPerMTok)
		}
	}
	for kind, seconds := range cfg.GracePeriods {
		if kind == "" {
			return fmt.Errorf("config: grace-periods: empty process kind name")
		}
		if seconds <= 0 {
			return fmt.Errorf("config: grace-periods[%s] must be > 0, got %d", kind, seconds)
		}
	}
	return nil
}
