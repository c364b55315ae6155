package peft

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
)

// Config mirrors the fields of a PEFT adapter_config.json this converter
// consumes.
type Config struct {
	R                   int      `json:"r"`
	LoraAlpha           float64  `json:"lora_alpha"`
	LoraDropout         float64  `json:"lora_dropout"`
	TargetModules       []string `json:"target_modules"`
	PeftType            string   `json:"peft_type"`
	BaseModelNameOrPath string   `json:"base_model_name_or_path"`
}

// Validate checks the fields the converter depends on.
func (c *Config) Validate() error {
	if c.R <= 0 {
		return fmt.Errorf("%w: rank %d must be positive", ErrInvalidAdapterFile, c.R)
	}
	if c.LoraAlpha <= 0 {
		return fmt.Errorf("%w: lora_alpha %v must be positive", ErrInvalidAdapterFile, c.LoraAlpha)
	}
	return nil
}

// LoadConfig reads and validates an adapter_config.json file.
func LoadConfig(path string) (*Config, error) {
	//nolint:gosec // G304: path is caller-supplied by design
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config: %v", ErrInvalidAdapterFile, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", ErrInvalidAdapterFile, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
