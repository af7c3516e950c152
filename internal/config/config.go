package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"upkeep/internal/domain"
)

// Config models upkeep.yml.
type Config struct {
	Plans     map[domain.PlanTier]PlanConfig `yaml:"plans"`
	Planning  PlanningConfig                 `yaml:"planning"`
	RateLimit string                         `yaml:"rate_limit"`
	Webhooks  []WebhookConfig                `yaml:"webhooks"`
}

type PlanConfig struct {
	MaxAssets int `yaml:"max_assets"`
}

type PlanningConfig struct {
	HorizonDays int `yaml:"horizon_days"`
	Occurrences int `yaml:"occurrences"`
	Limit       int `yaml:"limit"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for tier, plan := range c.Plans {
		if !knownTier(tier) {
			return fmt.Errorf("config.plans has unknown tier %q", tier)
		}
		if plan.MaxAssets <= 0 {
			return fmt.Errorf("config.plans.%s.max_assets must be positive", tier)
		}
	}
	if c.Planning.HorizonDays <= 0 {
		return fmt.Errorf("config.planning.horizon_days must be positive")
	}
	if c.Planning.Occurrences <= 0 {
		return fmt.Errorf("config.planning.occurrences must be positive")
	}
	if c.Planning.Limit <= 0 {
		return fmt.Errorf("config.planning.limit must be positive")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// MaxAssets returns the configured ceiling for a tier, or 0 when unset.
func (c *Config) MaxAssets(tier domain.PlanTier) int {
	if c == nil {
		return 0
	}
	return c.Plans[tier].MaxAssets
}

func knownTier(t domain.PlanTier) bool {
	for _, known := range domain.PlanTiers {
		if t == known {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "upkeep.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections
// fall back to the defaults.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Planning.HorizonDays == 0 {
		c.Planning.HorizonDays = 90
	}
	if c.Planning.Occurrences == 0 {
		c.Planning.Occurrences = 3
	}
	if c.Planning.Limit == 0 {
		c.Planning.Limit = 10
	}
	if c.RateLimit == "" {
		c.RateLimit = "300-M"
	}
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `plans:
  starter:
    max_assets: 3
  growth:
    max_assets: 50
  scale:
    max_assets: 999999

planning:
  horizon_days: 90
  occurrences: 3
  limit: 10

rate_limit: 300-M

# webhooks:
#   - url: https://example.com/hooks/upkeep
#     events: [work_order.completed, asset.created]
#     secret: change-me
#     timeout_seconds: 5
`
