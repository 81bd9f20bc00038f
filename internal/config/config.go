// Package config loads and validates server configuration from a YAML
// file merged with environment variables. Environment values win over
// file values so deployments can inject credentials without editing files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pptgirl/pptgirl/internal/contextedit"
)

// ConfigurationError reports an invalid or incomplete configuration. It is
// surfaced at startup, before the server binds.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// ProviderConfig selects and authenticates the chat model provider.
type ProviderConfig struct {
	Name      string `yaml:"name"` // "anthropic", "openai", "google"
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

// ContextEditConfig tunes the read-time history editing thresholds.
// Zero values fall back to the package defaults.
type ContextEditConfig struct {
	HighWaterMark       int `yaml:"high_water_mark"`
	LowWaterMark        int `yaml:"low_water_mark"`
	ToolResultThreshold int `yaml:"tool_result_threshold"`
	ToolCallThreshold   int `yaml:"tool_call_threshold"`
}

// Policy converts the thresholds into a contextedit.Policy, filling unset
// fields with defaults.
func (c ContextEditConfig) Policy() contextedit.Policy {
	p := contextedit.DefaultPolicy()
	if c.HighWaterMark > 0 {
		p.HighWaterMark = c.HighWaterMark
	}
	if c.LowWaterMark > 0 {
		p.LowWaterMark = c.LowWaterMark
	}
	if c.ToolResultThreshold > 0 {
		p.ToolResultThreshold = c.ToolResultThreshold
	}
	if c.ToolCallThreshold > 0 {
		p.ToolCallThreshold = c.ToolCallThreshold
	}
	return p
}

// Config is the full server configuration.
type Config struct {
	Addr          string `yaml:"addr"`
	DataDir       string `yaml:"data_dir"`
	PublicBaseURL string `yaml:"public_base_url"`

	Provider   ProviderConfig `yaml:"provider"`
	ImageModel string         `yaml:"image_model"`
	ImageSize  string         `yaml:"image_size"`

	// AuthTokens maps bearer tokens to user IDs. Empty with DevUser set
	// runs the server in single-user dev mode.
	AuthTokens map[string]string `yaml:"auth_tokens"`
	DevUser    string            `yaml:"dev_user"`

	ContextEdit ContextEditConfig `yaml:"context_edit"`
	TurnTimeout time.Duration     `yaml:"turn_timeout"`
	MaxRounds   int               `yaml:"max_rounds"`
}

// Default returns the baseline configuration before file and environment
// merging.
func Default() Config {
	return Config{
		Addr:          ":8080",
		DataDir:       "data",
		PublicBaseURL: "http://localhost:8080/artifacts",
		Provider: ProviderConfig{
			Name:  "anthropic",
			Model: "claude-sonnet-4-5",
		},
		ImageModel: "gpt-image-1",
		ImageSize:  "1536x1024",
	}
}

// Load reads the optional YAML file at path, merges environment overrides,
// and validates the result. A missing file is not an error; a malformed
// one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env-only config
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Addr, "PPTGIRL_ADDR")
	setString(&cfg.DataDir, "PPTGIRL_DATA_DIR")
	setString(&cfg.PublicBaseURL, "PPTGIRL_PUBLIC_BASE_URL")
	setString(&cfg.Provider.Name, "PPTGIRL_PROVIDER")
	setString(&cfg.Provider.Model, "PPTGIRL_MODEL")
	setString(&cfg.Provider.BaseURL, "PPTGIRL_BASE_URL")
	setString(&cfg.ImageModel, "PPTGIRL_IMAGE_MODEL")
	setString(&cfg.ImageSize, "PPTGIRL_IMAGE_SIZE")
	setString(&cfg.DevUser, "PPTGIRL_DEV_USER")
	setInt(&cfg.Provider.MaxTokens, "PPTGIRL_MAX_TOKENS")
	setInt(&cfg.MaxRounds, "PPTGIRL_MAX_ROUNDS")

	// The provider key falls back to the vendor-conventional variables.
	setString(&cfg.Provider.APIKey, "PPTGIRL_API_KEY")
	if cfg.Provider.APIKey == "" {
		switch cfg.Provider.Name {
		case "anthropic":
			setString(&cfg.Provider.APIKey, "ANTHROPIC_API_KEY")
		case "openai":
			setString(&cfg.Provider.APIKey, "OPENAI_API_KEY")
		case "google":
			setString(&cfg.Provider.APIKey, "GEMINI_API_KEY")
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.Provider.Name {
	case "anthropic", "openai", "google":
	default:
		return &ConfigurationError{Field: "provider.name",
			Reason: fmt.Sprintf("unknown provider %q", c.Provider.Name)}
	}
	if c.Provider.APIKey == "" {
		return &ConfigurationError{Field: "provider.api_key",
			Reason: "missing credentials for provider " + c.Provider.Name}
	}
	if c.Provider.Model == "" {
		return &ConfigurationError{Field: "provider.model", Reason: "model is required"}
	}
	if len(c.AuthTokens) == 0 && c.DevUser == "" {
		return &ConfigurationError{Field: "auth_tokens",
			Reason: "no auth tokens configured and no dev_user fallback"}
	}
	return nil
}
