package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pptgirl/pptgirl/internal/contextedit"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFileAndEnvMerge(t *testing.T) {
	p := writeConfig(t, `
addr: ":9999"
provider:
  name: openai
  model: gpt-5
  api_key: file-key
dev_user: dev
`)
	t.Setenv("PPTGIRL_API_KEY", "env-key")
	t.Setenv("PPTGIRL_DATA_DIR", "/var/lib/pptgirl")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Provider.APIKey != "env-key" {
		t.Errorf("APIKey = %q, env should win over file", cfg.Provider.APIKey)
	}
	if cfg.DataDir != "/var/lib/pptgirl" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Provider.Model != "gpt-5" {
		t.Errorf("Model = %q", cfg.Provider.Model)
	}
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("PPTGIRL_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("PPTGIRL_DEV_USER", "dev")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want vendor env fallback", cfg.Provider.APIKey)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want default", cfg.Addr)
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	p := writeConfig(t, "provider: {name: anthropic, model: m}\ndev_user: dev\n")
	_, err := Load(p)
	var ce *ConfigurationError
	if !errors.As(err, &ce) || ce.Field != "provider.api_key" {
		t.Errorf("err = %v, want ConfigurationError on provider.api_key", err)
	}
}

func TestValidateRejects(t *testing.T) {
	base := Default()
	base.Provider.APIKey = "k"
	base.DevUser = "dev"
	if err := base.Validate(); err != nil {
		t.Fatalf("baseline should validate: %v", err)
	}

	bad := base
	bad.Provider.Name = "llama-at-home"
	if err := bad.Validate(); err == nil {
		t.Error("unknown provider accepted")
	}

	bad = base
	bad.Provider.Model = ""
	if err := bad.Validate(); err == nil {
		t.Error("empty model accepted")
	}

	bad = base
	bad.DevUser = ""
	bad.AuthTokens = nil
	if err := bad.Validate(); err == nil {
		t.Error("no identity source accepted")
	}
}

func TestContextEditPolicy(t *testing.T) {
	p := ContextEditConfig{}.Policy()
	if p != contextedit.DefaultPolicy() {
		t.Errorf("zero config should yield defaults, got %+v", p)
	}

	p = ContextEditConfig{HighWaterMark: 500, ToolCallThreshold: 2}.Policy()
	if p.HighWaterMark != 500 || p.ToolCallThreshold != 2 {
		t.Errorf("overrides not applied: %+v", p)
	}
	if p.LowWaterMark != contextedit.DefaultLowWaterMark {
		t.Errorf("unset field should keep default: %+v", p)
	}
}
