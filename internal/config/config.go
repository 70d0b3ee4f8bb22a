package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
	"github.com/sunshow/jobhuntr/orchestrator/internal/session"
)

// HuntConfig tunes the infinite hunt loop and its watchdog.
type HuntConfig struct {
	RestDelay     time.Duration `yaml:"rest_delay"`
	CheckInterval time.Duration `yaml:"check_interval"`
	MinRestartGap time.Duration `yaml:"min_restart_gap"`
}

// Config is the full service configuration. A yaml file supplies the base;
// environment variables override the secrets and deploy-specific fields.
type Config struct {
	HTTPPort     string `yaml:"http_port"`
	DatabaseURL  string `yaml:"database_url"`
	TemplatesDir string `yaml:"templates_dir"`
	ArtifactsDir string `yaml:"artifacts_dir"`

	GeminiAPIKey    string `yaml:"gemini_api_key"`
	GeminiModel     string `yaml:"gemini_model"`
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	MixpanelToken   string `yaml:"mixpanel_token"`

	Session session.Config `yaml:"session"`
	Run     run.Config     `yaml:"run"`
	Hunt    HuntConfig     `yaml:"hunt"`
}

// Load reads the optional yaml file at path and applies environment
// overrides and defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	overrideString(&cfg.HTTPPort, "HTTP_PORT")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.TemplatesDir, "TEMPLATES_DIR")
	overrideString(&cfg.ArtifactsDir, "ARTIFACTS_DIR")
	overrideString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	overrideString(&cfg.GeminiModel, "GEMINI_MODEL")
	overrideString(&cfg.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	overrideString(&cfg.MixpanelToken, "MIXPANEL_TOKEN")
	overrideString(&cfg.Run.Identity, "JOBHUNTR_IDENTITY")

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTPPort == "" {
		c.HTTPPort = "8080"
	}
	if c.TemplatesDir == "" {
		c.TemplatesDir = "templates"
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = "artifacts"
	}
	if c.Hunt.RestDelay <= 0 {
		c.Hunt.RestDelay = 30 * time.Second
	}
}

func overrideString(dest *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dest = v
	}
}
