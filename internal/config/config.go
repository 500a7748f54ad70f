package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	OpenAI   OpenAIConfig   `koanf:"openai"`
	Twilio   TwilioConfig   `koanf:"twilio"`
	Voice    VoiceConfig    `koanf:"voice"`
	Storage  StorageConfig  `koanf:"storage"`
	Dialogue DialogueConfig `koanf:"dialogue"`
	Notify   NotifyConfig   `koanf:"notify"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	PublicBaseURL string `koanf:"public_base_url"`
}

type OpenAIConfig struct {
	APIKey      string  `koanf:"api_key"`
	Model       string  `koanf:"model"`
	Temperature float64 `koanf:"temperature"`
}

type TwilioConfig struct {
	AccountSID    string `koanf:"account_sid"`
	AuthToken     string `koanf:"auth_token"`
	FromNumber    string `koanf:"from_number"`
	AMDTimeoutSec int    `koanf:"amd_timeout_sec"`
}

type VoiceConfig struct {
	Name     string `koanf:"name"`
	Language string `koanf:"language"`
}

type StorageConfig struct {
	Path string `koanf:"path"`
}

type DialogueConfig struct {
	// HistoryWindow is the number of trailing turns included in the
	// generation context.
	HistoryWindow int `koanf:"history_window"`
	// MaxContextTokens is a hard ceiling on the assembled prompt size.
	MaxContextTokens int `koanf:"max_context_tokens"`
}

type NotifyConfig struct {
	WebhookURL string `koanf:"webhook_url"`
}

// Load reads configuration from an optional YAML file and COBRANZA_-prefixed
// environment variables. Environment variables win over the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Default values
	k.Set("server.port", 5050)
	k.Set("server.public_base_url", "http://localhost:5050")
	k.Set("openai.model", "gpt-4o-mini")
	k.Set("openai.temperature", 0.5)
	k.Set("twilio.amd_timeout_sec", 8)
	k.Set("voice.name", "Polly.Mia-Neural")
	k.Set("voice.language", "es-MX")
	k.Set("storage.path", "./data/cobranza.db")
	k.Set("dialogue.history_window", 6)
	k.Set("dialogue.max_context_tokens", 4000)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	// Double underscore separates nesting levels so multi-word keys keep
	// their single underscores: COBRANZA_OPENAI__API_KEY → openai.api_key.
	if err := k.Load(env.Provider("COBRANZA_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "COBRANZA_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Server.PublicBaseURL = strings.TrimSuffix(cfg.Server.PublicBaseURL, "/")

	return &cfg, nil
}
