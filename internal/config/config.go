package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all process-level configuration. Conversation-level
// behavior (language, personas, model) lives in the settings store, not
// here: this only covers where the data lives and how the process talks
// to the outside world.
type Config struct {
	// Storage
	DataFile string `yaml:"data_file"`

	// AI backend
	Provider      string `yaml:"provider"` // http | openai | anthropic | ollama | bedrock
	ChatURL       string `yaml:"chat_url"` // endpoint for the http provider
	OllamaHost    string `yaml:"ollama_host"`
	BedrockRegion string `yaml:"bedrock_region"`

	// Server
	ServerPort string `yaml:"server_port"`

	// Logging
	LogFile      string     `yaml:"log_file"`
	LogLevelName string     `yaml:"log_level"`
	LogLevel     slog.Level `yaml:"-"`
}

// Load reads configuration from an optional YAML file layered under
// environment variables. Env vars always win over file values.
func Load() Config {
	cfg := defaults()

	if path := configFilePath(); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			// A broken config file should not take the process down.
			slog.Warn("ignoring unreadable config file", "path", path, "error", err)
		}
	}

	cfg.DataFile = getEnv("MATECHAT_DATA_FILE", cfg.DataFile)
	cfg.Provider = getEnv("MATECHAT_PROVIDER", cfg.Provider)
	cfg.ChatURL = getEnv("MATECHAT_CHAT_URL", cfg.ChatURL)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.BedrockRegion = getEnv("MATECHAT_BEDROCK_REGION", cfg.BedrockRegion)
	cfg.ServerPort = getEnv("MATECHAT_SERVER_PORT", cfg.ServerPort)
	cfg.LogFile = getEnv("MATECHAT_LOG_FILE", cfg.LogFile)
	cfg.LogLevelName = getEnv("MATECHAT_LOG_LEVEL", cfg.LogLevelName)
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	return cfg
}

func defaults() Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".matechat")
	return Config{
		DataFile:      filepath.Join(dataDir, "matechat.db"),
		Provider:      "http",
		ChatURL:       "http://localhost:8989/api/ai-chat",
		OllamaHost:    "http://localhost:11434",
		BedrockRegion: "us-east-1",
		ServerPort:    "8787",
		LogFile:       filepath.Join(dataDir, "matechat.log"),
		LogLevelName:  "INFO",
	}
}

// configFilePath returns the config file location, or "" if none exists.
func configFilePath() string {
	if p := os.Getenv("MATECHAT_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(home, ".matechat", "config.yaml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
