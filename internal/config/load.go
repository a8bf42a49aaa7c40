package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// LoadAgentConfig reads and parses an agent TOML config file on top of
// DefaultAgentConfig, so unset fields keep their defaults, then validates
// the result.
func LoadAgentConfig(path string, logger *slog.Logger) (*AgentConfig, error) {
	logger.Debug("loading agent config file", "path", path)

	cfg := DefaultAgentConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := ValidateAgentConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("agent config parsed successfully", "path", path, "folder_count", len(cfg.Folders))

	return cfg, nil
}

// LoadBrokerConfig reads and parses a broker TOML config file on top of
// DefaultBrokerConfig.
func LoadBrokerConfig(path string, logger *slog.Logger) (*BrokerConfig, error) {
	logger.Debug("loading broker config file", "path", path)

	cfg := DefaultBrokerConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := ValidateBrokerConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("broker config parsed successfully", "path", path)

	return cfg, nil
}
