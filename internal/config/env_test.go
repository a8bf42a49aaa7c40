package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_PicksUpSetVariables(t *testing.T) {
	t.Setenv(EnvAgentConfig, "/tmp/agent.toml")
	t.Setenv(EnvBrokerConfig, "/tmp/broker.toml")

	got := ReadEnvOverrides()

	assert.Equal(t, "/tmp/agent.toml", got.AgentConfigPath)
	assert.Equal(t, "/tmp/broker.toml", got.BrokerConfigPath)
}

func TestReadEnvOverrides_EmptyWhenUnset(t *testing.T) {
	t.Setenv(EnvAgentConfig, "")
	t.Setenv(EnvBrokerConfig, "")

	got := ReadEnvOverrides()

	assert.Empty(t, got.AgentConfigPath)
	assert.Empty(t, got.BrokerConfigPath)
}
