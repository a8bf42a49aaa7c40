package config

import "os"

// Environment variable names for overrides.
const (
	EnvAgentConfig  = "BACKUP_SYNC_AGENT_CONFIG"
	EnvBrokerConfig = "BACKUP_SYNC_BROKER_CONFIG"
)

// EnvOverrides holds values derived from environment variables. These are
// resolved once by ReadEnvOverrides; callers apply the relevant fields
// themselves rather than this package reaching into global state.
type EnvOverrides struct {
	AgentConfigPath  string // BACKUP_SYNC_AGENT_CONFIG: override agent config file path
	BrokerConfigPath string // BACKUP_SYNC_BROKER_CONFIG: override broker config file path
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		AgentConfigPath:  os.Getenv(EnvAgentConfig),
		BrokerConfigPath: os.Getenv(EnvBrokerConfig),
	}
}
