package config

// Default values for configuration options — the "layer 0" of the
// defaults -> file -> env -> CLI override chain, chosen as safe starting
// points usable without any config file at all.
const (
	defaultChunkSize        = "10MiB"
	defaultBandwidthLimit   = "0"
	defaultScanWorkers      = 8
	defaultChunkWorkers     = 8
	defaultShutdownTimeout  = "30s"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultBrokerAddress    = "localhost:7950"
	defaultReconnectDelay   = "5s"
	defaultHandshakeTimeout = "10s"
	defaultStoreDSN         = "backup-sync.db"
)

// DefaultAgentConfig returns an AgentConfig populated with default values,
// used both as the decode target (so unset TOML fields retain defaults)
// and as the fallback when no config file exists.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		Broker:    defaultBrokerDialConfig(),
		Transfers: defaultTransfersConfig(),
		Sync:      defaultSyncConfig(),
		Logging:   defaultLoggingConfig(),
	}
}

func defaultBrokerDialConfig() BrokerDialConfig {
	return BrokerDialConfig{
		Address:          defaultBrokerAddress,
		ReconnectDelay:   defaultReconnectDelay,
		HandshakeTimeout: defaultHandshakeTimeout,
	}
}

func defaultTransfersConfig() TransfersConfig {
	return TransfersConfig{
		ChunkSize:      defaultChunkSize,
		BandwidthLimit: defaultBandwidthLimit,
		ScanWorkers:    defaultScanWorkers,
		ChunkWorkers:   defaultChunkWorkers,
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  defaultLogLevel,
		Format: defaultLogFormat,
	}
}

// DefaultBrokerConfig returns a BrokerConfig populated with default values.
func DefaultBrokerConfig() *BrokerConfig {
	return &BrokerConfig{
		Listen:  BrokerListenConfig{Address: defaultBrokerAddress},
		Store:   StoreConfig{DSN: defaultStoreDSN},
		Logging: defaultLoggingConfig(),
	}
}
