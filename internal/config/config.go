// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the agent and broker processes
// (spec components C1-C5 for the agent, C7-C8 for the broker), following
// the teacher's layered-defaults + Holder pattern throughout.
package config

// AgentConfig is the top-level configuration for cmd/agent: which folders
// to replicate, how to reach the broker, and the ambient logging/transfer
// knobs every folder's local syncer shares.
type AgentConfig struct {
	Folders   []FolderConfig  `toml:"folder"`
	Broker    BrokerDialConfig `toml:"broker"`
	Transfers TransfersConfig `toml:"transfers"`
	Sync      SyncConfig      `toml:"sync"`
	Logging   LoggingConfig   `toml:"logging"`
}

// FolderConfig names one replicated folder this agent participates in and
// the local path it keeps that folder's backup copy at (spec §4.5's
// originRoot/backupRoot pair, one per locally-run Syncer).
type FolderConfig struct {
	Name                       string `toml:"name"`
	OriginPath                 string `toml:"origin_path"`
	BackupPath                 string `toml:"backup_path"`
	WhenMissingPreserveBackup  bool   `toml:"when_missing_preserve_backup"`
	WhenConflictPreserveBackup bool   `toml:"when_conflict_preserve_backup"`
	WhenDeleteKeepBackup       bool   `toml:"when_delete_keep_backup"`
}

// BrokerDialConfig is the agent's view of how to reach the broker.
type BrokerDialConfig struct {
	Address         string `toml:"address"`
	ReconnectDelay  string `toml:"reconnect_delay"`
	HandshakeTimeout string `toml:"handshake_timeout"`
}

// TransfersConfig controls chunk size and worker pool sizing shared by
// every folder's manifest walk, reconciliation pass, and chunked transfer.
type TransfersConfig struct {
	ChunkSize      string `toml:"chunk_size"`
	BandwidthLimit string `toml:"bandwidth_limit"`
	ScanWorkers    int    `toml:"scan_workers"`
	ChunkWorkers   int    `toml:"chunk_workers"`
	TempDir        string `toml:"temp_dir"`
}

// SyncConfig holds sync-lifecycle settings; its only setting is the
// shutdown timeout.
type SyncConfig struct {
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// LoggingConfig controls log output behavior, shared verbatim between
// agent and broker configs.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// BrokerConfig is the top-level configuration for cmd/broker: where to
// listen, where its metadata Store lives, and logging.
type BrokerConfig struct {
	Listen  BrokerListenConfig `toml:"listen"`
	Store   StoreConfig        `toml:"store"`
	Logging LoggingConfig      `toml:"logging"`
}

// BrokerListenConfig controls the broker's accept address.
type BrokerListenConfig struct {
	Address string `toml:"address"`
}

// StoreConfig points at the broker's metadata persistence (internal/store).
type StoreConfig struct {
	DSN string `toml:"dsn"`
}
