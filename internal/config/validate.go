package config

import (
	"errors"
	"fmt"
)

// Validation range constants.
const (
	minScanWorkers  = 1
	maxScanWorkers  = 64
	minChunkWorkers = 1
	maxChunkWorkers = 64
	minChunkBytes   = 64 * 1024        // 64 KiB
	maxChunkBytes   = 256 * 1024 * 1024 // 256 MiB
)

// ValidateAgentConfig checks all agent configuration values and returns
// every error found, so users see a complete report in one pass rather
// than fixing issues one at a time.
func ValidateAgentConfig(cfg *AgentConfig) error {
	var errs []error

	for _, f := range cfg.Folders {
		if f.Name == "" {
			errs = append(errs, errors.New("folder: name must not be empty"))
		}

		if f.OriginPath == "" {
			errs = append(errs, fmt.Errorf("folder %q: origin_path must not be empty", f.Name))
		}

		if f.BackupPath == "" {
			errs = append(errs, fmt.Errorf("folder %q: backup_path must not be empty", f.Name))
		}
	}

	if cfg.Broker.Address == "" {
		errs = append(errs, errors.New("broker: address must not be empty"))
	}

	errs = append(errs, validateTransfers(&cfg.Transfers)...)

	return errors.Join(errs...)
}

// ValidateBrokerConfig checks all broker configuration values.
func ValidateBrokerConfig(cfg *BrokerConfig) error {
	var errs []error

	if cfg.Listen.Address == "" {
		errs = append(errs, errors.New("listen: address must not be empty"))
	}

	if cfg.Store.DSN == "" {
		errs = append(errs, errors.New("store: dsn must not be empty"))
	}

	return errors.Join(errs...)
}

func validateTransfers(cfg *TransfersConfig) []error {
	var errs []error

	if cfg.ScanWorkers < minScanWorkers || cfg.ScanWorkers > maxScanWorkers {
		errs = append(errs, fmt.Errorf("transfers: scan_workers must be between %d and %d, got %d",
			minScanWorkers, maxScanWorkers, cfg.ScanWorkers))
	}

	if cfg.ChunkWorkers < minChunkWorkers || cfg.ChunkWorkers > maxChunkWorkers {
		errs = append(errs, fmt.Errorf("transfers: chunk_workers must be between %d and %d, got %d",
			minChunkWorkers, maxChunkWorkers, cfg.ChunkWorkers))
	}

	chunkBytes, err := parseSize(cfg.ChunkSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("transfers: chunk_size: %w", err))
	} else if chunkBytes < minChunkBytes || chunkBytes > maxChunkBytes {
		errs = append(errs, fmt.Errorf("transfers: chunk_size must be between %d and %d bytes, got %d",
			minChunkBytes, maxChunkBytes, chunkBytes))
	}

	if _, err := parseSize(cfg.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("transfers: bandwidth_limit: %w", err))
	}

	return errs
}
