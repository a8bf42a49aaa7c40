package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bechma/backup-sync/internal/config"
)

func TestLoadConfig_PopulatesCLIContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	contents := `
[broker]
address = "broker.example:7950"

[[folder]]
name = "docs"
origin_path = "/home/alice/docs"
backup_path = "/srv/backups/docs"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	prevPath, prevJSON, prevVerbose := flagConfigPath, flagJSON, flagVerbose
	flagConfigPath = path
	defer func() { flagConfigPath, flagJSON, flagVerbose = prevPath, prevJSON, prevVerbose }()

	cmd := &cobra.Command{Use: "test"}

	require.NoError(t, loadConfig(cmd))

	cc := cliContextFrom(cmd.Context())
	require.NotNil(t, cc)
	assert.Equal(t, "broker.example:7950", cc.Holder.Config().Broker.Address)
	assert.Equal(t, path, cc.Holder.Path())
}

func TestMustCLIContext_PanicsWithoutContext(t *testing.T) {
	assert.Panics(t, func() {
		mustCLIContext(context.Background())
	})
}

func TestBuildLogger_VerboseForcesDebugLevel(t *testing.T) {
	prevVerbose := flagVerbose
	flagVerbose = true
	defer func() { flagVerbose = prevVerbose }()

	logger := buildLogger(config.DefaultAgentConfig())
	assert.True(t, logger.Enabled(context.Background(), -4)) // slog.LevelDebug == -4
}
