package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_PopulatesCLIContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.toml")
	contents := `
[listen]
address = "0.0.0.0:7950"

[store]
dsn = "/var/lib/backup-sync/store.db"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	prevPath := flagConfigPath
	flagConfigPath = path
	defer func() { flagConfigPath = prevPath }()

	cmd := &cobra.Command{Use: "test"}

	require.NoError(t, loadConfig(cmd))

	cc := cliContextFrom(cmd.Context())
	require.NotNil(t, cc)
	assert.Equal(t, "0.0.0.0:7950", cc.Holder.Config().Listen.Address)
	assert.Equal(t, path, cc.Holder.Path())
}

func TestMustCLIContext_PanicsWithoutContext(t *testing.T) {
	assert.Panics(t, func() {
		mustCLIContext(context.Background())
	})
}
