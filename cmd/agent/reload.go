package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

func newReloadCmd() *cobra.Command {
	var pidPath string

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask a running agent daemon to reload its configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if pidPath == "" {
				pidPath = filepath.Join(filepath.Dir(cc.Holder.Path()), pidFileName)
			}

			return sendSIGHUP(pidPath)
		},
	}

	cmd.Flags().StringVar(&pidPath, "pid-file", "", "override the daemon PID file path")

	return cmd
}
