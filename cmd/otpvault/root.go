package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	var envFiles []string

	cmd := &cobra.Command{
		Use:   "otpvault",
		Short: "Encrypted OTP vault with an NTP-corrected clock",
		Long: `otpvault stores HOTP/TOTP accounts with their secrets encrypted under a
password-protected key, and derives codes from a clock corrected against
NTP servers.

Settings come from the environment (see OTPVAULT_* variables) and optional
.env files. Storage backends:
  - memory:   in-process only, lost on exit
  - postgres: PG_CONN_URL, secrets and preferences
  - mongo:    MONGODB_URL, secrets only
  - redis:    REDIS_URL, preferences only`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr(), envFiles)
		},
	}

	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "load environment from these files")

	cmd.AddCommand(
		newSyncCmd(a),
		newWatchCmd(a),
		newNTPServerCmd(a),
		newCodeCmd(a),
		newKeygenCmd(a),
		newMigrateCmd(a),
		newStatusCmd(a),
		newVaultCmd(a),
		newVersionCmd(),
	)
	return cmd
}
