package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/otpvault/pkg/otp"
	"github.com/dmitrymomot/otpvault/pkg/vault"
)

func newVaultCmd(a *app) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage stored accounts and the vault password",
	}
	cmd.PersistentFlags().StringVar(&password, "password", os.Getenv("OTPVAULT_PASSWORD"),
		"vault password (default $OTPVAULT_PASSWORD)")

	cmd.AddCommand(
		newVaultAddCmd(a, &password),
		newVaultListCmd(a, &password),
		newVaultCodeCmd(a, &password),
		newVaultDeleteCmd(a, &password),
		newSetPasswordCmd(a),
		newChangePasswordCmd(a, &password),
		newRemovePasswordCmd(a, &password),
	)
	return cmd
}

type entryView struct {
	ID        string `yaml:"id"`
	Label     string `yaml:"label"`
	Kind      string `yaml:"kind"`
	Algorithm string `yaml:"algorithm"`
	Digits    int    `yaml:"digits"`
	Period    uint   `yaml:"period,omitempty"`
	Counter   uint64 `yaml:"counter,omitempty"`
	Created   string `yaml:"created"`
}

func newEntryView(e vault.Entry) entryView {
	d := e.Descriptor
	return entryView{
		ID:        e.ID.String(),
		Label:     d.Label(),
		Kind:      string(d.Kind),
		Algorithm: d.Algorithm.String(),
		Digits:    d.Digits,
		Period:    d.Period,
		Counter:   d.Counter,
		Created:   e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func newVaultAddCmd(a *app, password *string) *cobra.Command {
	var flags descriptorFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a new account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := flags.descriptor()
			if err != nil {
				return err
			}
			v, err := a.openVault(cmd.Context(), *password)
			if err != nil {
				return err
			}
			e, err := v.AddEntry(cmd.Context(), d)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), newEntryView(e))
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func newVaultListCmd(a *app, password *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := a.openVault(cmd.Context(), *password)
			if err != nil {
				return err
			}
			entries, err := v.Entries(cmd.Context())
			if err != nil {
				return err
			}
			views := make([]entryView, 0, len(entries))
			for _, e := range entries {
				views = append(views, newEntryView(e))
			}
			return printYAML(cmd.OutOrStdout(), views)
		},
	}
}

func newVaultCodeCmd(a *app, password *string) *cobra.Command {
	var (
		at     int64
		noSync bool
	)

	cmd := &cobra.Command{
		Use:   "code <id>",
		Short: "Compute the code of a stored account",
		Long: `Computes the current code of a time-based account, or advances a
counter-based account and prints the code for the new counter. The new
counter is saved before the code is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			v, err := a.openVault(ctx, *password)
			if err != nil {
				return err
			}
			e, err := v.Entry(ctx, id)
			if err != nil {
				return err
			}

			if e.Descriptor.Kind == otp.KindHOTP {
				code, err := v.NextCounterCode(ctx, id)
				if err != nil {
					return err
				}
				counter := e.Descriptor.Counter + 1
				return printYAML(cmd.OutOrStdout(), codeView{Label: e.Descriptor.Label(), Code: code, Counter: &counter})
			}

			now, offset, err := a.now(ctx, at, noSync)
			if err != nil {
				return err
			}
			code, err := v.Code(ctx, id, now)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), totpView(e.Descriptor, code, now, offset))
		},
	}

	cmd.Flags().Int64Var(&at, "at", 0, "unix time to compute the code for")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "use the system clock without NTP correction")
	return cmd
}

func newVaultDeleteCmd(a *app, password *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			v, err := a.openVault(cmd.Context(), *password)
			if err != nil {
				return err
			}
			return v.DeleteEntry(cmd.Context(), id)
		},
	}
}

func newSetPasswordCmd(a *app) *cobra.Command {
	var newPassword string

	cmd := &cobra.Command{
		Use:   "set-password",
		Short: "Protect an unprotected vault with a password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := a.loadVault(cmd.Context())
			if err != nil {
				return err
			}
			if err := v.SetupPassword(cmd.Context(), newPassword); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "vault is now", v.Level())
			return nil
		},
	}
	cmd.Flags().StringVar(&newPassword, "new", "", "password to set")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

func newChangePasswordCmd(a *app, password *string) *cobra.Command {
	var newPassword string

	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Re-encrypt every secret under a new password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := a.loadVault(cmd.Context())
			if err != nil {
				return err
			}
			return v.ChangePassword(cmd.Context(), *password, newPassword)
		},
	}
	cmd.Flags().StringVar(&newPassword, "new", "", "new password")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

func newRemovePasswordCmd(a *app, password *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-password",
		Short: "Decrypt every secret and drop password protection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := a.loadVault(cmd.Context())
			if err != nil {
				return err
			}
			return v.RemovePassword(cmd.Context(), *password)
		},
	}
}
