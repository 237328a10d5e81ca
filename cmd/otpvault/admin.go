package main

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/otpvault/pkg/store/pgstore"
)

// Set via -ldflags "-X main.version=x.y.z".
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "otpvault %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := pgstore.Connect(ctx, a.cfg.Postgres)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pgstore.Migrate(ctx, pool, a.cfg.Postgres, a.log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report storage health and the vault protection level",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			secrets, _, err := a.stores(ctx)
			if err != nil {
				return err
			}

			type backendView struct {
				Name   string `yaml:"name"`
				Status string `yaml:"status"`
			}
			out := struct {
				Secrets     string        `yaml:"secrets_driver"`
				Preferences string        `yaml:"preferences_driver"`
				Backends    []backendView `yaml:"backends,omitempty"`
				Level       string        `yaml:"protection_level"`
				Entries     int           `yaml:"entries"`
			}{
				Secrets:     a.cfg.Storage.Secrets,
				Preferences: a.cfg.Storage.Preferences,
			}

			names := make([]string, 0, len(a.checks))
			for name := range a.checks {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				status := "ok"
				if err := a.checks[name](ctx); err != nil {
					status = err.Error()
				}
				out.Backends = append(out.Backends, backendView{Name: name, Status: status})
			}

			v, err := a.loadVault(ctx)
			if err != nil {
				return err
			}
			out.Level = v.Level().String()

			all, err := secrets.GetAll(ctx)
			if err != nil {
				return err
			}
			out.Entries = len(all)

			return printYAML(cmd.OutOrStdout(), out)
		},
	}
}
