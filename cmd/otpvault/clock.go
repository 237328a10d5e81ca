package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/otpvault/pkg/logger"
	"github.com/dmitrymomot/otpvault/pkg/ntp"
)

type offsetView struct {
	Server    string `yaml:"server"`
	Offset    string `yaml:"offset,omitempty"`
	RoundTrip string `yaml:"round_trip,omitempty"`
	Stratum   uint8  `yaml:"stratum,omitempty"`
	Error     string `yaml:"error,omitempty"`
}

func newOffsetView(server string, resp *ntp.Response, err error) offsetView {
	v := offsetView{Server: server}
	if err != nil {
		v.Error = err.Error()
		return v
	}
	v.Offset = resp.Offset.String()
	v.RoundTrip = resp.RoundTripDelay.String()
	v.Stratum = resp.Stratum
	return v
}

func newSyncCmd(a *app) *cobra.Command {
	var compare bool

	cmd := &cobra.Command{
		Use:   "sync [host...]",
		Short: "Measure the clock offset against NTP servers",
		Long: `Without arguments, queries the configured server once. With hosts, or
with --compare, queries every host concurrently and reports each offset;
the configured candidates are used when --compare is given without hosts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, err := a.clock(ctx)
			if err != nil {
				return err
			}

			if len(args) == 0 && !compare {
				resp, err := src.Sync(ctx)
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), []offsetView{newOffsetView(src.Server(), resp, nil)})
			}

			results, err := src.Compare(ctx, args...)
			if err != nil {
				return err
			}
			views := make([]offsetView, 0, len(results))
			for _, r := range results {
				views = append(views, newOffsetView(r.Server, r.Response, r.Err))
			}
			return printYAML(cmd.OutOrStdout(), views)
		},
	}

	cmd.Flags().BoolVar(&compare, "compare", false, "query all configured candidate servers")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print corrected time on every tick until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			src, err := a.clock(ctx)
			if err != nil {
				return err
			}

			errc := make(chan error, 1)
			ticks := src.Subscribe(ctx)
			go func() { errc <- src.Run(ctx) }()

			seen := 0
			for t := range ticks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s offset=%s server=%s\n",
					t.Corrected.Format(time.RFC3339), t.Offset, src.Server())
				seen++
				if count > 0 && seen >= count {
					break
				}
			}
			cancel()
			return <-errc
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "stop after this many ticks")
	return cmd
}

func newNTPServerCmd(a *app) *cobra.Command {
	var (
		listen  string
		skew    time.Duration
		stratum uint8
	)

	cmd := &cobra.Command{
		Use:   "ntp-server",
		Short: "Serve SNTP from the local clock for testing",
		Long: `Answers SNTP requests from the local clock, optionally skewed, so clients
can be tested against a known offset. Not a public time source.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pc, err := net.ListenPacket("udp", listen)
			if err != nil {
				return err
			}
			defer pc.Close()

			a.log.InfoContext(cmd.Context(), "serving sntp",
				slog.String("addr", pc.LocalAddr().String()),
				logger.Offset(skew),
			)
			srv := &ntp.Server{
				Now:     func() time.Time { return time.Now().Add(skew) },
				Stratum: stratum,
			}
			return srv.Serve(cmd.Context(), pc)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:1123", "UDP address to listen on")
	cmd.Flags().DurationVar(&skew, "skew", 0, "offset added to the local clock")
	cmd.Flags().Uint8Var(&stratum, "stratum", 1, "stratum to report")
	return cmd
}
