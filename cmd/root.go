// Package cmd implements the pixie command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "pixie",
		Short: "pixie messaging client",
		Long: fmt.Sprintf(`pixie (v%s)

Talks to a pixie peer over a ZeroMQ request/reply socket with msgpack
envelopes. The peer address is either given directly or looked up in
etcd through the pixie.connect property. Every flag can also be set as
PIXIE_<FLAG> (e.g. PIXIE_ENDPOINT=tcp://127.0.0.1:7006).`, Version),
		SilenceUsage:      true,
		PersistentPostRun: dumpMetrics,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of pixie",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pixie v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(InitConfig)

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(pluginCmd)
	RootCmd.AddCommand(imageCmd)
	RootCmd.AddCommand(discoverCmd)
	RootCmd.AddCommand(serveCmd)

	key := "log-level"
	RootCmd.PersistentFlags().String(key, "info", WrapString("Level at which logs are written to stderr (trace, debug, info, warn, error)"))
	key = "codec"
	RootCmd.PersistentFlags().String(key, "msgpack", WrapString("Envelope codec (msgpack, json). Both ends must agree"))
	key = "metrics"
	RootCmd.PersistentFlags().Bool(key, false, WrapString("Print request metrics in Prometheus text format when the command ends"))

	SetupEtcdFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := RootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
