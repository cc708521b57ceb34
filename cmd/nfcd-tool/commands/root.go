// Package commands implements the nfcd-tool CLI: adapter/tag/host
// introspection and tag read/write/format, all operating against a
// single locally-configured radio driver (no D-Bus/RPC surface).
package commands

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nfc-tools/nfcd/internal/nconfig"
	"github.com/nfc-tools/nfcd/internal/nlog"
	"github.com/nfc-tools/nfcd/internal/nmetrics"
)

// Flags holds the persistent, driver-selection flags shared by every
// subcommand.
var Flags struct {
	Driver     string
	SerialPort string
	ResetPin   string
	Config     string
}

// cfg is loaded before any subcommand runs.
var cfg = nconfig.Default()

// metricsReg and metrics are shared by every target and adapter this
// tool builds; serve-metrics exposes the registry over HTTP.
var (
	metricsReg = prometheus.NewRegistry()
	metrics    = nmetrics.New(metricsReg)
)

var rootCmd = &cobra.Command{
	Use:           "nfcd-tool",
	Short:         "Inspect and operate NFC adapters, tags, and hosts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := nconfig.Load(Flags.Config)
		if err != nil {
			return err
		}
		cfg = c
		nlog.SetLevel(cfg.Logging.Level)
		nlog.SetJSON(cfg.Logging.JSON)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&Flags.Driver, "driver", "dummy",
		"radio driver to use: dummy or serial")
	rootCmd.PersistentFlags().StringVar(&Flags.SerialPort, "serial-port", "",
		"serial device path, for --driver=serial")
	rootCmd.PersistentFlags().StringVar(&Flags.ResetPin, "reset-pin", "",
		"GPIO pin name driven to reset the reader, for --driver=serial")
	rootCmd.PersistentFlags().StringVar(&Flags.Config, "config", "",
		"optional YAML configuration file")

	rootCmd.AddCommand(adaptersCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(serveMetricsCmd)
}
