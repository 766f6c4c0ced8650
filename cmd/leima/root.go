package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/leima/telemetry"
)

var (
	version = "0.1.0"

	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "leima",
		Short: "Untagged Resource Audit Scanner",
		Long: `Leima - Untagged Resource Audit Scanner

Leima sweeps an AWS account for resources carrying no tags at all,
across every enabled region and every supported resource kind, and
produces one deterministically ordered CSV report.

Run it from a scheduler for periodic tag hygiene audits, or ad hoc
when hunting unowned infrastructure.`,
		Version:          version,
		PersistentPreRun: setupLogging,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`Leima {{.Version}} - Untagged Resource Audit Scanner
`)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to TOML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// setupLogging wires the global logger: human console output with trace
// IDs stamped by the OTEL hook once a span context is present.
func setupLogging(_ *cobra.Command, _ []string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Logger().
		Hook(telemetry.OTELHook{})
}
