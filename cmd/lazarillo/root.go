package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-lazarillo/internal/config"
	"github.com/teslashibe/go-lazarillo/internal/log"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	configPath string
	flagServer string
	flagLevel  string
	flagLang   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "lazarillo",
	Short:         "Spoken and haptic obstacle alerts from a camera stream",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}

		// Flags override file and environment
		if cmd.Flags().Changed("server") {
			loaded.ServerURL = flagServer
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = flagLevel
		}
		if cmd.Flags().Changed("lang") {
			loaded.Language = flagLang
		}

		log.Init(loaded.LogLevel)
		cfg = loaded
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	pf.StringVar(&flagServer, "server", config.DefaultServerURL, "inference service base URL")
	pf.StringVar(&flagLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&flagLang, "lang", "es", "spoken language: es or en")

	rootCmd.AddCommand(runCmd, inferCmd, checkCmd, versionCmd)
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "lazarillo", Version)
	},
}
