package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-lazarillo/internal/log"
)

var (
	runScan  bool
	runNoWeb bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the client and wait for a double tap",
	Long: `Start the client in the idle screen. A double tap on the dashboard
(or --scan) starts streaming frames; Stop returns to idle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runNoWeb {
			cfg.Web.Enabled = false
		}
		if problems := cfg.Validate(); len(problems) > 0 {
			return fmt.Errorf("invalid config:\n  %s", strings.Join(problems, "\n  "))
		}
		return run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runScan, "scan", false, "start scanning immediately")
	runCmd.Flags().BoolVar(&runNoWeb, "no-web", false, "disable the dashboard")
}

func run(ctx context.Context) error {
	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := log.Component("lazarillo")
	logger.Info("starting",
		"server", cfg.ServerURL,
		"interval", cfg.TickInterval,
		"camera", cfg.Camera.Source,
		"speech", cfg.Speech.Provider,
		"language", cfg.Language,
	)

	g, ctx := errgroup.WithContext(ctx)

	if a.dashboard != nil {
		g.Go(func() error {
			return a.dashboard.Run(ctx)
		})
	}
	if a.link != nil {
		g.Go(func() error {
			return a.link.Run(ctx)
		})
	}

	g.Go(func() error {
		a.machine.Begin(ctx)
		if runScan {
			if err := a.machine.StartScanning(ctx); err != nil {
				// The session stays idle; the dashboard can retry.
				logger.Warn("scanning did not start", "error", err)
			}
		}
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped")
	return nil
}
