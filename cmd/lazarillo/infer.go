package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-lazarillo/pkg/alert"
	"github.com/teslashibe/go-lazarillo/pkg/detection"
	"github.com/teslashibe/go-lazarillo/pkg/settings"
)

var (
	inferOverlayDir string
	inferJSON       bool
)

var inferCmd = &cobra.Command{
	Use:   "infer <image>...",
	Short: "Run detection on still images and print what would be announced",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		policy := detection.Policy{
			MaxDistanceMeters: cfg.MaxDistanceMeters,
			MaxCount:          cfg.MaxCount,
			MinConfidence:     cfg.MinConfidence,
		}
		lang := settings.Language(cfg.Language)
		out := cmd.OutOrStdout()

		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			res, err := client.Infer(cmd.Context(), data, filepath.Base(path))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			if inferOverlayDir != "" && res.HasOverlay() {
				name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "_overlay.jpg"
				if err := os.WriteFile(filepath.Join(inferOverlayDir, name), res.Overlay, 0o644); err != nil {
					return err
				}
			}

			filtered := policy.Apply(res.Objects)
			sentence := alert.Compose(filtered, lang)

			if inferJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]any{
					"file":     path,
					"ok":       res.OK,
					"reason":   res.Reason,
					"objects":  filtered,
					"sentence": sentence,
				}); err != nil {
					return err
				}
				continue
			}

			fmt.Fprintf(out, "%s\n", path)
			if !res.OK {
				fmt.Fprintf(out, "  rejected: %s\n\n", res.Reason)
				continue
			}
			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "  LABEL\tDISTANCE\tDIRECTION\tCONFIDENCE")
			for _, o := range filtered {
				fmt.Fprintf(w, "  %s\t%.1fm\t%s\t%.2f\n", o.Label, o.DistanceMeters, o.Direction, o.Confidence)
			}
			w.Flush()
			if sentence != "" {
				fmt.Fprintf(out, "  says: %q\n", sentence)
			}
			fmt.Fprintf(out, "  (%d of %d objects kept, %s)\n\n", len(filtered), len(res.Objects), res.Latency)
		}
		return nil
	},
}

func init() {
	inferCmd.Flags().StringVar(&inferOverlayDir, "overlay-dir", "", "write returned overlays into this directory")
	inferCmd.Flags().BoolVar(&inferJSON, "json", false, "print JSON instead of a table")
}
