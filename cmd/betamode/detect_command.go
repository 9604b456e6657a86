package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"betamode/internal/detect"
	"betamode/internal/imaging"
	"betamode/internal/logging"
)

func newDetectCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "Run the detector on one image and write the censored result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireDetector(); err != nil {
				return err
			}
			src := args[0]
			data, err := os.ReadFile(src)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			detector := detect.NewCommand(detect.CommandOptions{
				Command:   cfg.Detector.Command,
				Args:      cfg.Detector.Args,
				BoxFormat: cfg.Detector.BoxFormat,
				Timeout:   cfg.DetectorTimeout(),
				WorkDir:   cfg.Paths.WorkDir,
			}, logging.NewNop())
			detections, err := detector.Detect(cmd.Context(), data)
			if err != nil {
				return err
			}
			kept := detect.Filter(detections, cfg.Detector.CensoredLabels, cfg.Detector.MinScore)

			out := cmd.OutOrStdout()
			printDetections(cmd, detections, kept)
			if len(kept) == 0 {
				fmt.Fprintln(out, "No censored regions; the host would return the image unchanged")
				return nil
			}

			enc := imaging.NewEncoder()
			img, err := enc.Decode(data)
			if err != nil {
				return err
			}
			img = enc.Blacken(img, detect.Boxes(kept))
			img = enc.Downscale(img, cfg.Encoder.MaxDimension)
			encoded, err := enc.Encode(img, cfg.Encoder.Quality)
			if err != nil {
				return err
			}

			target := strings.TrimSpace(outputPath)
			if target == "" {
				target = strings.TrimSuffix(src, filepath.Ext(src)) + ".censored.jpg"
			}
			if err := os.WriteFile(target, encoded, 0o644); err != nil {
				return fmt.Errorf("write censored image: %w", err)
			}
			fmt.Fprintf(out, "Blackened %d region(s); wrote %s (%s)\n", len(kept), target, humanBytes(int64(len(encoded))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination for the censored image")
	return cmd
}

func printDetections(cmd *cobra.Command, detections, kept []detect.Detection) {
	out := cmd.OutOrStdout()
	if len(detections) == 0 {
		fmt.Fprintln(out, "Detections: none")
		return
	}
	censored := make(map[detect.Detection]bool, len(kept))
	for _, d := range kept {
		censored[d] = true
	}
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(detections))
	for _, d := range detections {
		mark := yesNo(censored[d])
		if colorize && censored[d] {
			mark = text.FgRed.Sprint(mark)
		}
		rows = append(rows, []string{
			d.Label,
			fmt.Sprintf("%.2f", d.Score),
			fmt.Sprintf("%d,%d %dx%d", d.Box.Min.X, d.Box.Min.Y, d.Box.Dx(), d.Box.Dy()),
			mark,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Label", "Score", "Box", "Censored"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
	))
}
