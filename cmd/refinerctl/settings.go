package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"media-refiner/internal/refiner"
	"media-refiner/internal/settings"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change conversion settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, false, func(e *refiner.Engine) error {
				return printSettings(cmd, a, e.Settings().Resolve(cmd.Context()))
			})
		},
	}

	var (
		update             settings.Update
		maxWidths          string
		maxHeights         string
		resizeMode         string
		format             string
		quality            int
		batchSize          int
		minSizeKB          int
		preserveOriginals  bool
		disableAutoConvert bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change one or more settings",
		Long: `Set changes only the settings named by flags. Values are validated
the same way as through the HTTP API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("max-widths") {
				update.MaxWidths = &maxWidths
			}
			if flags.Changed("max-heights") {
				update.MaxHeights = &maxHeights
			}
			if flags.Changed("resize-mode") {
				update.ResizeMode = &resizeMode
			}
			if flags.Changed("format") {
				update.Format = &format
			}
			if flags.Changed("quality") {
				update.Quality = &quality
			}
			if flags.Changed("batch-size") {
				update.BatchSize = &batchSize
			}
			if flags.Changed("min-size-kb") {
				update.MinSizeKB = &minSizeKB
			}
			if flags.Changed("preserve-originals") {
				update.PreserveOriginals = &preserveOriginals
			}
			if flags.Changed("disable-auto-convert") {
				update.DisableAutoConvert = &disableAutoConvert
			}
			if update == (settings.Update{}) {
				return fmt.Errorf("no settings given")
			}

			return a.withEngine(cmd, false, func(e *refiner.Engine) error {
				if err := e.Settings().Apply(cmd.Context(), update); err != nil {
					return err
				}
				return printSettings(cmd, a, e.Settings().Resolve(cmd.Context()))
			})
		},
	}
	f := set.Flags()
	f.StringVar(&maxWidths, "max-widths", "", "Comma-separated widths, primary first")
	f.StringVar(&maxHeights, "max-heights", "", "Comma-separated heights, primary first")
	f.StringVar(&resizeMode, "resize-mode", "", "width or height")
	f.StringVar(&format, "format", "", "webp or avif")
	f.IntVar(&quality, "quality", 0, "Encoder quality, 0-100")
	f.IntVar(&batchSize, "batch-size", 0, "Assets per page, 1-50")
	f.IntVar(&minSizeKB, "min-size-kb", 0, "Smallest source file considered, in KB")
	f.BoolVar(&preserveOriginals, "preserve-originals", false, "Keep source files after conversion")
	f.BoolVar(&disableAutoConvert, "disable-auto-convert", false, "Do not convert uploads automatically")

	cmd.AddCommand(show, set)
	return cmd
}

func printSettings(cmd *cobra.Command, a *app, cfg settings.Config) error {
	return a.print(cmd, cfg, func(w io.Writer) {
		dims := make([]string, len(cfg.Dimensions))
		for i, d := range cfg.Dimensions {
			dims[i] = fmt.Sprint(d)
		}
		fmt.Fprintf(w, "Format:               %s\n", cfg.Format)
		fmt.Fprintf(w, "Resize mode:          %s\n", cfg.Mode)
		fmt.Fprintf(w, "Dimensions:           %s\n", strings.Join(dims, ", "))
		fmt.Fprintf(w, "Quality:              %d\n", cfg.Quality)
		fmt.Fprintf(w, "Batch size:           %d\n", cfg.BatchSize)
		fmt.Fprintf(w, "Minimum size (KB):    %d\n", cfg.MinSizeKB)
		fmt.Fprintf(w, "Preserve originals:   %t\n", cfg.PreserveOriginals)
		fmt.Fprintf(w, "Disable auto-convert: %t\n", cfg.DisableAutoConvert)
	})
}

func newResetCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default conversion settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				ok, err := a.confirm(cmd, "restore the default settings")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Reset cancelled")
					return nil
				}
			}
			return a.withEngine(cmd, false, func(e *refiner.Engine) error {
				if err := e.ResetDefaults(cmd.Context()); err != nil {
					return err
				}
				return printSettings(cmd, a, e.Settings().Resolve(cmd.Context()))
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newLogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Read or clear the activity journal",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print journal entries, oldest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withEngine(cmd, false, func(e *refiner.Engine) error {
					entries, err := e.Log(cmd.Context())
					if err != nil {
						return err
					}
					return a.print(cmd, entries, func(w io.Writer) {
						for _, line := range entries {
							fmt.Fprintln(w, line)
						}
					})
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Empty the journal",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withEngine(cmd, false, func(e *refiner.Engine) error {
					if err := e.ClearLog(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Log cleared")
					return nil
				})
			},
		},
	)
	return cmd
}
