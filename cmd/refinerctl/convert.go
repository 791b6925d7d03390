package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"media-refiner/internal/batch"
	"media-refiner/internal/refiner"
)

func newConvertCmd(a *app) *cobra.Command {
	var (
		offset int
		once   bool
	)
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert cataloged images to the target format",
		Long: `Convert runs batch pages until every candidate has been visited.
Without --offset a new run is started, which clears the completion flag.
With --once only the page at --offset is processed and the next offset is
printed so the run can be resumed later.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, true, func(e *refiner.Engine) error {
				ctx := cmd.Context()
				if !cmd.Flags().Changed("offset") {
					runID, err := e.Start(ctx)
					if err != nil {
						return err
					}
					if !a.jsonOutput {
						fmt.Fprintf(cmd.OutOrStdout(), "Run %s started\n", runID)
					}
				}

				if once {
					page, err := e.ProcessPage(ctx, offset)
					if err != nil {
						return err
					}
					return a.print(cmd, page, func(w io.Writer) { printPage(w, page) })
				}

				var pages []batch.PageResult
				err := e.RunToCompletion(ctx, offset, func(page batch.PageResult) {
					pages = append(pages, page)
					if !a.jsonOutput {
						printPage(cmd.OutOrStdout(), page)
					}
				})
				if err != nil {
					return err
				}
				if a.jsonOutput {
					return a.print(cmd, pages, nil)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Resume from this catalog offset")
	cmd.Flags().BoolVar(&once, "once", false, "Process a single page and exit")
	return cmd
}

func printPage(w io.Writer, p batch.PageResult) {
	fmt.Fprintf(w, "offset %d: %d converted, %d current, %d skipped, %d failed (%s)\n",
		p.NextOffset, p.Converted, p.Current, p.Skipped, p.Failed, p.Duration.Round(time.Millisecond))
	switch {
	case p.Complete:
		fmt.Fprintln(w, "Conversion complete")
	case p.Interrupted:
		fmt.Fprintf(w, "Interrupted; resume with --offset %d\n", p.NextOffset)
	}
}

func newSweepCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete orphaned files and regenerate missing thumbnails",
		Long: `Sweep walks the uploads tree and deletes every file that is neither
a cataloged asset, one of its sizes, nor the original of an excluded asset.
Deleted files cannot be recovered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				ok, err := a.confirm(cmd, "delete orphaned files")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Sweep cancelled")
					return nil
				}
			}
			return a.withEngine(cmd, true, func(e *refiner.Engine) error {
				res, err := e.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(cmd, res, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted %d files, %d failed, %d thumbnails regenerated (%s)\n",
						res.Deleted, res.Failed, res.ThumbnailsRegenerated, res.Duration.Round(time.Millisecond))
				})
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
