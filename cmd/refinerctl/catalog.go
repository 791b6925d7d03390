package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"media-refiner/internal/layout"
	"media-refiner/internal/pdf"
	"media-refiner/internal/refiner"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show conversion progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, false, func(e *refiner.Engine) error {
				st, err := e.Status(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(cmd, st, func(w io.Writer) {
					fmt.Fprintf(w, "Total:     %d\n", st.Total)
					fmt.Fprintf(w, "Converted: %d\n", st.Converted)
					fmt.Fprintf(w, "Skipped:   %d\n", st.Skipped)
					fmt.Fprintf(w, "Remaining: %d\n", st.Remaining)
					fmt.Fprintf(w, "Excluded:  %d\n", st.Excluded)
					fmt.Fprintf(w, "Complete:  %t\n", st.Complete)
					fmt.Fprintf(w, "Format:    %s, %s\n", st.Settings.Format, st.MaxValues)
					if st.LastCleanup != nil {
						fmt.Fprintf(w, "Cleanup:   %s\n", st.LastCleanup.Format(time.RFC3339))
					}
				})
			})
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Register files under the uploads root that are not cataloged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, false, func(e *refiner.Engine) error {
				res, err := e.Import(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(cmd, res, func(w io.Writer) {
					fmt.Fprintf(w, "Scanned %d files: %d registered, %d known, %d derivatives, %d failed\n",
						res.Files, res.Registered, res.Known, res.Derivatives, res.Failed)
				})
			})
		},
	}
}

func newExcludeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exclude",
		Short: "Manage assets left alone by conversion and cleanup",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List excluded assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, false, func(e *refiner.Engine) error {
				items, err := e.ExcludedImages(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(cmd, items, func(w io.Writer) {
					if len(items) == 0 {
						fmt.Fprintln(w, "No excluded assets")
						return
					}
					for _, it := range items {
						fmt.Fprintf(w, "%d\t%s\n", it.ID, it.Title)
					}
				})
			})
		},
	})

	toggle := func(use, done, short string, apply func(*refiner.Engine, *cobra.Command, int64) (bool, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " ID...",
			Short: short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseIDs(args)
				if err != nil {
					return err
				}
				return a.withEngine(cmd, false, func(e *refiner.Engine) error {
					for _, id := range ids {
						changed, err := apply(e, cmd, id)
						if err != nil {
							return fmt.Errorf("asset %d: %w", id, err)
						}
						if !changed {
							fmt.Fprintf(cmd.OutOrStdout(), "%d unchanged\n", id)
							continue
						}
						fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", id, done)
					}
					return nil
				})
			},
		}
	}
	cmd.AddCommand(
		toggle("add", "excluded", "Exclude assets", func(e *refiner.Engine, cmd *cobra.Command, id int64) (bool, error) {
			return e.AddExclusion(cmd.Context(), id)
		}),
		toggle("remove", "included", "Remove assets from the exclusion list", func(e *refiner.Engine, cmd *cobra.Command, id int64) (bool, error) {
			return e.RemoveExclusion(cmd.Context(), id)
		}),
	)
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every cataloged file to a zip archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				out = "media-export-" + time.Now().Format("2006-01-02") + ".zip"
			}
			return a.withEngine(cmd, false, func(e *refiner.Engine) error {
				return writeExport(cmd, a, e, out)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Archive path (default media-export-YYYY-MM-DD.zip)")
	return cmd
}

// writeExport streams the archive to a staging file and renames it into
// place, so a failed export leaves nothing behind.
func writeExport(cmd *cobra.Command, a *app, e *refiner.Engine, out string) error {
	staging := layout.StagingPath(out)
	f, err := os.Create(staging)
	if err != nil {
		return err
	}
	sum, err := e.Export(cmd.Context(), f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(staging, out)
	}
	if err != nil {
		_ = os.Remove(staging)
		return err
	}
	return a.print(cmd, sum, func(w io.Writer) {
		fmt.Fprintf(w, "Wrote %d files (%s) to %s", sum.Files, pdf.FormatBytes(sum.Bytes), filepath.Clean(out))
		if sum.Missing > 0 {
			fmt.Fprintf(w, ", %d missing", sum.Missing)
		}
		fmt.Fprintln(w)
	})
}

func newPDFCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdf",
		Short: "PDF maintenance",
	}

	var level string
	compress := &cobra.Command{
		Use:   "compress ID...",
		Short: "Compress PDF assets with Ghostscript",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := pdf.ParseLevel(level)
			if err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return a.withEngine(cmd, false, func(e *refiner.Engine) error {
				n, err := e.CompressPDFs(cmd.Context(), ids, lvl)
				if err != nil {
					return err
				}
				return a.print(cmd, map[string]int{"compressed": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Compressed %d of %d PDFs\n", n, len(ids))
				})
			})
		},
	}
	compress.Flags().StringVar(&level, "level", string(pdf.LevelEbook), "Ghostscript preset: screen, ebook or printer")
	cmd.AddCommand(compress)
	return cmd
}
