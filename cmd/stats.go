package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openclaw/chromecrawl/internal/ledger"
)

const errListingCap = 10

func newStatsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the manifest in the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, c)
		},
	}
	cmd.Flags().StringP("output", "o", "", "output directory holding articles and the manifest (required unless set in config)")
	return cmd
}

func runStats(cmd *cobra.Command, c *cli) error {
	ldg, err := ledger.Load(filepath.Join(c.cfg.OutputDir, ledger.FileName))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	counts := ldg.Counts()
	fmt.Fprintf(out, "manifest: %s\n", ldg.Path())
	fmt.Fprintf(out, "records:  %d\n", ldg.Len())
	for _, st := range []ledger.Status{ledger.StatusPending, ledger.StatusExtracted, ledger.StatusFailed} {
		fmt.Fprintf(out, "  %-10s %d\n", st, counts[st])
	}

	listed := 0
	for _, rec := range ldg.Records() {
		if len(rec.Errors) == 0 {
			continue
		}
		if listed == 0 {
			fmt.Fprintf(out, "\nrecords with errors (first %d):\n", errListingCap)
		}
		if listed >= errListingCap {
			break
		}
		listed++
		fmt.Fprintf(out, "  #%04d %s (%s, %d attempts)\n", rec.Seq, rec.URL, rec.Status, rec.Attempts)
		fmt.Fprintf(out, "        last error: %s\n", rec.Errors[len(rec.Errors)-1])
	}

	if size, err := dirSize(c.cfg.OutputDir); err == nil {
		fmt.Fprintf(out, "\ndisk usage: %s\n", humanBytes(size))
	}
	return nil
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total, err
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
