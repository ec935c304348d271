package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/export"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/pfs"
)

// -- runs export --

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write the stored PFS, response and review tables of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs export")
		}
		recs, err := st.ListPFSRecords(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs export")
		}
		responses, err := st.ListResponseRecords(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs export")
		}
		issues, err := st.ListIssues(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs export")
		}

		outDir, _ := cmd.Flags().GetString("out")
		if outDir == "" {
			outDir = filepath.Join(cfg.Output.Dir, run.ID)
		}
		format, _ := cmd.Flags().GetString("format")
		if format == "" {
			format = cfg.Output.Format
		}

		paths, err := export.WriteAll(outDir, format,
			export.PFSTable(recs),
			export.ResponseTable(responses),
			export.ReviewTable(issues),
		)
		if err != nil {
			return err
		}
		for _, p := range paths {
			zap.L().Info("runs export: wrote output", zap.String("path", p))
		}
		fmt.Fprintf(os.Stderr, "Exported run %s (%s): %d PFS rows, %d response rows, %d issues\n",
			truncateID(run.ID), run.Status, len(recs), len(responses), len(issues))
		return nil
	},
}

// -- runs diff --

var runsDiffCmd = &cobra.Command{
	Use:   "diff <run-id> <pfs.csv>",
	Short: "Compare the stored PFS table of a run with a PFS csv file",
	Long: "Lists the patients whose PFS row differs between a stored run and a pfs.csv written " +
		"by another run, for example the previous data cut.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[1])
		if err != nil {
			return eris.Wrapf(err, "runs diff: open %s", args[1])
		}
		defer f.Close() //nolint:errcheck

		other, err := export.ReadPFSCSV(f)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs diff")
		}
		stored, err := st.ListPFSRecords(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs diff")
		}

		changes := pfs.Diff(other, stored)
		if len(changes) == 0 {
			fmt.Fprintln(os.Stderr, "No differences.")
			return nil
		}
		formatPFSChanges(os.Stdout, changes)
		return nil
	},
}

func init() {
	runsExportCmd.Flags().String("out", "", "output directory (default: <output.dir>/<run-id>)")
	runsExportCmd.Flags().String("format", "", "output format: csv, xlsx or both (default: output.format)")

	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsDiffCmd)
}

// formatPFSChanges writes one line per changed patient: the file row first,
// the stored row second.
func formatPFSChanges(out io.Writer, changes []pfs.Change) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PATIENT\tCHANGE\tFIELDS\tRESOLVED\tEVENT\tMONTHS")
	for _, c := range changes {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.PatientID,
			c.Kind,
			strings.Join(c.Fields, ","),
			pfsValue(c, func(r *model.PFSRecord) string { return r.ResolvedDate.Format(model.DateLayout) }),
			pfsValue(c, func(r *model.PFSRecord) string { return fmt.Sprint(r.Event) }),
			pfsValue(c, func(r *model.PFSRecord) string { return fmt.Sprintf("%.4f", r.TimeMonths) }),
		)
	}
	_ = w.Flush()
}

func pfsValue(c pfs.Change, get func(*model.PFSRecord) string) string {
	before, after := "-", "-"
	if c.Before != nil {
		before = get(c.Before)
	}
	if c.After != nil {
		after = get(c.After)
	}
	if before == after {
		return before
	}
	return before + " -> " + after
}
