package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/export"
	"github.com/sells-group/pfs-cli/internal/pipeline"
	"github.com/sells-group/pfs-cli/internal/store"
	"github.com/sells-group/pfs-cli/internal/vocab"
)

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive the PFS event table and RECIST responses from a CRF export",
	Long: "Loads a CRF export (xlsx workbook, csv directory or zip bundle), builds the analysis cohort, " +
		"resolves PFS events and classifies every tumour assessment. Writes the output tables and the " +
		"review artifact, and records the run in the store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		input, _ := cmd.Flags().GetString("input")
		if input == "" {
			input = cfg.Input.Path
		}
		if input == "" {
			return eris.New("derive: --input is required (or set input.path)")
		}
		outDir, _ := cmd.Flags().GetString("out")
		if outDir == "" {
			outDir = cfg.Output.Dir
		}
		format, _ := cmd.Flags().GetString("format")
		if format == "" {
			format = cfg.Output.Format
		}
		expected, _ := cmd.Flags().GetInt("expected-cohort")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		verify, _ := cmd.Flags().GetBool("verify")

		opts := pipelineOptions(cfg)
		if expected >= 0 {
			opts.Cohort.ExpectedSize = expected
		}

		v, err := vocab.Load(vocabPaths(cfg))
		if err != nil {
			return err
		}

		var st store.Store
		if !dryRun {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		p := pipeline.New(st, v, opts)
		var res *pipeline.Result
		if verify {
			res, err = p.Verify(ctx, input)
		} else {
			res, err = p.Run(ctx, input)
		}

		// The review table is written even when the run fails.
		if res != nil && res.Report != nil {
			paths, writeErr := export.WriteAll(outDir, format, res.Tables()...)
			if writeErr != nil {
				if err == nil {
					err = writeErr
				} else {
					zap.L().Error("derive: write output", zap.Error(writeErr))
				}
			}
			for _, path := range paths {
				zap.L().Info("derive: wrote output", zap.String("path", path))
			}
			formatSummary(os.Stdout, res)
		}
		if hint := fatalHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		return err
	},
}

func init() {
	deriveCmd.Flags().String("input", "", "CRF export: xlsx workbook, directory of csv tables, or zip bundle")
	deriveCmd.Flags().String("out", "", "output directory (default: output.dir)")
	deriveCmd.Flags().String("format", "", "output format: csv, xlsx or both (default: output.format)")
	deriveCmd.Flags().Int("expected-cohort", -1, "expected cohort size; overrides cohort.expected_size, 0 disables the check")
	deriveCmd.Flags().Bool("dry-run", false, "derive without recording the run in the store")
	deriveCmd.Flags().Bool("verify", false, "derive twice and fail unless both outputs are identical")
	rootCmd.AddCommand(deriveCmd)
}

// fatalHint explains the structural failures that abort a run before any
// output table is built.
func fatalHint(err error) string {
	switch {
	case err == nil:
		return ""
	case diag.IsCohortIntegrity(err):
		return "The analysis cohort does not have the expected size. Check the intake table and " +
			"cohort.withdrawn, or pass --expected-cohort if the expected count changed."
	case diag.IsDuplicateRecord(err):
		return "Some patients have conflicting rows in a one-row-per-key table. " +
			"See the duplicate_record rows of the review table and correct the export."
	}
	return ""
}

// formatSummary writes the headline counts of a run to w.
func formatSummary(out io.Writer, res *pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if res.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	}
	if res.Summary != nil {
		s := res.Summary
		_, _ = fmt.Fprintf(w, "Cohort:\t%d\n", s.CohortSize)
		_, _ = fmt.Fprintf(w, "PFS records:\t%d\n", s.PFSRecords)
		_, _ = fmt.Fprintf(w, "  Events:\t%d\n", s.Events)
		_, _ = fmt.Fprintf(w, "  Censored:\t%d\n", s.Censored)
		_, _ = fmt.Fprintf(w, "  Excluded:\t%d\n", s.Excluded)
		_, _ = fmt.Fprintf(w, "Response records:\t%d\n", s.ResponseRecords)

		kinds := make([]string, 0, len(s.Issues))
		for k := range s.Issues {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		_, _ = fmt.Fprintf(w, "Issues:\t%d\n", res.Report.Len())
		for _, k := range kinds {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", k, s.Issues[k])
		}
	}
	if res.OutputDigest != "" {
		_, _ = fmt.Fprintf(w, "Output digest:\t%s\n", res.OutputDigest)
	}
	_ = w.Flush()
}
