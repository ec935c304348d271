package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect derivation run history",
	Long:  "Commands for listing runs and viewing their phases and data-quality issues.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List derivation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

type runDetail struct {
	*model.Run
	Phases []model.RunPhase `json:"phases"`
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
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
			return eris.Wrap(err, "runs show")
		}
		phases, err := st.ListPhases(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runDetail{Run: run, Phases: phases})
	},
}

// -- runs issues --

var runsIssuesCmd = &cobra.Command{
	Use:   "issues <run-id>",
	Short: "List the data-quality issues of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		issues, err := st.ListIssues(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs issues")
		}

		kind, _ := cmd.Flags().GetString("kind")
		severity, _ := cmd.Flags().GetString("severity")
		issues = filterIssues(issues, diag.Kind(kind), diag.Severity(severity))

		if len(issues) == 0 {
			fmt.Fprintln(os.Stderr, "No issues found.")
			return nil
		}
		formatIssues(os.Stdout, issues)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	runsIssuesCmd.Flags().String("kind", "", "filter by issue kind (data_gap, unmapped_category, ...)")
	runsIssuesCmd.Flags().String("severity", "", "filter by severity (error, warning)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsIssuesCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tINPUT\tSTATUS\tCOHORT\tEVENTS\tISSUES\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t------\t------\t------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Millisecond).String()

		input := r.InputPath
		if len(input) > 30 {
			input = "..." + input[len(input)-27:]
		}

		cohort, events, issues := "", "", ""
		if r.Summary != nil {
			cohort = fmt.Sprint(r.Summary.CohortSize)
			events = fmt.Sprint(r.Summary.Events)
			n := 0
			for _, c := range r.Summary.Issues {
				n += c
			}
			issues = fmt.Sprint(n)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			input,
			r.Status,
			cohort,
			events,
			issues,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

func filterIssues(issues []diag.Issue, kind diag.Kind, severity diag.Severity) []diag.Issue {
	var out []diag.Issue
	for _, i := range issues {
		if kind != "" && i.Kind != kind {
			continue
		}
		if severity != "" && i.Severity != severity {
			continue
		}
		out = append(out, i)
	}
	return out
}

// formatIssues writes a tabular list of issues to w.
func formatIssues(out io.Writer, issues []diag.Issue) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PATIENT\tASSESSMENT\tSEVERITY\tKIND\tSTAGE\tFIELD\tVALUE\tDETAIL")
	for _, i := range issues {
		idx := ""
		if i.Assessment != diag.NoAssessment {
			idx = fmt.Sprint(i.Assessment)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i.PatientID, idx, i.Severity, i.Kind, i.Stage, i.Field, i.Value, i.Detail)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
